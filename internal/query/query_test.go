package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/repoindex/internal/errors"
)

func TestNewRangeQuery_FieldMismatch(t *testing.T) {
	// Given: bounds on different fields
	low := NewTerm("lastUpdate", "20051212000000")
	high := NewTerm("version", "20051212235959")

	// When: building the range
	_, err := NewRangeQuery(low, high, true)

	// Then: construction fails
	assert.ErrorIs(t, err, errors.ErrFieldMismatch)
}

func TestRangeQuery_Contains(t *testing.T) {
	const indexed = "20051212044643"

	tests := []struct {
		name     string
		q        RangeQuery
		expected bool
	}{
		{"inclusive covers value", InclusiveRange("lastUpdate", "20051212000000", "20051212235959"), true},
		{"inclusive at upper bound", InclusiveRange("lastUpdate", "20051212000000", indexed), true},
		{"inclusive at lower bound", InclusiveRange("lastUpdate", indexed, "20051212235959"), true},
		{"exclusive at upper bound", ExclusiveRange("lastUpdate", "20051212000000", indexed), false},
		{"exclusive at lower bound", ExclusiveRange("lastUpdate", indexed, "20051212235959"), false},
		{"exclusive covers value", ExclusiveRange("lastUpdate", "20051212000000", "20051212235959"), true},
		{"outside", InclusiveRange("lastUpdate", "20060101000000", "20061231235959"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.q.Contains(indexed))
		})
	}
}

func TestDateRange_UsesSharedCodec(t *testing.T) {
	from := time.Date(2005, 12, 12, 0, 0, 0, 0, time.UTC)
	to := time.Date(2005, 12, 12, 23, 59, 59, 0, time.UTC)

	q := DateRange("lastUpdate", from, to, true)

	assert.Equal(t, "20051212000000", q.Low.Value)
	assert.Equal(t, "20051212235959", q.High.Value)
	assert.Equal(t, "lastUpdate", q.Field())
}

func TestQuery_String(t *testing.T) {
	tests := []struct {
		name     string
		q        Query
		expected string
	}{
		{"term", TermQuery("pluginPrefix", "org.apache.maven"), `pluginPrefix:"org.apache.maven"`},
		{"inclusive", InclusiveRange("lastUpdate", "1", "2"), `lastUpdate:["1" TO "2"]`},
		{"exclusive", ExclusiveRange("lastUpdate", "1", "2"), `lastUpdate:{"1" TO "2"}`},
		{
			"compound",
			And(TermQuery("groupId", "g"), Or(TermQuery("type", "jar"), TermQuery("type", "pom"))),
			`(groupId:"g" AND (type:"jar" OR type:"pom"))`,
		},
		{"all", All(), "*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.q.String())
		})
	}
}

func TestQuery_StringDistinguishesInclusivity(t *testing.T) {
	assert.NotEqual(t,
		InclusiveRange("f", "a", "b").String(),
		ExclusiveRange("f", "a", "b").String())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		q       Query
		errCode string
	}{
		{"term", TermQuery("id", "group:g"), ""},
		{"range", InclusiveRange("lastUpdate", "a", "b"), ""},
		{"all", All(), ""},
		{"nil", nil, errors.ErrCodeInvalidQuery},
		{"empty field", TermQuery("", "x"), errors.ErrCodeInvalidQuery},
		{"mismatched literal", RangeQuery{Low: NewTerm("a", "1"), High: NewTerm("b", "2")}, errors.ErrCodeFieldMismatch},
		{"empty and", And(), errors.ErrCodeInvalidQuery},
		{"nested invalid", Or(TermQuery("id", "x"), And()), errors.ErrCodeInvalidQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.q)
			if tt.errCode == "" {
				require.NoError(t, err)
				return
			}
			assert.Equal(t, tt.errCode, errors.GetCode(err))
		})
	}
}
