// Package query is the small query algebra understood by every index engine:
// exact terms, inclusive or exclusive ranges over one field, and caller-built
// conjunctions and disjunctions of those.
//
// Range bounds compare as strings. Date bounds must therefore be built with
// DateRange (or document.EncodeDate) so they use the same encoding as the
// indexed values.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/repoindex/internal/document"
	"github.com/Aman-CERP/repoindex/internal/errors"
)

// Query is implemented by the algebra types in this package only.
type Query interface {
	// String returns the canonical form used in logs and cache keys.
	String() string
	isQuery()
}

// Term is an exact (field, value) match.
type Term struct {
	Field string
	Value string
}

// NewTerm builds a Term.
func NewTerm(field, value string) Term {
	return Term{Field: field, Value: value}
}

// String renders the term as field:"value".
func (t Term) String() string {
	return fmt.Sprintf("%s:%q", t.Field, t.Value)
}

// SingleTermQuery matches documents where any value of Term.Field equals Term.Value.
type SingleTermQuery struct {
	Term Term
}

// NewSingleTermQuery wraps t.
func NewSingleTermQuery(t Term) SingleTermQuery {
	return SingleTermQuery{Term: t}
}

// TermQuery is shorthand for NewSingleTermQuery(NewTerm(field, value)).
func TermQuery(field, value string) SingleTermQuery {
	return SingleTermQuery{Term: Term{Field: field, Value: value}}
}

func (q SingleTermQuery) String() string { return q.Term.String() }
func (SingleTermQuery) isQuery()         {}

// RangeQuery matches values between Low.Value and High.Value on one field.
// Inclusive ranges match low <= v <= high; exclusive ranges match low < v < high.
type RangeQuery struct {
	Low       Term
	High      Term
	Inclusive bool
}

// NewRangeQuery builds a range from two terms, which must name the same field.
func NewRangeQuery(low, high Term, inclusive bool) (RangeQuery, error) {
	if low.Field != high.Field {
		return RangeQuery{}, errors.Newf(errors.ErrCodeFieldMismatch,
			"range bounds reference different fields: %q and %q", low.Field, high.Field).
			WithDetail(errors.DetailField, low.Field)
	}
	return RangeQuery{Low: low, High: high, Inclusive: inclusive}, nil
}

// InclusiveRange matches low <= v <= high on field.
func InclusiveRange(field, low, high string) RangeQuery {
	return RangeQuery{Low: NewTerm(field, low), High: NewTerm(field, high), Inclusive: true}
}

// ExclusiveRange matches low < v < high on field.
func ExclusiveRange(field, low, high string) RangeQuery {
	return RangeQuery{Low: NewTerm(field, low), High: NewTerm(field, high)}
}

// DateRange builds a range over a date field with bounds encoded by the
// shared date codec.
func DateRange(field string, from, to time.Time, inclusive bool) RangeQuery {
	return RangeQuery{
		Low:       NewTerm(field, document.EncodeDate(from)),
		High:      NewTerm(field, document.EncodeDate(to)),
		Inclusive: inclusive,
	}
}

// Field returns the field both bounds refer to.
func (q RangeQuery) Field() string { return q.Low.Field }

// Contains reports whether v lies inside the range.
func (q RangeQuery) Contains(v string) bool {
	if q.Inclusive {
		return q.Low.Value <= v && v <= q.High.Value
	}
	return q.Low.Value < v && v < q.High.Value
}

// String renders the range as field:[low TO high] or field:{low TO high}.
func (q RangeQuery) String() string {
	open, closing := "{", "}"
	if q.Inclusive {
		open, closing = "[", "]"
	}
	return fmt.Sprintf("%s:%s%q TO %q%s", q.Low.Field, open, q.Low.Value, q.High.Value, closing)
}

func (RangeQuery) isQuery() {}

// Op joins the clauses of a CompoundQuery.
type Op int

const (
	// OpAnd requires every clause to match.
	OpAnd Op = iota
	// OpOr requires at least one clause to match.
	OpOr
)

func (o Op) String() string {
	if o == OpOr {
		return "OR"
	}
	return "AND"
}

// CompoundQuery combines clauses with one operator.
type CompoundQuery struct {
	Op      Op
	Clauses []Query
}

// And matches documents matching every clause.
func And(clauses ...Query) CompoundQuery {
	return CompoundQuery{Op: OpAnd, Clauses: clauses}
}

// Or matches documents matching at least one clause.
func Or(clauses ...Query) CompoundQuery {
	return CompoundQuery{Op: OpOr, Clauses: clauses}
}

func (q CompoundQuery) String() string {
	parts := make([]string, len(q.Clauses))
	for i, c := range q.Clauses {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " "+q.Op.String()+" ") + ")"
}

func (CompoundQuery) isQuery() {}

// MatchAll matches every document. Maintenance scans use it.
type MatchAll struct{}

// All returns a MatchAll query.
func All() MatchAll { return MatchAll{} }

func (MatchAll) String() string { return "*" }
func (MatchAll) isQuery()       {}

// Validate checks a query tree before an engine compiles it.
func Validate(q Query) error {
	switch q := q.(type) {
	case nil:
		return errors.New(errors.ErrCodeInvalidQuery, "query is nil", nil)
	case SingleTermQuery:
		if q.Term.Field == "" {
			return errors.New(errors.ErrCodeInvalidQuery, "term has no field", nil)
		}
	case RangeQuery:
		if q.Low.Field == "" {
			return errors.New(errors.ErrCodeInvalidQuery, "range has no field", nil)
		}
		if _, err := NewRangeQuery(q.Low, q.High, q.Inclusive); err != nil {
			return err
		}
	case CompoundQuery:
		if len(q.Clauses) == 0 {
			return errors.Newf(errors.ErrCodeInvalidQuery, "%s query has no clauses", q.Op)
		}
		for _, c := range q.Clauses {
			if err := Validate(c); err != nil {
				return err
			}
		}
	case MatchAll:
	default:
		return errors.Newf(errors.ErrCodeInvalidQuery, "unsupported query type %T", q)
	}
	return nil
}
