package telemetry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/repoindex/internal/query"
)

// =============================================================================
// CircularBuffer Tests
// =============================================================================

func TestCircularBuffer_MaintainsCapacity(t *testing.T) {
	buf := NewCircularBuffer[string](3)

	buf.Add("q1")
	buf.Add("q2")
	buf.Add("q3")
	buf.Add("q4") // evicts q1
	buf.Add("q5") // evicts q2

	assert.Equal(t, 3, buf.Size())
	assert.Equal(t, []string{"q3", "q4", "q5"}, buf.Items())
}

func TestCircularBuffer_EmptyAndClear(t *testing.T) {
	buf := NewCircularBuffer[string](0)
	assert.Equal(t, []string{}, buf.Items())

	buf.Add("a")
	buf.Clear()
	assert.Equal(t, 0, buf.Size())
	assert.Empty(t, buf.Items())
}

// =============================================================================
// Classification
// =============================================================================

func TestClassifyQuery(t *testing.T) {
	rng := query.InclusiveRange("lastUpdate", "20200101000000", "20201231235959")

	tests := []struct {
		name     string
		q        query.Query
		expected QueryType
	}{
		{"term", query.TermQuery("groupId", "org.acme"), QueryTypeTerm},
		{"range", rng, QueryTypeRange},
		{"compound", query.And(query.TermQuery("a", "1"), query.TermQuery("b", "2")), QueryTypeCompound},
		{"all", query.All(), QueryTypeAll},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyQuery(tt.q))
		})
	}
}

func TestQueryFields_DistinctAndSorted(t *testing.T) {
	rng := query.InclusiveRange("lastUpdate", "1", "2")
	q := query.Or(
		query.And(query.TermQuery("groupId", "g"), rng),
		query.TermQuery("groupId", "h"),
	)

	assert.Equal(t, []string{"groupId", "lastUpdate"}, QueryFields(q))
	assert.Empty(t, QueryFields(query.All()))
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{499 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}

	for _, tt := range tests {
		t.Run(tt.d.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, LatencyToBucket(tt.d))
		})
	}
}

// =============================================================================
// QueryMetrics
// =============================================================================

func newTestMetrics() *QueryMetrics {
	cfg := DefaultQueryMetricsConfig()
	cfg.FlushInterval = 0
	return NewQueryMetricsWithConfig(nil, cfg)
}

func TestQueryMetrics_Record(t *testing.T) {
	// Given: a collector
	m := newTestMetrics()
	defer m.Close()

	// When: three searches are recorded, one with no results
	m.Record(NewQueryEvent("artifact", query.TermQuery("checksum", "abc"), 1, 0, 5*time.Millisecond))
	m.Record(NewQueryEvent("artifact", query.TermQuery("checksum", "def"), 0, 0, 20*time.Millisecond))
	m.Record(NewQueryEvent("metadata", query.And(query.TermQuery("groupId", "g"), query.TermQuery("artifactId", "a")), 2, 1, time.Millisecond))

	// Then: counts reflect every dimension
	s := m.Snapshot()
	assert.Equal(t, int64(3), s.TotalQueries)
	assert.Equal(t, int64(2), s.QueryTypeCounts[QueryTypeTerm])
	assert.Equal(t, int64(1), s.QueryTypeCounts[QueryTypeCompound])
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, []string{`checksum:"def"`}, s.ZeroResultQueries)
	assert.Equal(t, int64(1), s.SkippedHitCount)
	assert.Equal(t, int64(2), s.LatencyDistribution[BucketP10])
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketP50])
	require.NotEmpty(t, s.TopFields)
	assert.Equal(t, FieldCount{Field: "checksum", Count: 2}, s.TopFields[0])
	assert.InDelta(t, 33.3, s.ZeroResultPercentage(), 0.1)
}

func TestQueryMetrics_ExactRepeatsPerCollection(t *testing.T) {
	m := newTestMetrics()
	defer m.Close()

	q := query.TermQuery("groupId", "g")
	m.Record(NewQueryEvent("metadata", q, 1, 0, 0))
	m.Record(NewQueryEvent("metadata", q, 1, 0, 0))
	m.Record(NewQueryEvent("artifact", q, 1, 0, 0))

	s := m.Snapshot()
	assert.Equal(t, int64(1), s.ExactRepeatCount)
	assert.InDelta(t, 1.0/3.0, s.ExactRepeatRate, 0.001)
}

func TestQueryMetrics_TopFields_LRUEviction(t *testing.T) {
	cfg := DefaultQueryMetricsConfig()
	cfg.FlushInterval = 0
	cfg.TopFieldsCapacity = 2
	m := NewQueryMetricsWithConfig(nil, cfg)
	defer m.Close()

	m.Record(NewQueryEvent("c", query.TermQuery("a", "1"), 1, 0, 0))
	m.Record(NewQueryEvent("c", query.TermQuery("b", "1"), 1, 0, 0))
	m.Record(NewQueryEvent("c", query.TermQuery("c", "1"), 1, 0, 0))

	s := m.Snapshot()
	require.Len(t, s.TopFields, 2)
	for _, fc := range s.TopFields {
		assert.NotEqual(t, "a", fc.Field)
	}
}

func TestQueryMetrics_RecordAfterCloseIgnored(t *testing.T) {
	m := newTestMetrics()
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	m.Record(NewQueryEvent("c", query.All(), 0, 0, 0))
	assert.Equal(t, int64(0), m.Snapshot().TotalQueries)
}

func TestQueryMetrics_Concurrent(t *testing.T) {
	m := newTestMetrics()
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.Record(NewQueryEvent("c", query.TermQuery("version", fmt.Sprint(i, j)), j%2, 0, 0))
				_ = m.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1000), m.Snapshot().TotalQueries)
}

type recordingStore struct {
	mu        sync.Mutex
	types     map[QueryType]int64
	fields    map[string]int64
	latencies map[LatencyBucket]int64
	zero      []string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		types:     map[QueryType]int64{},
		fields:    map[string]int64{},
		latencies: map[LatencyBucket]int64{},
	}
}

func (s *recordingStore) SaveQueryTypeCounts(_ string, counts map[QueryType]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range counts {
		s.types[k] += v
	}
	return nil
}

func (s *recordingStore) GetQueryTypeCounts(_, _ string) (map[QueryType]int64, error) {
	return s.types, nil
}

func (s *recordingStore) UpsertFieldCounts(fields map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range fields {
		s.fields[k] += v
	}
	return nil
}

func (s *recordingStore) GetTopFields(int) ([]FieldCount, error) { return nil, nil }

func (s *recordingStore) AddZeroResultQuery(q string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zero = append(s.zero, q)
	return nil
}

func (s *recordingStore) GetZeroResultQueries(int) ([]string, error) { return s.zero, nil }

func (s *recordingStore) SaveLatencyCounts(_ string, counts map[LatencyBucket]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range counts {
		s.latencies[k] += v
	}
	return nil
}

func (s *recordingStore) GetLatencyCounts(_, _ string) (map[LatencyBucket]int64, error) {
	return s.latencies, nil
}

func (s *recordingStore) Close() error { return nil }

func TestQueryMetrics_FlushWritesDeltasOnce(t *testing.T) {
	// Given: a collector backed by a recording store
	store := newRecordingStore()
	cfg := DefaultQueryMetricsConfig()
	cfg.FlushInterval = 0
	m := NewQueryMetricsWithConfig(store, cfg)

	m.Record(NewQueryEvent("artifact", query.TermQuery("checksum", "x"), 0, 0, 0))

	// When: flushed twice, then closed after another search
	require.NoError(t, m.Flush())
	require.NoError(t, m.Flush())
	m.Record(NewQueryEvent("artifact", query.TermQuery("checksum", "y"), 3, 0, 0))
	require.NoError(t, m.Close())

	// Then: each search reached the store exactly once
	assert.Equal(t, int64(2), store.types[QueryTypeTerm])
	assert.Equal(t, int64(2), store.fields["checksum"])
	assert.Equal(t, int64(2), store.latencies[BucketP10])
	assert.Equal(t, []string{`checksum:"x"`}, store.zero)
}
