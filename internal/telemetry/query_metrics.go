// Package telemetry records query patterns for the local index.
// All telemetry data is stored locally - no external reporting.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/repoindex/internal/query"
)

// =============================================================================
// Query Types
// =============================================================================

// QueryType is the shape of a search query.
type QueryType string

const (
	QueryTypeTerm     QueryType = "term"
	QueryTypeRange    QueryType = "range"
	QueryTypeCompound QueryType = "compound"
	QueryTypeAll      QueryType = "all"
)

// ClassifyQuery returns the type of the outermost query node.
func ClassifyQuery(q query.Query) QueryType {
	switch q.(type) {
	case query.SingleTermQuery:
		return QueryTypeTerm
	case query.RangeQuery:
		return QueryTypeRange
	case query.CompoundQuery:
		return QueryTypeCompound
	default:
		return QueryTypeAll
	}
}

// QueryFields returns the distinct field names a query touches, sorted.
func QueryFields(q query.Query) []string {
	seen := map[string]struct{}{}
	var walk func(query.Query)
	walk = func(q query.Query) {
		switch q := q.(type) {
		case query.SingleTermQuery:
			seen[q.Term.Field] = struct{}{}
		case query.RangeQuery:
			seen[q.Field()] = struct{}{}
		case query.CompoundQuery:
			for _, c := range q.Clauses {
				walk(c)
			}
		}
	}
	walk(q)

	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// =============================================================================
// Latency Buckets
// =============================================================================

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// =============================================================================
// Query Event
// =============================================================================

// QueryEvent is a single search as seen by telemetry.
type QueryEvent struct {
	Collection   string
	Query        string
	Type         QueryType
	Fields       []string
	ResultCount  int
	SkippedCount int
	Latency      time.Duration
	Timestamp    time.Time
}

// NewQueryEvent fills type, fields, and canonical text from q.
func NewQueryEvent(collection string, q query.Query, results, skipped int, latency time.Duration) QueryEvent {
	return QueryEvent{
		Collection:   collection,
		Query:        q.String(),
		Type:         ClassifyQuery(q),
		Fields:       QueryFields(q),
		ResultCount:  results,
		SkippedCount: skipped,
		Latency:      latency,
		Timestamp:    time.Now(),
	}
}

// IsZeroResult returns true if this query returned no results.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// =============================================================================
// Circular Buffer
// =============================================================================

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int // Next write position
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a new circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity

	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items in the buffer in FIFO order (oldest first).
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		// Full: oldest item is at head
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Clear removes all items from the buffer.
func (b *CircularBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.size = 0
}

// =============================================================================
// Snapshot
// =============================================================================

// FieldCount is a field name and how many queries touched it.
type FieldCount struct {
	Field string `json:"field"`
	Count int64  `json:"count"`
}

// QueryMetricsSnapshot is an immutable view of the collected metrics.
type QueryMetricsSnapshot struct {
	QueryTypeCounts     map[QueryType]int64     `json:"query_type_counts"`
	TopFields           []FieldCount            `json:"top_fields"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	SkippedHitCount     int64                   `json:"skipped_hit_count"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	ExactRepeatRate     float64                 `json:"exact_repeat_rate"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *QueryMetricsSnapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// =============================================================================
// Store
// =============================================================================

// QueryMetricsStore persists query metrics between runs.
type QueryMetricsStore interface {
	// SaveQueryTypeCounts adds daily query type counts.
	SaveQueryTypeCounts(date string, counts map[QueryType]int64) error

	// GetQueryTypeCounts retrieves counts for a date range.
	GetQueryTypeCounts(from, to string) (map[QueryType]int64, error)

	// UpsertFieldCounts adds to per-field query counts.
	UpsertFieldCounts(fields map[string]int64) error

	// GetTopFields retrieves the top N fields by frequency.
	GetTopFields(limit int) ([]FieldCount, error)

	// AddZeroResultQuery appends to the bounded zero-result log.
	AddZeroResultQuery(query string, timestamp time.Time) error

	// GetZeroResultQueries retrieves recent zero-result queries, newest first.
	GetZeroResultQueries(limit int) ([]string, error)

	// SaveLatencyCounts adds daily latency histogram counts.
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error

	// GetLatencyCounts retrieves latency distribution for a date range.
	GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error)

	Close() error
}

// =============================================================================
// Query Metrics
// =============================================================================

// QueryMetricsConfig configures the collector.
type QueryMetricsConfig struct {
	TopFieldsCapacity     int           // default 100
	ZeroResultsCapacity   int           // default 100
	RecentQueriesCapacity int           // default 500
	FlushInterval         time.Duration // 0 disables auto-flush
}

// DefaultQueryMetricsConfig returns sensible defaults.
func DefaultQueryMetricsConfig() QueryMetricsConfig {
	return QueryMetricsConfig{
		TopFieldsCapacity:     100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         60 * time.Second,
	}
}

// QueryMetrics collects search telemetry. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.Mutex

	queryTypes       map[QueryType]int64
	topFields        *lru.Cache[string, int64]
	zeroResults      *CircularBuffer[string]
	latencies        map[LatencyBucket]int64
	totalQueries     int64
	zeroResultCount  int64
	skippedHitCount  int64
	recentQueries    *lru.Cache[string, struct{}]
	exactRepeatCount int64
	startTime        time.Time

	// Deltas since the last flush
	pendingTypes     map[QueryType]int64
	pendingFields    map[string]int64
	pendingLatencies map[LatencyBucket]int64
	pendingZero      []QueryEvent

	store       QueryMetricsStore
	config      QueryMetricsConfig
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closed      bool
}

// NewQueryMetrics creates a collector with default configuration.
// If store is nil, metrics are only kept in memory.
func NewQueryMetrics(store QueryMetricsStore) *QueryMetrics {
	return NewQueryMetricsWithConfig(store, DefaultQueryMetricsConfig())
}

// NewQueryMetricsWithConfig creates a collector with custom configuration.
func NewQueryMetricsWithConfig(store QueryMetricsStore, cfg QueryMetricsConfig) *QueryMetrics {
	if cfg.TopFieldsCapacity <= 0 {
		cfg.TopFieldsCapacity = 100
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = 500
	}

	topFields, _ := lru.New[string, int64](cfg.TopFieldsCapacity)
	recentQueries, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &QueryMetrics{
		queryTypes:       make(map[QueryType]int64),
		topFields:        topFields,
		zeroResults:      NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:        make(map[LatencyBucket]int64),
		recentQueries:    recentQueries,
		startTime:        time.Now(),
		pendingTypes:     make(map[QueryType]int64),
		pendingFields:    make(map[string]int64),
		pendingLatencies: make(map[LatencyBucket]int64),
		store:            store,
		config:           cfg,
		stopCh:           make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		m.flushTicker = time.NewTicker(cfg.FlushInterval)
		go m.flushLoop()
	}

	return m
}

func (m *QueryMetrics) flushLoop() {
	for {
		select {
		case <-m.flushTicker.C:
			_ = m.Flush()
		case <-m.stopCh:
			return
		}
	}
}

// Record captures one search.
func (m *QueryMetrics) Record(event QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.queryTypes[event.Type]++
	m.pendingTypes[event.Type]++
	m.totalQueries++

	for _, field := range event.Fields {
		count, _ := m.topFields.Get(field)
		m.topFields.Add(field, count+1)
		m.pendingFields[field]++
	}

	if event.IsZeroResult() {
		m.zeroResults.Add(event.Query)
		m.zeroResultCount++
		m.pendingZero = append(m.pendingZero, event)
	}
	m.skippedHitCount += int64(event.SkippedCount)

	bucket := LatencyToBucket(event.Latency)
	m.latencies[bucket]++
	m.pendingLatencies[bucket]++

	key := hashQuery(event.Collection, event.Query)
	if _, exists := m.recentQueries.Get(key); exists {
		m.exactRepeatCount++
	}
	m.recentQueries.Add(key, struct{}{})
}

// hashQuery keys repetition tracking on collection and canonical query text.
func hashQuery(collection, q string) string {
	hash := sha256.Sum256([]byte(collection + "\x00" + q))
	return hex.EncodeToString(hash[:16])
}

// Snapshot returns current metrics for reporting.
func (m *QueryMetrics) Snapshot() *QueryMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *QueryMetrics) snapshotLocked() *QueryMetricsSnapshot {
	typeCounts := make(map[QueryType]int64, len(m.queryTypes))
	for k, v := range m.queryTypes {
		typeCounts[k] = v
	}

	var topFields []FieldCount
	for _, key := range m.topFields.Keys() {
		if count, ok := m.topFields.Peek(key); ok {
			topFields = append(topFields, FieldCount{Field: key, Count: count})
		}
	}
	sort.SliceStable(topFields, func(i, j int) bool {
		if topFields[i].Count != topFields[j].Count {
			return topFields[i].Count > topFields[j].Count
		}
		return topFields[i].Field < topFields[j].Field
	})

	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	var repeatRate float64
	if m.totalQueries > 0 {
		repeatRate = float64(m.exactRepeatCount) / float64(m.totalQueries)
	}

	return &QueryMetricsSnapshot{
		QueryTypeCounts:     typeCounts,
		TopFields:           topFields,
		ZeroResultQueries:   m.zeroResults.Items(),
		LatencyDistribution: latencies,
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		SkippedHitCount:     m.skippedHitCount,
		ExactRepeatCount:    m.exactRepeatCount,
		ExactRepeatRate:     repeatRate,
		Since:               m.startTime,
	}
}

// Flush writes the deltas recorded since the previous flush to the store.
// Safe to call even if no store is configured.
func (m *QueryMetrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	types, fields, latencies, zero := m.pendingTypes, m.pendingFields, m.pendingLatencies, m.pendingZero
	m.pendingTypes = make(map[QueryType]int64)
	m.pendingFields = make(map[string]int64)
	m.pendingLatencies = make(map[LatencyBucket]int64)
	m.pendingZero = nil
	m.mu.Unlock()

	today := time.Now().Format("2006-01-02")

	if len(types) > 0 {
		if err := m.store.SaveQueryTypeCounts(today, types); err != nil {
			return err
		}
	}
	if err := m.store.UpsertFieldCounts(fields); err != nil {
		return err
	}
	if len(latencies) > 0 {
		if err := m.store.SaveLatencyCounts(today, latencies); err != nil {
			return err
		}
	}
	for _, e := range zero {
		if err := m.store.AddZeroResultQuery(e.Query, e.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

// Close stops auto-flush and flushes what is left.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.flushTicker != nil {
		m.flushTicker.Stop()
		close(m.stopCh)
	}

	return m.Flush()
}
