package metrics

import (
	"errors"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if labelsMatch(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(metric *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range metric.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordBatch("metadata", 3, time.Millisecond, nil)
		m.RecordDelete("metadata", 1)
		m.RecordSearch("metadata", 1, 0, time.Millisecond, nil)
		m.RecordLockWait("metadata", nil)
		m.RecordOptimize("metadata", time.Second)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_RecordBatch(t *testing.T) {
	// Given: fresh metrics
	m := New()

	// When: one good and one failed batch are recorded
	m.RecordBatch("metadata", 3, 10*time.Millisecond, nil)
	m.RecordBatch("metadata", 1, 5*time.Millisecond, errors.New("boom"))

	// Then: documents accumulate and outcomes are split by status
	assert.Equal(t, 4.0, counterValue(t, m, "repoindex_documents_written_total", map[string]string{"collection": "metadata"}))
	assert.Equal(t, 1.0, counterValue(t, m, "repoindex_index_batches_total", map[string]string{"collection": "metadata", "status": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, m, "repoindex_index_batches_total", map[string]string{"collection": "metadata", "status": "error"}))
}

func TestMetrics_RecordSearch(t *testing.T) {
	m := New()

	m.RecordSearch("artifact", 5, 2, time.Millisecond, nil)
	m.RecordSearch("artifact", 0, 0, time.Millisecond, nil)

	assert.Equal(t, 2.0, counterValue(t, m, "repoindex_searches_total", map[string]string{"collection": "artifact", "status": "ok"}))
	assert.Equal(t, 5.0, counterValue(t, m, "repoindex_search_hits_total", map[string]string{"collection": "artifact"}))
	assert.Equal(t, 2.0, counterValue(t, m, "repoindex_search_skipped_hits_total", map[string]string{"collection": "artifact"}))
}

func TestMetrics_RecordDeleteAndLock(t *testing.T) {
	m := New()

	m.RecordDelete("artifact", 2)
	m.RecordDelete("artifact", 0)
	m.RecordLockWait("artifact", errors.New("locked"))

	assert.Equal(t, 2.0, counterValue(t, m, "repoindex_documents_deleted_total", map[string]string{"collection": "artifact"}))
	assert.Equal(t, 1.0, counterValue(t, m, "repoindex_writer_lock_waits_total", map[string]string{"collection": "artifact", "status": "error"}))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordDelete("metadata", 1)

	assert.Equal(t, 1.0, counterValue(t, a, "repoindex_documents_deleted_total", nil))
	assert.Equal(t, 0.0, counterValue(t, b, "repoindex_documents_deleted_total", nil))
}
