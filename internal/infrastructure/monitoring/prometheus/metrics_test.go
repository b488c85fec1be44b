package prometheus

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/PDB-Sieve/pkg/errors"
)

func newTestSieveMetrics(t *testing.T) (*SieveMetrics, MetricsCollector) {
	c := newTestCollector(t)
	return NewSieveMetrics(c), c
}

func TestNewSieveMetrics_AllRegistered(t *testing.T) {
	m, c := newTestSieveMetrics(t)
	require.NotNil(t, m)

	m.ActiveWorkers.WithLabelValues().Set(1)
	m.RunDuration.WithLabelValues().Observe(2)
	RecordEvaluation(m, "f", true, nil, time.Millisecond)
	RecordSearch(m, "rcsb", "entry", 3, nil, time.Second)
	RecordCacheLookup(m, "redis", true)
	RecordError(m, "x", stderrors.New("plain"))

	n, err := testutil.GatherAndCount(c.Gatherer())
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}

func TestRecordEvaluation(t *testing.T) {
	m, _ := newTestSieveMetrics(t)

	RecordEvaluation(m, "DProteinChain", true, nil, time.Microsecond)
	RecordEvaluation(m, "DProteinChain", false, nil, time.Microsecond)
	RecordEvaluation(m, "DProteinChain", false, nil, time.Microsecond)
	RecordEvaluation(m, "DProteinChain", false, errors.New(errors.CodeRecordDecode, "bad"), time.Microsecond)

	assert.Equal(t, 1.0, value(t, m.RecordsTotal.WithLabelValues("DProteinChain", OutcomeRetained)))
	assert.Equal(t, 2.0, value(t, m.RecordsTotal.WithLabelValues("DProteinChain", OutcomeRejected)))
	assert.Equal(t, 1.0, value(t, m.RecordsTotal.WithLabelValues("DProteinChain", OutcomeError)))
	assert.Equal(t, 1.0, value(t, m.ErrorsTotal.WithLabelValues("filter", string(errors.CodeRecordDecode))))
}

func TestRecordSearch(t *testing.T) {
	m, c := newTestSieveMetrics(t)

	RecordSearch(m, "rcsb", "polymer_entity", 120, nil, 300*time.Millisecond)
	RecordSearch(m, "rcsb", "", 0, stderrors.New("timeout"), time.Second)

	assert.Equal(t, 1.0, value(t, m.SearchQueriesTotal.WithLabelValues("rcsb", "success")))
	assert.Equal(t, 1.0, value(t, m.SearchQueriesTotal.WithLabelValues("rcsb", "failure")))
	assert.Equal(t, 1.0, value(t, m.ErrorsTotal.WithLabelValues("search", string(errors.CodeUnknown))))

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_search_result_identifiers_count{result_type="polymer_entity"} 1`)
	assert.Contains(t, output, `test_unit_search_query_duration_seconds_count{service="rcsb"} 2`)
}

func TestRecordCacheLookup(t *testing.T) {
	m, _ := newTestSieveMetrics(t)

	RecordCacheLookup(m, "redis", true)
	RecordCacheLookup(m, "redis", true)
	RecordCacheLookup(m, "redis", false)

	assert.Equal(t, 2.0, value(t, m.CacheLookupsTotal.WithLabelValues("redis", "hit")))
	assert.Equal(t, 1.0, value(t, m.CacheLookupsTotal.WithLabelValues("redis", "miss")))
}

func TestSieveMetrics_NopCollector(t *testing.T) {
	m := NewSieveMetrics(NewNopCollector())
	assert.NotPanics(t, func() {
		RecordEvaluation(m, "f", true, nil, time.Millisecond)
		RecordSearch(m, "rcsb", "entry", 1, nil, time.Millisecond)
		RecordCacheLookup(m, "redis", false)
	})
}
