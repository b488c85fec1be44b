package sieve

import (
	"context"
	"time"

	"github.com/turtacn/PDB-Sieve/internal/domain/filter"
	"github.com/turtacn/PDB-Sieve/internal/domain/webfilter"
	prom "github.com/turtacn/PDB-Sieve/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/PDB-Sieve/pkg/types/structure"
)

// InstrumentedFilter records the outcome and latency of every evaluation of
// the wrapped filter under the given label.
type InstrumentedFilter struct {
	inner   filter.Filter
	label   string
	metrics *prom.SieveMetrics
}

// Instrument wraps f.  A nil metrics set returns f unchanged.
func Instrument(f filter.Filter, label string, m *prom.SieveMetrics) filter.Filter {
	if m == nil {
		return f
	}
	return &InstrumentedFilter{inner: f, label: label, metrics: m}
}

func (i *InstrumentedFilter) Evaluate(id string, rec structure.Record) (bool, error) {
	start := time.Now()
	keep, err := i.inner.Evaluate(id, rec)
	prom.RecordEvaluation(i.metrics, i.label, keep, err, time.Since(start))
	return keep, err
}

func (i *InstrumentedFilter) String() string { return filter.Describe(i.inner) }

type instrumentedSearch struct {
	next    webfilter.SearchService
	service string
	metrics *prom.SieveMetrics
}

// InstrumentSearch records the status, latency and result size of every
// query posted through next.
func InstrumentSearch(next webfilter.SearchService, service string, m *prom.SieveMetrics) webfilter.SearchService {
	if m == nil {
		return next
	}
	return &instrumentedSearch{next: next, service: service, metrics: m}
}

func (s *instrumentedSearch) PostQuery(ctx context.Context, payload string) (*webfilter.SearchResult, error) {
	start := time.Now()
	res, err := s.next.PostQuery(ctx, payload)
	var resultType string
	var n int
	if res != nil {
		resultType, n = res.ResultType, len(res.Identifiers)
	}
	prom.RecordSearch(s.metrics, s.service, resultType, n, err, time.Since(start))
	return res, err
}
