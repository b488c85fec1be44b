// Package sieve runs composed structure filters over a stream of records.
package sieve

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/PDB-Sieve/internal/domain/filter"
	"github.com/turtacn/PDB-Sieve/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/PDB-Sieve/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/PDB-Sieve/internal/infrastructure/source"
	"github.com/turtacn/PDB-Sieve/pkg/errors"
	"github.com/turtacn/PDB-Sieve/pkg/types/structure"
)

// Result summarizes a run.  Retained lists the kept structure ids in input
// order.
type Result struct {
	Retained  []string      `json:"retained"`
	Evaluated int           `json:"evaluated"`
	Rejected  int           `json:"rejected"`
	Duration  time.Duration `json:"duration"`
}

// Runner evaluates a filter over every record of a source on a bounded pool
// of workers.
type Runner struct {
	workers       int
	progressEvery int
	logger        logging.Logger
	metrics       *prom.SieveMetrics
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithWorkers bounds the number of concurrent evaluations.  Values below one
// are ignored.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithProgressEvery logs progress after every n records read.
func WithProgressEvery(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.progressEvery = n
		}
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l logging.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRunnerMetrics records worker and run metrics.
func WithRunnerMetrics(m *prom.SieveMetrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner returns a Runner with one worker per CPU.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		workers: runtime.NumCPU(),
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("sieve")
	return r
}

type slot struct {
	id   string
	keep bool
}

// Run streams records from src and evaluates f on each.  The first read or
// evaluation error cancels the remaining work and is returned.
func (r *Runner) Run(ctx context.Context, src source.Source, f filter.Filter) (*Result, error) {
	if f == nil {
		return nil, errors.New(errors.CodeInvalidFilterConfig, "filter is required")
	}
	start := time.Now()
	desc := filter.Describe(f)
	r.logger.Info("run started", logging.String("filter", desc), logging.Int("workers", r.workers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	var slots []*slot
	var readErr error
	for {
		rec, err := src.Next(gctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			// A cancelled group context means a worker failed first.
			if gctx.Err() == nil || ctx.Err() != nil {
				readErr = err
			}
			break
		}

		s := &slot{id: rec.StructureID()}
		slots = append(slots, s)
		if r.progressEvery > 0 && len(slots)%r.progressEvery == 0 {
			r.logger.Debug("progress", logging.Int("read", len(slots)))
		}

		g.Go(func() error { return r.evaluate(gctx, f, s, rec) })
	}

	werr := g.Wait()
	if r.metrics != nil {
		r.metrics.RunDuration.WithLabelValues().Observe(time.Since(start).Seconds())
	}
	if readErr == nil {
		readErr = werr
	}
	if readErr != nil {
		r.logger.Error("run failed", logging.Err(readErr), logging.Int("read", len(slots)))
		if r.metrics != nil {
			prom.RecordError(r.metrics, "runner", readErr)
		}
		return nil, readErr
	}

	res := &Result{Retained: make([]string, 0), Evaluated: len(slots)}
	for _, s := range slots {
		if s.keep {
			res.Retained = append(res.Retained, s.id)
		} else {
			res.Rejected++
		}
	}
	res.Duration = time.Since(start)
	r.logger.Info("run finished",
		logging.Int("evaluated", res.Evaluated),
		logging.Int("retained", len(res.Retained)),
		logging.Duration("took", res.Duration))
	return res, nil
}

func (r *Runner) evaluate(ctx context.Context, f filter.Filter, s *slot, rec structure.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.metrics != nil {
		g := r.metrics.ActiveWorkers.WithLabelValues()
		g.Inc()
		defer g.Dec()
	}
	keep, err := f.Evaluate(s.id, rec)
	if err != nil {
		return errors.Wrap(err, errors.CodeUnknown, fmt.Sprintf("evaluating %s", s.id))
	}
	s.keep = keep
	return nil
}
