// Package rcsb adapts the RCSB PDB Search API client to the search service
// used by the remote-query filters.
package rcsb

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/PDB-Sieve/internal/domain/webfilter"
	"github.com/turtacn/PDB-Sieve/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PDB-Sieve/pkg/client"
	"github.com/turtacn/PDB-Sieve/pkg/errors"
)

// ServiceConfig holds the connection settings for the search service.
type ServiceConfig struct {
	BaseURL      string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	UserAgent    string
}

// Service implements webfilter.SearchService over the HTTP client.
type Service struct {
	client *client.Client
	logger logging.Logger
}

var _ webfilter.SearchService = (*Service)(nil)

// NewService builds the HTTP client from cfg.  Zero fields keep the client
// defaults.
func NewService(cfg ServiceConfig, logger logging.Logger) (*Service, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.Named("rcsb")

	opts := []client.Option{
		client.WithLogger(clientLogger{logger}),
		client.WithTimeout(cfg.Timeout),
		client.WithRetryWait(cfg.RetryWaitMin, cfg.RetryWaitMax),
		client.WithUserAgent(cfg.UserAgent),
	}
	if cfg.RetryMax > 0 {
		opts = append(opts, client.WithRetryMax(cfg.RetryMax))
	}

	c, err := client.NewClient(cfg.BaseURL, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFilterConfig, "invalid search service configuration")
	}
	return &Service{client: c, logger: logger}, nil
}

// NewServiceFromClient wraps an existing client.
func NewServiceFromClient(c *client.Client, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{client: c, logger: logger.Named("rcsb")}
}

// PostQuery sends payload and converts the hits into a SearchResult.
func (s *Service) PostQuery(ctx context.Context, payload string) (*webfilter.SearchResult, error) {
	resp, err := s.client.Search(ctx, payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "rcsb search failed")
	}
	s.logger.Debug("search completed",
		logging.String("result_type", resp.ResultType),
		logging.Int("hits", len(resp.ResultSet)),
		logging.Int("total_count", resp.TotalCount))
	return &webfilter.SearchResult{
		ResultType:  resp.ResultType,
		Identifiers: resp.Identifiers(),
		Scores:      resp.Scores(),
	}, nil
}

// clientLogger forwards the client's printf-style logging to a Logger.
type clientLogger struct {
	l logging.Logger
}

func (c clientLogger) Debugf(format string, args ...interface{}) {
	c.l.Debug(fmt.Sprintf(format, args...))
}

func (c clientLogger) Infof(format string, args ...interface{}) {
	c.l.Info(fmt.Sprintf(format, args...))
}

func (c clientLogger) Errorf(format string, args ...interface{}) {
	c.l.Error(fmt.Sprintf(format, args...))
}
