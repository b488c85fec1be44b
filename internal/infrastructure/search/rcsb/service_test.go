package rcsb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/PDB-Sieve/internal/domain/webfilter"
	"github.com/turtacn/PDB-Sieve/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PDB-Sieve/pkg/client"
	"github.com/turtacn/PDB-Sieve/pkg/errors"
)

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestService_PostQuery(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, client.SearchPath, r.URL.Path)
		w.Write([]byte(`{"result_type":"polymer_entity","total_count":2,
			"result_set":[{"identifier":"1ABC_1","score":1},{"identifier":"1ABC_2","score":0.5}]}`))
	})

	svc, err := NewService(ServiceConfig{BaseURL: srv.URL, Timeout: time.Second}, logging.NewNopLogger())
	require.NoError(t, err)

	res, err := svc.PostQuery(context.Background(), `{"return_type":"polymer_entity"}`)
	require.NoError(t, err)
	assert.Equal(t, &webfilter.SearchResult{
		ResultType:  webfilter.ResultTypePolymerEntity,
		Identifiers: []string{"1ABC_1", "1ABC_2"},
		Scores:      []float64{1, 0.5},
	}, res)
}

func TestService_PostQuery_Error(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":400,"message":"bad query"}`))
	})

	svc, err := NewService(ServiceConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	_, err = svc.PostQuery(context.Background(), `{"return_type":"entry"}`)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeExternalService))
	var apiErr *client.APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestService_FeedsAdvancedQuery(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	svc, err := NewService(ServiceConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	q, err := webfilter.NewAdvancedQuery(context.Background(), svc, `{"return_type":"entry"}`,
		webfilter.WithLogger(logging.NewNopLogger()))
	require.NoError(t, err)
	assert.Equal(t, webfilter.ResultTypeEntry, q.ResultType())
	assert.Empty(t, q.StructureIDs())
}

func TestNewService_InvalidURL(t *testing.T) {
	_, err := NewService(ServiceConfig{BaseURL: "ftp://nope"}, nil)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidFilterConfig))
}

func TestClientLogger_Forwards(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cl := clientLogger{logging.NewLoggerFromCore(core)}

	cl.Debugf("retry %d", 1)
	cl.Infof("rate limited %ds", 2)
	cl.Errorf("failed: %v", "boom")

	require.Equal(t, 3, logs.Len())
	assert.Equal(t, "retry 1", logs.All()[0].Message)
	assert.Equal(t, "rate limited 2s", logs.All()[1].Message)
	assert.Equal(t, "failed: boom", logs.All()[2].Message)
}
