package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leozw/storefront-controlplane/internal/config"
	"github.com/leozw/storefront-controlplane/internal/core"
)

func newTestClient(t *testing.T, h http.Handler, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.UpstreamConfig{BaseURL: srv.URL, Token: "secret", ProbeTimeout: timeout})
}

func TestFetchBackend(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health/backend", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"latencyMs":120,"uptimePercent":99.95,"lastError":{"message":"pool exhausted","severity":"warning","source":"api"}}`))
	}), time.Second)

	res, err := c.FetchBackend(context.Background())
	require.NoError(t, err)

	assert.Equal(t, core.SourceBackend, res.Source)
	assert.Equal(t, 120.0, res.Metrics[core.MetricLatencyMs])
	assert.Equal(t, 99.95, res.Metrics[core.MetricUptimePct])
	_, ok := res.Metrics.Get(core.MetricReplicaLagS)
	assert.False(t, ok, "unreported metrics stay absent")
	require.NotNil(t, res.LastError)
	assert.Equal(t, "pool exhausted", res.LastError.Message)
	assert.False(t, res.FetchedAt.IsZero())
}

func TestFetchSystemServers(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"cpuPercent":40,"memoryPercent":60,"servers":[{"name":"worker-1","cpuPercent":92},{"name":"worker-2","memoryPercent":10}]}`))
	}), time.Second)

	res, err := c.FetchSystem(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Servers, 2)
	assert.Equal(t, "worker-1", res.Servers[0].Name)
	assert.Equal(t, 92.0, res.Servers[0].Metrics[core.MetricCPUPct])
	_, ok := res.Servers[1].Metrics.Get(core.MetricCPUPct)
	assert.False(t, ok)
}

func TestFetchTenantPath(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tenants/t-1/metrics", r.URL.Path)
		w.Write([]byte(`{"latencyMs":80}`))
	}), time.Second)

	res, err := c.FetchTenant(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, "t-1", res.TenantID)
	assert.Equal(t, core.SourceTenant, res.Source)
}

func TestFetchFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    FailureKind
		status  int
	}{
		{
			name:    "missing endpoint",
			handler: func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) },
			kind:    KindStatus,
			status:  http.StatusNotFound,
		},
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			kind:    KindStatus,
			status:  http.StatusBadGateway,
		},
		{
			name:    "not json",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("<html>")) },
			kind:    KindDecode,
		},
		{
			name:    "null body",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("null")) },
			kind:    KindDecode,
		},
		{
			name:    "empty object",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("{}")) },
			kind:    KindDecode,
		},
		{
			name:    "only unknown fields",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"status":"ok","servers":[]}`)) },
			kind:    KindDecode,
		},
		{
			name: "hangs past timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			kind: KindTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler, 100*time.Millisecond)

			res, err := c.FetchDatabase(context.Background())
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, core.ErrProbeFailure))

			var f *Failure
			require.True(t, errors.As(err, &f))
			assert.Equal(t, tt.kind, f.Kind)
			assert.Equal(t, core.SourceDatabase, f.Source)
			assert.Equal(t, tt.status, f.StatusCode)
		})
	}
}

func TestFetchUnreachable(t *testing.T) {
	c := NewClient(config.UpstreamConfig{BaseURL: "http://127.0.0.1:1", ProbeTimeout: time.Second})

	_, err := c.FetchBackend(context.Background())
	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, KindTransport, f.Kind)
}
