package prometheus

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/lsoma/pkg/errors"
)

func newTestCollector(t *testing.T, cfg Config) *Collector {
	t.Helper()
	c, err := NewCollector(cfg, nil)
	require.NoError(t, err)
	return c
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "lsoma", cfg.Namespace)

	cfg.Enabled = true
	assert.True(t, errors.IsCode(cfg.Validate(), errors.ErrCodeConfigInvalid))
	cfg.TextfilePath = "/tmp/lsoma.prom"
	assert.NoError(t, cfg.Validate())
}

func TestCollector_RegisterIdempotent(t *testing.T) {
	c := newTestCollector(t, Config{})
	a, err := c.Counter("things_total", "things", "kind")
	require.NoError(t, err)
	b, err := c.Counter("things_total", "things", "kind")
	require.NoError(t, err)
	assert.Same(t, a, b)

	a.WithLabelValues("x").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(b.WithLabelValues("x")))

	_, err = c.Gauge("things_total", "clash")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInternal))
}

func TestCollector_ProcessMetrics(t *testing.T) {
	c := newTestCollector(t, Config{EnableProcessMetrics: true, EnableGoMetrics: true})
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "go_goroutines")
}

func TestCollector_FlushTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lsoma.prom")
	c := newTestCollector(t, Config{Enabled: true, TextfilePath: path})
	g, err := c.Gauge("current_sites", "sites")
	require.NoError(t, err)
	g.WithLabelValues().Set(42)

	require.NoError(t, c.Flush(context.Background(), "run-1"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "lsoma_current_sites 42")
}

func TestCollector_FlushPushgateway(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		url    string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, url, body = r.Method, r.URL.Path, string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestCollector(t, Config{Enabled: true, PushgatewayURL: srv.URL, Job: "batch"})
	cnt, err := c.Counter("runs_total", "runs", "outcome")
	require.NoError(t, err)
	cnt.WithLabelValues("target_reached").Inc()

	require.NoError(t, c.Flush(context.Background(), "run-7"))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.True(t, strings.HasPrefix(url, "/metrics/job/batch/run_id/run-7"), url)
	assert.NotEmpty(t, body)
}

func TestCollector_FlushPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestCollector(t, Config{Enabled: true, PushgatewayURL: srv.URL})
	err := c.Flush(context.Background(), "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeExternalService))
}
