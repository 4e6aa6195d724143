package observability_test

import (
	"LiqWatch/internal/observability"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, observability.ParseLogLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, observability.ParseLogLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, observability.ParseLogLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, observability.ParseLogLevel(""))
	assert.Equal(t, zerolog.InfoLevel, observability.ParseLogLevel("verbose"))
}

func TestNewLogWriter(t *testing.T) {
	assert.Equal(t, os.Stdout, observability.NewLogWriter(""))

	path := filepath.Join(t.TempDir(), "liqwatch.log")
	w := observability.NewLogWriter(path)
	if c, ok := w.(interface{ Close() error }); ok {
		defer c.Close()
	}

	logger := zerolog.New(w)
	logger.Info().Str("k", "v").Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
}

func TestReadiness_FlipsAfterFirstCycle(t *testing.T) {
	h := observability.NewHealthChecker()

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, h.LastCycle().IsZero())

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.MarkCycle(at)

	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, "2026-01-02T03:04:05Z", body["last_cycle"])
}

func TestReadiness_Stale(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	h := observability.NewHealthChecker().
		WithStaleAfter(2 * time.Minute).
		WithClock(func() time.Time { return now })

	h.MarkCycle(now.Add(-time.Minute))
	assert.True(t, h.IsReady())

	now = now.Add(5 * time.Minute)
	assert.False(t, h.IsReady())

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"stale"`)
	assert.Contains(t, rec.Body.String(), "last_cycle")
}

func TestLiveness(t *testing.T) {
	rec := httptest.NewRecorder()
	observability.NewHealthChecker().LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alive")
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				total += m.GetCounter().GetValue()
			}
			if m.GetGauge() != nil {
				total += m.GetGauge().GetValue()
			}
		}
		return total
	}
	return 0
}

func TestNewMetricsWith_IsolatedRegistries(t *testing.T) {
	r1, r2 := prometheus.NewRegistry(), prometheus.NewRegistry()
	m1 := observability.NewMetricsWith(r1)
	m2 := observability.NewMetricsWith(r2)

	m1.CyclesTotal.WithLabelValues("ok").Inc()
	m2.CyclesTotal.WithLabelValues("ok").Add(0)

	assert.Equal(t, 1.0, counterValue(t, r1, "liqwatch_cycles_total"))
	assert.Equal(t, 0.0, counterValue(t, r2, "liqwatch_cycles_total"))

	m1.SetChannelMetrics("persist", 3, 10)
	assert.Equal(t, 3.0, counterValue(t, r1, "liqwatch_channel_size"))
}
