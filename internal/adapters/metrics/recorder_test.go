package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/metrics"
)

func TestRecorder_Observe(t *testing.T) {
	r := metrics.NewRecorder()

	r.ObserveUnit("compiled")
	r.ObserveUnit("cached")
	r.ObserveUnit("cached")
	r.ObserveBuild("success", 250*time.Millisecond)
	r.ObserveResolve("unchanged", time.Millisecond)
	r.SetSessions(3)

	expected := `
# HELP kiln_units_total Build units processed, by outcome (compiled, cached, failed)
# TYPE kiln_units_total counter
kiln_units_total{outcome="cached"} 2
kiln_units_total{outcome="compiled"} 1
# HELP kiln_reload_sessions Connected live reload sessions
# TYPE kiln_reload_sessions gauge
kiln_reload_sessions 3
`
	require.NoError(t, testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected),
		"kiln_units_total", "kiln_reload_sessions"))

	count, err := testutil.GatherAndCount(r.Registry(), "kiln_build_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecorder_Handler(t *testing.T) {
	r := metrics.NewRecorder()
	r.ObserveBuild("failure", time.Second)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `kiln_builds_total{outcome="failure"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
