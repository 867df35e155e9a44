// ABOUTME: Tests for the Prometheus collectors and their nil-receiver behavior.
// ABOUTME: Reads counter values back with testutil.

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	assert.InDelta(t, 1, testutil.ToFloat64(m.connections), 0)

	m.DirectoryResolution(ResolutionAmbiguous)
	m.DirectoryResolution(ResolutionMatched)
	m.DirectoryResolution(ResolutionMatched)
	assert.InDelta(t, 2, testutil.ToFloat64(m.resolutions.WithLabelValues(ResolutionMatched)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.resolutions.WithLabelValues(ResolutionAmbiguous)), 0)

	m.Request("joinChannel", false, time.Millisecond)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requests.WithLabelValues("joinChannel", "error")), 0)

	m.Delivery("context", true)
	m.Delivery("context", false)
	assert.InDelta(t, 1, testutil.ToFloat64(m.delivered.WithLabelValues("context")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.dropped.WithLabelValues("context")), 0)

	m.IntentRaised("NoAppsFound")
	assert.InDelta(t, 1, testutil.ToFloat64(m.intents.WithLabelValues("NoAppsFound")), 0)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ConnectionOpened()
		m.ConnectionClosed()
		m.DirectoryResolution(ResolutionFailed)
		m.Request("open", true, time.Second)
		m.Delivery("intent", true)
		m.IntentRaised("delivered")
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ConnectionOpened()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "fdc3_connections 1"))
}
