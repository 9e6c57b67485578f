package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()

	a.SessionStarts.WithLabelValues(StartCreate).Inc()
	a.RecordAction("click", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.SessionStarts.WithLabelValues(StartCreate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Actions.WithLabelValues("click", "failure")))
	assert.Zero(t, testutil.ToFloat64(b.SessionStarts.WithLabelValues(StartCreate)))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.RecordHTTPRequest("GET", "/v1/sessions", 200, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `browser_control_http_requests_total{method="GET",route="/v1/sessions",status="200"} 1`)
}
