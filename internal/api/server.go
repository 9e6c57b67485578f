package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/browserbase-control/internal/metrics"
	"github.com/shehryarbajwa/browserbase-control/internal/proxy"
	"github.com/shehryarbajwa/browserbase-control/internal/ratelimit"
)

// Routes carries what the router needs besides the handler itself
type Routes struct {
	DevTools    *proxy.DevToolsServer
	Viewers     http.Handler
	Limiter     *ratelimit.Limiter // nil disables rate limiting
	Metrics     *metrics.Metrics
	OperatorKey string
}

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(rt Routes) http.Handler {
	r := mux.NewRouter()
	r.Use(MetricsMiddleware(rt.Metrics))

	r.HandleFunc("/healthz", h.Healthz).Methods("GET")
	r.Handle("/metrics", rt.Metrics.Handler()).Methods("GET")
	r.HandleFunc("/bind/{token}", h.BindSession).Methods("GET")

	// Reports come from instrumented pages and carry no operator key
	reports := r.PathPrefix("/v1/sessions/{token}/report").Subrouter()
	reports.HandleFunc("/form", h.ReportForm).Methods("POST")
	reports.HandleFunc("/input", h.ReportInput).Methods("POST")
	reports.HandleFunc("/click", h.ReportClick).Methods("POST")

	// API v1 routes
	api := r.PathPrefix("/v1").Subrouter()
	api.Use(OperatorKeyMiddleware(rt.OperatorKey))

	// Session endpoints (rate limited)
	limited := api.PathPrefix("").Subrouter()
	if rt.Limiter != nil {
		limited.Use(RateLimitMiddleware(rt.Limiter))
	}
	limited.HandleFunc("/sessions", h.CreateSession).Methods("POST")
	limited.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	limited.HandleFunc("/sessions/{token}", h.GetSession).Methods("GET")
	limited.HandleFunc("/sessions/{token}", h.DeleteSession).Methods("DELETE")
	limited.HandleFunc("/sessions/{token}/actions", h.ExecuteAction).Methods("POST")

	// Screenshot endpoint (not rate limited - frequent polling)
	api.HandleFunc("/sessions/{token}/screenshot", h.GetScreenshot).Methods("GET")

	// Debug endpoints (not rate limited)
	api.HandleFunc("/sessions/{token}/debug", h.GetDebugURL).Methods("GET")
	api.HandleFunc("/sessions/{token}/devtools", func(w http.ResponseWriter, r *http.Request) {
		rt.DevTools.HandleDebugConnection(w, r, mux.Vars(r)["token"])
	}).Methods("GET")
	api.Handle("/live", rt.Viewers).Methods("GET")

	// CORS wraps the router so preflights never reach route matching
	return corsMiddleware(r)
}
