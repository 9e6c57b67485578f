package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserbase-control/internal/logging"
	"github.com/shehryarbajwa/browserbase-control/internal/session"
	"github.com/shehryarbajwa/browserbase-control/pkg/models"
)

// maxReportBody bounds instrumentation report bodies
const maxReportBody = 64 << 10

// Controller is the session surface the HTTP handlers drive
type Controller interface {
	Create(ctx context.Context, req models.CreateSessionRequest, origin models.OriginContext) (models.SessionInfo, error)
	Access(ctx context.Context, token string) (models.SessionInfo, error)
	Lookup(token string) (models.SessionInfo, bool)
	List() []models.SessionInfo
	Close(token string) bool
	ExecuteAction(ctx context.Context, token, name string, params map[string]any, correlationID string) (models.ActionResult, error)
	Screenshot(ctx context.Context, token string, fast bool) (session.Capture, error)
	ReportForm(ctx context.Context, token string, rep session.FormReport) error
	ReportInput(ctx context.Context, token string, rep session.InputReport) error
	ReportClick(ctx context.Context, token string, rep session.ClickReport) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	sessions   Controller
	viewerPath string
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(sessions Controller, viewerPath string, logger *zap.Logger) *Handler {
	return &Handler{
		sessions:   sessions,
		viewerPath: viewerPath,
		logger:     logger.Named("api"),
	}
}

type actionRequest struct {
	Action        string         `json:"action"`
	Params        map[string]any `json:"params"`
	CorrelationID string         `json:"correlationId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps registry errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, session.ErrCapacity):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrLaunchFailure):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrPageUnavailable):
		return http.StatusGone
	case errors.Is(err, session.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func originOf(r *http.Request) models.OriginContext {
	ip := r.Header.Get("X-Forwarded-For")
	if i := strings.IndexByte(ip, ','); i >= 0 {
		ip = ip[:i]
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	}
	return models.OriginContext{IP: ip, UserAgent: r.UserAgent()}
}

// CreateSession handles POST /v1/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	info, err := h.sessions.Create(r.Context(), req, originOf(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// ListSessions handles GET /v1/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	campaignID := r.URL.Query().Get("campaignId")

	sessions := make([]models.SessionInfo, 0)
	for _, info := range h.sessions.List() {
		if campaignID != "" && info.CampaignID != campaignID {
			continue
		}
		sessions = append(sessions, info)
	}
	writeJSON(w, http.StatusOK, sessions)
}

// GetSession handles GET /v1/sessions/{token}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	info, ok := h.sessions.Lookup(token)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// DeleteSession handles DELETE /v1/sessions/{token}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	writeJSON(w, http.StatusOK, map[string]bool{"closed": h.sessions.Close(token)})
}

// ExecuteAction handles POST /v1/sessions/{token}/actions
func (h *Handler) ExecuteAction(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.sessions.ExecuteAction(r.Context(), token, req.Action, req.Params, req.CorrelationID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetScreenshot handles GET /v1/sessions/{token}/screenshot
func (h *Handler) GetScreenshot(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	fast, _ := strconv.ParseBool(r.URL.Query().Get("fast"))

	capture, err := h.sessions.Screenshot(r.Context(), token, fast)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", capture.ContentType)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Write(capture.Image)
}

// GetDebugURL handles GET /v1/sessions/{token}/debug
func (h *Handler) GetDebugURL(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	info, ok := h.sessions.Lookup(token)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionToken": info.SessionToken,
		"status":       info.Status,
		"debuggingUrl": info.DebuggingURL,
		"proxyUrl":     fmt.Sprintf("%s://%s/v1/sessions/%s/devtools", scheme, r.Host, url.PathEscape(token)),
	})
}

// BindSession handles GET /bind/{token}: it restores the session if needed and
// sends the caller to the viewer for it
func (h *Handler) BindSession(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	if _, err := h.sessions.Access(r.Context(), token); err != nil {
		h.fail(w, r, err)
		return
	}

	target := h.viewerPath + "?session=" + url.QueryEscape(token)
	http.Redirect(w, r, target, http.StatusFound)
}

// report decodes an instrumentation payload. Bodies arrive as text/plain from no-cors fetches.
func (h *Handler) report(w http.ResponseWriter, r *http.Request, into any, apply func(token string) error) {
	token := mux.Vars(r)["token"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxReportBody))
	if err == nil {
		err = json.Unmarshal(body, into)
	}
	if err != nil {
		h.logger.Debug("malformed report dropped", logging.Token(token), zap.String("path", r.URL.Path), zap.Error(err))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := apply(token); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReportForm handles POST /v1/sessions/{token}/report/form
func (h *Handler) ReportForm(w http.ResponseWriter, r *http.Request) {
	var rep session.FormReport
	h.report(w, r, &rep, func(token string) error {
		return h.sessions.ReportForm(r.Context(), token, rep)
	})
}

// ReportInput handles POST /v1/sessions/{token}/report/input
func (h *Handler) ReportInput(w http.ResponseWriter, r *http.Request) {
	var rep session.InputReport
	h.report(w, r, &rep, func(token string) error {
		return h.sessions.ReportInput(r.Context(), token, rep)
	})
}

// ReportClick handles POST /v1/sessions/{token}/report/click
func (h *Handler) ReportClick(w http.ResponseWriter, r *http.Request) {
	var rep session.ClickReport
	h.report(w, r, &rep, func(token string) error {
		return h.sessions.ReportClick(r.Context(), token, rep)
	})
}

// Healthz handles GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": len(h.sessions.List()),
	})
}
