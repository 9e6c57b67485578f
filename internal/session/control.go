package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserbase-control/internal/action"
	"github.com/shehryarbajwa/browserbase-control/internal/browser"
	"github.com/shehryarbajwa/browserbase-control/internal/logging"
	"github.com/shehryarbajwa/browserbase-control/pkg/models"
)

// Capture is one rendered frame of a session's page
type Capture struct {
	Image       []byte
	ContentType string
}

func (r *Registry) activePage(token string) (*SessionHandle, browser.Page, error) {
	h, ok := r.get(token)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, token)
	}
	pg, ok := h.livePage()
	if !ok {
		return h, nil, ErrPageUnavailable
	}
	return h, pg, nil
}

// Screenshot renders the current page. Overlapping calls run independently.
func (r *Registry) Screenshot(ctx context.Context, token string, fast bool) (Capture, error) {
	h, pg, err := r.activePage(token)
	if err != nil {
		return Capture{}, err
	}

	opts := browser.ScreenshotOptions{Fast: fast}
	img, err := pg.Screenshot(ctx, opts)
	if err != nil {
		r.pageFailed(h, err)
		return Capture{}, fmt.Errorf("screenshot %s: %w", token, err)
	}
	return Capture{Image: img, ContentType: opts.ContentType()}, nil
}

// CaptureAndBroadcast takes a screenshot and sends it to every viewer of the session
func (r *Registry) CaptureAndBroadcast(ctx context.Context, token string, fast bool) (int, error) {
	c, err := r.Screenshot(ctx, token, fast)
	if err != nil {
		return 0, err
	}
	return r.broadcast(token, models.NewEvent(models.EventScreenshot, token, map[string]string{
		"contentType": c.ContentType,
		"image":       base64.StdEncoding.EncodeToString(c.Image),
	})), nil
}

// ExecuteAction applies a remote-control command and broadcasts the outcome to
// the session's viewers. Command failures are reported in the result. The error
// is set when the session does not exist or its page is gone; in the latter
// case the failed result is still broadcast.
func (r *Registry) ExecuteAction(ctx context.Context, token, name string, params map[string]any, correlationID string) (models.ActionResult, error) {
	h, ok := r.get(token)
	if !ok {
		return models.ActionResult{}, fmt.Errorf("%w: %s", ErrSessionNotFound, token)
	}
	h.touch(r.now())

	var (
		result models.ActionResult
		err    error
	)
	if pg, live := h.livePage(); live {
		result, err = action.Execute(ctx, pg, name, params)
		if err != nil {
			r.logger.Debug("action failed", logging.Token(token), zap.String("action", name), zap.Error(err))
			r.pageFailed(h, err)
			if !errors.Is(err, ErrPageUnavailable) {
				err = nil
			}
		}
	} else {
		result = models.ActionResult{Success: false, Message: ErrPageUnavailable.Error()}
		err = ErrPageUnavailable
	}

	r.deps.Metrics.RecordAction(action.Normalize(name), result.Success)

	ev := models.NewEvent(models.EventActionResult, token, models.ActionEvent{
		Action: name,
		Params: params,
		Result: result,
	})
	ev.CorrelationID = correlationID
	r.broadcast(token, ev)
	return result, err
}
