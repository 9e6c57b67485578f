// Package navigation drives a page to the first reachable target URL and
// falls back to an inert placeholder document when none answers.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserbase-control/internal/retry"
	"github.com/shehryarbajwa/browserbase-control/pkg/models"
)

// PlaceholderDocument is loaded when every candidate fails
const PlaceholderDocument = `<!DOCTYPE html><html><head><meta charset="utf-8"><title>Loading</title></head>` +
	`<body style="margin:0;background:#fff"></body></html>`

// DefaultAttemptTimeout bounds each candidate when the policy leaves it unset
const DefaultAttemptTimeout = 15 * time.Second

var errNotLoaded = errors.New("page did not leave the placeholder")

// Navigator is the subset of the page the controller needs
type Navigator interface {
	Navigate(ctx context.Context, url string) (string, error)
	LoadPlaceholder(ctx context.Context, html string) error
}

// Policy lists the candidate URLs in priority order
type Policy struct {
	Candidates     []string
	AttemptTimeout time.Duration
}

// Outcome describes where the page ended up
type Outcome struct {
	URL         string
	Placeholder bool
	Failures    []error
}

// Resolve tries each candidate in order and stops at the first one that lands.
// It never fails: if nothing loads the placeholder is shown instead.
func Resolve(ctx context.Context, nav Navigator, p Policy, logger *zap.Logger) Outcome {
	timeout := p.AttemptTimeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}

	location, err := retry.FirstSuccess(ctx, retry.Policy{AttemptTimeout: timeout}, p.Candidates,
		func(ctx context.Context, candidate string) (string, error) {
			loc, err := nav.Navigate(ctx, candidate)
			if err != nil {
				logger.Debug("navigation candidate failed", zap.String("url", candidate), zap.Error(err))
				return "", fmt.Errorf("%s: %w", candidate, err)
			}
			if !Landed(loc) {
				return "", fmt.Errorf("%s: %w", candidate, errNotLoaded)
			}
			return loc, nil
		})
	if err == nil {
		return Outcome{URL: location}
	}

	var failures []error
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		failures = exhausted.Attempts
	}
	logger.Warn("all navigation candidates failed, showing placeholder",
		zap.Int("candidates", len(p.Candidates)), zap.Error(err))

	placeholderCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if perr := nav.LoadPlaceholder(placeholderCtx, PlaceholderDocument); perr != nil {
		logger.Warn("placeholder document failed to load", zap.Error(perr))
	}

	return Outcome{
		URL:         models.PlaceholderURL,
		Placeholder: true,
		Failures:    failures,
	}
}

// Landed reports whether a resulting location counts as a successful navigation
func Landed(location string) bool {
	return location != "" && location != models.PlaceholderURL
}
