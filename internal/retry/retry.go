// Package retry runs an ordered list of fallback steps until one succeeds.
//
// Launch profiles, navigation candidates and restoration paths are all
// expressed as a slice of steps plus a Policy, and driven by FirstSuccess.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoSteps is returned when FirstSuccess is called with nothing to try
var ErrNoSteps = errors.New("retry: no steps to attempt")

// Policy configures how steps are attempted
type Policy struct {
	// AttemptTimeout bounds each attempt. Zero means no per-attempt deadline.
	AttemptTimeout time.Duration
	// MaxAttempts caps how many steps are tried. Zero means all of them.
	MaxAttempts int
}

// ExhaustedError reports every failed attempt in order
type ExhaustedError struct {
	Attempts []error
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for i, err := range e.Attempts {
		parts = append(parts, fmt.Sprintf("attempt %d: %v", i+1, err))
	}
	return "all attempts failed: " + strings.Join(parts, "; ")
}

func (e *ExhaustedError) Unwrap() []error {
	return e.Attempts
}

// FirstSuccess calls fn for each step in order and returns the first result
// that comes back without error. Later steps are never attempted once one succeeds.
func FirstSuccess[S, R any](ctx context.Context, p Policy, steps []S, fn func(ctx context.Context, step S) (R, error)) (R, error) {
	var zero R
	if len(steps) == 0 {
		return zero, ErrNoSteps
	}

	limit := len(steps)
	if p.MaxAttempts > 0 && p.MaxAttempts < limit {
		limit = p.MaxAttempts
	}

	failures := make([]error, 0, limit)
	for _, step := range steps[:limit] {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}

		result, err := attempt(ctx, p.AttemptTimeout, step, fn)
		if err == nil {
			return result, nil
		}
		failures = append(failures, err)
	}

	return zero, &ExhaustedError{Attempts: failures}
}

func attempt[S, R any](ctx context.Context, timeout time.Duration, step S, fn func(ctx context.Context, step S) (R, error)) (R, error) {
	if timeout <= 0 {
		return fn(ctx, step)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx, step)
}
