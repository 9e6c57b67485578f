package session

import (
	"errors"

	"github.com/shehryarbajwa/browserbase-control/internal/browser"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already active")
	ErrCapacity        = errors.New("campaign session limit reached")
	ErrLaunchFailure   = errors.New("browser launch failed")
	ErrInvalidRequest  = errors.New("invalid session request")

	// ErrPageUnavailable is returned when the session's page is closed or crashed
	ErrPageUnavailable = browser.ErrPageUnavailable
)
