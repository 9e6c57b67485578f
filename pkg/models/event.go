package models

import "time"

// EventType names a server-to-viewer event
type EventType string

const (
	EventSessionInfo         EventType = "sessionInfo"
	EventPageNavigation      EventType = "pageNavigation"
	EventCredentialsCaptured EventType = "credentialsCaptured"
	EventInputCaptured       EventType = "inputCaptured"
	EventClickTracked        EventType = "clickTracked"
	EventActionResult        EventType = "actionResult"
	EventActionError         EventType = "actionError"
	EventScreenshot          EventType = "screenshot"
	EventSessionClosed       EventType = "sessionClosed"
	EventError               EventType = "error"
	EventPong                EventType = "pong"
)

// Event is one message broadcast to the viewers of a session
type Event struct {
	Type          EventType `json:"type"`
	SessionToken  string    `json:"sessionToken,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Data          any       `json:"data,omitempty"`
}

// NewEvent stamps an event for a session
func NewEvent(typ EventType, token string, data any) Event {
	return Event{
		Type:         typ,
		SessionToken: token,
		Timestamp:    time.Now(),
		Data:         data,
	}
}

// ActionResult is the structured, non-throwing outcome of a remote-control action
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ActionEvent is the payload of an actionResult event
type ActionEvent struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
	Result ActionResult   `json:"result"`
}
