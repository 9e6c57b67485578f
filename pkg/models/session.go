package models

import "time"

// SessionStatus represents the lifecycle state of a browser-control session
type SessionStatus string

const (
	StatusLaunching SessionStatus = "LAUNCHING"
	StatusRestoring SessionStatus = "RESTORING"
	StatusActive    SessionStatus = "ACTIVE"
	StatusClosed    SessionStatus = "CLOSED"
)

// PlaceholderURL is the location reported while the inert placeholder document is shown
const PlaceholderURL = "about:blank"

// OriginContext describes the client that caused a session to be created
type OriginContext struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// NavigationEntry is one entry of a session's navigation history
type NavigationEntry struct {
	URL string    `json:"url"`
	At  time.Time `json:"at"`
}

// SessionInfo is the externally visible snapshot of a session
type SessionInfo struct {
	SessionToken     string        `json:"sessionToken"`
	CampaignID       string        `json:"campaignId"`
	Status           SessionStatus `json:"status"`
	IsActive         bool          `json:"isActive"`
	CreatedAt        time.Time     `json:"createdAt"`
	LastActivity     time.Time     `json:"lastActivity"`
	CurrentURL       string        `json:"currentUrl"`
	ViewerCount      int           `json:"viewerCount"`
	CredentialsCount int           `json:"credentialsCount"`
	HistoryLength    int           `json:"historyLength"`
	DebuggingURL     string        `json:"debuggingUrl,omitempty"`
}

// CreateSessionRequest is the payload for creating a new session
type CreateSessionRequest struct {
	SessionToken string   `json:"sessionToken,omitempty"`
	CampaignID   string   `json:"campaignId"`
	TargetURLs   []string `json:"targetUrls,omitempty"`
	AuthHosts    []string `json:"authHosts,omitempty"`
}
