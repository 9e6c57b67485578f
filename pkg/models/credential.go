package models

import "time"

// CaptureMethod identifies the channel a credential was harvested from
type CaptureMethod string

const (
	CaptureNetwork CaptureMethod = "network"
	CaptureForm    CaptureMethod = "form"
	CaptureInput   CaptureMethod = "input"
)

// CapturedCredential is an append-only record of a harvested identifier/secret pair.
// Either field may be empty for partial captures.
type CapturedCredential struct {
	SessionToken    string        `json:"sessionToken"`
	CampaignID      string        `json:"campaignId"`
	EmailOrUsername string        `json:"emailOrUsername,omitempty"`
	Password        string        `json:"password,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
	SourceURL       string        `json:"sourceUrl"`
	CaptureMethod   CaptureMethod `json:"captureMethod"`
	Origin          OriginContext `json:"origin"`
}

// PersistedSessionRecord is the durable tuple that allows a session to be restored
// after a control-plane restart. It is written once and never updated.
type PersistedSessionRecord struct {
	SessionToken string    `json:"sessionToken"`
	CampaignID   string    `json:"campaignId"`
	CreatedAt    time.Time `json:"createdAt"`
}
