// Package hub fans session events out to the viewers watching each session.
package hub

import (
	"sync"

	"github.com/shehryarbajwa/browserbase-control/pkg/models"
)

// Subscriber is one viewer connection.
// Deliver must not block; it returns false when the event had to be dropped.
type Subscriber interface {
	ID() string
	Deliver(ev models.Event) bool
}

// Hub holds one broadcast group per session token.
// Delivery is at-most-once: a viewer only sees events broadcast while it is joined.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[string]Subscriber

	// OnDrop is called for every event a slow subscriber could not take
	OnDrop func(token, viewerID string)
}

func New() *Hub {
	return &Hub{groups: make(map[string]map[string]Subscriber)}
}

// Join adds a viewer to a session's group. It reports false if the viewer was already a member.
func (h *Hub) Join(token string, s Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[token]
	if !ok {
		group = make(map[string]Subscriber)
		h.groups[token] = group
	}
	if _, exists := group[s.ID()]; exists {
		return false
	}
	group[s.ID()] = s
	return true
}

// Leave removes a viewer from a session's group. It reports false if it was not a member.
func (h *Hub) Leave(token, viewerID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[token]
	if !ok {
		return false
	}
	if _, exists := group[viewerID]; !exists {
		return false
	}
	delete(group, viewerID)
	if len(group) == 0 {
		delete(h.groups, token)
	}
	return true
}

// LeaveAll removes a viewer from every group and returns the tokens it left
func (h *Hub) LeaveAll(viewerID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var left []string
	for token, group := range h.groups {
		if _, ok := group[viewerID]; !ok {
			continue
		}
		delete(group, viewerID)
		left = append(left, token)
		if len(group) == 0 {
			delete(h.groups, token)
		}
	}
	return left
}

// Broadcast delivers ev to every current member of the token's group and
// returns how many accepted it
func (h *Hub) Broadcast(token string, ev models.Event) int {
	h.mu.RLock()
	members := make([]Subscriber, 0, len(h.groups[token]))
	for _, s := range h.groups[token] {
		members = append(members, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range members {
		if s.Deliver(ev) {
			delivered++
			continue
		}
		if h.OnDrop != nil {
			h.OnDrop(token, s.ID())
		}
	}
	return delivered
}

// Count returns the number of viewers joined to a session
func (h *Hub) Count(token string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[token])
}

// CloseGroup drops every member of a session's group and returns how many there were
func (h *Hub) CloseGroup(token string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.groups[token])
	delete(h.groups, token)
	return n
}
