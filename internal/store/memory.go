package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shehryarbajwa/browserbase-control/pkg/models"
)

// Memory keeps records and credentials in process memory
type Memory struct {
	mu          sync.RWMutex
	records     map[string]models.PersistedSessionRecord
	credentials []models.CapturedCredential
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]models.PersistedSessionRecord)}
}

func (m *Memory) Put(ctx context.Context, rec models.PersistedSessionRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.SessionToken]; exists {
		return false, nil
	}
	m.records[rec.SessionToken] = rec
	return true, nil
}

func (m *Memory) Get(ctx context.Context, token string) (models.PersistedSessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[token]
	if !ok {
		return models.PersistedSessionRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) List(ctx context.Context) ([]models.PersistedSessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.PersistedSessionRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) SaveCredential(ctx context.Context, cred models.CapturedCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials = append(m.credentials, cred)
	return nil
}

// Credentials returns the credentials saved so far for a session
func (m *Memory) Credentials(token string) []models.CapturedCredential {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.CapturedCredential
	for _, c := range m.credentials {
		if c.SessionToken == token {
			out = append(out, c)
		}
	}
	return out
}
