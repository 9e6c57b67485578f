// Package store persists the durable session records used for restoration and
// hands captured credentials off to durable storage.
package store

import (
	"context"
	"errors"

	"github.com/shehryarbajwa/browserbase-control/pkg/models"
)

var ErrNotFound = errors.New("record not found")

// RecordStore holds one PersistedSessionRecord per session token ever created
type RecordStore interface {
	// Put inserts rec unless a record for the token already exists.
	// It reports whether a new record was written.
	Put(ctx context.Context, rec models.PersistedSessionRecord) (bool, error)
	Get(ctx context.Context, token string) (models.PersistedSessionRecord, error)
	List(ctx context.Context) ([]models.PersistedSessionRecord, error)
}

// CredentialSink receives every captured credential
type CredentialSink interface {
	SaveCredential(ctx context.Context, cred models.CapturedCredential) error
}
