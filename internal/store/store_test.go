package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/browserbase-control/pkg/models"
)

func backends(t *testing.T) map[string]interface {
	RecordStore
	CredentialSink
} {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return map[string]interface {
		RecordStore
		CredentialSink
	}{
		"memory": NewMemory(),
		"sqlite": db,
	}
}

func TestRecordsAreWrittenOnce(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			written, err := s.Put(ctx, models.PersistedSessionRecord{SessionToken: "tok", CampaignID: "c1", CreatedAt: created})
			require.NoError(t, err)
			assert.True(t, written)

			written, err = s.Put(ctx, models.PersistedSessionRecord{SessionToken: "tok", CampaignID: "c2", CreatedAt: created.Add(time.Hour)})
			require.NoError(t, err)
			assert.False(t, written)

			rec, err := s.Get(ctx, "tok")
			require.NoError(t, err)
			assert.Equal(t, "c1", rec.CampaignID)
			assert.True(t, rec.CreatedAt.Equal(created))
		})
	}
}

func TestGetMissingRecord(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestListOrdersByCreation(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Put(ctx, models.PersistedSessionRecord{SessionToken: "late", CampaignID: "c", CreatedAt: base.Add(2 * time.Minute)})
			require.NoError(t, err)
			_, err = s.Put(ctx, models.PersistedSessionRecord{SessionToken: "early", CampaignID: "c", CreatedAt: base})
			require.NoError(t, err)

			recs, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, recs, 2)
			assert.Equal(t, "early", recs[0].SessionToken)
			assert.Equal(t, "late", recs[1].SessionToken)
		})
	}
}

func TestSQLiteCredentialsRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "creds.db"))
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC)
	partial := models.CapturedCredential{
		SessionToken: "tok", CampaignID: "c1", Password: "hunter2",
		Timestamp: at, SourceURL: "https://login.example.com", CaptureMethod: models.CaptureInput,
	}
	full := partial
	full.EmailOrUsername = "foo@bar.com"
	full.CaptureMethod = models.CaptureNetwork
	full.Origin = models.OriginContext{IP: "10.0.0.1", UserAgent: "ua"}

	require.NoError(t, db.SaveCredential(ctx, partial))
	require.NoError(t, db.SaveCredential(ctx, full))
	require.NoError(t, db.SaveCredential(ctx, models.CapturedCredential{SessionToken: "other", CampaignID: "c1", CaptureMethod: models.CaptureForm, Timestamp: at}))

	got, err := db.Credentials(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.CaptureInput, got[0].CaptureMethod)
	assert.Equal(t, "foo@bar.com", got[1].EmailOrUsername)
	assert.Equal(t, "10.0.0.1", got[1].Origin.IP)
	assert.True(t, got[1].Timestamp.Equal(at))
}

func TestMemoryCredentialsAreAppendOnly(t *testing.T) {
	m := NewMemory()
	cred := models.CapturedCredential{SessionToken: "tok", Password: "pw"}
	require.NoError(t, m.SaveCredential(context.Background(), cred))
	require.NoError(t, m.SaveCredential(context.Background(), cred))

	assert.Len(t, m.Credentials("tok"), 2)
	assert.Empty(t, m.Credentials("else"))
}
