package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/btp-research/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS service_relevance_cache (
	service_technical_id TEXT PRIMARY KEY,
	relevance            TEXT NOT NULL,
	reason               TEXT NOT NULL DEFAULT '',
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetRelevance(ctx context.Context, id string) (*model.RelevanceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT service_technical_id, relevance, reason, updated_at FROM service_relevance_cache WHERE service_technical_id = ?`,
		id,
	)
	rec, err := scanRelevance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get relevance %s", id)
	}
	return rec, nil
}

func (s *SQLiteStore) GetRelevanceBatch(ctx context.Context, ids []string) (map[string]model.RelevanceRecord, error) {
	ids = dedupe(ids)
	out := make(map[string]model.RelevanceRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT service_technical_id, relevance, reason, updated_at FROM service_relevance_cache WHERE service_technical_id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get relevance batch")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		rec, err := scanRelevance(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan relevance")
		}
		out[rec.ServiceID] = *rec
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate relevance")
	}
	return out, nil
}

func (s *SQLiteStore) UpsertRelevance(ctx context.Context, rec model.RelevanceRecord) error {
	if rec.ServiceID == "" {
		return eris.New("sqlite: upsert relevance: empty service id")
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO service_relevance_cache (service_technical_id, relevance, reason, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(service_technical_id) DO UPDATE SET
			relevance = excluded.relevance,
			reason = excluded.reason,
			updated_at = excluded.updated_at`,
		rec.ServiceID, string(rec.Relevance), model.TruncateReason(rec.Reason), updated,
	)
	return eris.Wrapf(err, "sqlite: upsert relevance %s", rec.ServiceID)
}
