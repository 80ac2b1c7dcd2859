package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/btp-research/internal/model"
)

// Pool is the subset of *pgxpool.Pool used by PostgresStore. pgxmock pools
// satisfy it as well.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	sqlGetRelevance = `SELECT service_technical_id, relevance, reason, updated_at FROM service_relevance_cache WHERE service_technical_id = $1`

	sqlGetRelevanceBatch = `SELECT service_technical_id, relevance, reason, updated_at FROM service_relevance_cache WHERE service_technical_id = ANY($1)`

	sqlUpsertRelevance = `INSERT INTO service_relevance_cache (service_technical_id, relevance, reason, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (service_technical_id) DO UPDATE SET
	relevance = EXCLUDED.relevance,
	reason = EXCLUDED.reason,
	updated_at = EXCLUDED.updated_at`
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS service_relevance_cache (
	service_technical_id TEXT PRIMARY KEY,
	relevance            TEXT NOT NULL,
	reason               TEXT NOT NULL DEFAULT '',
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetRelevance(ctx context.Context, id string) (*model.RelevanceRecord, error) {
	rec, err := scanRelevance(s.pool.QueryRow(ctx, sqlGetRelevance, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get relevance %s", id)
	}
	return rec, nil
}

func (s *PostgresStore) GetRelevanceBatch(ctx context.Context, ids []string) (map[string]model.RelevanceRecord, error) {
	ids = dedupe(ids)
	out := make(map[string]model.RelevanceRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, sqlGetRelevanceBatch, ids)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get relevance batch")
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRelevance(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan relevance")
		}
		out[rec.ServiceID] = *rec
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate relevance")
	}
	return out, nil
}

func (s *PostgresStore) UpsertRelevance(ctx context.Context, rec model.RelevanceRecord) error {
	if rec.ServiceID == "" {
		return eris.New("postgres: upsert relevance: empty service id")
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, sqlUpsertRelevance,
		rec.ServiceID, string(rec.Relevance), model.TruncateReason(rec.Reason), updated,
	)
	return eris.Wrapf(err, "postgres: upsert relevance %s", rec.ServiceID)
}
