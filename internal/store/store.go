package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/btp-research/internal/model"
)

// Store is the persistent relevance cache: one record per service id, upsert
// on write, never deleted.
type Store interface {
	// GetRelevance returns the cached record for id, or nil on a miss.
	GetRelevance(ctx context.Context, id string) (*model.RelevanceRecord, error)
	// GetRelevanceBatch returns every cached record among ids, keyed by id.
	GetRelevanceBatch(ctx context.Context, ids []string) (map[string]model.RelevanceRecord, error)
	// UpsertRelevance inserts or replaces the record for rec.ServiceID.
	UpsertRelevance(ctx context.Context, rec model.RelevanceRecord) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store for the configured driver.
func Open(ctx context.Context, driver, databaseURL, sqlitePath string) (Store, error) {
	switch driver {
	case "postgres":
		return NewPostgres(ctx, databaseURL, nil)
	case "sqlite":
		return NewSQLite(sqlitePath)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

// dedupe drops empty and repeated ids, keeping first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type scannable interface {
	Scan(dest ...any) error
}

// scanRelevance reads one cache row. Rows written by other clients may carry
// unexpected values, so relevance and reason are normalized on the way out.
func scanRelevance(row scannable) (*model.RelevanceRecord, error) {
	var (
		rec       model.RelevanceRecord
		relevance string
	)
	if err := row.Scan(&rec.ServiceID, &relevance, &rec.Reason, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Relevance, _ = model.ParseRelevance(relevance)
	rec.Reason = model.TruncateReason(rec.Reason)
	rec.Cached = true
	return &rec, nil
}
