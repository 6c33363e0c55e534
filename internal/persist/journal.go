package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Journal entry kinds.
const (
	KindOpened  = "opened"
	KindClosed  = "closed"
	KindAborted = "aborted"
)

// JournalEntry is one audit row. Placement coordinates are never recorded.
type JournalEntry struct {
	Kind         string
	ObserverID   int32
	ObserverName string
	Identity     uuid.UUID
	EntityID     int32
	At           time.Time
}

// JournalRepo appends to the illusion journal. Nothing reads it back.
type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// Insert writes a batch of entries in a single transaction.
func (r *JournalRepo) Insert(ctx context.Context, entries []JournalEntry) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO illusion_journal (kind, observer_id, observer_name, identity, entity_id, at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			e.Kind, e.ObserverID, e.ObserverName, e.Identity, e.EntityID, e.At,
		); err != nil {
			return fmt.Errorf("journal insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}
