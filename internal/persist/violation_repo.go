package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ViolationEntry is one protocol violation that cost a client its
// connection (predicted id mismatch, malformed request).
type ViolationEntry struct {
	SessionUUID  uuid.UUID
	ConnectionID uint64
	RemoteAddr   string
	Reason       string
	Tick         uint32
	At           time.Time
}

type ViolationRepo struct {
	db *DB
}

func NewViolationRepo(db *DB) *ViolationRepo {
	return &ViolationRepo{db: db}
}

// WriteBatch inserts entries in a single transaction.
func (r *ViolationRepo) WriteBatch(ctx context.Context, entries []ViolationEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("violation begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO protocol_violations (session_uuid, connection_id, remote_addr, reason, tick, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			e.SessionUUID, int64(e.ConnectionID), e.RemoteAddr, e.Reason, int64(e.Tick), e.At,
		); err != nil {
			return fmt.Errorf("violation insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}
