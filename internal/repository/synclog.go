package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridpulse/energy-sync/internal/db"
)

// SyncLog is the audit trail of every sync attempt. It is the sole source
// of truth for "last successful sync" and for overlap detection.
type SyncLog struct {
	pool *pgxpool.Pool
}

// NewSyncLog creates a new sync log
func NewSyncLog(pool *pgxpool.Pool) *SyncLog {
	return &SyncLog{pool: pool}
}

// Open inserts an in_progress row and returns its id. Callers must not
// attempt any external fetch unless Open succeeded.
func (l *SyncLog) Open(ctx context.Context, entityKey, domain string, dateFrom, dateTo time.Time, resolution string) (uuid.UUID, error) {
	query := `
		INSERT INTO sync_log (
			entity_key, domain, date_from, date_to, resolution,
			status, records_synced, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)
		RETURNING id
	`

	var id uuid.UUID
	now := time.Now().UTC()
	err := l.pool.QueryRow(ctx, query,
		entityKey, domain, dateFrom, dateTo, resolution,
		db.SyncStatusInProgress, now,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to open sync log entry: %w", err)
	}

	return id, nil
}

// Close applies the single terminal update to a log entry. Callers swallow
// a Close failure (after logging it) so it never masks the run's outcome.
func (l *SyncLog) Close(ctx context.Context, id uuid.UUID, status string, recordsSynced int, errorMessage *string) error {
	query := `
		UPDATE sync_log
		SET status = $1, records_synced = $2, error_message = $3, updated_at = $4
		WHERE id = $5
	`

	tag, err := l.pool.Exec(ctx, query, status, recordsSynced, errorMessage, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to close sync log entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sync log entry %s not found", id)
	}

	return nil
}

// HasRecentInProgress reports whether an in_progress entry exists for the
// entity and domain within the given window. This is a best-effort guard:
// a concurrent check-then-open can still interleave.
func (l *SyncLog) HasRecentInProgress(ctx context.Context, entityKey, domain string, within time.Duration) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM sync_log
			WHERE entity_key = $1
			  AND domain = $2
			  AND status = $3
			  AND created_at > $4
		)
	`

	cutoff := time.Now().UTC().Add(-within)

	var exists bool
	err := l.pool.QueryRow(ctx, query, entityKey, domain, db.SyncStatusInProgress, cutoff).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check in-progress sync log entries: %w", err)
	}

	return exists, nil
}

// Latest returns the most recent entry for a domain, or nil when the log
// has none. Read-only; used for health reporting.
func (l *SyncLog) Latest(ctx context.Context, domain string) (*db.SyncLogEntry, error) {
	query := `
		SELECT id, entity_key, domain, date_from, date_to, resolution,
		       status, error_message, records_synced, created_at, updated_at
		FROM sync_log
		WHERE domain = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var entry db.SyncLogEntry
	err := l.pool.QueryRow(ctx, query, domain).Scan(
		&entry.ID,
		&entry.EntityKey,
		&entry.Domain,
		&entry.DateFrom,
		&entry.DateTo,
		&entry.Resolution,
		&entry.Status,
		&entry.ErrorMessage,
		&entry.RecordsSynced,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest sync log entry: %w", err)
	}

	return &entry, nil
}
