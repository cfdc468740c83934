package db

import (
	"context"
	"time"

	"dealwire/internal/types"
)

// QueueRepository provides data access for the notification_queue table.
// The drain scheduler is the only writer; status transitions are guarded on
// the prior state so concurrent cycles cannot resurrect terminal rows.
type QueueRepository struct {
	db DBTX
}

// NewQueueRepository creates a QueueRepository backed by the given database
// connection (pool or transaction).
func NewQueueRepository(db DBTX) *QueueRepository {
	return &QueueRepository{db: db}
}

// FetchReady returns queue items eligible for processing: status='queued'
// and scheduled_for <= now, ordered by scheduled_for ascending, capped at
// limit. An empty result is a normal no-op cycle.
func (r *QueueRepository) FetchReady(ctx context.Context, now time.Time, limit int) ([]*types.QueuedNotification, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, recipient_id, category, title, body, route, metadata,
		        dedupe_key, attempts, scheduled_for, status, created_at
		 FROM notification_queue
		 WHERE status = 'queued' AND scheduled_for <= $1
		 ORDER BY scheduled_for ASC
		 LIMIT $2`,
		now,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch ready queue items", err)
	}
	defer rows.Close()

	var results []*types.QueuedNotification
	for rows.Next() {
		var (
			n         types.QueuedNotification
			dedupeKey *string
			metadata  types.MetadataMap
		)
		if err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.Category,
			&n.Title,
			&n.Body,
			&n.Route,
			&metadata,
			&dedupeKey,
			&n.Attempts,
			&n.ScheduledFor,
			&n.Status,
			&n.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan queue item row", err)
		}
		n.Metadata = metadata
		if dedupeKey != nil {
			n.DedupeKey = *dedupeKey
		}
		results = append(results, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating queue item rows", err)
	}

	return results, nil
}

// MarkSent bulk-transitions items to the terminal 'sent' status. The
// status='queued' guard makes the write idempotent: re-marking an already
// sent or skipped id affects zero rows and is not an error.
func (r *QueueRepository) MarkSent(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`UPDATE notification_queue SET status = 'sent'
		 WHERE id = ANY($1) AND status = 'queued'`,
		ids,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark queue items sent", err)
	}
	return nil
}

// MarkSkipped bulk-transitions items to the terminal 'skipped' status with
// the given reason. Idempotent under the same status guard as MarkSent.
func (r *QueueRepository) MarkSkipped(ctx context.Context, ids []string, reason types.SkipReason) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`UPDATE notification_queue SET status = 'skipped', skip_reason = $2
		 WHERE id = ANY($1) AND status = 'queued'`,
		ids,
		string(reason),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark queue items skipped", err)
	}
	return nil
}

// Reschedule advances an item's scheduled_for. GREATEST clamps attempts to
// move the schedule backward, keeping the forward-only invariant even if two
// cycles race on the same row. Only queued rows are touched.
func (r *QueueRepository) Reschedule(ctx context.Context, id string, newScheduledFor time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notification_queue
		 SET scheduled_for = GREATEST(scheduled_for, $2)
		 WHERE id = $1 AND status = 'queued'`,
		id,
		newScheduledFor,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to reschedule queue item", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundItem, "queue item not found or no longer queued", nil)
	}
	return nil
}

// IncrementAttempts bumps the attempt counter for every listed item. Called
// once per cycle for each item handed to a gateway sub-batch, whether or not
// the sub-batch ultimately succeeds.
func (r *QueueRepository) IncrementAttempts(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`UPDATE notification_queue SET attempts = attempts + 1 WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to increment attempts", err)
	}
	return nil
}
