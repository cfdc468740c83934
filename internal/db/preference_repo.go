package db

import (
	"context"

	"dealwire/internal/types"
)

// PreferenceRepository provides read access to per-recipient delivery
// preferences. The drain scheduler batch-loads preferences for a whole cycle
// in one query rather than one lookup per item.
type PreferenceRepository struct {
	db DBTX
}

// NewPreferenceRepository creates a PreferenceRepository backed by the given
// database connection.
func NewPreferenceRepository(db DBTX) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// FetchForRecipients returns stored preferences keyed by recipient id.
// Recipients with no stored row are simply absent from the map; callers fall
// back to types.DefaultPreference for them.
func (r *PreferenceRepository) FetchForRecipients(ctx context.Context, recipientIDs []string) (map[string]types.DeliveryPreference, error) {
	result := make(map[string]types.DeliveryPreference, len(recipientIDs))
	if len(recipientIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT recipient_id, smart_enabled, quiet_hours_start, quiet_hours_end
		 FROM delivery_preferences
		 WHERE recipient_id = ANY($1)`,
		recipientIDs,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch delivery preferences", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p types.DeliveryPreference
		if err := rows.Scan(&p.RecipientID, &p.SmartEnabled, &p.QuietStart, &p.QuietEnd); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan preference row", err)
		}
		result[p.RecipientID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating preference rows", err)
	}

	return result, nil
}
