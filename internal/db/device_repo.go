package db

import (
	"context"

	"dealwire/internal/types"
)

// DeviceRepository provides read access to registered push destinations.
type DeviceRepository struct {
	db DBTX
}

// NewDeviceRepository creates a DeviceRepository backed by the given
// database connection.
func NewDeviceRepository(db DBTX) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// FetchActiveTokens returns the non-disabled push tokens for each recipient,
// keyed by recipient id. Recipients with zero active tokens are absent from
// the map; that is a normal outcome, not an error.
func (r *DeviceRepository) FetchActiveTokens(ctx context.Context, recipientIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(recipientIDs))
	if len(recipientIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT recipient_id, token
		 FROM push_destinations
		 WHERE recipient_id = ANY($1) AND NOT disabled
		 ORDER BY created_at ASC`,
		recipientIDs,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch push destinations", err)
	}
	defer rows.Close()

	for rows.Next() {
		var recipientID, token string
		if err := rows.Scan(&recipientID, &token); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan destination row", err)
		}
		result[recipientID] = append(result[recipientID], token)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating destination rows", err)
	}

	return result, nil
}
