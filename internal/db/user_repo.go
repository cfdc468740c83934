package db

import (
	"context"

	"dealwire/internal/types"
)

// UserRepository resolves usernames to user ids for mention fan-out.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a UserRepository backed by the given database
// connection.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// FetchIDsByUsernames returns a username -> user id map for the given names.
// Unknown usernames are silently absent from the result; mention resolution
// treats them as no-ops rather than errors.
func (r *UserRepository) FetchIDsByUsernames(ctx context.Context, names []string) (map[string]string, error) {
	result := make(map[string]string, len(names))
	if len(names) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT username, id FROM users WHERE username = ANY($1)`,
		names,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch users by username", err)
	}
	defer rows.Close()

	for rows.Next() {
		var username, id string
		if err := rows.Scan(&username, &id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user row", err)
		}
		result[username] = id
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating user rows", err)
	}

	return result, nil
}
