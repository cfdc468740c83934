package notify

import (
	"context"
)

// DestinationSource abstracts the push destination lookup. Implemented by
// db.DeviceRepository in production.
type DestinationSource interface {
	// FetchActiveTokens returns non-disabled tokens per recipient; recipients
	// with zero tokens are absent from the map.
	FetchActiveTokens(ctx context.Context, recipientIDs []string) (map[string][]string, error)
}

// TargetResolver maps recipients to their currently valid push destinations.
// It batch-loads tokens for a whole set of recipients in one query.
type TargetResolver struct {
	src DestinationSource
}

// NewTargetResolver creates a TargetResolver over the given source.
func NewTargetResolver(src DestinationSource) *TargetResolver {
	return &TargetResolver{src: src}
}

// Resolve returns a recipient -> tokens map for the given recipient set.
// Duplicate ids are collapsed before querying. A recipient with no active
// destination is simply absent from the result; callers treat that as the
// "skip, no destination" outcome.
func (r *TargetResolver) Resolve(ctx context.Context, recipientIDs []string) (map[string][]string, error) {
	if len(recipientIDs) == 0 {
		return map[string][]string{}, nil
	}

	unique := make([]string, 0, len(recipientIDs))
	seen := make(map[string]struct{}, len(recipientIDs))
	for _, id := range recipientIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	return r.src.FetchActiveTokens(ctx, unique)
}
