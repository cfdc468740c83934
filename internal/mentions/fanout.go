// Package mentions implements the event-triggered notification path: when a
// comment is created on a deal, mentioned users and the parent-comment
// author are notified immediately, bypassing the durable queue.
//
// This path intentionally applies no dedupe and no quiet-hours policy:
// mentions are interactive and fire unconditionally. Outcomes are not
// persisted; gateway failures are logged, never retried.
package mentions

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/go-playground/validator/v10"

	"dealwire/internal/external"
	"dealwire/internal/notify"
	"dealwire/internal/types"
)

// mentionTitle is the fixed push title for mention/reply notifications.
const mentionTitle = "You were mentioned in a comment"

// bodyLimit bounds the comment excerpt carried in the push body, in runes.
const bodyLimit = 100

// mentionPattern matches @username references in comment text.
var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_]+)`)

// CommentEvent is the inbound comment-created event. All fields except
// ParentUserID are required; a missing field is a caller error rejected
// before any store access.
type CommentEvent struct {
	DealID       string `json:"deal_id" validate:"required"`
	CommentID    string `json:"comment_id" validate:"required"`
	AuthorID     string `json:"author_id" validate:"required"`
	Content      string `json:"content" validate:"required"`
	ParentUserID string `json:"parent_user_id,omitempty"`
}

// UserSource abstracts username resolution. Implemented by
// db.UserRepository.
type UserSource interface {
	FetchIDsByUsernames(ctx context.Context, names []string) (map[string]string, error)
}

// FanoutService resolves a comment event to a recipient set and dispatches
// one push entry per active destination token.
type FanoutService struct {
	users        UserSource
	targets      *notify.TargetResolver
	gateway      external.PushGateway
	metrics      notify.PipelineMetrics
	validate     *validator.Validate
	logger       *slog.Logger
	subBatchSize int
}

// NewFanoutService creates a FanoutService. subBatchSize caps entries per
// gateway call; values below 1 fall back to 100.
func NewFanoutService(
	users UserSource,
	targets *notify.TargetResolver,
	gateway external.PushGateway,
	metrics notify.PipelineMetrics,
	logger *slog.Logger,
	subBatchSize int,
) *FanoutService {
	if subBatchSize < 1 {
		subBatchSize = 100
	}
	if metrics == nil {
		metrics = notify.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FanoutService{
		users:        users,
		targets:      targets,
		gateway:      gateway,
		metrics:      metrics,
		validate:     validator.New(),
		logger:       logger,
		subBatchSize: subBatchSize,
	}
}

// Handle processes one comment event and returns the number of dispatch
// entries submitted. An empty recipient set (after excluding the author)
// succeeds trivially with zero sent.
func (s *FanoutService) Handle(ctx context.Context, ev CommentEvent) (int, error) {
	if err := s.validate.Struct(ev); err != nil {
		return 0, types.NewAppError(types.ErrCodeValidationMissingField, "comment event is missing required fields", err)
	}

	names := ExtractMentions(ev.Content)

	resolved := map[string]string{}
	if len(names) > 0 {
		var err error
		resolved, err = s.users.FetchIDsByUsernames(ctx, names)
		if err != nil {
			return 0, fmt.Errorf("resolving mentioned usernames: %w", err)
		}
	}

	// Recipient set = mentioned users + parent-comment author, minus the
	// comment author. Unknown usernames were already dropped by resolution.
	recipientSet := make(map[string]struct{}, len(resolved)+1)
	for _, id := range resolved {
		recipientSet[id] = struct{}{}
	}
	if ev.ParentUserID != "" {
		recipientSet[ev.ParentUserID] = struct{}{}
	}
	delete(recipientSet, ev.AuthorID)

	if len(recipientSet) == 0 {
		s.logger.InfoContext(ctx, "mention fanout: no recipients after author exclusion",
			"deal_id", ev.DealID,
			"comment_id", ev.CommentID,
		)
		return 0, nil
	}

	recipients := make([]string, 0, len(recipientSet))
	for id := range recipientSet {
		recipients = append(recipients, id)
	}

	tokenMap, err := s.targets.Resolve(ctx, recipients)
	if err != nil {
		return 0, fmt.Errorf("resolving push destinations: %w", err)
	}

	body := truncateRunes(ev.Content, bodyLimit)
	route := fmt.Sprintf("/deal?id=%s&comment=%s", ev.DealID, ev.CommentID)

	var entries []types.DispatchEntry
	for _, recipient := range recipients {
		for _, token := range tokenMap[recipient] {
			entries = append(entries, types.DispatchEntry{
				Token: token,
				Title: mentionTitle,
				Body:  body,
				Route: route,
				Metadata: types.MetadataMap{
					"deal_id":    ev.DealID,
					"comment_id": ev.CommentID,
				},
			})
		}
	}

	if len(entries) == 0 {
		s.logger.InfoContext(ctx, "mention fanout: recipients have no active destinations",
			"deal_id", ev.DealID,
			"recipient_count", len(recipients),
		)
		return 0, nil
	}

	// Fire-and-forget: a failed chunk is logged and the rest proceed.
	sent := 0
	for start := 0; start < len(entries); start += s.subBatchSize {
		end := start + s.subBatchSize
		if end > len(entries) {
			end = len(entries)
		}
		chunk := entries[start:end]

		if _, err := s.gateway.SendBatch(ctx, chunk); err != nil {
			s.logger.ErrorContext(ctx, "mention fanout sub-batch failed",
				"deal_id", ev.DealID,
				"comment_id", ev.CommentID,
				"chunk_size", len(chunk),
				"error", err,
			)
			continue
		}
		sent += len(chunk)
	}

	s.metrics.RecordFanout(ctx, sent)
	s.logger.InfoContext(ctx, "mention fanout complete",
		"deal_id", ev.DealID,
		"comment_id", ev.CommentID,
		"recipients", len(recipients),
		"entries_sent", sent,
	)

	return sent, nil
}

// ExtractMentions returns the unique @usernames referenced in the text, in
// first-appearance order.
func ExtractMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// truncateRunes bounds s to at most limit runes.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
