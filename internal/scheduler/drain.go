// Package scheduler implements the externally triggered jobs of the
// dealwire notification pipeline. The drain scheduler runs on a fixed
// EventBridge schedule and processes one bounded batch of ready queue items
// to completion; it never self-schedules.
//
// Concurrency model: a cycle holds no locks. Safety under overlapping
// invocations comes from the store's status-guarded writes -- a second
// concurrent run simply finds fewer or zero eligible rows.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"dealwire/internal/notify"
	"dealwire/internal/types"
)

// QueueStore abstracts the queue table operations the drain cycle needs.
// Implemented by db.QueueRepository.
type QueueStore interface {
	FetchReady(ctx context.Context, now time.Time, limit int) ([]*types.QueuedNotification, error)
	MarkSkipped(ctx context.Context, ids []string, reason types.SkipReason) error
	Reschedule(ctx context.Context, id string, newScheduledFor time.Time) error
	IncrementAttempts(ctx context.Context, ids []string) error
}

// PreferenceStore abstracts the batch preference lookup.
// Implemented by db.PreferenceRepository.
type PreferenceStore interface {
	FetchForRecipients(ctx context.Context, recipientIDs []string) (map[string]types.DeliveryPreference, error)
}

// DeadLetterPublisher receives poison queue items that exhausted their
// attempt budget. Implemented by SQSDeadLetter; may be nil to disable.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, item *types.QueuedNotification) error
}

// DrainConfig holds the drain cycle tuning parameters.
type DrainConfig struct {
	// BatchSize caps how many ready items one cycle reads.
	BatchSize int
	// MaxAttempts is the poison cap: items at or past it are dead-lettered
	// and terminally skipped instead of dispatched.
	MaxAttempts int
}

// DrainScheduler orchestrates one drain cycle: fetch ready items, apply
// per-recipient policy, deduplicate, resolve destinations, dispatch in
// sub-batches, and write back outcomes.
type DrainScheduler struct {
	queue      QueueStore
	prefs      PreferenceStore
	targets    *notify.TargetResolver
	dispatcher *notify.Dispatcher
	policy     *notify.PolicyEngine
	deadletter DeadLetterPublisher
	metrics    notify.PipelineMetrics
	clock      types.Clock
	logger     *slog.Logger
	cfg        DrainConfig
}

// DrainSchedulerConfig holds the dependencies for NewDrainScheduler.
type DrainSchedulerConfig struct {
	Queue      QueueStore
	Prefs      PreferenceStore
	Targets    *notify.TargetResolver
	Dispatcher *notify.Dispatcher
	Policy     *notify.PolicyEngine
	DeadLetter DeadLetterPublisher // optional
	Metrics    notify.PipelineMetrics
	Clock      types.Clock
	Logger     *slog.Logger
	Config     DrainConfig
}

// NewDrainScheduler creates a DrainScheduler with the given dependencies.
func NewDrainScheduler(cfg DrainSchedulerConfig) *DrainScheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = notify.NoopMetrics{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	c := cfg.Config
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	return &DrainScheduler{
		queue:      cfg.Queue,
		prefs:      cfg.Prefs,
		targets:    cfg.Targets,
		dispatcher: cfg.Dispatcher,
		policy:     cfg.Policy,
		deadletter: cfg.DeadLetter,
		metrics:    metrics,
		clock:      clock,
		logger:     logger,
		cfg:        c,
	}
}

// Drain executes one cycle and returns its report. A store read failure
// aborts the whole cycle with nothing marked; gateway sub-batch failures are
// isolated inside the dispatcher and surface only in the report.
func (s *DrainScheduler) Drain(ctx context.Context) (notify.CycleReport, error) {
	var report notify.CycleReport
	now := s.clock.Now()

	items, err := s.queue.FetchReady(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return report, fmt.Errorf("fetching ready queue items: %w", err)
	}
	if len(items) == 0 {
		s.logger.InfoContext(ctx, "drain cycle: no ready items")
		return report, nil
	}
	report.Processed = len(items)

	recipientIDs := make([]string, 0, len(items))
	for _, item := range items {
		recipientIDs = append(recipientIDs, item.RecipientID)
	}

	// Batch-load preferences and destinations concurrently; one round trip
	// each for the whole cycle.
	var (
		prefMap  map[string]types.DeliveryPreference
		tokenMap map[string][]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		prefMap, err = s.prefs.FetchForRecipients(gctx, recipientIDs)
		return err
	})
	g.Go(func() error {
		var err error
		tokenMap, err = s.targets.Resolve(gctx, recipientIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return notify.CycleReport{Processed: report.Processed}, fmt.Errorf("loading cycle context: %w", err)
	}

	deduper := notify.NewCycleDeduper()
	skipped := make(map[types.SkipReason][]string)
	var groups []notify.DispatchGroup

	for _, item := range items {
		// Poison cap: items that already burned their attempt budget are
		// dead-lettered and terminally skipped.
		if item.Attempts >= s.cfg.MaxAttempts {
			s.publishDeadLetter(ctx, item)
			skipped[types.SkipMaxAttempts] = append(skipped[types.SkipMaxAttempts], item.ID)
			report.DeadLettered++
			continue
		}

		pref := notify.ResolvePreference(item.RecipientID, prefMap)
		switch result := s.policy.Evaluate(pref); result.Decision {
		case notify.PolicySkip:
			skipped[types.SkipSmartDisabled] = append(skipped[types.SkipSmartDisabled], item.ID)
			continue
		case notify.PolicyDefer:
			// Persisted immediately, not batched: a deferral must survive a
			// partial-cycle failure. The item stays queued either way.
			if err := s.queue.Reschedule(ctx, item.ID, *result.ResumeAt); err != nil {
				s.logger.ErrorContext(ctx, "failed to reschedule item past quiet hours",
					"item_id", item.ID,
					"resume_at", result.ResumeAt.Format(time.RFC3339),
					"error", err,
				)
				continue
			}
			report.Rescheduled++
			continue
		}

		if !deduper.Observe(item.DedupeIdentity()) {
			skipped[types.SkipDuplicate] = append(skipped[types.SkipDuplicate], item.ID)
			continue
		}

		tokens := tokenMap[item.RecipientID]
		if len(tokens) == 0 {
			skipped[types.SkipNoDestination] = append(skipped[types.SkipNoDestination], item.ID)
			continue
		}

		group := notify.DispatchGroup{ItemID: item.ID}
		for _, token := range tokens {
			group.Entries = append(group.Entries, types.DispatchEntry{
				Token:    token,
				Title:    item.Title,
				Body:     item.Body,
				Route:    item.Route,
				Metadata: item.Metadata,
			})
		}
		groups = append(groups, group)
	}

	// Attempts are incremented for everything handed to the gateway, before
	// submission, so a failed sub-batch still counts against the poison cap.
	if len(groups) > 0 {
		attemptIDs := make([]string, 0, len(groups))
		for _, g := range groups {
			attemptIDs = append(attemptIDs, g.ItemID)
		}
		if err := s.queue.IncrementAttempts(ctx, attemptIDs); err != nil {
			s.logger.ErrorContext(ctx, "failed to increment attempt counters", "error", err)
		}
	}

	dispatch := s.dispatcher.Dispatch(ctx, groups)
	report.Sent = len(dispatch.SentIDs)
	report.SentGroups = dispatch.SentGroups
	report.FailedGroups = dispatch.FailedGroups

	// Skip outcomes are written in bulk at cycle end. These writes are
	// idempotent; a failure leaves the items queued for a clean retry.
	for reason, ids := range skipped {
		if err := s.queue.MarkSkipped(ctx, ids, reason); err != nil {
			s.logger.ErrorContext(ctx, "failed to mark items skipped",
				"reason", string(reason),
				"item_count", len(ids),
				"error", err,
			)
			continue
		}
		report.Skipped += len(ids)
	}

	s.metrics.RecordCycle(ctx, report)
	s.logger.InfoContext(ctx, "drain cycle complete",
		"processed", report.Processed,
		"sent", report.Sent,
		"sent_groups", report.SentGroups,
		"failed_groups", report.FailedGroups,
		"skipped", report.Skipped,
		"rescheduled", report.Rescheduled,
		"dead_lettered", report.DeadLettered,
	)

	return report, nil
}

// publishDeadLetter forwards a poison item to the dead-letter queue.
// Best effort: a publish failure is logged and the item is still skipped.
func (s *DrainScheduler) publishDeadLetter(ctx context.Context, item *types.QueuedNotification) {
	if s.deadletter == nil {
		s.logger.WarnContext(ctx, "dead-letter publisher not configured, dropping poison item record",
			"item_id", item.ID,
			"attempts", item.Attempts,
		)
		return
	}
	if err := s.deadletter.Publish(ctx, item); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish dead-letter item",
			"item_id", item.ID,
			"error", err,
		)
	}
}
