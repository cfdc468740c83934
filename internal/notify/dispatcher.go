package notify

import (
	"context"
	"time"

	"dealwire/internal/external"
	"dealwire/internal/types"
)

// DispatchGroup bundles all gateway entries produced from one queue item
// (one entry per destination token). Groups are the unit of success: an item
// is marked sent only when the sub-batch carrying its group succeeds.
type DispatchGroup struct {
	ItemID  string
	Entries []types.DispatchEntry
}

// DispatchResult reports the outcome of dispatching a set of groups.
type DispatchResult struct {
	SentIDs      []string // items whose sub-batch was submitted and recorded
	FailedIDs    []string // items left queued for the next cycle
	SentGroups   int      // successful gateway submissions
	FailedGroups int      // failed gateway submissions
}

// StatusWriter is the narrow persistence interface the dispatcher needs to
// record terminal outcomes. Implemented by db.QueueRepository.
type StatusWriter interface {
	MarkSent(ctx context.Context, ids []string) error
}

// Dispatcher groups dispatch entries into fixed-size sub-batches, submits
// them to the push gateway, and writes back sent status immediately after
// each successful sub-batch call. Per-sub-batch write-back bounds the blast
// radius of a mid-cycle cancellation: items already submitted are never
// re-sent by the next cycle.
type Dispatcher struct {
	gateway      external.PushGateway
	statuses     StatusWriter
	metrics      PipelineMetrics
	logger       types.Logger
	subBatchSize int
}

// NewDispatcher creates a Dispatcher. subBatchSize caps entries per gateway
// call; values below 1 fall back to 100.
func NewDispatcher(gateway external.PushGateway, statuses StatusWriter, metrics PipelineMetrics, logger types.Logger, subBatchSize int) *Dispatcher {
	if subBatchSize < 1 {
		subBatchSize = 100
	}
	return &Dispatcher{
		gateway:      gateway,
		statuses:     statuses,
		metrics:      metrics,
		logger:       logger,
		subBatchSize: subBatchSize,
	}
}

// Dispatch submits all groups in sub-batches. A failed sub-batch is logged
// and isolated: its items stay queued for retry next cycle while remaining
// sub-batches proceed. Context cancellation stops before the next
// submission; anything not yet submitted stays queued.
func (d *Dispatcher) Dispatch(ctx context.Context, groups []DispatchGroup) DispatchResult {
	var result DispatchResult

	for _, sub := range d.pack(groups) {
		select {
		case <-ctx.Done():
			d.logger.Warn("dispatch cancelled mid-cycle, remaining items stay queued",
				"remaining_items", len(groups)-len(result.SentIDs)-len(result.FailedIDs),
			)
			return result
		default:
		}

		started := time.Now()
		_, err := d.gateway.SendBatch(ctx, sub.entries)
		d.metrics.RecordDispatchLatency(ctx, TriggerDrain, time.Since(started))

		if err != nil {
			result.FailedGroups++
			result.FailedIDs = append(result.FailedIDs, sub.itemIDs...)
			d.logger.Error("gateway sub-batch failed, items remain queued",
				"error", err.Error(),
				"sub_batch_entries", len(sub.entries),
				"sub_batch_items", len(sub.itemIDs),
			)
			continue
		}

		result.SentGroups++

		// Write back immediately so a crash after this point cannot cause a
		// duplicate send. MarkSent is idempotent; a write failure here only
		// means the next cycle re-attempts the same transition.
		if err := d.statuses.MarkSent(ctx, sub.itemIDs); err != nil {
			d.logger.Error("failed to record sent status after sub-batch",
				"error", err.Error(),
				"item_count", len(sub.itemIDs),
			)
		}
		result.SentIDs = append(result.SentIDs, sub.itemIDs...)
	}

	return result
}

// subBatch is one gateway call's worth of entries plus the queue items that
// produced them.
type subBatch struct {
	entries []types.DispatchEntry
	itemIDs []string
}

// pack greedily fills sub-batches up to subBatchSize entries without
// splitting a group across sub-batches, so a queue item's fate is decided by
// exactly one gateway call. A single group larger than subBatchSize gets a
// sub-batch of its own.
func (d *Dispatcher) pack(groups []DispatchGroup) []subBatch {
	var batches []subBatch
	var current subBatch

	for _, g := range groups {
		if len(g.Entries) == 0 {
			continue
		}
		if len(current.entries) > 0 && len(current.entries)+len(g.Entries) > d.subBatchSize {
			batches = append(batches, current)
			current = subBatch{}
		}
		current.entries = append(current.entries, g.Entries...)
		current.itemIDs = append(current.itemIDs, g.ItemID)
	}
	if len(current.entries) > 0 {
		batches = append(batches, current)
	}

	return batches
}
