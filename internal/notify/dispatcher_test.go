package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"dealwire/internal/external"
	"dealwire/internal/types"
)

// --- Mocks ---

// mockGateway records every SendBatch call and fails the call indexes listed
// in failCalls (0-based).
type mockGateway struct {
	calls     [][]types.DispatchEntry
	failCalls map[int]bool
}

func (m *mockGateway) SendBatch(_ context.Context, entries []types.DispatchEntry) (*external.GatewayResponse, error) {
	idx := len(m.calls)
	m.calls = append(m.calls, entries)
	if m.failCalls[idx] {
		return nil, errors.New("gateway unavailable")
	}
	return &external.GatewayResponse{}, nil
}

// mockStatusWriter records MarkSent invocations.
type mockStatusWriter struct {
	markSentCalls [][]string
	err           error
}

func (m *mockStatusWriter) MarkSent(_ context.Context, ids []string) error {
	m.markSentCalls = append(m.markSentCalls, ids)
	return m.err
}

func makeGroup(itemID string, tokens int) DispatchGroup {
	g := DispatchGroup{ItemID: itemID}
	for i := 0; i < tokens; i++ {
		g.Entries = append(g.Entries, types.DispatchEntry{
			Token: fmt.Sprintf("token-%s-%d", itemID, i),
			Title: "Hot deal",
			Body:  "A deal you follow dropped in price",
			Route: "/deal?id=1",
		})
	}
	return g
}

// --- Packing Tests ---

func TestPackRespectsSubBatchSize(t *testing.T) {
	d := NewDispatcher(&mockGateway{}, &mockStatusWriter{}, NoopMetrics{}, mockLogger{}, 5)

	// 3 + 3 entries do not fit in one sub-batch of 5; 3 + 2 do.
	batches := d.pack([]DispatchGroup{
		makeGroup("a", 3),
		makeGroup("b", 3),
		makeGroup("c", 2),
	})

	if len(batches) != 2 {
		t.Fatalf("got %d sub-batches, want 2", len(batches))
	}
	if len(batches[0].entries) != 3 || len(batches[0].itemIDs) != 1 {
		t.Errorf("first sub-batch: %d entries / %d items, want 3 / 1",
			len(batches[0].entries), len(batches[0].itemIDs))
	}
	if len(batches[1].entries) != 5 || len(batches[1].itemIDs) != 2 {
		t.Errorf("second sub-batch: %d entries / %d items, want 5 / 2",
			len(batches[1].entries), len(batches[1].itemIDs))
	}
}

func TestPackNeverSplitsAGroup(t *testing.T) {
	// A group larger than the sub-batch size still ships as one call; the
	// item's fate must be decided by exactly one gateway response.
	d := NewDispatcher(&mockGateway{}, &mockStatusWriter{}, NoopMetrics{}, mockLogger{}, 4)

	batches := d.pack([]DispatchGroup{
		makeGroup("a", 2),
		makeGroup("big", 9),
		makeGroup("b", 2),
	})

	if len(batches) != 3 {
		t.Fatalf("got %d sub-batches, want 3", len(batches))
	}
	if len(batches[1].entries) != 9 {
		t.Errorf("oversized group was split: middle sub-batch has %d entries", len(batches[1].entries))
	}
}

func TestPackSkipsEmptyGroups(t *testing.T) {
	d := NewDispatcher(&mockGateway{}, &mockStatusWriter{}, NoopMetrics{}, mockLogger{}, 10)

	batches := d.pack([]DispatchGroup{
		{ItemID: "empty"},
		makeGroup("a", 1),
	})

	if len(batches) != 1 {
		t.Fatalf("got %d sub-batches, want 1", len(batches))
	}
	if len(batches[0].itemIDs) != 1 || batches[0].itemIDs[0] != "a" {
		t.Errorf("empty group leaked into sub-batch items: %v", batches[0].itemIDs)
	}
}

// --- Dispatch Tests ---

func TestDispatchMarksSentPerSubBatch(t *testing.T) {
	gateway := &mockGateway{}
	statuses := &mockStatusWriter{}
	d := NewDispatcher(gateway, statuses, NoopMetrics{}, mockLogger{}, 2)

	result := d.Dispatch(context.Background(), []DispatchGroup{
		makeGroup("a", 2),
		makeGroup("b", 2),
	})

	if len(gateway.calls) != 2 {
		t.Fatalf("got %d gateway calls, want 2", len(gateway.calls))
	}
	// One MarkSent per successful sub-batch, not one bulk write at the end.
	if len(statuses.markSentCalls) != 2 {
		t.Fatalf("got %d MarkSent calls, want 2", len(statuses.markSentCalls))
	}
	if result.SentGroups != 2 || result.FailedGroups != 0 {
		t.Errorf("SentGroups=%d FailedGroups=%d, want 2/0", result.SentGroups, result.FailedGroups)
	}
	if len(result.SentIDs) != 2 {
		t.Errorf("got %d sent IDs, want 2", len(result.SentIDs))
	}
}

func TestDispatchIsolatesFailedSubBatch(t *testing.T) {
	gateway := &mockGateway{failCalls: map[int]bool{0: true}}
	statuses := &mockStatusWriter{}
	d := NewDispatcher(gateway, statuses, NoopMetrics{}, mockLogger{}, 2)

	result := d.Dispatch(context.Background(), []DispatchGroup{
		makeGroup("a", 2),
		makeGroup("b", 2),
	})

	if len(gateway.calls) != 2 {
		t.Fatalf("failed sub-batch stopped the cycle: %d calls, want 2", len(gateway.calls))
	}
	if result.FailedGroups != 1 || result.SentGroups != 1 {
		t.Errorf("SentGroups=%d FailedGroups=%d, want 1/1", result.SentGroups, result.FailedGroups)
	}
	if len(result.FailedIDs) != 1 || result.FailedIDs[0] != "a" {
		t.Errorf("FailedIDs = %v, want [a]", result.FailedIDs)
	}
	if len(result.SentIDs) != 1 || result.SentIDs[0] != "b" {
		t.Errorf("SentIDs = %v, want [b]", result.SentIDs)
	}
	// The failed sub-batch's items must never be marked sent.
	if len(statuses.markSentCalls) != 1 {
		t.Fatalf("got %d MarkSent calls, want 1", len(statuses.markSentCalls))
	}
	if statuses.markSentCalls[0][0] != "b" {
		t.Errorf("MarkSent called with %v, want [b]", statuses.markSentCalls[0])
	}
}

func TestDispatchStopsOnCancelledContext(t *testing.T) {
	gateway := &mockGateway{}
	d := NewDispatcher(gateway, &mockStatusWriter{}, NoopMetrics{}, mockLogger{}, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := d.Dispatch(ctx, []DispatchGroup{makeGroup("a", 2)})

	if len(gateway.calls) != 0 {
		t.Errorf("dispatched %d sub-batches on a cancelled context, want 0", len(gateway.calls))
	}
	if len(result.SentIDs) != 0 || len(result.FailedIDs) != 0 {
		t.Errorf("cancelled dispatch produced outcomes: %+v", result)
	}
}

func TestDispatchMarkSentFailureStillCountsAsSent(t *testing.T) {
	// A write-back failure after a successful gateway call is logged only;
	// the gateway already accepted the batch and the item counts as sent.
	gateway := &mockGateway{}
	statuses := &mockStatusWriter{err: errors.New("db down")}
	d := NewDispatcher(gateway, statuses, NoopMetrics{}, mockLogger{}, 10)

	result := d.Dispatch(context.Background(), []DispatchGroup{makeGroup("a", 1)})

	if result.SentGroups != 1 {
		t.Errorf("SentGroups = %d, want 1", result.SentGroups)
	}
	if len(result.SentIDs) != 1 {
		t.Errorf("SentIDs = %v, want [a]", result.SentIDs)
	}
}
