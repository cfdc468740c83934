package notify

import (
	"testing"

	"dealwire/internal/types"
)

func TestCycleDeduperFirstOccurrenceWins(t *testing.T) {
	d := NewCycleDeduper()

	if !d.Observe("u1\x1fprice-drop-42") {
		t.Fatal("first occurrence reported as duplicate")
	}
	if d.Observe("u1\x1fprice-drop-42") {
		t.Error("second occurrence not reported as duplicate")
	}
	if !d.Observe("u2\x1fprice-drop-42") {
		t.Error("same key for a different recipient must not collide")
	}
}

func TestCycleDeduperNoCrossCycleMemory(t *testing.T) {
	first := NewCycleDeduper()
	first.Observe("u1\x1fkey")

	// A fresh deduper is built per cycle; the identity fires again.
	second := NewCycleDeduper()
	if !second.Observe("u1\x1fkey") {
		t.Error("identity from a previous cycle was suppressed")
	}
}

func TestDedupeIdentityExplicitKey(t *testing.T) {
	a := types.QueuedNotification{ID: "n1", RecipientID: "u1", Category: types.CategorySmartHot, Route: "/deal?id=1", DedupeKey: "deal-1-hot"}
	b := types.QueuedNotification{ID: "n2", RecipientID: "u1", Category: types.CategoryPriceDrop, Route: "/deal?id=9", DedupeKey: "deal-1-hot"}

	// Same recipient and explicit key collide regardless of category/route.
	if a.DedupeIdentity() != b.DedupeIdentity() {
		t.Error("explicit dedupe keys for the same recipient should collide")
	}
}

func TestDedupeIdentityFallback(t *testing.T) {
	a := types.QueuedNotification{ID: "n1", RecipientID: "u1", Category: types.CategoryPriceDrop, Route: "/deal?id=1"}
	b := types.QueuedNotification{ID: "n2", RecipientID: "u1", Category: types.CategoryPriceDrop, Route: "/deal?id=1"}
	c := types.QueuedNotification{ID: "n3", RecipientID: "u1", Category: types.CategoryPriceDrop, Route: "/deal?id=2"}

	if a.DedupeIdentity() != b.DedupeIdentity() {
		t.Error("same recipient, category and route should collide without explicit keys")
	}
	if a.DedupeIdentity() == c.DedupeIdentity() {
		t.Error("different routes must not collide")
	}
}

func TestDedupeIdentityExplicitAndFallbackDoNotCollide(t *testing.T) {
	// An explicit key that happens to look like a category must not collide
	// with the category+route fallback; the identities use distinct shapes.
	withKey := types.QueuedNotification{RecipientID: "u1", DedupeKey: "price_drop"}
	fallback := types.QueuedNotification{RecipientID: "u1", Category: types.CategoryPriceDrop, Route: ""}

	if withKey.DedupeIdentity() == fallback.DedupeIdentity() {
		t.Error("explicit-key identity collided with fallback identity")
	}
}
