// Package types defines the shared domain model for the dealwire notification
// pipeline: queued notifications, delivery preferences, push destinations, and
// the error/logging/clock primitives used across packages.
package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// QueueStatus is the lifecycle state of a queued notification.
// "queued" is the only re-enterable state; "sent" and "skipped" are terminal.
type QueueStatus string

const (
	StatusQueued  QueueStatus = "queued"
	StatusSent    QueueStatus = "sent"
	StatusSkipped QueueStatus = "skipped"
)

// Category is the notification kind. The set is open-ended; producers may
// introduce new categories without pipeline changes.
type Category string

const (
	CategorySmartHot  Category = "smart_hot"
	CategoryPriceDrop Category = "price_drop"
	CategoryMention   Category = "mention"
	CategoryReply     Category = "reply"
)

// SkipReason records why an item was terminally skipped. Persisted alongside
// the status transition for operability.
type SkipReason string

const (
	SkipSmartDisabled SkipReason = "smart_disabled"
	SkipDuplicate     SkipReason = "duplicate"
	SkipNoDestination SkipReason = "no_destination"
	SkipMaxAttempts   SkipReason = "max_attempts_exhausted"
)

// MetadataMap is an arbitrary JSONB payload carried opaquely from producer to
// push gateway. The pipeline never inspects its contents.
type MetadataMap map[string]any

var (
	_ sql.Scanner   = (*MetadataMap)(nil)
	_ driver.Valuer = MetadataMap(nil)
)

// Scan implements sql.Scanner for JSONB columns.
func (m *MetadataMap) Scan(value any) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("metadata: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, m)
}

// Value implements driver.Valuer for JSONB columns.
func (m MetadataMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// QueuedNotification is one durable unit of pending notification work.
// Rows are created by upstream producers with status=queued and are mutated
// only by the drain scheduler; they are never deleted by this subsystem.
type QueuedNotification struct {
	ID           string      `json:"id"`
	RecipientID  string      `json:"recipient_id"`
	Category     Category    `json:"category"`
	Title        string      `json:"title"`
	Body         string      `json:"body"`
	Route        string      `json:"route"` // deep-link route, e.g. "/deal?id=5"
	Metadata     MetadataMap `json:"metadata,omitempty"`
	DedupeKey    string      `json:"dedupe_key,omitempty"`
	Attempts     int         `json:"attempts"`
	ScheduledFor time.Time   `json:"scheduled_for"`
	Status       QueueStatus `json:"status"`
	SkipReason   SkipReason  `json:"skip_reason,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// DedupeIdentity returns the within-cycle collapse key for this item:
// (recipient, dedupe_key) when an explicit key is present, otherwise the
// composite (recipient, category, route).
func (n *QueuedNotification) DedupeIdentity() string {
	if n.DedupeKey != "" {
		return n.RecipientID + "\x1f" + n.DedupeKey
	}
	return n.RecipientID + "\x1f" + string(n.Category) + "\x1f" + n.Route
}

// Default quiet-hours window applied when a recipient has no stored
// preference: overnight 22:00-07:00.
const (
	DefaultQuietStart = 22
	DefaultQuietEnd   = 7
)

// DeliveryPreference is a recipient's delivery policy. QuietStart and
// QuietEnd are hours-of-day in [0,23]; equal values disable quiet hours,
// start > end denotes a window crossing midnight.
type DeliveryPreference struct {
	RecipientID  string `json:"recipient_id"`
	SmartEnabled bool   `json:"smart_enabled"`
	QuietStart   int    `json:"quiet_hours_start"`
	QuietEnd     int    `json:"quiet_hours_end"`
}

// DefaultPreference returns the policy used for recipients with no stored
// preference row: sends enabled, default overnight quiet hours.
func DefaultPreference(recipientID string) DeliveryPreference {
	return DeliveryPreference{
		RecipientID:  recipientID,
		SmartEnabled: true,
		QuietStart:   DefaultQuietStart,
		QuietEnd:     DefaultQuietEnd,
	}
}

// PushDestination is one currently registered device target for a recipient.
// Only non-disabled destinations are eligible for dispatch.
type PushDestination struct {
	Token       string    `json:"token"`
	RecipientID string    `json:"recipient_id"`
	Disabled    bool      `json:"disabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// DispatchEntry is one (token, rendered payload) tuple submitted to the push
// gateway. Ephemeral; never persisted.
type DispatchEntry struct {
	Token    string      `json:"to"`
	Title    string      `json:"title"`
	Body     string      `json:"body"`
	Route    string      `json:"route"`
	Metadata MetadataMap `json:"data,omitempty"`
}
