// Package notify provides the leaf components of the dealwire notification
// pipeline: delivery policy evaluation (opt-out, quiet hours), within-cycle
// deduplication, push target resolution, batched gateway dispatch, and
// CloudWatch telemetry. The drain scheduler composes these; the mention
// fan-out path reuses the target resolver and gateway dispatch directly.
package notify

import (
	"time"
)

// PolicyDecision represents the outcome of a delivery policy evaluation.
type PolicyDecision string

const (
	// PolicyDeliver indicates the notification may be dispatched now.
	PolicyDeliver PolicyDecision = "deliver"

	// PolicySkip indicates the notification must be terminally skipped.
	PolicySkip PolicyDecision = "skip"

	// PolicyDefer indicates dispatch must wait until ResumeAt.
	PolicyDefer PolicyDecision = "defer"
)

// PolicyResult contains the outcome and metadata from a policy evaluation.
type PolicyResult struct {
	Decision PolicyDecision
	Reason   string
	ResumeAt *time.Time // set when Decision is PolicyDefer
}

// CycleReport summarizes one drain cycle for logging and metrics.
type CycleReport struct {
	Processed    int `json:"processed"`
	Sent         int `json:"sent"`
	SentGroups   int `json:"sent_groups"` // distinct successful gateway submissions
	FailedGroups int `json:"failed_groups"`
	Skipped      int `json:"skipped"`
	Rescheduled  int `json:"rescheduled"`
	DeadLettered int `json:"dead_lettered"`
}

// TriggerKind dimensions metrics by which entrypoint produced the dispatch.
type TriggerKind string

const (
	TriggerDrain   TriggerKind = "drain"
	TriggerMention TriggerKind = "mention"
)
