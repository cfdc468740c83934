package notify

import (
	"fmt"
	"time"

	"dealwire/internal/types"
)

// PolicyEngine evaluates a recipient's delivery preference against the
// current time and decides whether a queued notification is dispatched now,
// deferred past quiet hours, or skipped entirely.
//
// All evaluation happens on a single consistent clock reference (UTC via
// types.RealClock in production); there is no per-recipient timezone.
type PolicyEngine struct {
	clock  types.Clock
	logger types.Logger
}

// NewPolicyEngine creates a PolicyEngine with the given clock and logger.
// The clock abstraction allows deterministic testing of time-dependent logic.
func NewPolicyEngine(clock types.Clock, logger types.Logger) *PolicyEngine {
	return &PolicyEngine{clock: clock, logger: logger}
}

// ResolvePreference returns the effective delivery preference for a
// recipient: the stored row when present, otherwise the defaults (enabled,
// overnight quiet hours). Hour values outside [0,23] are clamped via modulo;
// that is a producer bug, not a delivery failure.
func ResolvePreference(recipientID string, prefs map[string]types.DeliveryPreference) types.DeliveryPreference {
	p, ok := prefs[recipientID]
	if !ok {
		return types.DefaultPreference(recipientID)
	}
	p.QuietStart = ((p.QuietStart % 24) + 24) % 24
	p.QuietEnd = ((p.QuietEnd % 24) + 24) % 24
	return p
}

// Evaluate applies the delivery policy for one recipient preference.
//
// Decision logic (in order of precedence):
//  1. smart_enabled=false -> skip (terminal)
//  2. current hour inside the quiet-hours window -> defer until the window
//     exit boundary
//  3. otherwise -> deliver now
func (e *PolicyEngine) Evaluate(pref types.DeliveryPreference) PolicyResult {
	if !pref.SmartEnabled {
		return PolicyResult{
			Decision: PolicySkip,
			Reason:   "smart notifications disabled",
		}
	}

	now := e.clock.Now()
	if InQuietHours(pref, now.Hour()) {
		resumeAt := now.Add(QuietExitDelay(pref, now.Hour()))
		return PolicyResult{
			Decision: PolicyDefer,
			Reason:   fmt.Sprintf("quiet hours active (%02d:00-%02d:00)", pref.QuietStart, pref.QuietEnd),
			ResumeAt: &resumeAt,
		}
	}

	return PolicyResult{
		Decision: PolicyDeliver,
		Reason:   "no policy restrictions apply",
	}
}

// InQuietHours reports whether the given hour-of-day falls inside the
// preference's quiet window [start, end):
//   - start == end: quiet hours disabled, never inside.
//   - start < end:  same-day span, inside iff start <= h < end.
//   - start > end:  overnight span, inside iff h >= start or h < end.
func InQuietHours(pref types.DeliveryPreference, hour int) bool {
	start, end := pref.QuietStart, pref.QuietEnd
	switch {
	case start == end:
		return false
	case start < end:
		return hour >= start && hour < end
	default:
		return hour >= start || hour < end
	}
}

// QuietExitDelay returns the duration from now until the quiet window's exit
// boundary, assuming the current hour is inside the window. The result is
// always at least one hour, so a rescheduled item's scheduled_for moves
// strictly forward.
func QuietExitDelay(pref types.DeliveryPreference, hour int) time.Duration {
	start, end := pref.QuietStart, pref.QuietEnd

	var deltaHours int
	if start < end {
		deltaHours = end - hour
	} else if hour >= start {
		// Before midnight; the window exits at end tomorrow.
		deltaHours = (24 - hour) + end
	} else {
		// Past midnight; the window exits at end today.
		deltaHours = end - hour
	}

	if deltaHours < 1 {
		deltaHours = 1
	}
	return time.Duration(deltaHours) * time.Hour
}
