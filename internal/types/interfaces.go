package types

import "time"

// Clock abstracts time for testability. All pipeline time comparisons
// (eligibility, quiet hours) go through a Clock so tests can pin "now".
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time, always in UTC.
// Quiet hours are evaluated against this single clock reference; there is no
// per-recipient timezone storage.
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger is the structured logging interface used by pipeline components.
// Satisfied by thin adapters over *slog.Logger in the entrypoints and by
// no-op mocks in tests.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}
