package app

import (
	"time"

	"wfs-go/internal/wfs"
)

// Session tracks one CLI invocation. Its ID tags every log line written
// while the command runs.
type Session struct {
	ID      string
	Command string
	Started time.Time
	Status  string // "success" or "error"
}

// NewSession starts a session for command.
func NewSession(command string, clock wfs.Clock) *Session {
	now := clock.Now().UTC()
	return &Session{
		ID:      now.Format("20060102T150405Z"),
		Command: command,
		Started: now,
		Status:  "success",
	}
}

// Fail marks the session as failed.
func (s *Session) Fail() {
	s.Status = "error"
}

// Failed returns true if Fail was called.
func (s *Session) Failed() bool {
	return s.Status == "error"
}

// Elapsed returns the time since the session started.
func (s *Session) Elapsed(clock wfs.Clock) time.Duration {
	return clock.Now().Sub(s.Started)
}
