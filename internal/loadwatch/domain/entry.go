package domain

import "time"

// RPE bounds (Borg CR-10).
const (
	MinRPE = 0
	MaxRPE = 10
)

// MaxDurationMinutes caps a single session at one day.
const MaxDurationMinutes = 24 * 60

type EntryKind string

const (
	KindTraining   EntryKind = "training"
	KindLeave      EntryKind = "leave"
	KindCorrection EntryKind = "correction"
)

// WorkloadEntry is one self-reported session. At most one exists per
// (UserID, CalendarDay); it is the primary entry for that day.
type WorkloadEntry struct {
	ID              int64
	UserID          string
	RPE             int
	DurationMinutes int
	SRPE            int
	Kind            EntryKind
	Note            string // free text, e.g. the leave reason
	RecordedAt      time.Time
	CalendarDay     string // YYYY-MM-DD in the ledger's location
}

// IsLeave reports whether the entry marks an absence rather than a session.
func (e WorkloadEntry) IsLeave() bool { return e.Kind == KindLeave }

// SRPE computes session load.
func SRPE(rpe, durationMinutes int) int { return rpe * durationMinutes }
