package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/domain"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/store"
	"github.com/aussiebroadwan/loadwatch/pkg/slogx"
)

// DefaultHistoryLimit is how many entries RecentEntries returns by default.
const DefaultHistoryLimit = 10

// Submission is a self-report before it is stamped with a time and day.
type Submission struct {
	UserID          string
	RPE             int
	DurationMinutes int
	Kind            domain.EntryKind
	Note            string
}

// LedgerService records workload entries. Writes for one user are
// serialized; writes for different users never wait on each other.
type LedgerService struct {
	Store    store.Store
	Location *time.Location

	locks keyedMutex
}

func NewLedger(st store.Store, loc *time.Location) *LedgerService {
	if loc == nil {
		loc = time.Local
	}
	return &LedgerService{Store: st, Location: loc}
}

// Day returns the calendar day key of t in the ledger's location.
func (s *LedgerService) Day(t time.Time) string {
	return domain.DayKey(t.In(s.Location))
}

// HasSubmittedToday reports whether userID has an entry on now's calendar day.
func (s *LedgerService) HasSubmittedToday(ctx context.Context, userID string, now time.Time) (bool, error) {
	ok, err := s.Store.Entries().HasEntryOnDay(ctx, userID, s.Day(now))
	if err != nil {
		slogx.FromContext(ctx).Error("failed to check submission", slog.Any("error", err))
		return false, unavailable(err)
	}
	return ok, nil
}

// Submit appends the day's entry. It fails with ErrAlreadySubmitted when the
// day already has one. Corrections are forwarded to Correct.
func (s *LedgerService) Submit(ctx context.Context, sub Submission, now time.Time) (domain.WorkloadEntry, error) {
	if sub.Kind == domain.KindCorrection {
		return s.Correct(ctx, sub.UserID, sub.RPE, sub.DurationMinutes, now)
	}
	if sub.Kind == "" {
		sub.Kind = domain.KindTraining
	}
	if sub.Kind == domain.KindLeave {
		sub.RPE, sub.DurationMinutes = 0, 0
	}
	if err := validateLoad(sub.RPE, sub.DurationMinutes); err != nil {
		return domain.WorkloadEntry{}, err
	}

	log := slogx.FromContext(ctx)
	entry := s.newEntry(sub, now)

	unlock := s.locks.Lock(sub.UserID)
	defer unlock()

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		exists, err := tx.Entries().HasEntryOnDay(ctx, entry.UserID, entry.CalendarDay)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadySubmitted
		}
		id, err := tx.Entries().CreateEntry(ctx, entry)
		if err != nil {
			return err
		}
		entry.ID = id
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadySubmitted), errors.Is(err, store.ErrAlreadyExists):
		// The unique index catches writers in other processes.
		log.Warn("duplicate submission", slog.String("day", entry.CalendarDay))
		return domain.WorkloadEntry{}, ErrAlreadySubmitted
	default:
		log.Error("failed to record submission", slog.Any("error", err))
		return domain.WorkloadEntry{}, unavailable(err)
	}

	log.Info("workload recorded",
		slog.String("day", entry.CalendarDay),
		slog.String("kind", string(entry.Kind)),
		slog.Int("srpe", entry.SRPE),
	)
	return entry, nil
}

// Correct replaces every entry userID has on now's day with a single
// correction entry.
func (s *LedgerService) Correct(ctx context.Context, userID string, rpe, durationMinutes int, now time.Time) (domain.WorkloadEntry, error) {
	if err := validateLoad(rpe, durationMinutes); err != nil {
		return domain.WorkloadEntry{}, err
	}

	log := slogx.FromContext(ctx)
	entry := s.newEntry(Submission{
		UserID:          userID,
		RPE:             rpe,
		DurationMinutes: durationMinutes,
		Kind:            domain.KindCorrection,
	}, now)

	unlock := s.locks.Lock(userID)
	defer unlock()

	var replaced int64
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		n, err := tx.Entries().DeleteEntriesOnDay(ctx, userID, entry.CalendarDay)
		if err != nil {
			return err
		}
		replaced = n
		id, err := tx.Entries().CreateEntry(ctx, entry)
		if err != nil {
			return err
		}
		entry.ID = id
		return nil
	})
	if err != nil {
		log.Error("failed to record correction", slog.Any("error", err))
		return domain.WorkloadEntry{}, unavailable(err)
	}

	log.Info("workload corrected",
		slog.String("day", entry.CalendarDay),
		slog.Int64("replaced", replaced),
		slog.Int("srpe", entry.SRPE),
	)
	return entry, nil
}

// RecentEntries returns up to limit entries, newest first. A non-positive
// limit means DefaultHistoryLimit.
func (s *LedgerService) RecentEntries(ctx context.Context, userID string, limit int) ([]domain.WorkloadEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	entries, err := s.Store.Entries().ListRecentEntries(ctx, userID, limit)
	if err != nil {
		slogx.FromContext(ctx).Error("failed to list history", slog.Any("error", err))
		return nil, unavailable(err)
	}
	return entries, nil
}

// EntriesInRange returns entries on days in [start, end), oldest first.
// trainingOnly drops leave entries.
func (s *LedgerService) EntriesInRange(
	ctx context.Context,
	userID string,
	start, end time.Time,
	trainingOnly bool,
) ([]domain.WorkloadEntry, error) {
	entries, err := s.Store.Entries().ListEntriesInRange(ctx, userID, s.Day(start), s.Day(end), trainingOnly)
	if err != nil {
		slogx.FromContext(ctx).Error("failed to list entries in range", slog.Any("error", err))
		return nil, unavailable(err)
	}
	return entries, nil
}

// EntriesOnDay returns every user's entries on day's calendar day.
func (s *LedgerService) EntriesOnDay(ctx context.Context, day time.Time) ([]domain.WorkloadEntry, error) {
	entries, err := s.Store.Entries().ListEntriesOnDay(ctx, s.Day(day))
	if err != nil {
		slogx.FromContext(ctx).Error("failed to list entries for day", slog.Any("error", err))
		return nil, unavailable(err)
	}
	return entries, nil
}

func (s *LedgerService) newEntry(sub Submission, now time.Time) domain.WorkloadEntry {
	local := now.In(s.Location)
	return domain.WorkloadEntry{
		UserID:          sub.UserID,
		RPE:             sub.RPE,
		DurationMinutes: sub.DurationMinutes,
		SRPE:            domain.SRPE(sub.RPE, sub.DurationMinutes),
		Kind:            sub.Kind,
		Note:            strings.TrimSpace(sub.Note),
		RecordedAt:      local,
		CalendarDay:     domain.DayKey(local),
	}
}

func validateLoad(rpe, durationMinutes int) error {
	if rpe < domain.MinRPE || rpe > domain.MaxRPE {
		return ErrFormat
	}
	if durationMinutes < 0 || durationMinutes > domain.MaxDurationMinutes {
		return ErrFormat
	}
	return nil
}
