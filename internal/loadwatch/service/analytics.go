package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/domain"
	"github.com/aussiebroadwan/loadwatch/pkg/slogx"
)

// Window lengths in days.
const (
	AcuteDays   = 7
	ChronicDays = 28
)

// DayStatus is a player's reporting state for one calendar day.
type DayStatus string

const (
	StatusSubmitted DayStatus = "submitted"
	StatusLeave     DayStatus = "leave"
	StatusMissing   DayStatus = "missing"
)

// PlayerACWR is one row of a team ratio summary. ACWR is only meaningful
// when Defined is true.
type PlayerACWR struct {
	UserID  string
	ACWR    float64
	Defined bool
	Band    domain.RiskBand
}

type TeamACWR struct {
	Players []PlayerACWR
	// TeamAverage covers players with a defined ratio only.
	TeamAverage float64
	HasAverage  bool
}

type PlayerDay struct {
	UserID string
	Status DayStatus
	SRPE   int
	Note   string
}

type TeamDay struct {
	Day     string
	Players []PlayerDay
	// Average is over players that reported, counting leave as 0.
	Average  float64
	Reported int
}

// AnalyticsService derives load aggregates from ledger reads. It keeps no
// state of its own.
type AnalyticsService struct {
	Ledger     *LedgerService
	Registry   *RegistryService
	Thresholds domain.Thresholds
}

// DailyTotal sums srpe for userID's entries on day.
func (s *AnalyticsService) DailyTotal(ctx context.Context, userID string, day time.Time) (int, error) {
	start := domain.StartOfDay(day.In(s.Ledger.Location))
	entries, err := s.Ledger.EntriesInRange(ctx, userID, start, start.AddDate(0, 0, 1), false)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, e := range entries {
		total += e.SRPE
	}
	return total, nil
}

// WeeklyAverageSRPE is the mean srpe over [weekStart, weekStart+7d),
// leave excluded. A week without entries averages 0.
func (s *AnalyticsService) WeeklyAverageSRPE(ctx context.Context, userID string, weekStart time.Time) (float64, error) {
	start := domain.StartOfDay(weekStart.In(s.Ledger.Location))
	entries, err := s.Ledger.EntriesInRange(ctx, userID, start, start.AddDate(0, 0, AcuteDays), true)
	if err != nil {
		return 0, err
	}
	avg, _ := meanSRPE(entries)
	return avg, nil
}

// ACWR divides the mean daily load of the ISO week containing ref by the
// mean daily load of the four weeks before it. It returns
// ErrInsufficientData when the chronic window has no training load.
func (s *AnalyticsService) ACWR(ctx context.Context, userID string, ref time.Time) (float64, error) {
	acuteStart := domain.StartOfISOWeek(ref.In(s.Ledger.Location))
	chronicStart := acuteStart.AddDate(0, 0, -ChronicDays)

	chronic, err := s.Ledger.EntriesInRange(ctx, userID, chronicStart, acuteStart, true)
	if err != nil {
		return 0, err
	}
	chronicMean, ok := meanSRPE(chronic)
	if !ok || chronicMean == 0 {
		return 0, ErrInsufficientData
	}

	acute, err := s.Ledger.EntriesInRange(ctx, userID, acuteStart, acuteStart.AddDate(0, 0, AcuteDays), true)
	if err != nil {
		return 0, err
	}
	acuteMean, _ := meanSRPE(acute)

	return acuteMean / chronicMean, nil
}

// Band classifies a ratio with the configured thresholds.
func (s *AnalyticsService) Band(acwr float64) domain.RiskBand {
	return s.Thresholds.Band(acwr)
}

// TeamACWRSummary computes every player's ratio at ref. Players without
// enough history are listed with RiskUnknown and left out of the average.
func (s *AnalyticsService) TeamACWRSummary(ctx context.Context, ref time.Time) (TeamACWR, error) {
	players, err := s.Registry.ListByRole(ctx, domain.RolePlayer)
	if err != nil {
		return TeamACWR{}, err
	}

	var (
		summary = TeamACWR{Players: make([]PlayerACWR, 0, len(players))}
		sum     float64
		defined int
	)
	for _, id := range players {
		row := PlayerACWR{UserID: id, Band: domain.RiskUnknown}

		ratio, err := s.ACWR(ctx, id, ref)
		switch {
		case err == nil:
			row.ACWR = ratio
			row.Defined = true
			row.Band = s.Band(ratio)
			sum += ratio
			defined++
		case errors.Is(err, ErrInsufficientData):
		default:
			return TeamACWR{}, err
		}
		summary.Players = append(summary.Players, row)
	}

	if defined > 0 {
		summary.TeamAverage = sum / float64(defined)
		summary.HasAverage = true
	}

	slogx.FromContext(ctx).Debug("team acwr computed",
		slog.Int("players", len(players)),
		slog.Int("defined", defined),
	)
	return summary, nil
}

// MissingToday lists players without an entry on now's calendar day.
func (s *AnalyticsService) MissingToday(ctx context.Context, now time.Time) ([]string, error) {
	players, err := s.Registry.ListByRole(ctx, domain.RolePlayer)
	if err != nil {
		return nil, err
	}
	entries, err := s.Ledger.EntriesOnDay(ctx, now)
	if err != nil {
		return nil, err
	}

	submitted := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		submitted[e.UserID] = struct{}{}
	}

	missing := make([]string, 0, len(players))
	for _, id := range players {
		if _, ok := submitted[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// TeamDayReport gives each player's status on day plus the team mean.
func (s *AnalyticsService) TeamDayReport(ctx context.Context, day time.Time) (TeamDay, error) {
	players, err := s.Registry.ListByRole(ctx, domain.RolePlayer)
	if err != nil {
		return TeamDay{}, err
	}
	entries, err := s.Ledger.EntriesOnDay(ctx, day)
	if err != nil {
		return TeamDay{}, err
	}

	byUser := make(map[string]domain.WorkloadEntry, len(entries))
	for _, e := range entries {
		byUser[e.UserID] = e
	}

	report := TeamDay{Day: s.Ledger.Day(day), Players: make([]PlayerDay, 0, len(players))}
	total := 0
	for _, id := range players {
		row := PlayerDay{UserID: id, Status: StatusMissing}
		if e, ok := byUser[id]; ok {
			row.Status = StatusSubmitted
			if e.IsLeave() {
				row.Status = StatusLeave
			}
			row.SRPE = e.SRPE
			row.Note = e.Note
			total += e.SRPE
			report.Reported++
		}
		report.Players = append(report.Players, row)
	}
	if report.Reported > 0 {
		report.Average = float64(total) / float64(report.Reported)
	}
	return report, nil
}

// meanSRPE reports false when there is nothing to average.
func meanSRPE(entries []domain.WorkloadEntry) (float64, bool) {
	if len(entries) == 0 {
		return 0, false
	}
	total := 0
	for _, e := range entries {
		total += e.SRPE
	}
	return float64(total) / float64(len(entries)), true
}
