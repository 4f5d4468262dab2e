package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestThresholdsBand(t *testing.T) {
	t.Parallel()

	th := DefaultThresholds
	tests := []struct {
		acwr float64
		want RiskBand
	}{
		{0, RiskLow},
		{0.8, RiskLow},
		{1.3, RiskLow},
		{1.30001, RiskModerate},
		{1.5, RiskModerate},
		{1.50001, RiskHigh},
		{3, RiskHigh},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, th.Band(tt.acwr), "acwr=%v", tt.acwr)
	}
}

func TestThresholdsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultThresholds.Validate())
	require.Error(t, Thresholds{Moderate: 1.5, High: 1.3}.Validate())
	require.Error(t, Thresholds{Moderate: 0, High: 1.3}.Validate())
}

func TestStartOfISOWeek(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+8", 8*3600)
	monday := time.Date(2026, 10, 19, 0, 0, 0, 0, loc)

	for offset := 0; offset < 7; offset++ {
		day := monday.AddDate(0, 0, offset).Add(21 * time.Hour)
		require.Equal(t, monday, StartOfISOWeek(day), "weekday %s", day.Weekday())
	}

	// Sunday late night still belongs to the week that started on Monday.
	sunday := time.Date(2026, 10, 25, 23, 59, 0, 0, loc)
	require.Equal(t, monday, StartOfISOWeek(sunday))
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	r, err := ParseRole("球員")
	require.NoError(t, err)
	require.Equal(t, RolePlayer, r)

	r, err = ParseRole(" Coach ")
	require.NoError(t, err)
	require.Equal(t, RoleCoach, r)

	_, err = ParseRole("admin")
	require.Error(t, err)

	require.False(t, RoleUnverified.Verified())
	require.Equal(t, "unverified", RoleUnverified.String())
}

func TestDayHelpers(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+8", 8*3600)
	ts := time.Date(2026, 10, 19, 23, 30, 0, 0, loc)
	require.Equal(t, "2026-10-19", DayKey(ts))

	parsed, err := ParseDay("2026-10-19", loc)
	require.NoError(t, err)
	require.Equal(t, StartOfDay(ts), parsed)

	require.Equal(t, 360, SRPE(6, 60))
}
