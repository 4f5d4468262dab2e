package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/conversation"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/domain"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/service"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/store/drivers/sqlite"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type recordingPusher struct {
	mu     sync.Mutex
	pushes map[string][]string
	fail   map[string]bool
}

func (p *recordingPusher) Push(ctx context.Context, userID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[userID] {
		return errors.New("push rejected")
	}
	if p.pushes == nil {
		p.pushes = make(map[string][]string)
	}
	p.pushes[userID] = append(p.pushes[userID], text)
	return nil
}

type fixture struct {
	orch   *Orchestrator
	ledger *service.LedgerService
	pusher *recordingPusher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.NewStore("file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	registry := service.NewRegistry(st, map[string]domain.Role{"1111": domain.RolePlayer, "0607": domain.RoleCoach})
	ledger := service.NewLedger(st, time.UTC)
	analytics := &service.AnalyticsService{Ledger: ledger, Registry: registry, Thresholds: domain.DefaultThresholds}

	for _, id := range []string{"PA", "PB", "PC"} {
		_, err := registry.Verify(ctx, id, "1111")
		require.NoError(t, err)
	}
	for _, id := range []string{"C1", "C2"} {
		_, err := registry.Verify(ctx, id, "0607")
		require.NoError(t, err)
	}

	pusher := &recordingPusher{fail: map[string]bool{}}
	return fixture{
		orch: &Orchestrator{
			Registry:  registry,
			Ledger:    ledger,
			Analytics: analytics,
			Pusher:    pusher,
			Guard:     NewMemoryGuard(),
		},
		ledger: ledger,
		pusher: pusher,
	}
}

var evening = time.Date(2024, 3, 13, 22, 0, 0, 0, time.UTC)

func TestParseJob(t *testing.T) {
	t.Parallel()

	for _, j := range Jobs {
		got, err := ParseJob(string(j))
		require.NoError(t, err)
		require.Equal(t, j, got)
	}
	_, err := ParseJob("cleanup")
	require.ErrorIs(t, err, ErrUnknownJob)
}

func TestReminderTargetsMissingPlayers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ledger.Submit(ctx, service.Submission{UserID: "PA", RPE: 6, DurationMinutes: 60}, evening)
	require.NoError(t, err)

	res, err := f.orch.RunReminder(ctx, evening)
	require.NoError(t, err)
	require.Equal(t, "2024-03-13", res.Slot)
	require.Equal(t, 2, res.Recipients)
	require.Equal(t, 2, res.Delivered)
	require.False(t, res.RunID.IsZero())

	require.Equal(t, []string{conversation.ReminderText}, f.pusher.pushes["PB"])
	require.Equal(t, []string{conversation.ReminderText}, f.pusher.pushes["PC"])
	require.NotContains(t, f.pusher.pushes, "PA")
}

func TestSecondRunInSlotIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.orch.RunMissingCheck(ctx, evening)
	require.NoError(t, err)

	res, err := f.orch.RunMissingCheck(ctx, evening.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, res.Skipped)
	require.Len(t, f.pusher.pushes["C1"], 1)

	res, err = f.orch.RunMissingCheck(ctx, evening.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.False(t, res.Skipped)
	require.Len(t, f.pusher.pushes["C1"], 2)
}

func TestPushFailureDoesNotAbortBroadcast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pusher.fail["C1"] = true

	res, err := f.orch.RunDailySummary(ctx, evening)
	require.NoError(t, err)
	require.Equal(t, 2, res.Recipients)
	require.Equal(t, 1, res.Delivered)
	require.Equal(t, 1, res.Failed)
	require.Len(t, f.pusher.pushes["C2"], 1)
}

func TestReportsContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ledger.Submit(ctx, service.Submission{UserID: "PA", RPE: 6, DurationMinutes: 60}, evening)
	require.NoError(t, err)

	t.Run("missing", func(t *testing.T) {
		_, err := f.orch.Run(ctx, JobMissing, evening)
		require.NoError(t, err)
		require.Equal(t, []string{"📋 Missing today:\nPB\nPC"}, f.pusher.pushes["C1"])
	})

	t.Run("summary", func(t *testing.T) {
		_, err := f.orch.Run(ctx, JobSummary, evening)
		require.NoError(t, err)
		require.Equal(t, "📊 Report for 2024-03-13:\nPA SRPE: 360\nPB missing\nPC missing\nTeam average: 360.0", f.pusher.pushes["C2"][1])
	})

	t.Run("acwr is keyed by week", func(t *testing.T) {
		res, err := f.orch.Run(ctx, JobACWR, time.Date(2024, 3, 17, 22, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.Equal(t, "2024-03-11", res.Slot)
		require.Contains(t, f.pusher.pushes["C1"][2], "Team average: insufficient data")
	})

	t.Run("unknown job", func(t *testing.T) {
		_, err := f.orch.Run(ctx, Job("nope"), evening)
		require.ErrorIs(t, err, ErrUnknownJob)
	})
}

func TestJobsAreReadOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ledger.Submit(ctx, service.Submission{UserID: "PA", RPE: 6, DurationMinutes: 60}, evening)
	require.NoError(t, err)

	before, err := f.ledger.EntriesOnDay(ctx, evening)
	require.NoError(t, err)

	for _, j := range Jobs {
		_, err := f.orch.Run(ctx, j, evening)
		require.NoError(t, err)
	}

	after, err := f.ledger.EntriesOnDay(ctx, evening)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestMemoryGuardExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Date(2024, 3, 13, 22, 0, 0, 0, time.UTC)
	g := NewMemoryGuard()
	g.Now = func() time.Time { return now }

	ok, err := g.Claim(ctx, "k", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _ = g.Claim(ctx, "k", time.Hour)
	require.False(t, ok)

	now = now.Add(time.Hour)
	ok, _ = g.Claim(ctx, "k", time.Hour)
	require.True(t, ok)
}

func TestRedisGuard(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	g := NewRedisGuard(client)

	ok, err := g.Claim(ctx, "reminder:2024-03-13", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, mr.Exists("loadwatch:slot:reminder:2024-03-13"))

	ok, err = g.Claim(ctx, "reminder:2024-03-13", time.Hour)
	require.NoError(t, err)
	require.False(t, ok)

	mr.FastForward(2 * time.Hour)
	ok, err = g.Claim(ctx, "reminder:2024-03-13", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("fails open", func(t *testing.T) {
		mr.Close()
		ok, err := g.Claim(ctx, "summary:2024-03-13", time.Hour)
		require.Error(t, err)
		require.True(t, ok)
	})
}
