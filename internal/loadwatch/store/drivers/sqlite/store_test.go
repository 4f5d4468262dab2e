package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/domain"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/store"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)"
	st, err := NewStore(dsn)
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func entry(userID, day string, rpe, minutes int, kind domain.EntryKind) domain.WorkloadEntry {
	recorded, _ := time.Parse(domain.DayLayout, day)
	return domain.WorkloadEntry{
		UserID:          userID,
		RPE:             rpe,
		DurationMinutes: minutes,
		SRPE:            domain.SRPE(rpe, minutes),
		Kind:            kind,
		RecordedAt:      recorded.Add(20 * time.Hour),
		CalendarDay:     day,
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.ApplyMigrations())
	require.NoError(t, st.Ping(context.Background()))
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	t.Run("unknown user", func(t *testing.T) {
		_, err := st.Users().GetUser(ctx, "U404")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("upsert overwrites role", func(t *testing.T) {
		require.NoError(t, st.Users().UpsertRole(ctx, "U1", domain.RolePlayer))
		require.NoError(t, st.Users().UpsertRole(ctx, "U1", domain.RoleCoach))

		u, err := st.Users().GetUser(ctx, "U1")
		require.NoError(t, err)
		require.Equal(t, domain.RoleCoach, u.Role)
		require.False(t, u.UpdatedAt.IsZero())
	})

	t.Run("list by role", func(t *testing.T) {
		require.NoError(t, st.Users().UpsertRole(ctx, "U3", domain.RolePlayer))
		require.NoError(t, st.Users().UpsertRole(ctx, "U2", domain.RolePlayer))

		ids, err := st.Users().ListUserIDsByRole(ctx, domain.RolePlayer)
		require.NoError(t, err)
		require.Equal(t, []string{"U2", "U3"}, ids)

		ids, err = st.Users().ListUserIDsByRole(ctx, domain.RoleCoach)
		require.NoError(t, err)
		require.Equal(t, []string{"U1"}, ids)
	})
}

func TestEntries(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	repo := st.Entries()

	id, err := repo.CreateEntry(ctx, entry("U1", "2024-03-04", 6, 60, domain.KindTraining))
	require.NoError(t, err)
	require.Positive(t, id)

	t.Run("one entry per day", func(t *testing.T) {
		_, err := repo.CreateEntry(ctx, entry("U1", "2024-03-04", 7, 30, domain.KindTraining))
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("has entry", func(t *testing.T) {
		ok, err := repo.HasEntryOnDay(ctx, "U1", "2024-03-04")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = repo.HasEntryOnDay(ctx, "U1", "2024-03-05")
		require.NoError(t, err)
		require.False(t, ok)
	})

	_, err = repo.CreateEntry(ctx, entry("U1", "2024-03-05", 0, 0, domain.KindLeave))
	require.NoError(t, err)
	_, err = repo.CreateEntry(ctx, entry("U1", "2024-03-06", 8, 45, domain.KindTraining))
	require.NoError(t, err)
	_, err = repo.CreateEntry(ctx, entry("U2", "2024-03-04", 5, 90, domain.KindTraining))
	require.NoError(t, err)

	t.Run("recent is newest first", func(t *testing.T) {
		got, err := repo.ListRecentEntries(ctx, "U1", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, "2024-03-06", got[0].CalendarDay)
		require.Equal(t, "2024-03-05", got[1].CalendarDay)
		require.Equal(t, 360, got[0].SRPE)
	})

	t.Run("range is half open", func(t *testing.T) {
		got, err := repo.ListEntriesInRange(ctx, "U1", "2024-03-04", "2024-03-06", false)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, "2024-03-04", got[0].CalendarDay)

		got, err = repo.ListEntriesInRange(ctx, "U1", "2024-03-01", "2024-03-10", true)
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, e := range got {
			require.False(t, e.IsLeave())
		}
	})

	t.Run("on day spans users", func(t *testing.T) {
		got, err := repo.ListEntriesOnDay(ctx, "2024-03-04")
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, "U1", got[0].UserID)
		require.Equal(t, "U2", got[1].UserID)
	})

	t.Run("delete", func(t *testing.T) {
		n, err := repo.DeleteEntriesOnDay(ctx, "U2", "2024-03-04")
		require.NoError(t, err)
		require.EqualValues(t, 1, n)
	})
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	t.Run("rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := st.WithTx(ctx, func(tx store.Tx) error {
			if _, err := tx.Entries().CreateEntry(ctx, entry("U1", "2024-03-04", 6, 60, domain.KindTraining)); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		ok, err := st.Entries().HasEntryOnDay(ctx, "U1", "2024-03-04")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("commit", func(t *testing.T) {
		err := st.WithTx(ctx, func(tx store.Tx) error {
			if _, err := tx.Entries().DeleteEntriesOnDay(ctx, "U1", "2024-03-04"); err != nil {
				return err
			}
			_, err := tx.Entries().CreateEntry(ctx, entry("U1", "2024-03-04", 8, 45, domain.KindCorrection))
			return err
		})
		require.NoError(t, err)

		got, err := st.Entries().ListRecentEntries(ctx, "U1", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, domain.KindCorrection, got[0].Kind)
	})

	t.Run("nested tx unsupported", func(t *testing.T) {
		err := st.WithTx(ctx, func(tx store.Tx) error {
			_, err := tx.Tx(ctx)
			return err
		})
		require.Error(t, err)
	})
}

func TestConcurrentCreateKeepsOneRow(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = st.Entries().CreateEntry(ctx, entry("U1", "2024-03-04", 6, 60, domain.KindTraining))
		}()
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	}
	require.Equal(t, 1, created)
}
