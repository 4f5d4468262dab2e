package sqlite

import (
	"context"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/domain"
)

const entryColumns = `id, user_id, rpe, duration_minutes, srpe, kind, note, recorded_at, calendar_day`

type entriesRepo struct {
	q querier
}

func (r *entriesRepo) CreateEntry(ctx context.Context, e domain.WorkloadEntry) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO workload_entries (user_id, rpe, duration_minutes, srpe, kind, note, recorded_at, calendar_day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.RPE, e.DurationMinutes, e.SRPE, string(e.Kind), e.Note,
		e.RecordedAt.Format(timeLayout), e.CalendarDay,
	)
	if err != nil {
		return 0, mapConstraint(err)
	}
	return res.LastInsertId()
}

func (r *entriesRepo) DeleteEntriesOnDay(ctx context.Context, userID, day string) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM workload_entries WHERE user_id = ? AND calendar_day = ?`, userID, day)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *entriesRepo) HasEntryOnDay(ctx context.Context, userID, day string) (bool, error) {
	var count int
	err := r.q.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM workload_entries WHERE user_id = ? AND calendar_day = ?`, userID, day)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *entriesRepo) ListRecentEntries(ctx context.Context, userID string, limit int) ([]domain.WorkloadEntry, error) {
	var rows []entryRow
	err := r.q.SelectContext(ctx, &rows,
		`SELECT `+entryColumns+` FROM workload_entries
		 WHERE user_id = ? ORDER BY calendar_day DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	return mapEntries(rows), nil
}

func (r *entriesRepo) ListEntriesInRange(
	ctx context.Context,
	userID, startDay, endDay string,
	trainingOnly bool,
) ([]domain.WorkloadEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM workload_entries
		WHERE user_id = ? AND calendar_day >= ? AND calendar_day < ?`
	if trainingOnly {
		query += ` AND kind <> 'leave'`
	}
	query += ` ORDER BY calendar_day ASC, id ASC`

	var rows []entryRow
	if err := r.q.SelectContext(ctx, &rows, query, userID, startDay, endDay); err != nil {
		return nil, err
	}
	return mapEntries(rows), nil
}

func (r *entriesRepo) ListEntriesOnDay(ctx context.Context, day string) ([]domain.WorkloadEntry, error) {
	var rows []entryRow
	err := r.q.SelectContext(ctx, &rows,
		`SELECT `+entryColumns+` FROM workload_entries WHERE calendar_day = ? ORDER BY user_id, id`, day)
	if err != nil {
		return nil, err
	}
	return mapEntries(rows), nil
}
