package postgres

import (
	"context"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/domain"
)

const entryColumns = `id, user_id, rpe, duration_minutes, srpe, kind, note, recorded_at, calendar_day`

type entriesRepo struct {
	q querier
}

func (r *entriesRepo) CreateEntry(ctx context.Context, e domain.WorkloadEntry) (int64, error) {
	day, err := dayParam(e.CalendarDay)
	if err != nil {
		return 0, err
	}

	const query = `INSERT INTO workload_entries
		(user_id, rpe, duration_minutes, srpe, kind, note, recorded_at, calendar_day)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	var id int64
	err = r.q.QueryRow(ctx, query,
		e.UserID, e.RPE, e.DurationMinutes, e.SRPE, string(e.Kind), e.Note, e.RecordedAt, day,
	).Scan(&id)
	if err != nil {
		return 0, mapConstraint(err)
	}
	return id, nil
}

func (r *entriesRepo) DeleteEntriesOnDay(ctx context.Context, userID, day string) (int64, error) {
	d, err := dayParam(day)
	if err != nil {
		return 0, err
	}
	tag, err := r.q.Exec(ctx,
		`DELETE FROM workload_entries WHERE user_id = $1 AND calendar_day = $2`, userID, d)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *entriesRepo) HasEntryOnDay(ctx context.Context, userID, day string) (bool, error) {
	d, err := dayParam(day)
	if err != nil {
		return false, err
	}
	var exists bool
	err = r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM workload_entries WHERE user_id = $1 AND calendar_day = $2)`,
		userID, d,
	).Scan(&exists)
	return exists, err
}

func (r *entriesRepo) ListRecentEntries(ctx context.Context, userID string, limit int) ([]domain.WorkloadEntry, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+entryColumns+` FROM workload_entries
		 WHERE user_id = $1 ORDER BY calendar_day DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (r *entriesRepo) ListEntriesInRange(
	ctx context.Context,
	userID, startDay, endDay string,
	trainingOnly bool,
) ([]domain.WorkloadEntry, error) {
	start, err := dayParam(startDay)
	if err != nil {
		return nil, err
	}
	end, err := dayParam(endDay)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + entryColumns + ` FROM workload_entries
		WHERE user_id = $1 AND calendar_day >= $2 AND calendar_day < $3`
	if trainingOnly {
		query += ` AND kind <> 'leave'`
	}
	query += ` ORDER BY calendar_day ASC, id ASC`

	rows, err := r.q.Query(ctx, query, userID, start, end)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (r *entriesRepo) ListEntriesOnDay(ctx context.Context, day string) ([]domain.WorkloadEntry, error) {
	d, err := dayParam(day)
	if err != nil {
		return nil, err
	}
	rows, err := r.q.Query(ctx,
		`SELECT `+entryColumns+` FROM workload_entries WHERE calendar_day = $1 ORDER BY user_id, id`, d)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}
