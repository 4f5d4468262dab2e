package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/domain"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements store.Store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects a pool and verifies the connection.
func NewStore(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &txStore{tx: tx, ctx: ctx}, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Users() store.Users     { return &usersRepo{q: s.pool} }
func (s *Store) Entries() store.Entries { return &entriesRepo{q: s.pool} }

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return store.ErrAlreadyExists
	}
	return err
}

// dayParam converts a YYYY-MM-DD key into a DATE parameter.
func dayParam(day string) (time.Time, error) {
	t, err := time.Parse(domain.DayLayout, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid calendar day %q: %w", day, err)
	}
	return t, nil
}

type entryRow struct {
	ID              int64     `db:"id"`
	UserID          string    `db:"user_id"`
	RPE             int32     `db:"rpe"`
	DurationMinutes int32     `db:"duration_minutes"`
	SRPE            int32     `db:"srpe"`
	Kind            string    `db:"kind"`
	Note            string    `db:"note"`
	RecordedAt      time.Time `db:"recorded_at"`
	CalendarDay     time.Time `db:"calendar_day"`
}

func mapEntry(row entryRow) domain.WorkloadEntry {
	return domain.WorkloadEntry{
		ID:              row.ID,
		UserID:          row.UserID,
		RPE:             int(row.RPE),
		DurationMinutes: int(row.DurationMinutes),
		SRPE:            int(row.SRPE),
		Kind:            domain.EntryKind(row.Kind),
		Note:            row.Note,
		RecordedAt:      row.RecordedAt,
		CalendarDay:     row.CalendarDay.Format(domain.DayLayout),
	}
}

func collectEntries(rows pgx.Rows) ([]domain.WorkloadEntry, error) {
	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[entryRow])
	if err != nil {
		return nil, err
	}
	out := make([]domain.WorkloadEntry, len(collected))
	for i, row := range collected {
		out[i] = mapEntry(row)
	}
	return out, nil
}
