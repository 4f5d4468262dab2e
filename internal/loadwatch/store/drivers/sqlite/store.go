package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/domain"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/store"
	"github.com/jmoiron/sqlx"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// timeLayout is how timestamps are kept in TEXT columns. It keeps the
// offset so the recorded wall clock survives a round trip.
const timeLayout = time.RFC3339Nano

// querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type querier interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Store struct {
	db  *sqlx.DB
	dsn string
}

// NewStore opens the database. SQLite allows a single writer, so the pool is
// capped at one connection; this also keeps ":memory:" databases coherent.
func NewStore(dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dsn: dsn}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx starts a read/write transaction and returns a Tx-scoped Store.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txStore{tx: tx}, nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
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

func (s *Store) Users() store.Users     { return &usersRepo{q: s.db} }
func (s *Store) Entries() store.Entries { return &entriesRepo{q: s.db} }

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func mapConstraint(err error) error {
	if err == nil {
		return nil
	}
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return store.ErrAlreadyExists
		}
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

type entryRow struct {
	ID              int64  `db:"id"`
	UserID          string `db:"user_id"`
	RPE             int    `db:"rpe"`
	DurationMinutes int    `db:"duration_minutes"`
	SRPE            int    `db:"srpe"`
	Kind            string `db:"kind"`
	Note            string `db:"note"`
	RecordedAt      string `db:"recorded_at"`
	CalendarDay     string `db:"calendar_day"`
}

func mapEntry(row entryRow) domain.WorkloadEntry {
	recorded, _ := time.Parse(timeLayout, row.RecordedAt)
	return domain.WorkloadEntry{
		ID:              row.ID,
		UserID:          row.UserID,
		RPE:             row.RPE,
		DurationMinutes: row.DurationMinutes,
		SRPE:            row.SRPE,
		Kind:            domain.EntryKind(row.Kind),
		Note:            row.Note,
		RecordedAt:      recorded,
		CalendarDay:     row.CalendarDay,
	}
}

func mapEntries(rows []entryRow) []domain.WorkloadEntry {
	out := make([]domain.WorkloadEntry, len(rows))
	for i, row := range rows {
		out[i] = mapEntry(row)
	}
	return out
}

type userRow struct {
	UserID    string `db:"user_id"`
	Role      string `db:"role"`
	UpdatedAt string `db:"updated_at"`
}

func mapUser(row userRow) domain.User {
	updated, _ := time.Parse(timeLayout, row.UpdatedAt)
	return domain.User{
		ID:        row.UserID,
		Role:      domain.Role(row.Role),
		UpdatedAt: updated,
	}
}
