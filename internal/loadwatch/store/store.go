package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this and expose sub-repositories so multi-step operations can be
// run against the same transaction.
type Store interface {
	Users() Users
	Entries() Entries

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. A nil return commits, an
	// error rolls back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Users is the identity registry table: one row per verified user.
type Users interface {
	// GetUser returns ErrNotFound for users that never verified.
	GetUser(ctx context.Context, userID string) (domain.User, error)

	// UpsertRole inserts the user or overwrites their role.
	UpsertRole(ctx context.Context, userID string, role domain.Role) error

	// ListUserIDsByRole returns ids ordered by id.
	ListUserIDsByRole(ctx context.Context, role domain.Role) ([]string, error)
}

// Entries is the workload ledger table. Days are YYYY-MM-DD strings.
type Entries interface {
	// CreateEntry appends a row and returns its id. A second row for the
	// same (user_id, calendar_day) fails with ErrAlreadyExists.
	CreateEntry(ctx context.Context, e domain.WorkloadEntry) (int64, error)

	// DeleteEntriesOnDay removes all of a user's rows for a day.
	DeleteEntriesOnDay(ctx context.Context, userID, day string) (int64, error)

	HasEntryOnDay(ctx context.Context, userID, day string) (bool, error)

	// ListRecentEntries returns at most limit rows, newest first.
	ListRecentEntries(ctx context.Context, userID string, limit int) ([]domain.WorkloadEntry, error)

	// ListEntriesInRange returns rows with startDay <= calendar_day < endDay,
	// oldest first. trainingOnly drops leave rows.
	ListEntriesInRange(ctx context.Context, userID, startDay, endDay string, trainingOnly bool) ([]domain.WorkloadEntry, error)

	// ListEntriesOnDay returns every user's rows for a day.
	ListEntriesOnDay(ctx context.Context, day string) ([]domain.WorkloadEntry, error)
}
