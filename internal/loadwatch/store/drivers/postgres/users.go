package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/domain"
	"github.com/jackc/pgx/v5"
)

type usersRepo struct {
	q querier
}

func (r *usersRepo) GetUser(ctx context.Context, userID string) (domain.User, error) {
	const query = `SELECT user_id, role, updated_at FROM registry WHERE user_id = $1`

	var (
		u       domain.User
		role    string
		updated time.Time
	)
	if err := r.q.QueryRow(ctx, query, userID).Scan(&u.ID, &role, &updated); err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.Role = domain.Role(role)
	u.UpdatedAt = updated
	return u, nil
}

func (r *usersRepo) UpsertRole(ctx context.Context, userID string, role domain.Role) error {
	const query = `INSERT INTO registry (user_id, role, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = EXCLUDED.updated_at`
	_, err := r.q.Exec(ctx, query, userID, string(role))
	return err
}

func (r *usersRepo) ListUserIDsByRole(ctx context.Context, role domain.Role) ([]string, error) {
	const query = `SELECT user_id FROM registry WHERE role = $1 ORDER BY user_id`
	rows, err := r.q.Query(ctx, query, string(role))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
