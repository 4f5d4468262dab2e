package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/domain"
)

type usersRepo struct {
	q querier
}

func (r *usersRepo) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var row userRow
	err := r.q.GetContext(ctx, &row,
		`SELECT user_id, role, updated_at FROM registry WHERE user_id = ?`, userID)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return mapUser(row), nil
}

func (r *usersRepo) UpsertRole(ctx context.Context, userID string, role domain.Role) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO registry (user_id, role, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET role = excluded.role, updated_at = excluded.updated_at`,
		userID, string(role), time.Now().UTC().Format(timeLayout))
	return err
}

func (r *usersRepo) ListUserIDsByRole(ctx context.Context, role domain.Role) ([]string, error) {
	ids := []string{}
	err := r.q.SelectContext(ctx, &ids,
		`SELECT user_id FROM registry WHERE role = ? ORDER BY user_id`, string(role))
	if err != nil {
		return nil, err
	}
	return ids, nil
}
