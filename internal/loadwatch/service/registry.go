package service

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"strings"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/domain"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/store"
	"github.com/aussiebroadwan/loadwatch/pkg/slogx"
)

// RegistryService is the identity registry: it binds user ids to the role
// granted by a verification code.
type RegistryService struct {
	Store store.Store

	codes map[string]domain.Role
}

// NewRegistry copies codes so the mapping cannot change after start.
func NewRegistry(st store.Store, codes map[string]domain.Role) *RegistryService {
	return &RegistryService{Store: st, codes: maps.Clone(codes)}
}

// LookupRole returns RoleUnverified for users that never verified.
func (s *RegistryService) LookupRole(ctx context.Context, userID string) (domain.Role, error) {
	u, err := s.Store.Users().GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.RoleUnverified, nil
		}
		slogx.FromContext(ctx).Error("failed to look up role", slog.Any("error", err))
		return domain.RoleUnverified, unavailable(err)
	}
	return u.Role, nil
}

// Verify binds the role for code to userID. An existing role is overwritten.
func (s *RegistryService) Verify(ctx context.Context, userID, code string) (domain.Role, error) {
	log := slogx.FromContext(ctx)

	role, ok := s.codes[strings.TrimSpace(code)]
	if !ok {
		log.Warn("verification with unknown code")
		return domain.RoleUnverified, ErrInvalidCode
	}

	if err := s.Store.Users().UpsertRole(ctx, userID, role); err != nil {
		log.Error("failed to persist role", slog.String("role", role.String()), slog.Any("error", err))
		return domain.RoleUnverified, unavailable(err)
	}

	log.Info("user verified", slog.String("role", role.String()))
	return role, nil
}

// ListByRole returns the ids holding role, ordered by id.
func (s *RegistryService) ListByRole(ctx context.Context, role domain.Role) ([]string, error) {
	ids, err := s.Store.Users().ListUserIDsByRole(ctx, role)
	if err != nil {
		slogx.FromContext(ctx).Error("failed to list users by role",
			slog.String("role", role.String()),
			slog.Any("error", err),
		)
		return nil, unavailable(err)
	}
	return ids, nil
}
