package domain

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleUnverified Role = ""
	RolePlayer     Role = "player"
	RoleCoach      Role = "coach"
)

// ParseRole accepts the canonical names plus common aliases.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "player", "athlete", "球員":
		return RolePlayer, nil
	case "coach", "教練":
		return RoleCoach, nil
	default:
		return RoleUnverified, fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) Verified() bool { return r == RolePlayer || r == RoleCoach }

func (r Role) String() string {
	if r == RoleUnverified {
		return "unverified"
	}
	return string(r)
}

// User is a registry row. Other components only ever hold the ID.
type User struct {
	ID        string
	Role      Role
	UpdatedAt time.Time
}
