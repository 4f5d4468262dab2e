package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/loadwatch/pkg/slogx"
	"golang.org/x/sync/singleflight"
)

// Message is one inbound text from a chat platform. Token identifies the
// conversation turn to reply to; it is opaque to the router.
type Message struct {
	UserID string
	Token  string
	Text   string
}

// QuickAction is a suggested reply the platform may render as a button.
type QuickAction struct {
	Label string
	Text  string
}

type Reply struct {
	Text         string
	QuickActions []QuickAction
}

// Messenger delivers outbound text. Implementations log their own failures;
// callers never retry.
type Messenger interface {
	ReplyTo(ctx context.Context, token string, reply Reply) error
	Push(ctx context.Context, userID string, text string) error
}

// DisplayName is the result of a profile lookup. When Resolved is false the
// name could not be fetched and Label falls back to the short id.
type DisplayName struct {
	UserID   string
	Name     string
	Resolved bool
}

func (d DisplayName) Label() string {
	if d.Resolved && d.Name != "" {
		return d.Name
	}
	return ShortID(d.UserID)
}

type NameResolver interface {
	DisplayName(ctx context.Context, userID string) DisplayName
}

// ShortID is the last four characters of a platform id.
func ShortID(userID string) string {
	r := []rune(userID)
	if len(r) <= 4 {
		return userID
	}
	return string(r[len(r)-4:])
}

// Labels resolves a label for each id. A nil resolver yields short ids.
func Labels(ctx context.Context, names NameResolver, ids []string) map[string]string {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if names == nil {
			out[id] = ShortID(id)
			continue
		}
		out[id] = names.DisplayName(ctx, id).Label()
	}
	return out
}

// LookupFunc fetches a display name from the platform.
type LookupFunc func(ctx context.Context, userID string) (string, error)

// CachedResolver memoizes successful lookups and collapses concurrent
// lookups for the same id. Failures are not cached.
type CachedResolver struct {
	lookup LookupFunc
	group  singleflight.Group
	cache  sync.Map // userID -> string
}

func NewCachedResolver(lookup LookupFunc) *CachedResolver {
	return &CachedResolver{lookup: lookup}
}

func (c *CachedResolver) DisplayName(ctx context.Context, userID string) DisplayName {
	if name, ok := c.cache.Load(userID); ok {
		return DisplayName{UserID: userID, Name: name.(string), Resolved: true}
	}

	v, err, _ := c.group.Do(userID, func() (any, error) {
		return c.lookup(ctx, userID)
	})
	if err != nil {
		slogx.FromContext(ctx).Debug("display name lookup failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return DisplayName{UserID: userID}
	}

	name := v.(string)
	c.cache.Store(userID, name)
	return DisplayName{UserID: userID, Name: name, Resolved: true}
}
