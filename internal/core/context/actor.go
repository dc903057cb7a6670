package context

import (
	"context"
)

// Actor identifies who performs an operation. It feeds audit columns only;
// the ledger core makes no authorization decisions.
type Actor struct {
	UserID string
	Name   string
	Roles  []string
}

// HasRole reports whether the actor carries role.
func (a *Actor) HasRole(role string) bool {
	if a == nil {
		return false
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type actorKey struct{}

// WithActor adds Actor to context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// GetActor returns Actor from context.
func GetActor(ctx context.Context) *Actor {
	if v, ok := ctx.Value(actorKey{}).(*Actor); ok {
		return v
	}
	return nil
}

// GetUserID returns the acting user ID or "system" when none is set.
func GetUserID(ctx context.Context) string {
	if a := GetActor(ctx); a != nil && a.UserID != "" {
		return a.UserID
	}
	return "system"
}
