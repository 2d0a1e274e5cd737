package access

import (
	"context"
	"fmt"
)

// AuthorizationError reports a denied requirement. Only the guard
// produces it; the bare resolver degrades to none instead of failing.
type AuthorizationError struct {
	ResourceType ResourceType
	ResourceID   string
	Required     Level
	Actual       Level
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("access denied: %s %s requires %s, have %s", e.ResourceType, e.ResourceID, e.Required, e.Actual)
}

// Guard is the enforcement entry point. Components that filter rather
// than enforce call the resolver directly; everything else goes through
// Require.
type Guard struct {
	resolver *Resolver
}

func NewGuard(r *Resolver) *Guard {
	return &Guard{resolver: r}
}

// Require resolves the user's level and fails with *AuthorizationError
// when it falls below required. Store failures pass through unchanged.
func (g *Guard) Require(ctx context.Context, userID string, typ ResourceType, id string, required Level) error {
	actual, err := g.resolver.ComputeAccessLevel(ctx, userID, typ, id)
	if err != nil {
		return err
	}
	if !actual.AtLeast(required) {
		return &AuthorizationError{
			ResourceType: typ,
			ResourceID:   id,
			Required:     required,
			Actual:       actual,
		}
	}
	return nil
}
