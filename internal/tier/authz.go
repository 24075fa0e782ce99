package tier

import (
	"context"
	"errors"
	"fmt"

	"github.com/flor3z/tierbot/internal/platform"
)

// Authorizer decides whether a member may perform privileged actions
type Authorizer interface {
	Allowed(ctx context.Context, guildID, userID string) (bool, error)
}

// AuthorizerFunc adapts a function to Authorizer
type AuthorizerFunc func(ctx context.Context, guildID, userID string) (bool, error)

func (f AuthorizerFunc) Allowed(ctx context.Context, guildID, userID string) (bool, error) {
	return f(ctx, guildID, userID)
}

// AllowAll grants everyone
func AllowAll() Authorizer {
	return AuthorizerFunc(func(context.Context, string, string) (bool, error) {
		return true, nil
	})
}

// RequireRole allows members holding any of the named roles
func RequireRole(p platform.Platform, names ...string) Authorizer {
	return AuthorizerFunc(func(ctx context.Context, guildID, userID string) (bool, error) {
		m, err := p.Member(ctx, guildID, userID)
		if err != nil {
			if errors.Is(err, platform.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		for _, n := range names {
			if m.HasRole(n) {
				return true, nil
			}
		}
		return false, nil
	})
}

// RequirePosition allows members whose highest role sits at or above the
// named reference role in the guild's role hierarchy.
func RequirePosition(p platform.Platform, reference string) Authorizer {
	return AuthorizerFunc(func(ctx context.Context, guildID, userID string) (bool, error) {
		roles, err := p.Roles(ctx, guildID)
		if err != nil {
			return false, err
		}
		ref, ok := platform.FindRole(roles, reference)
		if !ok {
			return false, fmt.Errorf("reference role %q: %w", reference, ErrRoleNotFound)
		}

		m, err := p.Member(ctx, guildID, userID)
		if err != nil {
			if errors.Is(err, platform.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		return m.TopPosition() >= ref.Position, nil
	})
}
