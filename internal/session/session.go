// Package session carries the authenticated user through request contexts
// and resolves bearer tokens to user profiles.
package session

import (
	"context"
	"errors"
	"strings"

	"comptrack/pkg/domain"
)

type userKey struct{}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, user domain.UserProfile) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext extracts the authenticated user, if any.
func UserFromContext(ctx context.Context) (domain.UserProfile, bool) {
	user, ok := ctx.Value(userKey{}).(domain.UserProfile)
	return user, ok
}

// ErrUnauthorized is returned for missing or unknown credentials.
var ErrUnauthorized = errors.New("no autorizado")

// Authenticator resolves a bearer token to a user profile.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.UserProfile, error)
}

// StaticAuthenticator resolves tokens from a fixed table. Suitable for
// deployments fronted by a gateway that issues long-lived service tokens.
type StaticAuthenticator struct {
	tokens map[string]domain.UserProfile
}

// NewStaticAuthenticator builds an authenticator over the given table.
func NewStaticAuthenticator(tokens map[string]domain.UserProfile) *StaticAuthenticator {
	if tokens == nil {
		tokens = make(map[string]domain.UserProfile)
	}
	return &StaticAuthenticator{tokens: tokens}
}

// ParseTokenTable parses the COMPTRACK_API_TOKENS format:
// "token:email:role" entries separated by commas.
func ParseTokenTable(raw string) (map[string]domain.UserProfile, error) {
	tokens := make(map[string]domain.UserProfile)
	if strings.TrimSpace(raw) == "" {
		return tokens, nil
	}
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			return nil, errors.New("malformed token entry, want token:email:role")
		}
		// The email doubles as the stable user id for audit fields.
		tokens[parts[0]] = domain.UserProfile{
			Base:  domain.Base{ID: parts[1]},
			Email: parts[1],
			Role:  domain.UserRole(parts[2]),
		}
	}
	return tokens, nil
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, token string) (domain.UserProfile, error) {
	user, ok := a.tokens[token]
	if !ok {
		return domain.UserProfile{}, ErrUnauthorized
	}
	return user, nil
}

var _ Authenticator = (*StaticAuthenticator)(nil)
