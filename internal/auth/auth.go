// Package auth provides the bearer-token resolver consumed by the HTTP
// transport. Token issuance is owned elsewhere; this package only maps a
// presented token to a caller identity.
package auth

import (
	"context"
	"errors"
	"strings"
)

// ErrInvalidToken is returned when a token cannot be resolved to an identity.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the resolved caller of one request.
type Identity struct {
	UserID string
}

// TokenResolver resolves a bearer token to a caller identity.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (*Identity, error)
}

// StaticResolver resolves tokens from a fixed token→user map, loaded from the
// API_KEYS config value ("token:user_id" pairs, comma separated).
type StaticResolver struct {
	users map[string]string
}

// NewStaticResolver parses the configured key pairs. An empty spec yields a
// resolver that accepts any token as the anonymous user, which keeps local
// development working without keys.
func NewStaticResolver(spec string) *StaticResolver {
	users := make(map[string]string)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, user, ok := strings.Cut(pair, ":")
		if !ok || token == "" || user == "" {
			continue
		}
		users[token] = user
	}
	return &StaticResolver{users: users}
}

// Resolve implements TokenResolver.
func (r *StaticResolver) Resolve(_ context.Context, token string) (*Identity, error) {
	if len(r.users) == 0 {
		return &Identity{UserID: "anonymous"}, nil
	}
	user, ok := r.users[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: user}, nil
}
