package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	userIDKey       contextKey = "user_id"
	keyPrefixKey    contextKey = "key_prefix"
	apiKeyScopesKey contextKey = "api_key_scopes"
	principalKey    contextKey = "principal"
)

// SetUserID stores the authenticated user. Tests use it to skip token parsing.
func SetUserID(ctx context.Context, id uuid.UUID) context.Context {
	ctx = context.WithValue(ctx, userIDKey, id)
	return setPrincipal(ctx, "user:"+id.String())
}

func GetUserID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(userIDKey).(uuid.UUID)
	return id, ok
}

func setKeyPrefix(ctx context.Context, prefix string) context.Context {
	ctx = context.WithValue(ctx, keyPrefixKey, prefix)
	return setPrincipal(ctx, "key:"+prefix)
}

// GetKeyPrefix returns the prefix of the operator key that authenticated the request.
func GetKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}

func setScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, apiKeyScopesKey, scopes)
}

func getScopes(r *http.Request) []string {
	scopes, _ := r.Context().Value(apiKeyScopesKey).([]string)
	return scopes
}

func setPrincipal(ctx context.Context, p string) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// principal identifies the caller for rate limiting.
func principal(r *http.Request) (string, bool) {
	p, ok := r.Context().Value(principalKey).(string)
	return p, ok
}
