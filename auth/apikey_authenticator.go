package auth

import (
	"context"
	"crypto/subtle"
	"strings"
)

// APIKeyAuthenticator implements authentication using static API keys
type APIKeyAuthenticator struct {
	keys map[string]string // key -> user
}

// NewAPIKeyAuthenticator creates an authenticator for full-access keys and read-only keys
func NewAPIKeyAuthenticator(keys, readOnlyKeys []string) *APIKeyAuthenticator {
	users := make(map[string]string)
	for _, key := range readOnlyKeys {
		if key != "" {
			users[key] = ReaderUser
		}
	}
	for _, key := range keys {
		if key != "" {
			users[key] = RootUser
		}
	}

	return &APIKeyAuthenticator{keys: users}
}

// Authenticate validates a token and returns the associated user ID
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	// Remove "Bearer " prefix if present
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimSpace(token)

	if token == "" {
		return "", ErrAuthenticationFailed
	}

	for key, user := range a.keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1 {
			return user, nil
		}
	}
	return "", ErrAuthenticationFailed
}
