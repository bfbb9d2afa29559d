// Package auth provides authentication and authorization for the flystream HTTP API.
// API keys authenticate callers; authorization compares the caller's role with the
// permission bits synthesized for the target uri.
package auth

import (
	"context"
	"errors"
)

// PermissionType represents different permission types for authorization
type PermissionType int

const (
	ReadPerm PermissionType = iota
	WritePerm
	DeletePerm
)

// Users returned by the authenticator
const (
	// RootUser holds full access to every scheme
	RootUser = "root"
	// ReaderUser may only read entries whose permission bits grant read to others
	ReaderUser = "reader"
)

// Common authentication/authorization errors
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInvalidToken         = errors.New("invalid token")
)

// Authenticator defines the interface for user authentication
type Authenticator interface {
	// Authenticate validates a token and returns the associated user ID
	Authenticate(ctx context.Context, token string) (userID string, err error)
}

// Authorizer defines the interface for authorization checks
type Authorizer interface {
	// Authorize checks if a user has the specified permission for a stream uri
	Authorize(ctx context.Context, userID string, uri string, perm PermissionType) error
}
