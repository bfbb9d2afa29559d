package auth

import (
	"context"
	"fmt"

	"github.com/ebogdum/flystream/core"
)

// Stater synthesizes stat records for stream uris
type Stater interface {
	URLStat(ctx context.Context, uri string, flags core.StatFlag) (*core.StatRecord, error)
}

// PermissionAuthorizer checks the "other" permission bits of the synthesized stat
// record. Root bypasses every check; readers may read public entries only.
type PermissionAuthorizer struct {
	stater Stater
}

// NewPermissionAuthorizer creates an authorizer backed by stater
func NewPermissionAuthorizer(stater Stater) *PermissionAuthorizer {
	return &PermissionAuthorizer{stater: stater}
}

// Authorize checks if a user has the specified permission for a uri
func (a *PermissionAuthorizer) Authorize(ctx context.Context, userID string, uri string, perm PermissionType) error {
	if userID == RootUser {
		return nil
	}
	if userID != ReaderUser || perm != ReadPerm {
		return ErrPermissionDenied
	}

	rec, err := a.stater.URLStat(ctx, uri, core.StatQuiet|core.StatIgnoreSize)
	if err != nil {
		// Hide existence from callers that could not read the entry anyway
		return ErrPermissionDenied
	}
	return checkOtherBits(rec, perm)
}

// checkOtherBits performs Unix-style permission checking for the "other" class
func checkOtherBits(rec *core.StatRecord, perm PermissionType) error {
	mode := rec.Mode & 0o777

	var permBits uint32
	switch perm {
	case ReadPerm:
		permBits = mode & 4
	case WritePerm, DeletePerm:
		permBits = mode & 2
	default:
		return fmt.Errorf("unknown permission type %d", perm)
	}

	if permBits == 0 {
		return ErrPermissionDenied
	}
	return nil
}
