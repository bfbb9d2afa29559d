package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ebogdum/flystream/auth"
	"github.com/ebogdum/flystream/core"
	"github.com/ebogdum/flystream/internal/pathutil"
	"github.com/ebogdum/flystream/server/middleware"
)

// Bridge is the part of core.Wrapper the handlers use
type Bridge interface {
	Open(ctx context.Context, uri, mode string, flags core.OpenFlag) (*core.Stream, error)
	URLStat(ctx context.Context, uri string, flags core.StatFlag) (*core.StatRecord, error)
	Unlink(ctx context.Context, uri string) error
	Rename(ctx context.Context, from, to string) error
	Mkdir(ctx context.Context, uri string, perm os.FileMode, flags core.DirFlag) error
	Rmdir(ctx context.Context, uri string, flags core.DirFlag) error
	OpenDir(ctx context.Context, uri string) (*core.Dir, error)
	Chmod(ctx context.Context, uri string, perm os.FileMode) error
	Touch(ctx context.Context, uri string) error
}

// streamURI builds "scheme://path" from the {scheme} and wildcard route parameters.
// Traversal above the scheme root is rejected.
func streamURI(r *http.Request) (string, error) {
	scheme := chi.URLParam(r, "scheme")
	if scheme == "" {
		return "", errInvalidPath
	}
	raw := chi.URLParam(r, "*")
	if strings.Contains(raw, "\\") {
		return "", errInvalidPath
	}
	if raw != "" {
		if err := pathutil.ValidatePath(raw); err != nil {
			return "", fmt.Errorf("%w: %v", errInvalidPath, err)
		}
	}

	path, err := pathutil.Normalize(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidPath, err)
	}
	return scheme + "://" + path, nil
}

// opContext bounds a bridge call by the configured file operation timeout
func opContext(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), timeout)
}

// authorize checks the caller's permission and writes the error response on failure
func authorize(w http.ResponseWriter, r *http.Request, authorizer auth.Authorizer, uri string, perm auth.PermissionType, logger *zap.Logger) (string, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		SendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
		return "", false
	}

	if err := authorizer.Authorize(r.Context(), userID, uri, perm); err != nil {
		SendErrorResponse(w, logger, err, http.StatusForbidden)
		return "", false
	}
	return userID, true
}

// parsePerm parses an octal permission query or body value
func parsePerm(value string, fallback os.FileMode) (os.FileMode, error) {
	if value == "" {
		return fallback, nil
	}
	perm, err := strconv.ParseUint(value, 8, 32)
	if err != nil || perm > 0o777 {
		return 0, fmt.Errorf("%w: permission %q", errInvalidRequest, value)
	}
	return os.FileMode(perm), nil
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}
