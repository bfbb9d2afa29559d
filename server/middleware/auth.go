package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ebogdum/flystream/auth"
	"github.com/ebogdum/flystream/core/log"
)

type contextKey string

const userIDKey contextKey = "userID"

// V1AuthMiddleware resolves the Authorization header to a user and stores it in the
// request context. Requests without a valid key stop here with 401.
func V1AuthMiddleware(authenticator auth.Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, logger, r, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
				return
			}

			userID, err := authenticator.Authenticate(r.Context(), header)
			if err != nil {
				logger.Debug("Authentication failed",
					zap.String("request_id", GetRequestID(r.Context())),
					zap.Error(err))
				writeError(w, logger, r, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
				return
			}

			logger.Debug("User authenticated", zap.String("user_id", log.SanitizeUserID(userID)))
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
		})
	}
}

// V1RequestIDMiddleware assigns a request id through chi and echoes it back in the
// X-Request-ID response header.
func V1RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(chimw.RequestIDHeader, GetRequestID(r.Context()))
			next.ServeHTTP(w, r)
		})
		return chimw.RequestID(echo)
	}
}

// GetUserID extracts the user ID from request context
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}

// GetRequestID extracts the request ID from request context
func GetRequestID(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

func writeError(w http.ResponseWriter, logger *zap.Logger, r *http.Request, err error, statusCode int) {
	code := "INTERNAL_ERROR"
	switch {
	case errors.Is(err, auth.ErrAuthenticationFailed):
		code = "AUTHENTICATION_FAILED"
	case errors.Is(err, auth.ErrPermissionDenied):
		code = "PERMISSION_DENIED"
	case statusCode == http.StatusTooManyRequests:
		code = "RATE_LIMITED"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if encErr := json.NewEncoder(w).Encode(map[string]string{"code": code, "message": err.Error()}); encErr != nil {
		logger.Error("Failed to write error response", zap.Error(encErr))
	}

	logger.Info("Request rejected",
		zap.String("error_code", code),
		zap.Int("status_code", statusCode),
		zap.String("request_id", GetRequestID(r.Context())))
}
