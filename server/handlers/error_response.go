package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ebogdum/flystream/auth"
	"github.com/ebogdum/flystream/core"
	"github.com/ebogdum/flystream/metrics"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var (
	errInvalidPath    = errors.New("invalid path")
	errInvalidRequest = errors.New("invalid request")
	errLocked         = errors.New("file is locked by another writer")
)

// statusFor maps an error to an HTTP status and a stable error code
func statusFor(err error, defaultStatusCode int) (int, string) {
	switch {
	case errors.Is(err, auth.ErrAuthenticationFailed):
		return http.StatusUnauthorized, "AUTHENTICATION_FAILED"
	case errors.Is(err, auth.ErrPermissionDenied):
		return http.StatusForbidden, "PERMISSION_DENIED"
	case errors.Is(err, core.ErrUnknownScheme):
		return http.StatusNotFound, "UNKNOWN_SCHEME"
	case errors.Is(err, core.ErrInvalidURI), errors.Is(err, errInvalidPath):
		return http.StatusBadRequest, "INVALID_PATH"
	case errors.Is(err, errInvalidRequest):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, errLocked):
		return http.StatusLocked, "LOCKED"
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"
	}

	kind := core.KindOf(err)
	code := strings.ToUpper(kind.String())
	switch kind {
	case core.ErrFileNotFound, core.ErrDirectoryNotFound, core.ErrStatFailed:
		return http.StatusNotFound, code
	case core.ErrDirectoryExists, core.ErrIsADirectory, core.ErrNotADirectory, core.ErrDirectoryNotEmpty:
		return http.StatusConflict, code
	case core.ErrRootViolation:
		return http.StatusForbidden, code
	case core.ErrInvalidStreamMode:
		return http.StatusBadRequest, code
	case 0:
		return defaultStatusCode, "INTERNAL_ERROR"
	}
	return http.StatusBadGateway, code
}

// SendErrorResponse sends a standardized JSON error response
func SendErrorResponse(w http.ResponseWriter, logger *zap.Logger, err error, defaultStatusCode int) {
	statusCode, errorCode := statusFor(err, defaultStatusCode)
	metrics.ErrorsTotal.WithLabelValues("http", errorCode).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Code:    errorCode,
		Message: core.Message(err),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("Failed to encode error response", zap.Error(err))
		return
	}

	logger.Info("Error response sent",
		zap.String("error_code", errorCode),
		zap.Int("status_code", statusCode),
		zap.Error(err))
}

// SendJSONResponse sends a JSON response with any data structure
func SendJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		fmt.Fprintf(w, `{"error":"Failed to encode response"}`)
	}
}
