package log

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/zeebo/xxh3"
)

// SanitizationMode controls how much of a uri or user id reaches the logs
type SanitizationMode int32

const (
	// ProductionMode replaces values with a short hash
	ProductionMode SanitizationMode = iota
	// DevelopmentMode keeps short values and elides the middle of long ones
	DevelopmentMode
	// DebugMode logs values unchanged
	DebugMode
)

// elideAbove is the length past which development mode shortens a value
const elideAbove = 20

var currentMode atomic.Int32

// ParseMode maps a mode name to a SanitizationMode, defaulting to production
func ParseMode(mode string) SanitizationMode {
	switch strings.ToLower(mode) {
	case "development":
		return DevelopmentMode
	case "debug":
		return DebugMode
	}
	return ProductionMode
}

// SetMode changes the sanitization mode for the whole process
func SetMode(mode SanitizationMode) {
	currentMode.Store(int32(mode))
}

// Mode returns the active sanitization mode
func Mode() SanitizationMode {
	return SanitizationMode(currentMode.Load())
}

// SanitizePath sanitizes a path or stream uri. The scheme of a uri survives every mode
// so logs can still be grouped by scheme.
func SanitizePath(path string) string {
	if path == "" {
		return ""
	}

	scheme, rest := "", path
	if i := strings.Index(path, "://"); i > 0 {
		scheme, rest = path[:i+3], path[i+3:]
	}
	return scheme + redact(rest, "hash")
}

// SanitizeUserID sanitizes an API key identity
func SanitizeUserID(userID string) string {
	if userID == "" {
		return ""
	}
	return redact(userID, "user_hash")
}

func redact(value, label string) string {
	switch Mode() {
	case DebugMode:
		return value
	case DevelopmentMode:
		if len(value) <= elideAbove {
			return value
		}
		return value[:10] + "..." + value[len(value)-7:]
	}
	return fmt.Sprintf("%s:%016x", label, xxh3.HashString(value))
}
