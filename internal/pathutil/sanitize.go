// Package pathutil provides path normalization and root-confinement helpers shared by
// the stream wrapper and the operators.
package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ebogdum/flystream/backends"
)

// Normalize turns a user supplied path into the operator form: slash separated,
// no leading or trailing slash, no "." segments, and "" for the root.
// Backslashes are treated as separators. Paths climbing above the root are rejected.
func Normalize(path string) (string, error) {
	if strings.ContainsRune(path, 0) {
		return "", backends.ErrForbidden
	}

	path = strings.ReplaceAll(path, "\\", "/")

	var parts []string
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(parts) == 0 {
				return "", fmt.Errorf("path traversal detected in %q: %w", path, backends.ErrForbidden)
			}
			parts = parts[:len(parts)-1]
		default:
			parts = append(parts, part)
		}
	}

	return strings.Join(parts, "/"), nil
}

// SafeJoin safely joins a root path with a relative path, ensuring
// the result stays within the root directory boundary, symlinks included.
func SafeJoin(root, rel string) (string, error) {
	cleanRoot := filepath.Clean(root)

	normalized, err := Normalize(rel)
	if err != nil {
		return "", backends.ErrForbidden
	}
	if filepath.IsAbs(rel) && rel != "/" {
		return "", backends.ErrForbidden
	}

	joined := filepath.Join(cleanRoot, filepath.FromSlash(normalized))

	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		// The target may not exist yet; confine its closest existing parent instead
		if dir := filepath.Dir(joined); dir != cleanRoot {
			if resolvedDir, dirErr := filepath.EvalSymlinks(dir); dirErr == nil && !within(cleanRoot, resolvedDir) {
				return "", backends.ErrForbidden
			}
		}
		if !within(cleanRoot, joined) {
			return "", backends.ErrForbidden
		}
		return joined, nil
	}

	if !within(cleanRoot, resolved) {
		// The root itself may be a symlink
		resolvedRoot, rootErr := filepath.EvalSymlinks(cleanRoot)
		if rootErr != nil || !within(resolvedRoot, resolved) {
			return "", backends.ErrForbidden
		}
	}

	return joined, nil
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ValidatePath performs comprehensive path validation for security.
// It checks for common attack patterns and ensures the path is safe to use.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	for _, char := range path {
		if char < 32 && char != '\t' {
			return backends.ErrForbidden
		}
	}

	_, err := Normalize(path)
	return err
}

// Dir returns the parent of a normalized path, "" for top-level entries
func Dir(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return ""
	}
	return path[:i]
}

// Base returns the last segment of a normalized path
func Base(path string) string {
	return path[strings.LastIndexByte(path, '/')+1:]
}

// Join joins a normalized directory and a child name
func Join(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
