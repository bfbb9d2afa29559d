package sqlfs

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/flystream/backends"
	"github.com/ebogdum/flystream/internal/pathutil"
)

// blobReader exposes stored content as a seekable stream
type blobReader struct {
	*bytes.Reader
}

func (blobReader) Close() error { return nil }

// FileExists reports whether a file row exists at path
func (a *SQLAdapter) FileExists(ctx context.Context, path string) (bool, error) {
	n, err := a.lookup(ctx, a.db, path)
	if err != nil {
		if errors.Is(err, backends.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return !n.isDir, nil
}

// Read returns the stored content of a file
func (a *SQLAdapter) Read(ctx context.Context, path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("read root: %w", backends.ErrIsDirectory)
	}

	var content []byte
	var isDir bool
	err := a.db.QueryRowContext(ctx, a.rebind(`SELECT is_dir, content FROM flystream_nodes WHERE path = ?`), path).
		Scan(&isDir, &content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", path, backends.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if isDir {
		return nil, fmt.Errorf("%s: %w", path, backends.ErrIsDirectory)
	}
	return content, nil
}

// ReadStream returns a seekable reader over the stored content
func (a *SQLAdapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	content, err := a.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	return blobReader{bytes.NewReader(content)}, nil
}

// Write stores data at path, creating parent directories as needed
func (a *SQLAdapter) Write(ctx context.Context, path string, data []byte, cfg backends.WriteConfig) error {
	if path == "" {
		return fmt.Errorf("write root: %w", backends.ErrIsDirectory)
	}

	err := a.withTx(ctx, func(tx *sql.Tx) error {
		return a.put(ctx, tx, path, data, cfg.Visibility, cfg.DirectoryVisibility)
	})
	if err != nil {
		return err
	}

	a.logger.Debug("File written to database",
		zap.String("path", path),
		zap.Int("size", len(data)))
	return nil
}

// put upserts a file row; an empty visibility keeps the previous one
func (a *SQLAdapter) put(ctx context.Context, tx *sql.Tx, path string, data []byte, visibility, directoryVisibility backends.Visibility) error {
	existing, err := a.lookup(ctx, tx, path)
	switch {
	case err == nil && existing.isDir:
		return fmt.Errorf("%s: %w", path, backends.ErrIsDirectory)
	case err == nil && visibility == "":
		visibility = existing.visibility
	case err != nil && !errors.Is(err, backends.ErrNotFound):
		return err
	}
	if visibility == "" {
		visibility = backends.VisibilityPublic
	}

	if err := a.ensureParents(ctx, tx, path, directoryVisibility); err != nil {
		return err
	}

	if data == nil {
		data = []byte{}
	}

	_, err = tx.ExecContext(ctx, a.rebind(`
		INSERT INTO flystream_nodes (path, parent, is_dir, content, size, visibility, mime_type, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			content = excluded.content,
			size = excluded.size,
			visibility = excluded.visibility,
			mime_type = excluded.mime_type,
			modified_at = excluded.modified_at`),
		path, pathutil.Dir(path), false, data, int64(len(data)), string(visibility),
		backends.ContentType(path), a.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// WriteStream buffers the reader and stores it as one value
func (a *SQLAdapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg backends.WriteConfig) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read stream for %s: %w", path, err)
	}
	return a.Write(ctx, path, data, cfg)
}

// Delete removes a file row
func (a *SQLAdapter) Delete(ctx context.Context, path string) error {
	n, err := a.lookup(ctx, a.db, path)
	if err != nil {
		return err
	}
	if n.isDir {
		return fmt.Errorf("%s: %w", path, backends.ErrIsDirectory)
	}

	if _, err := a.db.ExecContext(ctx, a.rebind(`DELETE FROM flystream_nodes WHERE path = ?`), path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// Copy duplicates a file row under a new path
func (a *SQLAdapter) Copy(ctx context.Context, src, dst string, cfg backends.WriteConfig) error {
	return a.withTx(ctx, func(tx *sql.Tx) error {
		n, err := a.lookup(ctx, tx, src)
		if err != nil {
			return err
		}
		if n.isDir {
			return fmt.Errorf("%s: %w", src, backends.ErrIsDirectory)
		}

		var content []byte
		if err := tx.QueryRowContext(ctx, a.rebind(`SELECT content FROM flystream_nodes WHERE path = ?`), src).Scan(&content); err != nil {
			return fmt.Errorf("failed to read %s: %w", src, err)
		}

		visibility := cfg.Visibility
		if visibility == "" {
			visibility = n.visibility
		}
		return a.put(ctx, tx, dst, content, visibility, cfg.DirectoryVisibility)
	})
}

// Move renames a file or a directory together with everything below it
func (a *SQLAdapter) Move(ctx context.Context, src, dst string, cfg backends.WriteConfig) error {
	if src == "" || dst == "" {
		return fmt.Errorf("move %s to %s: %w", src, dst, backends.ErrForbidden)
	}
	if src == dst {
		return nil
	}

	return a.withTx(ctx, func(tx *sql.Tx) error {
		n, err := a.lookup(ctx, tx, src)
		if err != nil {
			return err
		}

		target, err := a.lookup(ctx, tx, dst)
		switch {
		case err == nil && target.isDir:
			return fmt.Errorf("%s: %w", dst, backends.ErrExists)
		case err == nil && n.isDir:
			return fmt.Errorf("%s: %w", dst, backends.ErrNotDirectory)
		case err == nil:
			if _, err := tx.ExecContext(ctx, a.rebind(`DELETE FROM flystream_nodes WHERE path = ?`), dst); err != nil {
				return fmt.Errorf("failed to replace %s: %w", dst, err)
			}
		case !errors.Is(err, backends.ErrNotFound):
			return err
		}

		if err := a.ensureParents(ctx, tx, dst, cfg.DirectoryVisibility); err != nil {
			return err
		}

		if n.isDir {
			// Rewrite descendants first; their prefix is src + "/"
			prefix := src + "/"
			_, err := tx.ExecContext(ctx, a.rebind(`
				UPDATE flystream_nodes
				SET path = ? || substr(path, ?),
				    parent = ? || substr(parent, ?)
				WHERE substr(path, 1, ?) = ?`),
				dst, charLen(src)+1, dst, charLen(src)+1, charLen(prefix), prefix)
			if err != nil {
				return fmt.Errorf("failed to move children of %s: %w", src, err)
			}
		}

		_, err = tx.ExecContext(ctx, a.rebind(`
			UPDATE flystream_nodes SET path = ?, parent = ?, modified_at = ? WHERE path = ?`),
			dst, pathutil.Dir(dst), a.now().UnixNano(), src)
		if err != nil {
			return fmt.Errorf("failed to move %s: %w", src, err)
		}
		return nil
	})
}

// Visibility returns the stored visibility
func (a *SQLAdapter) Visibility(ctx context.Context, path string) (backends.Visibility, error) {
	n, err := a.lookup(ctx, a.db, path)
	if err != nil {
		return "", err
	}
	return n.visibility, nil
}

// SetVisibility updates the stored visibility
func (a *SQLAdapter) SetVisibility(ctx context.Context, path string, visibility backends.Visibility) error {
	if path == "" {
		return fmt.Errorf("set visibility on root: %w", backends.ErrForbidden)
	}

	res, err := a.db.ExecContext(ctx, a.rebind(`UPDATE flystream_nodes SET visibility = ? WHERE path = ?`), string(visibility), path)
	if err != nil {
		return fmt.Errorf("failed to set visibility of %s: %w", path, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%s: %w", path, backends.ErrNotFound)
	}
	return nil
}

// FileSize returns the stored size of a file
func (a *SQLAdapter) FileSize(ctx context.Context, path string) (int64, error) {
	n, err := a.lookup(ctx, a.db, path)
	if err != nil {
		return 0, err
	}
	if n.isDir {
		return 0, fmt.Errorf("%s: %w", path, backends.ErrIsDirectory)
	}
	return n.size, nil
}

// LastModified returns the time the row was last written
func (a *SQLAdapter) LastModified(ctx context.Context, path string) (time.Time, error) {
	n, err := a.lookup(ctx, a.db, path)
	if err != nil {
		return time.Time{}, err
	}
	if path == "" {
		return time.Time{}, fmt.Errorf("root has no modification time: %w", backends.ErrNotFound)
	}
	return time.Unix(0, n.modifiedAt), nil
}

// MimeType returns the stored content type
func (a *SQLAdapter) MimeType(ctx context.Context, path string) (string, error) {
	n, err := a.lookup(ctx, a.db, path)
	if err != nil {
		return "", err
	}
	return n.mimeType, nil
}

// Stat returns every attribute of the row in one query
func (a *SQLAdapter) Stat(ctx context.Context, path string) (*backends.Attributes, error) {
	n, err := a.lookup(ctx, a.db, path)
	if err != nil {
		return nil, err
	}
	attrs := n.attributes()
	if path == "" {
		attrs.LastModified = nil
	}
	return attrs, nil
}
