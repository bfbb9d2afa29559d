package sqlfs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ebogdum/flystream/backends"
)

// DirectoryExists reports whether a directory row exists at path
func (a *SQLAdapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	n, err := a.lookup(ctx, a.db, path)
	if err != nil {
		if errors.Is(err, backends.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return n.isDir, nil
}

// CreateDirectory creates path and its missing parents. Existing directories are left as they are.
func (a *SQLAdapter) CreateDirectory(ctx context.Context, path string, cfg backends.WriteConfig) error {
	if path == "" {
		return nil
	}

	visibility := cfg.DirectoryVisibility
	if visibility == "" {
		visibility = cfg.Visibility
	}

	err := a.withTx(ctx, func(tx *sql.Tx) error {
		if err := a.ensureParents(ctx, tx, path, visibility); err != nil {
			return err
		}
		return a.ensureDirectory(ctx, tx, path, visibility)
	})
	if err != nil {
		return err
	}

	a.logger.Debug("Directory created in database", zap.String("path", path))
	return nil
}

// DeleteDirectory removes the directory row and everything below it
func (a *SQLAdapter) DeleteDirectory(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("refusing to delete root: %w", backends.ErrForbidden)
	}

	return a.withTx(ctx, func(tx *sql.Tx) error {
		n, err := a.lookup(ctx, tx, path)
		if err != nil {
			return err
		}
		if !n.isDir {
			return fmt.Errorf("%s: %w", path, backends.ErrNotDirectory)
		}

		prefix := path + "/"
		_, err = tx.ExecContext(ctx, a.rebind(`
			DELETE FROM flystream_nodes WHERE path = ? OR substr(path, 1, ?) = ?`),
			path, charLen(prefix), prefix)
		if err != nil {
			return fmt.Errorf("failed to delete directory %s: %w", path, err)
		}
		return nil
	})
}

// ListContents returns a lister that pages through the rows in path order
func (a *SQLAdapter) ListContents(ctx context.Context, path string, deep bool) (backends.Lister, error) {
	n, err := a.lookup(ctx, a.db, path)
	if err != nil {
		return nil, err
	}
	if !n.isDir {
		return nil, fmt.Errorf("%s: %w", path, backends.ErrNotDirectory)
	}

	return &rowLister{adapter: a, dir: path, deep: deep}, nil
}

// rowLister fetches pages keyed on the last path seen
type rowLister struct {
	adapter *SQLAdapter
	dir     string
	deep    bool
	after   string
	pending []*backends.Attributes
	done    bool
}

func (l *rowLister) Next(ctx context.Context) (*backends.Attributes, error) {
	for len(l.pending) == 0 {
		if l.done {
			return nil, io.EOF
		}
		if err := l.fetch(ctx); err != nil {
			return nil, err
		}
	}

	next := l.pending[0]
	l.pending = l.pending[1:]
	return next, nil
}

func (l *rowLister) fetch(ctx context.Context) error {
	a := l.adapter

	var (
		query string
		args  []any
	)
	switch {
	case !l.deep:
		query = `SELECT ` + nodeColumns + ` FROM flystream_nodes WHERE parent = ? AND path > ? ORDER BY path LIMIT ?`
		args = []any{l.dir, l.after, a.pageSize}
	case l.dir == "":
		query = `SELECT ` + nodeColumns + ` FROM flystream_nodes WHERE path > ? ORDER BY path LIMIT ?`
		args = []any{l.after, a.pageSize}
	default:
		prefix := l.dir + "/"
		query = `SELECT ` + nodeColumns + ` FROM flystream_nodes WHERE substr(path, 1, ?) = ? AND path > ? ORDER BY path LIMIT ?`
		args = []any{charLen(prefix), prefix, l.after, a.pageSize}
	}

	rows, err := a.db.QueryContext(ctx, a.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", l.dir, err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return fmt.Errorf("failed to scan node: %w", err)
		}
		l.pending = append(l.pending, n.attributes())
		l.after = n.path
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to list %s: %w", l.dir, err)
	}

	if count < a.pageSize {
		l.done = true
	}
	return nil
}

func (l *rowLister) Close() error {
	l.done = true
	l.pending = nil
	return nil
}
