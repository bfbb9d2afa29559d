// Package sqlfs stores a whole filesystem tree in a single SQL table. SQLite and
// PostgreSQL are supported.
package sqlfs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"go.uber.org/zap"

	"github.com/ebogdum/flystream/backends"
	"github.com/ebogdum/flystream/internal/pathutil"
)

// Dialect names accepted by NewSQLAdapter
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS flystream_nodes (
    path TEXT PRIMARY KEY,
    parent TEXT NOT NULL,
    is_dir INTEGER NOT NULL DEFAULT 0,
    content BLOB,
    size INTEGER NOT NULL DEFAULT 0,
    visibility TEXT NOT NULL,
    mime_type TEXT NOT NULL DEFAULT '',
    modified_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_flystream_nodes_parent ON flystream_nodes(parent);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS flystream_nodes (
    path TEXT PRIMARY KEY,
    parent TEXT NOT NULL,
    is_dir BOOLEAN NOT NULL DEFAULT FALSE,
    content BYTEA,
    size BIGINT NOT NULL DEFAULT 0,
    visibility TEXT NOT NULL,
    mime_type TEXT NOT NULL DEFAULT '',
    modified_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_flystream_nodes_parent ON flystream_nodes(parent);
`

// SQLAdapter implements backends.Operator on top of database/sql
type SQLAdapter struct {
	db                  *sql.DB
	dialect             string
	directoryVisibility backends.Visibility
	pageSize            int
	now                 func() time.Time
	logger              *zap.Logger
}

// NewSQLAdapter opens the database and creates the node table when missing.
// For SQLite the dsn is a file path; for PostgreSQL it is a libpq connection string.
func NewSQLAdapter(dialect, dsn string, directoryVisibility backends.Visibility, logger *zap.Logger) (*SQLAdapter, error) {
	var (
		db  *sql.DB
		err error
	)

	switch dialect {
	case DialectSQLite:
		db, err = sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dsn))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// A single writer keeps transactions from tripping over SQLITE_BUSY
		db.SetMaxOpenConns(1)
	case DialectPostgres:
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	default:
		return nil, fmt.Errorf("unsupported sql dialect: %s", dialect)
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if directoryVisibility == "" {
		directoryVisibility = backends.VisibilityPrivate
	}

	a := &SQLAdapter{
		db:                  db,
		dialect:             dialect,
		directoryVisibility: directoryVisibility,
		pageSize:            256,
		now:                 time.Now,
		logger:              logger,
	}
	if err := a.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return a, nil
}

func (a *SQLAdapter) initSchema() error {
	schema := sqliteSchema
	if a.dialect == DialectPostgres {
		schema = postgresSchema
	}

	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize %s schema: %w", a.dialect, err)
	}
	return nil
}

// Capabilities reports full metadata support
func (a *SQLAdapter) Capabilities() backends.Capabilities {
	return backends.AllCapabilities
}

// Close closes the database connection
func (a *SQLAdapter) Close() error {
	return a.db.Close()
}

// rebind rewrites ? placeholders to $n for PostgreSQL
func (a *SQLAdapter) rebind(query string) string {
	if a.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type node struct {
	path       string
	isDir      bool
	size       int64
	visibility backends.Visibility
	mimeType   string
	modifiedAt int64
}

type rowScanner interface {
	Scan(dest ...any) error
}

const nodeColumns = `path, is_dir, size, visibility, mime_type, modified_at`

func scanNode(row rowScanner) (*node, error) {
	var n node
	var visibility string
	if err := row.Scan(&n.path, &n.isDir, &n.size, &visibility, &n.mimeType, &n.modifiedAt); err != nil {
		return nil, err
	}
	n.visibility = backends.Visibility(visibility)
	return &n, nil
}

func (n *node) attributes() *backends.Attributes {
	modified := time.Unix(0, n.modifiedAt)
	attrs := &backends.Attributes{
		Path:         n.path,
		IsDir:        n.isDir,
		LastModified: &modified,
		Visibility:   backends.VisibilityPtr(n.visibility),
		MimeType:     n.mimeType,
	}
	if !n.isDir {
		attrs.Size = backends.Int64(n.size)
	}
	return attrs
}

// lookup loads a node, mapping a missing row to backends.ErrNotFound
func (a *SQLAdapter) lookup(ctx context.Context, q queryer, path string) (*node, error) {
	if path == "" {
		return &node{
			isDir:      true,
			visibility: backends.VisibilityPublic,
			mimeType:   backends.DirectoryMimeType,
		}, nil
	}

	row := q.QueryRowContext(ctx, a.rebind(`SELECT `+nodeColumns+` FROM flystream_nodes WHERE path = ?`), path)
	n, err := scanNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", path, backends.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get node %s: %w", path, err)
	}
	return n, nil
}

// ensureParents creates every missing ancestor of path as a directory
func (a *SQLAdapter) ensureParents(ctx context.Context, tx *sql.Tx, path string, visibility backends.Visibility) error {
	var ancestors []string
	for dir := pathutil.Dir(path); dir != ""; dir = pathutil.Dir(dir) {
		ancestors = append(ancestors, dir)
	}

	// Create from the top down so parents exist before children
	for i := len(ancestors) - 1; i >= 0; i-- {
		if err := a.ensureDirectory(ctx, tx, ancestors[i], visibility); err != nil {
			return err
		}
	}
	return nil
}

func (a *SQLAdapter) ensureDirectory(ctx context.Context, tx *sql.Tx, path string, visibility backends.Visibility) error {
	existing, err := a.lookup(ctx, tx, path)
	if err == nil {
		if !existing.isDir {
			return fmt.Errorf("%s: %w", path, backends.ErrNotDirectory)
		}
		return nil
	}
	if !errors.Is(err, backends.ErrNotFound) {
		return err
	}

	if visibility == "" {
		visibility = a.directoryVisibility
	}

	_, err = tx.ExecContext(ctx, a.rebind(`
		INSERT INTO flystream_nodes (path, parent, is_dir, size, visibility, mime_type, modified_at)
		VALUES (?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT (path) DO NOTHING`),
		path, pathutil.Dir(path), true, string(visibility), backends.DirectoryMimeType, a.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// withTx runs fn in a transaction, committing on success
func (a *SQLAdapter) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// charLen is the length of s as SQL substr counts it, in characters rather than bytes
func charLen(s string) int {
	return utf8.RuneCountInString(s)
}
