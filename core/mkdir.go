package core

import (
	"context"
	"os"

	"github.com/ebogdum/flystream/backends"
	"github.com/ebogdum/flystream/internal/pathutil"
)

// Mkdir creates the directory at uri with the visibility matching perm. Without
// DirRecursive only the immediate parent is checked; deeper ancestors are left to
// the operator.
func (w *Wrapper) Mkdir(ctx context.Context, uri string, perm os.FileMode, flags DirFlag) error {
	const op = "mkdir"

	m, path, err := w.resolve(op, uri)
	if err != nil {
		return err
	}

	existing, err := probe(ctx, m, path)
	if err != nil {
		return w.fail(op, m.Scheme, newError(ErrUnableToCreateDirectory, op, uri, err), true)
	}
	if existing != entryNone {
		return w.fail(op, m.Scheme, newError(ErrDirectoryExists, op, uri, nil), true)
	}

	if flags&DirRecursive == 0 {
		if parent := pathutil.Dir(path); parent != "" {
			parentType, err := probe(ctx, m, parent)
			if err != nil || parentType == entryNone {
				return w.fail(op, m.Scheme, newError(ErrFileNotFound, op, uri, err), true)
			}
		}
	}

	visibility := m.Options.Permissions.InverseForDirectory(perm)
	cfg := backends.WriteConfig{Visibility: visibility, DirectoryVisibility: visibility}
	if err := m.Operator.CreateDirectory(ctx, path, cfg); err != nil {
		return w.fail(op, m.Scheme, newError(ErrUnableToCreateDirectory, op, uri, err), true)
	}

	w.succeed(op, m.Scheme, uri)
	return nil
}
