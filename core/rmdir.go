package core

import (
	"context"
	"io"
)

// Rmdir removes the directory at uri. The root can never be removed. Without
// DirRecursive the directory must be empty before the operator is asked to delete it.
func (w *Wrapper) Rmdir(ctx context.Context, uri string, flags DirFlag) error {
	const op = "rmdir"

	m, path, err := w.resolve(op, uri)
	if err != nil {
		return err
	}

	if path == "" {
		return w.fail(op, m.Scheme, newError(ErrRootViolation, op, uri, nil), true)
	}

	if flags&DirRecursive == 0 {
		empty, err := w.isEmptyDirectory(ctx, m, path)
		if err != nil || !empty {
			return w.fail(op, m.Scheme, newError(ErrDirectoryNotEmpty, op, uri, err), true)
		}
	}

	if err := m.Operator.DeleteDirectory(ctx, path); err != nil {
		return w.fail(op, m.Scheme, newError(ErrCouldNotRemoveDirectory, op, uri, err), true)
	}

	w.succeed(op, m.Scheme, uri)
	return nil
}

func (w *Wrapper) isEmptyDirectory(ctx context.Context, m *Mount, path string) (bool, error) {
	lister, err := m.Operator.ListContents(ctx, path, false)
	if err != nil {
		return false, err
	}
	defer lister.Close()

	_, err = lister.Next(ctx)
	if err == io.EOF {
		return true, nil
	}
	return false, err
}
