package core

import (
	"context"
	"io"

	"github.com/ebogdum/flystream/backends"
	"github.com/ebogdum/flystream/internal/pathutil"
)

// Dir is an open directory handle over a lazy operator listing. It is not safe for
// concurrent use.
type Dir struct {
	w      *Wrapper
	ctx    context.Context
	mount  *Mount
	uri    string
	path   string
	lister backends.Lister
}

// OpenDir opens the directory at uri. The listing must open and the operator must
// confirm that the directory exists.
func (w *Wrapper) OpenDir(ctx context.Context, uri string) (*Dir, error) {
	const op = "dir_opendir"

	m, p, err := w.resolve(op, uri)
	if err != nil {
		return nil, err
	}

	lister, err := m.Operator.ListContents(ctx, p, false)
	if err != nil {
		return nil, w.fail(op, m.Scheme, newError(ErrDirectoryNotFound, op, uri, err), true)
	}

	exists := p == ""
	if !exists {
		exists, err = m.Operator.DirectoryExists(ctx, p)
	}
	if err != nil || !exists {
		_ = lister.Close()
		return nil, w.fail(op, m.Scheme, newError(ErrDirectoryNotFound, op, uri, err), true)
	}

	w.succeed(op, m.Scheme, uri)
	return &Dir{w: w, ctx: ctx, mount: m, uri: uri, path: p, lister: lister}, nil
}

// Read returns the base name of the next entry, or false once the listing is done
func (d *Dir) Read() (string, bool, error) {
	if d.lister == nil {
		return "", false, nil
	}

	entry, err := d.lister.Next(d.ctx)
	if err == io.EOF {
		return "", false, nil
	}
	if err != nil {
		return "", false, d.w.fail("dir_readdir", d.mount.Scheme, newError(ErrDirectoryNotFound, "dir_readdir", d.uri, err), true)
	}
	return pathutil.Base(entry.Path), true, nil
}

// ReadAll returns the base names of the remaining entries
func (d *Dir) ReadAll() ([]string, error) {
	var names []string
	for {
		name, ok, err := d.Read()
		if err != nil {
			return names, err
		}
		if !ok {
			return names, nil
		}
		names = append(names, name)
	}
}

// Rewind restarts the listing with a fresh operator cursor
func (d *Dir) Rewind() error {
	const op = "dir_rewinddir"

	lister, err := d.mount.Operator.ListContents(d.ctx, d.path, false)
	if err != nil {
		return d.w.fail(op, d.mount.Scheme, newError(ErrDirectoryNotFound, op, d.uri, err), true)
	}

	if d.lister != nil {
		_ = d.lister.Close()
	}
	d.lister = lister
	return nil
}

// Close drops the listing. Closing twice does nothing.
func (d *Dir) Close() error {
	if d.lister == nil {
		return nil
	}
	err := d.lister.Close()
	d.lister = nil
	return err
}
