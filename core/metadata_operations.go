package core

import (
	"context"
	"fmt"
	"os"

	"github.com/ebogdum/flystream/backends"
)

// Metadata changes the metadata of uri. MetaAccess maps a permission value to a
// visibility and applies it; MetaTouch creates an empty file when none exists.
// Ownership options are not supported by operators and return false.
func (w *Wrapper) Metadata(ctx context.Context, uri string, option MetadataOption, value any) (bool, error) {
	switch option {
	case MetaAccess:
		perm, err := permissionValue(value)
		if err != nil {
			return false, fmt.Errorf("stream_metadata(%s): %w", uri, err)
		}
		if err := w.Chmod(ctx, uri, perm); err != nil {
			return false, err
		}
		return true, nil
	case MetaTouch:
		if err := w.Touch(ctx, uri); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, fmt.Errorf("stream_metadata(%s): %w: %d", uri, ErrUnsupportedOption, int(option))
}

// Chmod sets the visibility matching perm. Failures are ignored when the scheme
// ignores visibility errors.
func (w *Wrapper) Chmod(ctx context.Context, uri string, perm os.FileMode) error {
	const op = "stream_metadata"

	m, path, err := w.resolve(op, uri)
	if err != nil {
		return err
	}

	isDir := path == ""
	if !isDir {
		// A failed probe falls back to the file table, same as a missing entry
		isDir, _ = m.Operator.DirectoryExists(ctx, path)
	}

	visibility := m.Options.Permissions.InverseForFile(perm)
	if isDir {
		visibility = m.Options.Permissions.InverseForDirectory(perm)
	}

	if err := m.Operator.SetVisibility(ctx, path, visibility); err != nil {
		if m.Options.IgnoreVisibilityErrors {
			w.logger.Debug("Ignoring visibility error")
			w.succeed(op, m.Scheme, uri)
			return nil
		}
		e := newError(ErrUnableToChangePermissions, op, uri, err)
		e.Mode = fmt.Sprintf("%o", uint32(perm))
		return w.fail(op, m.Scheme, e, true)
	}

	w.succeed(op, m.Scheme, uri)
	return nil
}

// Touch creates an empty file at uri if nothing is there. Existing files keep their
// content and modification time.
func (w *Wrapper) Touch(ctx context.Context, uri string) error {
	const op = "stream_metadata"

	m, path, err := w.resolve(op, uri)
	if err != nil {
		return err
	}

	exists, err := m.Operator.FileExists(ctx, path)
	if err == nil && !exists {
		err = m.Operator.Write(ctx, path, nil, backends.WriteConfig{})
	}
	if err != nil {
		return w.fail(op, m.Scheme, newError(ErrUnableToWrite, op, uri, err), true)
	}

	w.succeed(op, m.Scheme, uri)
	return nil
}

// URLStat describes uri. With StatQuiet a failure is returned without being reported.
func (w *Wrapper) URLStat(ctx context.Context, uri string, flags StatFlag) (*StatRecord, error) {
	const op = "url_stat"
	quiet := flags&StatQuiet != 0

	m, path, err := w.registry.Resolve(uri)
	if err != nil {
		return nil, w.fail(op, "", err, !quiet)
	}

	rec, err := w.synthesize(ctx, m, path, flags)
	if err != nil {
		return nil, w.fail(op, m.Scheme, newError(ErrStatFailed, op, uri, err), !quiet)
	}

	w.succeed(op, m.Scheme, uri)
	return rec, nil
}

func permissionValue(value any) (os.FileMode, error) {
	switch v := value.(type) {
	case os.FileMode:
		return v.Perm(), nil
	case int:
		return os.FileMode(v).Perm(), nil
	case int64:
		return os.FileMode(v).Perm(), nil
	case uint32:
		return os.FileMode(v).Perm(), nil
	}
	return 0, fmt.Errorf("permission value of type %T", value)
}
