package core

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ebogdum/flystream/backends"
)

func TestMetadataTouch(t *testing.T) {
	ctx := context.Background()
	op := newMemoryOperator()
	w, _ := newTestWrapper(t, op, nil)

	ok, err := w.Metadata(ctx, "mem://new.txt", MetaTouch, nil)
	if err != nil || !ok {
		t.Fatalf("touch failed: ok=%v err=%v", ok, err)
	}
	if got, exists := op.content("new.txt"); !exists || got != "" {
		t.Errorf("expected empty file, got %q exists=%v", got, exists)
	}

	op.put("old.txt", "keep")
	created := op.now
	op.now = op.now.Add(time.Hour)
	if err := w.Touch(ctx, "mem://old.txt"); err != nil {
		t.Fatal(err)
	}
	if got, _ := op.content("old.txt"); got != "keep" {
		t.Errorf("touch must not change content, got %q", got)
	}
	if mtime, _ := op.LastModified(ctx, "old.txt"); !mtime.Equal(created) {
		t.Errorf("touch must not change mtime, got %v", mtime)
	}

	op.writeErr = errors.New("read-only")
	if err := w.Touch(ctx, "mem://other.txt"); !errors.Is(err, ErrUnableToWrite) {
		t.Errorf("expected ErrUnableToWrite, got %v", err)
	}
}

func TestMetadataAccess(t *testing.T) {
	ctx := context.Background()

	t.Run("file and directory tables", func(t *testing.T) {
		op := newMemoryOperator()
		w, _ := newTestWrapper(t, op, nil)
		op.put("docs/a.txt", "a")

		ok, err := w.Metadata(ctx, "mem://docs/a.txt", MetaAccess, 0o600)
		if err != nil || !ok {
			t.Fatalf("chmod failed: ok=%v err=%v", ok, err)
		}
		if v, _ := op.Visibility(ctx, "docs/a.txt"); v != backends.VisibilityPrivate {
			t.Errorf("expected private file, got %s", v)
		}

		if err := w.Chmod(ctx, "mem://docs", 0o700); err != nil {
			t.Fatal(err)
		}
		if v, _ := op.Visibility(ctx, "docs"); v != backends.VisibilityPrivate {
			t.Errorf("expected private directory, got %s", v)
		}

		if _, err := w.Metadata(ctx, "mem://docs/a.txt", MetaAccess, os.FileMode(0o644)); err != nil {
			t.Fatal(err)
		}
		if v, _ := op.Visibility(ctx, "docs/a.txt"); v != backends.VisibilityPublic {
			t.Errorf("expected public file, got %s", v)
		}
	})

	t.Run("failure reported", func(t *testing.T) {
		op := newMemoryOperator()
		op.setVisErr = errors.New("acl denied")
		w, rec := newTestWrapper(t, op, nil)
		op.put("a.txt", "a")

		ok, err := w.Metadata(ctx, "mem://a.txt", MetaAccess, 0o600)
		if ok || !errors.Is(err, ErrUnableToChangePermissions) {
			t.Fatalf("expected ErrUnableToChangePermissions, got ok=%v err=%v", ok, err)
		}

		var e *Error
		if !errors.As(err, &e) || e.Mode != "600" {
			t.Errorf("expected octal mode 600 in the error, got %+v", e)
		}
		if rec.count() != 1 {
			t.Errorf("expected one report, got %d", rec.count())
		}
	})

	t.Run("failure ignored", func(t *testing.T) {
		op := newMemoryOperator()
		op.setVisErr = errors.New("acl denied")
		w, rec := newTestWrapper(t, op, func(o *SchemeOptions) { o.IgnoreVisibilityErrors = true })
		op.put("a.txt", "a")

		ok, err := w.Metadata(ctx, "mem://a.txt", MetaAccess, 0o600)
		if err != nil || !ok {
			t.Fatalf("expected ignored failure, got ok=%v err=%v", ok, err)
		}
		if rec.count() != 0 {
			t.Errorf("expected no reports, got %d", rec.count())
		}
	})
}

func TestMetadataUnsupportedOptions(t *testing.T) {
	ctx := context.Background()
	w, _ := newTestWrapper(t, newMemoryOperator(), nil)

	for _, option := range []MetadataOption{MetaOwner, MetaOwnerName, MetaGroup, MetaGroupName} {
		ok, err := w.Metadata(ctx, "mem://a.txt", option, 0)
		if ok {
			t.Errorf("option %d: expected false", option)
		}
		if !errors.Is(err, ErrUnsupportedOption) {
			t.Errorf("option %d: expected ErrUnsupportedOption, got %v", option, err)
		}
	}

	if ok, err := w.Metadata(ctx, "mem://a.txt", MetaAccess, "0644"); ok || err == nil {
		t.Error("expected a string permission value to be rejected")
	}
}
