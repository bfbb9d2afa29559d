package core

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ebogdum/flystream/backends"
)

func TestDirListing(t *testing.T) {
	ctx := context.Background()
	op := newMemoryOperator()
	w, rec := newTestWrapper(t, op, nil)
	op.put("docs/b.txt", "b")
	op.put("docs/a.txt", "a")
	op.put("docs/sub/c.txt", "c")

	d, err := w.OpenDir(ctx, "mem://docs")
	if err != nil {
		t.Fatal(err)
	}

	names, err := d.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a.txt", "b.txt", "sub"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("expected %v, got %v", want, names)
	}

	if _, ok, _ := d.Read(); ok {
		t.Error("expected end of listing")
	}

	if err := d.Rewind(); err != nil {
		t.Fatal(err)
	}
	name, ok, err := d.Read()
	if err != nil || !ok || name != "a.txt" {
		t.Errorf("expected a.txt after rewind, got %q ok=%v err=%v", name, ok, err)
	}

	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second close must be a no-op, got %v", err)
	}
	if _, ok, _ := d.Read(); ok {
		t.Error("closed handle must not yield entries")
	}

	if _, err := w.OpenDir(ctx, "mem://missing"); !errors.Is(err, ErrDirectoryNotFound) {
		t.Errorf("expected ErrDirectoryNotFound, got %v", err)
	}
	if _, err := w.OpenDir(ctx, "mem://docs/a.txt"); !errors.Is(err, ErrDirectoryNotFound) {
		t.Errorf("expected ErrDirectoryNotFound for a file, got %v", err)
	}
	if rec.count() != 2 {
		t.Errorf("expected two reports, got %d", rec.count())
	}

	root, err := w.OpenDir(ctx, "mem://")
	if err != nil {
		t.Fatal(err)
	}
	defer root.Close()
	if names, _ := root.ReadAll(); !reflect.DeepEqual(names, []string{"docs"}) {
		t.Errorf("expected [docs] at the root, got %v", names)
	}
}

func TestMkdir(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func(op *memoryOperator)
		uri     string
		flags   DirFlag
		want    Kind
		created string
	}{
		{
			name:    "single segment",
			setup:   func(op *memoryOperator) {},
			uri:     "mem://a",
			created: "a",
		},
		{
			name:  "missing parent",
			setup: func(op *memoryOperator) {},
			uri:   "mem://a/b",
			want:  ErrFileNotFound,
		},
		{
			name:    "missing parent recursive",
			setup:   func(op *memoryOperator) {},
			uri:     "mem://a/b",
			flags:   DirRecursive,
			created: "a/b",
		},
		{
			name:    "existing parent",
			setup:   func(op *memoryOperator) { op.put("a/file.txt", "x") },
			uri:     "mem://a/b",
			created: "a/b",
		},
		{
			name:  "existing directory",
			setup: func(op *memoryOperator) { op.put("a/file.txt", "x") },
			uri:   "mem://a",
			want:  ErrDirectoryExists,
		},
		{
			name:  "existing file",
			setup: func(op *memoryOperator) { op.put("a", "x") },
			uri:   "mem://a",
			want:  ErrDirectoryExists,
		},
		{
			name:  "root",
			setup: func(op *memoryOperator) {},
			uri:   "mem://",
			want:  ErrDirectoryExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := newMemoryOperator()
			tt.setup(op)
			w, _ := newTestWrapper(t, op, nil)

			err := w.Mkdir(ctx, tt.uri, 0o755, tt.flags)
			if tt.want != 0 {
				if !errors.Is(err, tt.want) {
					t.Fatalf("expected %v, got %v", tt.want, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if exists, _ := op.DirectoryExists(ctx, tt.created); !exists {
				t.Errorf("expected %s to exist", tt.created)
			}
		})
	}

	t.Run("visibility from mode", func(t *testing.T) {
		op := newMemoryOperator()
		w, _ := newTestWrapper(t, op, nil)

		if err := w.Mkdir(ctx, "mem://private", 0o700, 0); err != nil {
			t.Fatal(err)
		}
		if err := w.Mkdir(ctx, "mem://public", 0o755, 0); err != nil {
			t.Fatal(err)
		}
		if v, _ := op.Visibility(ctx, "private"); v != backends.VisibilityPrivate {
			t.Errorf("expected private, got %s", v)
		}
		if v, _ := op.Visibility(ctx, "public"); v != backends.VisibilityPublic {
			t.Errorf("expected public, got %s", v)
		}
	})
}

func TestRmdir(t *testing.T) {
	ctx := context.Background()

	t.Run("root", func(t *testing.T) {
		w, rec := newTestWrapper(t, newMemoryOperator(), nil)
		for _, flags := range []DirFlag{0, DirRecursive} {
			if err := w.Rmdir(ctx, "mem://", flags); !errors.Is(err, ErrRootViolation) {
				t.Errorf("expected ErrRootViolation, got %v", err)
			}
		}
		if rec.count() != 2 {
			t.Errorf("expected two reports, got %d", rec.count())
		}
	})

	t.Run("not empty", func(t *testing.T) {
		op := newMemoryOperator()
		w, _ := newTestWrapper(t, op, nil)
		op.put("docs/a.txt", "a")

		if err := w.Rmdir(ctx, "mem://docs", 0); !errors.Is(err, ErrDirectoryNotEmpty) {
			t.Fatalf("expected ErrDirectoryNotEmpty, got %v", err)
		}
		if _, ok := op.content("docs/a.txt"); !ok {
			t.Fatal("non-recursive rmdir must not delete contents")
		}

		if err := w.Rmdir(ctx, "mem://docs", DirRecursive); err != nil {
			t.Fatal(err)
		}
		if exists, _ := op.DirectoryExists(ctx, "docs"); exists {
			t.Error("expected directory to be removed")
		}
		if _, ok := op.content("docs/a.txt"); ok {
			t.Error("expected contents to be removed")
		}
	})

	t.Run("empty", func(t *testing.T) {
		op := newMemoryOperator()
		w, _ := newTestWrapper(t, op, nil)
		if err := w.Mkdir(ctx, "mem://empty", 0o755, 0); err != nil {
			t.Fatal(err)
		}
		if err := w.Rmdir(ctx, "mem://empty", 0); err != nil {
			t.Fatal(err)
		}
		if exists, _ := op.DirectoryExists(ctx, "empty"); exists {
			t.Error("expected directory to be removed")
		}
	})

	t.Run("missing", func(t *testing.T) {
		w, _ := newTestWrapper(t, newMemoryOperator(), nil)
		if err := w.Rmdir(ctx, "mem://missing", 0); !errors.Is(err, ErrDirectoryNotEmpty) {
			t.Errorf("expected listing failure to surface as ErrDirectoryNotEmpty, got %v", err)
		}
	})
}
