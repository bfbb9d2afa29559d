package core

import (
	"bytes"
	"io"
	"os"
	"testing"
)

func TestBufferMemory(t *testing.T) {
	b := NewBuffer(0, "")
	defer b.Close()

	if _, err := b.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Seek(8, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Write([]byte("!")); err != nil {
		t.Fatal(err)
	}

	size, _ := b.Size()
	if size != 9 {
		t.Fatalf("expected size 9, got %d", size)
	}

	if _, err := b.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(b)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte("hello\x00\x00\x00!")
	if !bytes.Equal(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}

	if _, err := b.Seek(-1, io.SeekStart); err == nil {
		t.Error("expected negative seek to fail")
	}
}

func TestBufferTruncateZeroesGap(t *testing.T) {
	b := NewBuffer(0, "")
	defer b.Close()

	if _, err := b.Write([]byte("abcdef")); err != nil {
		t.Fatal(err)
	}
	if err := b.Truncate(2); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Seek(4, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Write([]byte("z")); err != nil {
		t.Fatal(err)
	}

	if _, err := b.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	got, _ := io.ReadAll(b)
	if want := []byte("ab\x00\x00z"); !bytes.Equal(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestBufferSpill(t *testing.T) {
	dir := t.TempDir()
	b := NewBuffer(4, dir)

	if _, err := b.Write([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	if b.Spilled() {
		t.Fatal("buffer spilled below the limit")
	}

	if _, err := b.Write([]byte("defgh")); err != nil {
		t.Fatal(err)
	}
	if !b.Spilled() {
		t.Fatal("expected buffer to spill past the limit")
	}

	if _, err := b.Seek(2, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "cdefgh" {
		t.Errorf("expected cdefgh, got %q", got)
	}

	if err := b.Truncate(3); err != nil {
		t.Fatal(err)
	}
	if size, _ := b.Size(); size != 3 {
		t.Errorf("expected size 3, got %d", size)
	}

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected temp file to be removed, found %v", entries)
	}
}
