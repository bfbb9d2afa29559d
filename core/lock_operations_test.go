package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStreamLockExclusive(t *testing.T) {
	ctx := context.Background()
	op := newMemoryOperator()
	w, _ := newTestWrapper(t, op, nil)
	op.put("shared.txt", "x")

	a, err := w.Open(ctx, "mem://shared.txt", "r+", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := w.Open(ctx, "mem://shared.txt", "r+", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if ok, err := a.Lock(LockExclusive); err != nil || !ok {
		t.Fatalf("exclusive lock failed: ok=%v err=%v", ok, err)
	}
	if ok, err := b.Lock(LockExclusive | LockNonBlocking); err != nil || ok {
		t.Fatalf("expected non-blocking exclusive lock to fail fast, ok=%v err=%v", ok, err)
	}
	if ok, err := b.Lock(LockShared | LockNonBlocking); err != nil || ok {
		t.Fatalf("expected non-blocking shared lock to fail fast, ok=%v err=%v", ok, err)
	}

	done := make(chan bool, 1)
	go func() {
		ok, _ := b.Lock(LockExclusive)
		done <- ok
	}()

	select {
	case <-done:
		t.Fatal("blocking lock granted while another stream holds it")
	case <-time.After(50 * time.Millisecond):
	}

	if ok, err := a.Lock(LockUnlock); err != nil || !ok {
		t.Fatalf("unlock failed: ok=%v err=%v", ok, err)
	}

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("blocking lock failed after release")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocking lock not granted after release")
	}

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if ok, err := a.Lock(LockExclusive | LockNonBlocking); err != nil || !ok {
		t.Fatalf("closing the holder must release its lock, ok=%v err=%v", ok, err)
	}
}

func TestStreamLockShared(t *testing.T) {
	ctx := context.Background()
	op := newMemoryOperator()
	w, _ := newTestWrapper(t, op, nil)
	op.put("shared.txt", "x")

	a, err := w.Open(ctx, "mem://shared.txt", "r", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := w.Open(ctx, "mem://shared.txt", "r", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if ok, _ := a.Lock(LockShared); !ok {
		t.Fatal("shared lock failed")
	}
	if ok, _ := b.Lock(LockShared | LockNonBlocking); !ok {
		t.Fatal("second reader must be admitted")
	}
	if ok, _ := b.Lock(LockExclusive | LockNonBlocking); ok {
		t.Fatal("upgrade must fail while another reader holds the lock")
	}

	if ok, err := a.Lock(LockUnlock); !ok || err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if ok, err := a.Lock(LockUnlock); !ok || err != nil {
		t.Fatalf("unlock must be idempotent: %v", err)
	}
}

func TestStreamLockInvalid(t *testing.T) {
	ctx := context.Background()
	op := newMemoryOperator()
	w, _ := newTestWrapper(t, op, nil)
	op.put("f.txt", "x")

	s, err := w.Open(ctx, "mem://f.txt", "r", 0)
	if err != nil {
		t.Fatal(err)
	}

	for _, lockOp := range []LockOp{0, LockNonBlocking, LockUnlock | LockNonBlocking, 8} {
		ok, err := s.Lock(lockOp)
		if ok || !errors.Is(err, ErrUnsupportedLockOp) {
			t.Errorf("op %d: expected ErrUnsupportedLockOp, got ok=%v err=%v", lockOp, ok, err)
		}
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Lock(LockShared); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("expected ErrInvalidHandle after close, got %v", err)
	}
}
