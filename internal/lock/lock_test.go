package lock

import (
	"context"
	"errors"
	"testing"
)

func exerciseLocker(t *testing.T, l Locker) {
	t.Helper()
	ctx := context.Background()

	release, err := l.TryLock(ctx, "reel:1")
	if err != nil {
		t.Fatalf("first TryLock: %v", err)
	}
	if _, err := l.TryLock(ctx, "reel:1"); !errors.Is(err, ErrHeld) {
		t.Fatalf("second TryLock err = %v, want ErrHeld", err)
	}
	other, err := l.TryLock(ctx, "reel:2")
	if err != nil {
		t.Fatalf("independent key: %v", err)
	}
	other()

	release()
	release()
	again, err := l.TryLock(ctx, "reel:1")
	if err != nil {
		t.Fatalf("TryLock after release: %v", err)
	}
	again()
}

func TestLocalLocker(t *testing.T) {
	t.Parallel()
	exerciseLocker(t, NewLocalLocker())
}

func TestFileLocker(t *testing.T) {
	t.Parallel()
	l, err := NewFileLocker(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileLocker: %v", err)
	}
	exerciseLocker(t, l)
}
