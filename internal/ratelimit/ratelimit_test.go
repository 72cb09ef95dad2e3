package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWaitAdmitsUnderLimit(t *testing.T) {
	l := New(3)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx, "newsapi"); err != nil {
			t.Fatalf("request %d unexpectedly blocked: %v", i, err)
		}
	}
	if got := l.Remaining("newsapi"); got != 0 {
		t.Errorf("Remaining = %d, want 0", got)
	}
}

func TestWaitSleepsWhenWindowFull(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base

	l := New(2)
	l.now = func() time.Time { return current }

	var slept time.Duration
	l.sleep = func(_ context.Context, d time.Duration) error {
		slept += d
		current = current.Add(d)
		return nil
	}

	ctx := context.Background()
	if err := l.Wait(ctx, "ptt"); err != nil {
		t.Fatal(err)
	}
	current = current.Add(10 * time.Second)
	if err := l.Wait(ctx, "ptt"); err != nil {
		t.Fatal(err)
	}

	// Window is full; the third call must wait until the first
	// timestamp ages out, 50 seconds from the current clock.
	if err := l.Wait(ctx, "ptt"); err != nil {
		t.Fatal(err)
	}
	if slept != 50*time.Second {
		t.Errorf("slept %v, want 50s", slept)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(1)
	l.sleep = func(_ context.Context, _ time.Duration) error {
		t.Fatal("second key should not block")
		return nil
	}
	ctx := context.Background()
	if err := l.Wait(ctx, "threads"); err != nil {
		t.Fatal(err)
	}
	if err := l.Wait(ctx, "linkedin"); err != nil {
		t.Fatal(err)
	}
}

func TestWaitHonorsCancellation(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Wait(ctx, "googlenews"); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := l.Wait(ctx, "googlenews"); err == nil {
		t.Fatal("expected context error while window is full")
	}
}

func TestWindowPrunes(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base

	l := New(2)
	l.now = func() time.Time { return current }

	ctx := context.Background()
	if err := l.Wait(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if err := l.Wait(ctx, "k"); err != nil {
		t.Fatal(err)
	}

	current = base.Add(61 * time.Second)
	if got := l.Remaining("k"); got != 2 {
		t.Errorf("Remaining after window = %d, want 2", got)
	}
}
