package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBackoffDoublesDelay(t *testing.T) {
	t.Parallel()

	sleeps := &sleepLog{}
	var retries []int
	b := backoff{
		attempts: 4,
		base:     2 * time.Second,
		sleep:    sleeps.sleep,
		onRetry: func(attempt int, delay time.Duration, err error) {
			retries = append(retries, attempt)
		},
	}

	calls := 0
	err := b.run(context.Background(), func() error {
		calls++
		return fmt.Errorf("attempt %d failed", calls)
	})
	if err == nil || err.Error() != "attempt 4 failed" {
		t.Fatalf("expected the last error, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if fmt.Sprint(sleeps.delays) != fmt.Sprint(want) {
		t.Fatalf("expected delays %v, got %v", want, sleeps.delays)
	}
	if fmt.Sprint(retries) != "[1 2 3]" {
		t.Fatalf("unexpected retry callbacks %v", retries)
	}
}

func TestBackoffStopsOnSuccess(t *testing.T) {
	t.Parallel()

	sleeps := &sleepLog{}
	b := backoff{attempts: 3, base: time.Second, sleep: sleeps.sleep}

	calls := 0
	err := b.run(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("temporary")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 || len(sleeps.delays) != 1 {
		t.Fatalf("expected 2 calls and 1 sleep, got %d and %d", calls, len(sleeps.delays))
	}
}

func TestBackoffHonoursShouldRetry(t *testing.T) {
	t.Parallel()

	permanent := errors.New("permanent")
	b := backoff{
		attempts:    5,
		base:        time.Second,
		sleep:       (&sleepLog{}).sleep,
		shouldRetry: func(err error) bool { return !errors.Is(err, permanent) },
	}

	calls := 0
	err := b.run(context.Background(), func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("expected one call returning the permanent error, got %d calls and %v", calls, err)
	}
}

func TestBackoffReturnsContextError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	b := backoff{attempts: 3, base: time.Second, sleep: sleepContext}

	err := b.run(ctx, func() error {
		cancel()
		return errors.New("request aborted")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}
