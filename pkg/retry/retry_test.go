package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNextIsBounded(t *testing.T) {
	p := Policy{Min: 100 * time.Millisecond, Max: 1 * time.Second, Factor: 2.0}
	for attempt := 1; attempt <= 10; attempt++ {
		wait := p.Next(attempt)
		if wait < 0 || wait > p.Max {
			t.Fatalf("attempt %d: wait out of bounds: %v", attempt, wait)
		}
	}
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 3, Min: time.Millisecond, Max: time.Millisecond}
	calls := 0
	errBoom := errors.New("boom")
	err := p.Do(context.Background(), func(int) error {
		calls++
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("want last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("want 3 attempts, got %d", calls)
	}
}

func TestDoReturnsOnFirstSuccess(t *testing.T) {
	p := Policy{MaxAttempts: 3, Min: time.Millisecond, Max: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func(attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("want 2 attempts, got %d", calls)
	}
}
