package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffGrowsLinearly(t *testing.T) {
	p := Policy{Attempts: 4, Base: 400 * time.Millisecond, Step: 300 * time.Millisecond}

	want := []time.Duration{
		400 * time.Millisecond,
		700 * time.Millisecond,
		1000 * time.Millisecond,
	}
	for i, w := range want {
		if got := p.Backoff(i); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i, got, w)
		}
	}
}

func TestDoStopsOnDone(t *testing.T) {
	p := Policy{Attempts: 5, Base: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func(attempt int) (bool, error) {
		calls++
		return attempt == 1, nil
	})
	if err != nil {
		t.Fatalf("Do() = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDoExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	p := Policy{Attempts: 3, Base: time.Millisecond}

	calls := 0
	wantErr := errors.New("attempt 3 failed")
	err := p.Do(context.Background(), func(attempt int) (bool, error) {
		calls++
		if attempt == 2 {
			return false, wantErr
		}
		return false, errors.New("earlier failure")
	})

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want last attempt's error", err)
	}
}

func TestDoAttemptIndexes(t *testing.T) {
	p := Policy{Attempts: 3, Base: time.Millisecond}

	var seen []int
	_ = p.Do(context.Background(), func(attempt int) (bool, error) {
		seen = append(seen, attempt)
		return false, nil
	})

	if len(seen) != 3 || seen[0] != 0 || seen[2] != 2 {
		t.Errorf("attempt indexes = %v, want [0 1 2]", seen)
	}
}

func TestDoRespectsCancellation(t *testing.T) {
	p := Policy{Attempts: 10, Base: time.Hour} // would sleep forever

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, func(attempt int) (bool, error) {
		return false, errors.New("keep retrying")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	p := Policy{}

	calls := 0
	_ = p.Do(context.Background(), func(attempt int) (bool, error) {
		calls++
		return false, nil
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
