package ratelimit

import (
	"time"

	"go.uber.org/zap"
)

// QuotaProbe reports the provider's own remaining call budget. Remaining
// returns the number of calls left and, when exhausted, how long the
// provider suggests waiting before the budget refills.
type QuotaProbe interface {
	Remaining() (int, time.Duration, error)
}

// Limiter gates outbound provider requests under a local sliding call-count
// window and, when a probe is configured, the provider's reported quota.
// It is designed for single-threaded cooperative use: all requests funnel
// through one goroutine that calls Acquire before each call.
type Limiter struct {
	maxCalls int
	window   time.Duration
	probe    QuotaProbe
	logger   *zap.Logger

	calls []time.Time

	// Injectable for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// quotaMargin is added on top of the provider-suggested wait so the next
// call lands after the budget actually refills.
const quotaMargin = 200 * time.Millisecond

// New creates a limiter admitting at most maxCalls per trailing window.
// probe may be nil.
func New(maxCalls int, window time.Duration, probe QuotaProbe, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		maxCalls: maxCalls,
		window:   window,
		probe:    probe,
		logger:   logger,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Acquire blocks until a call slot is available under both constraints,
// then records the call timestamp. It never fails: probe errors degrade
// silently to the sliding window alone.
func (l *Limiter) Acquire() {
	now := l.now()
	l.evict(now)

	if len(l.calls) >= l.maxCalls {
		wait := l.window - now.Sub(l.calls[0]) + 10*time.Millisecond
		if wait > 0 {
			l.logger.Debug("rate window full, waiting",
				zap.Duration("wait", wait),
				zap.Int("in_window", len(l.calls)),
			)
			l.sleep(wait)
		}
		l.evict(l.now())
	}

	if l.probe != nil {
		remaining, refill, err := l.probe.Remaining()
		if err != nil {
			// Probe trouble must never stall collection; the window
			// alone keeps us under the hard limit.
			l.logger.Debug("quota probe failed, using window only", zap.Error(err))
		} else if remaining <= 0 {
			l.logger.Debug("provider quota exhausted, waiting",
				zap.Duration("refill", refill),
			)
			l.sleep(refill + quotaMargin)
		}
	}

	l.calls = append(l.calls, l.now())
}

// InWindow reports how many recorded calls fall inside the trailing window.
func (l *Limiter) InWindow() int {
	l.evict(l.now())
	return len(l.calls)
}

func (l *Limiter) evict(now time.Time) {
	for len(l.calls) > 0 && now.Sub(l.calls[0]) > l.window {
		l.calls = l.calls[1:]
	}
}
