package fetcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"stockbars/internal/metrics"
	"stockbars/internal/model"
	"stockbars/internal/provider"
	"stockbars/internal/retry"
)

// Gate admits one outbound provider call. Satisfied by *ratelimit.Limiter.
type Gate interface {
	Acquire()
}

// Config holds fetcher tuning.
type Config struct {
	// LookbackDays plus BufferDays define the collection window ending the
	// day before today.
	LookbackDays int
	BufferDays   int

	// FineThreshold: a response with more distinct time-of-day values than
	// this is always fine-grained.
	FineThreshold int

	// Retry is shared by the transient-error and granularity-retry paths.
	Retry retry.Policy
}

// DefaultConfig returns the production tuning: two years of 1-minute bars
// with a one-week leading buffer, three attempts per chunk.
func DefaultConfig() Config {
	return Config{
		LookbackDays:  365 * 2,
		BufferDays:    7,
		FineThreshold: 5,
		Retry: retry.Policy{
			Attempts: 3,
			Base:     400 * time.Millisecond,
			Step:     300 * time.Millisecond,
		},
	}
}

// Fetcher requests date ranges from the provider and recursively bisects
// any range the provider silently answers with degraded granularity.
type Fetcher struct {
	api     provider.ChartAPI
	gate    Gate
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Collector

	now func() time.Time
}

// New creates a Fetcher. metricsCollector may be nil.
func New(api provider.ChartAPI, gate Gate, cfg Config, metricsCollector *metrics.Collector, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		api:     api,
		gate:    gate,
		cfg:     cfg,
		logger:  logger,
		metrics: metricsCollector,
		now:     time.Now,
	}
}

// isFine reports whether a response carries real intraday granularity.
// Daily-bar fallbacks repeat a handful of times dominated by the
// end-of-session marker; anything richer than the threshold, or not
// touching the marker at all, is accepted.
func (f *Fetcher) isFine(bars model.Bars) bool {
	if len(bars) == 0 {
		return false
	}
	times := bars.DistinctTimes()
	if len(times) > f.cfg.FineThreshold {
		return true
	}
	_, eod := times[model.EODMarker]
	return !eod
}

// FetchRange returns fine-grained bars for the inclusive range, bisecting
// recursively when the provider degrades. The recursion terminates because
// the range length strictly decreases with a floor of one day. The returned
// set never aborts on provider errors; only context cancellation surfaces
// as an error.
func (f *Fetcher) FetchRange(ctx context.Context, code string, r model.DateRange) (model.Bars, error) {
	bars, ok := f.requestWithRetry(ctx, code, r)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok {
		return bars, nil
	}

	if r.Days() > 1 {
		left, right := r.Bisect()
		if f.metrics != nil {
			f.metrics.IncBisection()
		}
		f.logger.Debug("bisecting range",
			zap.String("code", code),
			zap.Int("from", model.YMD(r.Start)),
			zap.Int("to", model.YMD(r.End)),
		)

		lo, err := f.FetchRange(ctx, code, left)
		if err != nil {
			return nil, err
		}
		hi, err := f.FetchRange(ctx, code, right)
		if err != nil {
			return nil, err
		}
		return append(lo, hi...), nil
	}

	// Single day and still nothing usable: one last request, accept
	// whatever comes back. No splitting below one day.
	f.gate.Acquire()
	final, err := f.request(ctx, code, r)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		f.logger.Debug("single-day request failed, accepting empty",
			zap.String("code", code),
			zap.Int("day", model.YMD(r.Start)),
			zap.Error(err),
		)
		return nil, nil
	}
	return final, nil
}

// requestWithRetry runs the bounded retry loop for one range. ok is true
// when a fine-grained non-empty response was obtained.
func (f *Fetcher) requestWithRetry(ctx context.Context, code string, r model.DateRange) (model.Bars, bool) {
	var got model.Bars
	fine := false

	_ = f.cfg.Retry.Do(ctx, func(attempt int) (bool, error) {
		f.gate.Acquire()
		bars, err := f.request(ctx, code, r)
		if err != nil {
			f.logger.Debug("chunk request failed",
				zap.String("code", code),
				zap.Int("from", model.YMD(r.Start)),
				zap.Int("to", model.YMD(r.End)),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			return false, err
		}
		if f.isFine(bars) {
			got = bars
			fine = true
			return true, nil
		}
		// Suspected daily fallback or empty chunk; back off and retry.
		return false, nil
	})

	return got, fine
}

func (f *Fetcher) request(ctx context.Context, code string, r model.DateRange) (model.Bars, error) {
	if f.metrics != nil {
		f.metrics.IncRequest()
	}
	return f.api.RequestChunk(ctx, code, model.YMD(r.Start), model.YMD(r.End))
}

// Collect gathers the full lookback window for one item: month-aligned
// chunks in chronological order, each served through FetchRange, merged,
// sorted and de-duplicated (first occurrence wins). An empty result is a
// valid outcome.
func (f *Fetcher) Collect(ctx context.Context, code string) (model.Bars, error) {
	today := model.DateOf(f.now())
	window := model.DateRange{
		Start: today.AddDate(0, 0, -(f.cfg.LookbackDays + f.cfg.BufferDays)),
		End:   today.AddDate(0, 0, -1),
	}

	var all model.Bars
	for _, chunk := range window.MonthChunks() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bars, err := f.FetchRange(ctx, code, chunk)
		if err != nil {
			return nil, err
		}
		all = append(all, bars...)
	}
	return all.Normalize(), nil
}
