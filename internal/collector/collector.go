package collector

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"stockbars/internal/checkpoint"
	"stockbars/internal/metrics"
	"stockbars/internal/model"
	"stockbars/internal/storage"
	"stockbars/internal/symbols"
)

// BarSource collects the full lookback window for one item. Satisfied by
// *fetcher.Fetcher.
type BarSource interface {
	Collect(ctx context.Context, code string) (model.Bars, error)
}

// Config holds orchestrator tuning.
type Config struct {
	// ItemDelay paces the loop between items.
	ItemDelay time.Duration
}

// Collector drives the checkpointed batch: it reconciles the work list
// against the persisted cursor, then walks the remaining items one at a
// time, isolating per-item failures and advancing the checkpoint after
// every item regardless of outcome.
//
// The three line shapes written to out — start, skip and saved markers —
// are the liveness contract with the supervisor; everything else goes to
// the structured logger.
type Collector struct {
	source  symbols.Source
	bars    BarSource
	store   storage.Store
	cursor  checkpoint.Store
	metrics *metrics.Collector
	logger  *zap.Logger
	out     io.Writer
	cfg     Config
}

// New creates a Collector. metricsCollector may be nil.
func New(
	source symbols.Source,
	bars BarSource,
	store storage.Store,
	cursor checkpoint.Store,
	metricsCollector *metrics.Collector,
	logger *zap.Logger,
	out io.Writer,
	cfg Config,
) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		source:  source,
		bars:    bars,
		store:   store,
		cursor:  cursor,
		metrics: metricsCollector,
		logger:  logger,
		out:     out,
		cfg:     cfg,
	}
}

// Run executes the batch to completion or cancellation. Only checkpoint
// persistence failures and cancellation are fatal; any per-item error is
// logged and the batch continues.
func (c *Collector) Run(ctx context.Context) error {
	items, err := c.source.List(ctx)
	if err != nil {
		return fmt.Errorf("build work list: %w", err)
	}

	cp, err := c.cursor.Load()
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	cp = checkpoint.Reconcile(cp, items)

	c.logger.Info("starting batch",
		zap.Int("items", len(cp.Items)),
		zap.Int("next_index", cp.NextIndex),
	)

	total := len(cp.Items)
	for i := cp.NextIndex; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		code := cp.Items[i]
		start := time.Now()

		if err := c.processItem(ctx, i, total, code); err != nil {
			// processItem only returns cancellation; per-item errors
			// are consumed inside.
			return err
		}

		if c.metrics != nil {
			c.metrics.ObserveItemDuration(time.Since(start))
		}

		// Success, skip and failure all advance by exactly one; failed
		// items are not retried within this run.
		if err := c.cursor.Save(checkpoint.Checkpoint{NextIndex: i + 1, Items: cp.Items}); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}

		select {
		case <-time.After(c.cfg.ItemDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.logger.Info("batch complete", zap.Int("items", total))
	return nil
}

func (c *Collector) processItem(ctx context.Context, i, total int, code string) error {
	exists, err := c.store.Exists(ctx, code)
	if err != nil {
		c.logger.Warn("artifact existence check failed, collecting anyway",
			zap.String("code", code),
			zap.Error(err),
		)
	}
	if err == nil && exists {
		fmt.Fprintf(c.out, "[%d/%d] %s -> exists, skip\n", i+1, total, code)
		if c.metrics != nil {
			c.metrics.IncSkipped()
		}
		return nil
	}

	fmt.Fprintf(c.out, "[%d/%d] %s -> collecting...\n", i+1, total, code)

	bars, err := c.bars.Collect(ctx, code)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		fmt.Fprintf(c.out, " FAILED (%v)\n", err)
		c.logger.Warn("item collection failed",
			zap.String("code", code),
			zap.Error(err),
		)
		if c.metrics != nil {
			c.metrics.IncFailed()
		}
		return nil
	}

	if len(bars) == 0 {
		fmt.Fprintln(c.out, " empty")
		if c.metrics != nil {
			c.metrics.IncEmpty()
		}
		return nil
	}

	if err := c.store.Save(ctx, code, bars); err != nil {
		fmt.Fprintf(c.out, " FAILED (%v)\n", err)
		c.logger.Warn("artifact save failed",
			zap.String("code", code),
			zap.Error(err),
		)
		if c.metrics != nil {
			c.metrics.IncFailed()
		}
		return nil
	}

	fmt.Fprintf(c.out, "saved %d rows\n", len(bars))
	if c.metrics != nil {
		c.metrics.IncSaved(len(bars))
	}
	return nil
}
