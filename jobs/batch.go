package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// BatchConfig controls how a target list is sliced and paced.
type BatchConfig struct {
	BatchSize           int
	DelayBetweenItems   time.Duration
	DelayBetweenBatches time.Duration
}

// BatchConfigFromMap reads the dispatcher knobs from a job config.
func BatchConfigFromMap(cfg ConfigMap) BatchConfig {
	return BatchConfig{
		BatchSize:           cfg.Int("batchSize", 25),
		DelayBetweenItems:   cfg.Duration("itemDelaySeconds", 2*time.Second),
		DelayBetweenBatches: cfg.Duration("batchDelaySeconds", 30*time.Second),
	}
}

// CycleObserver is the progress surface the dispatcher reports into.
// *Cycle satisfies it; tests use in-memory fakes.
type CycleObserver interface {
	Continue() bool
	SetTotal(n int)
	ItemStarted(item string)
	ItemSucceeded()
	ItemFailed()
}

// RunBatches slices items into fixed-size batches and processes them
// strictly sequentially: no concurrency within a cycle, by construction.
// After every item (success or failure) it sleeps DelayBetweenItems; between
// batches (except after the last) it sleeps DelayBetweenBatches and re-checks
// obs.Continue() before starting the next batch, so a stop issued mid-cycle
// prevents further batches without aborting the one in flight. Per-item
// errors are counted and never abort the batch.
func RunBatches[T any](
	ctx context.Context,
	clock Clock,
	log *zap.SugaredLogger,
	obs CycleObserver,
	items []T,
	cfg BatchConfig,
	label func(T) string,
	process func(context.Context, T) error,
) (succeeded, failed int) {
	if len(items) == 0 {
		obs.SetTotal(0)
		return 0, 0
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	obs.SetTotal(len(items))
	numBatches := (len(items) + batchSize - 1) / batchSize

	for bi := 0; bi < numBatches; bi++ {
		if bi > 0 {
			if err := clock.Sleep(ctx, cfg.DelayBetweenBatches); err != nil {
				log.Warnw("Batch delay interrupted", "batch", bi, "error", err)
				return succeeded, failed
			}
			if !obs.Continue() {
				log.Infow("Stop requested, skipping remaining batches",
					"completed_batches", bi,
					"total_batches", numBatches)
				return succeeded, failed
			}
		}

		start := bi * batchSize
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}

		for _, item := range items[start:end] {
			name := label(item)
			obs.ItemStarted(name)

			if err := process(ctx, item); err != nil {
				failed++
				obs.ItemFailed()
				log.Warnw("Item failed", "item", name, "error", err)
			} else {
				succeeded++
				obs.ItemSucceeded()
			}

			// Politeness delay after every item, including the last one.
			if err := clock.Sleep(ctx, cfg.DelayBetweenItems); err != nil {
				log.Warnw("Item delay interrupted", "item", name, "error", err)
				return succeeded, failed
			}
		}
	}

	return succeeded, failed
}
