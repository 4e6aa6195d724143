package persistence

import (
	"LiqWatch/internal/monitor"
	"LiqWatch/internal/observability"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// SnapshotWriter stores batches of snapshots.
type SnapshotWriter interface {
	WriteSnapshots(ctx context.Context, snaps []*monitor.Snapshot) error
}

// Pruner is implemented by writers that can expire old history.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

const pruneInterval = time.Hour

// SnapshotWorker drains the persist channel and batch-writes snapshots.
// The monitor sends to it blocking, so a slow database stalls the refresh
// loop instead of losing history.
type SnapshotWorker struct {
	writer       SnapshotWriter
	inputChan    <-chan *monitor.Snapshot
	batchSize    int
	flushTimeout time.Duration
	retention    time.Duration
	lastPrune    time.Time
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

func NewSnapshotWorker(
	writer SnapshotWriter,
	inputChan <-chan *monitor.Snapshot,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *SnapshotWorker {
	if batchSize <= 0 {
		batchSize = 1
	}
	if flushTimeout <= 0 {
		flushTimeout = time.Second
	}
	return &SnapshotWorker{
		writer:       writer,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		logger:       logger,
	}
}

// WithRetention enables pruning of snapshots older than d, checked at most
// hourly after a successful flush.
func (w *SnapshotWorker) WithRetention(d time.Duration) *SnapshotWorker {
	w.retention = d
	return w
}

// Run batches incoming snapshots and flushes when the batch is full or the
// flush timeout expires. Blocks until ctx is cancelled or the channel is
// closed.
func (w *SnapshotWorker) Run(ctx context.Context) error {
	batch := make([]*monitor.Snapshot, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := w.flush(context.Background(), batch); err != nil {
					w.logger.Error().Err(err).Int("snapshots", len(batch)).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case snap, ok := <-w.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := w.flush(context.Background(), batch); err != nil {
						w.logger.Error().Err(err).Int("snapshots", len(batch)).Msg("final flush failed")
					}
				}
				return nil
			}

			batch = append(batch, snap)
			if w.metrics != nil {
				w.metrics.SetChannelMetrics("persist", len(w.inputChan), cap(w.inputChan))
			}

			if len(batch) >= w.batchSize {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					w.logger.Error().Err(err).Msg("batch flush failed after retries")
				}
				batch = batch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					w.logger.Error().Err(err).Msg("timeout flush failed after retries")
				}
				batch = batch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write succeeds
// or ctx is cancelled, in which case one last attempt runs detached from ctx.
func (w *SnapshotWorker) flushWithRetry(ctx context.Context, batch []*monitor.Snapshot) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("snapshots", len(batch)).
				Msg("persistence retry")
			if w.metrics != nil {
				w.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), batch); err != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, batch)
		if err == nil {
			if attempt > 0 {
				w.logger.Info().Int("retries", attempt).Msg("persistence flush succeeded")
			}
			w.maybePrune(ctx)
			return nil
		}
		w.logger.Debug().Err(err).Msg("persistence flush failed")
	}
}

func (w *SnapshotWorker) flush(ctx context.Context, batch []*monitor.Snapshot) error {
	start := time.Now()

	if err := w.writer.WriteSnapshots(ctx, batch); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_snapshots").Inc()
		}
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.SnapshotsWritten.Add(float64(len(batch)))
	}
	return nil
}

func (w *SnapshotWorker) maybePrune(ctx context.Context) {
	if w.retention <= 0 || time.Since(w.lastPrune) < pruneInterval {
		return
	}
	p, ok := w.writer.(Pruner)
	if !ok {
		return
	}
	w.lastPrune = time.Now()

	n, err := p.Prune(ctx, time.Now().Add(-w.retention))
	if err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("prune").Inc()
		}
		w.logger.Warn().Err(err).Msg("prune snapshots failed")
		return
	}
	if n > 0 {
		w.logger.Info().Int64("deleted", n).Msg("pruned snapshot history")
	}
}
