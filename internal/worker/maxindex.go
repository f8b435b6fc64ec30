package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trainer-leaderboard/internal/config"
	"github.com/trainer-leaderboard/internal/metrics"
)

// MaximaSource computes the true per-field maxima from stored snapshots
type MaximaSource interface {
	FieldMaxima(ctx context.Context) (map[string]decimal.Decimal, error)
}

// IndexWriter overwrites the max index
type IndexWriter interface {
	Replace(ctx context.Context, maxima map[string]decimal.Decimal) error
}

// MaxIndexWorker periodically rebuilds the max index from the snapshot store.
// Submissions only ever raise index entries, so a rebuild is what lowers them
// again after snapshots are removed or a bad value slipped through.
type MaxIndexWorker struct {
	source  MaximaSource
	index   IndexWriter
	config  *config.MaxIndexConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewMaxIndexWorker creates a new max index worker
func NewMaxIndexWorker(
	source MaximaSource,
	index IndexWriter,
	cfg *config.MaxIndexConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *MaxIndexWorker {
	return &MaxIndexWorker{
		source:  source,
		index:   index,
		config:  cfg,
		metrics: m,
		logger:  logger,
	}
}

// Start begins the background rebuild loop
func (w *MaxIndexWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if w.config.RebuildInterval <= 0 {
		return fmt.Errorf("max index rebuild interval must be positive, got %s", w.config.RebuildInterval)
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	w.logger.Info("max index worker started", "interval", w.config.RebuildInterval)

	go w.run(ctx, w.stopCh, w.doneCh)
	return nil
}

// Stop stops the background rebuild loop and waits for it to exit
func (w *MaxIndexWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("max index worker stopped")
	return nil
}

func (w *MaxIndexWorker) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	if w.config.RebuildOnStart {
		w.rebuild(ctx)
	}

	ticker := time.NewTicker(w.config.RebuildInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.rebuild(ctx)
		}
	}
}

func (w *MaxIndexWorker) rebuild(ctx context.Context) {
	if err := w.RunOnce(ctx); err != nil {
		w.logger.Error("max index rebuild failed", "error", err)
	}
}

// RunOnce rebuilds the index a single time
func (w *MaxIndexWorker) RunOnce(ctx context.Context) error {
	start := time.Now()

	maxima, err := w.source.FieldMaxima(ctx)
	if err != nil {
		return fmt.Errorf("computing field maxima: %w", err)
	}
	if err := w.index.Replace(ctx, maxima); err != nil {
		return fmt.Errorf("replacing max index: %w", err)
	}

	w.metrics.MaxIndexRebuilt(time.Now())
	w.logger.Info("max index rebuilt",
		"fields", len(maxima),
		"duration", time.Since(start),
	)
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *MaxIndexWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
