package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/gpubox/pkg/log"
	"github.com/cuemby/gpubox/pkg/types"
	"github.com/rs/zerolog"
)

// Sweeper produces an orphan report
type Sweeper interface {
	Sweep(ctx context.Context) (*types.SweepReport, error)
}

// Reconciler periodically compares persisted records with engine containers.
// It only reports; nothing is created or removed.
type Reconciler struct {
	sweeper  Sweeper
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger

	mu       sync.RWMutex
	last     *types.SweepReport
	lastErr  error
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewReconciler creates a reconciler sweeping every interval. Each sweep is
// bounded by timeout.
func NewReconciler(sweeper Sweeper, interval, timeout time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Reconciler{
		sweeper:  sweeper,
		interval: interval,
		timeout:  timeout,
		logger:   log.WithComponent("reconciler"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the sweep loop. The first sweep runs immediately.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the loop and waits for an in-flight sweep to finish
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

func (r *Reconciler) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.reconcile()
	for {
		select {
		case <-ticker.C:
			r.reconcile()
		case <-r.stopCh:
			return
		}
	}
}

// reconcile performs one sweep cycle
func (r *Reconciler) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	go func() {
		select {
		case <-r.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	report, err := r.sweeper.Sweep(ctx)

	r.mu.Lock()
	r.lastErr = err
	if err == nil {
		r.last = report
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Error().Err(err).Msg("Orphan sweep failed")
		return
	}
	r.logger.Debug().
		Int("persisted_without_engine", len(report.PersistedWithoutEngine)).
		Int("engine_without_persisted", len(report.EngineWithoutPersisted)).
		Msg("Orphan sweep completed")
}

// Last returns the most recent successful report and the error of the most
// recent attempt
func (r *Reconciler) Last() (*types.SweepReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.lastErr
}
