package lifecycle

import (
	"context"
	"time"

	"github.com/cuemby/gpubox/pkg/config"
	"github.com/cuemby/gpubox/pkg/engine"
	"github.com/cuemby/gpubox/pkg/events"
	"github.com/cuemby/gpubox/pkg/log"
	"github.com/cuemby/gpubox/pkg/metrics"
	"github.com/cuemby/gpubox/pkg/storage"
	"github.com/cuemby/gpubox/pkg/types"
	"github.com/rs/zerolog"
)

// PortAllocator reserves host ports for a container name
type PortAllocator interface {
	Allocate(ctx context.Context, owner string, n int) ([]int, error)
	Release(owner string) error
}

// Options tunes the manager. OptionsFromConfig derives it from the
// platform configuration.
type Options struct {
	PasswordMinLength int
	StatusFanout      int
	PublicHost        string
	// MaxCPUs caps the CPU quota of a single container; zero disables the check
	MaxCPUs     int
	SearchLimit int
	// CleanupTimeout bounds compensating engine calls made after the
	// caller's context is gone
	CleanupTimeout time.Duration
}

// OptionsFromConfig builds manager options from cfg
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PasswordMinLength: cfg.PasswordMinLength,
		StatusFanout:      cfg.StatusFanout,
		PublicHost:        cfg.PublicHost(),
		SearchLimit:       25,
		CleanupTimeout:    cfg.Timeouts.Default,
	}
}

// Manager orchestrates container lifecycle operations against the engine
// and keeps the persisted records in sync
type Manager struct {
	store  storage.Store
	engine engine.Client
	ports  PortAllocator
	broker *events.Broker
	opts   Options
	locks  *keyedMutex
	now    func() time.Time
	logger zerolog.Logger
}

// NewManager creates a lifecycle manager. broker may be nil.
func NewManager(store storage.Store, eng engine.Client, alloc PortAllocator, broker *events.Broker, opts Options) *Manager {
	if opts.StatusFanout < 1 {
		opts.StatusFanout = 1
	}
	if opts.PasswordMinLength < 1 {
		opts.PasswordMinLength = 8
	}
	if opts.PublicHost == "" {
		opts.PublicHost = "localhost"
	}
	if opts.SearchLimit < 1 {
		opts.SearchLimit = 25
	}
	if opts.CleanupTimeout <= 0 {
		opts.CleanupTimeout = time.Minute
	}
	return &Manager{
		store:  store,
		engine: eng,
		ports:  alloc,
		broker: broker,
		opts:   opts,
		locks:  newKeyedMutex(),
		now:    time.Now,
		logger: log.WithComponent("lifecycle"),
	}
}

// observe records the outcome of a lifecycle operation
func (m *Manager) observe(op string, timer *metrics.Timer, err error) {
	timer.ObserveDurationVec(metrics.LifecycleOpDuration, op)
	metrics.LifecycleOpsTotal.WithLabelValues(op, types.Code(err)).Inc()
}

func (m *Manager) publish(t events.EventType, container string, actor types.Actor, msg string, meta map[string]string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{
		Type:      t,
		Container: container,
		ActorID:   actor.UserID,
		Message:   msg,
		Metadata:  meta,
	})
}

// partialFailure logs and records an operation that left one side effect behind
func (m *Manager) partialFailure(actor types.Actor, pf *types.PartialFailureError) error {
	metrics.PartialFailuresTotal.WithLabelValues(pf.Op).Inc()
	m.logger.Error().
		Err(pf.Err).
		Str("container", pf.Container).
		Str("op", pf.Op).
		Str("succeeded", pf.Succeeded).
		Str("failed", pf.Failed).
		Msg("Partial failure, manual reconciliation may be required")
	m.publish(events.EventPartialFailure, pf.Container, actor, pf.Error(), map[string]string{
		"op":        pf.Op,
		"succeeded": pf.Succeeded,
		"failed":    pf.Failed,
	})
	return pf
}

// cleanupContext returns a context for compensating actions that survives
// cancellation of the request that triggered them
func (m *Manager) cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.opts.CleanupTimeout)
}

// lookup reads a container and checks the actor against policy
func (m *Manager) lookup(actor types.Actor, name string, policy Policy) (*types.Container, error) {
	if actor.UserID == 0 {
		return nil, authorize(actor, nil, policy)
	}
	c, err := m.store.GetContainerByName(name)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, c, policy); err != nil {
		return nil, err
	}
	return c, nil
}

// mutate runs fn while holding the per-name lock. The record is read again
// under the lock so fn never acts on a container deleted in the meantime.
func (m *Manager) mutate(ctx context.Context, actor types.Actor, op, name string, policy Policy, fn func(*types.Container) error) (err error) {
	timer := metrics.NewTimer()
	defer func() { m.observe(op, timer, err) }()

	if _, err = m.lookup(actor, name, policy); err != nil {
		return err
	}

	unlock := m.locks.Lock(name)
	defer unlock()

	if err = ctx.Err(); err != nil {
		return err
	}
	c, err := m.store.GetContainerByName(name)
	if err != nil {
		return err
	}

	logger := log.WithContainer("lifecycle", name).With().Str("op", op).Uint64("user_id", actor.UserID).Logger()
	logger.Debug().Msg("Lifecycle operation started")
	if err = fn(c); err != nil {
		logger.Warn().Err(err).Str("code", types.Code(err)).Msg("Lifecycle operation failed")
		return err
	}
	logger.Info().Dur("took", timer.Duration()).Msg("Lifecycle operation completed")
	return nil
}
