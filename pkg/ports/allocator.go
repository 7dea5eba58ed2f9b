package ports

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cuemby/gpubox/pkg/log"
	"github.com/cuemby/gpubox/pkg/metrics"
	"github.com/cuemby/gpubox/pkg/types"
)

// Claimer reserves ports atomically. storage.Store satisfies it.
type Claimer interface {
	ClaimPorts(owner string, n int, candidates []int) ([]int, error)
	ReleasePorts(owner string) error
}

// Allocator hands out distinct host ports from [Min, Max]
type Allocator struct {
	claimer Claimer
	min     int
	max     int

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewAllocator creates an allocator over the inclusive range [min, max]
func NewAllocator(claimer Claimer, min, max int) (*Allocator, error) {
	if min < 1 || max > 65535 || min > max {
		return nil, fmt.Errorf("invalid port range %d-%d", min, max)
	}
	return &Allocator{
		claimer: claimer,
		min:     min,
		max:     max,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Allocate reserves n pairwise distinct ports for owner. Either all n ports
// are reserved or none are.
func (a *Allocator) Allocate(ctx context.Context, owner string, n int) ([]int, error) {
	if n <= 0 {
		return nil, types.Validationf("port count must be positive, got %d", n)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := a.claimer.ClaimPorts(owner, n, a.candidates())
	if err != nil {
		if errors.Is(err, types.ErrResourceExhausted) {
			metrics.PortAllocationsFailed.Inc()
			logger := log.WithComponent("ports")
			logger.Warn().
				Int("min", a.min).
				Int("max", a.max).
				Str("owner", owner).
				Msg("Port range saturated")
			return nil, fmt.Errorf("allocate %d ports in %d-%d: %w", n, a.min, a.max, err)
		}
		return nil, fmt.Errorf("failed to claim ports: %w", err)
	}
	return ports, nil
}

// Release frees every port reserved for owner
func (a *Allocator) Release(owner string) error {
	return a.claimer.ReleasePorts(owner)
}

// Range returns the inclusive bounds of the allocator
func (a *Allocator) Range() (int, int) {
	return a.min, a.max
}

// candidates returns every port of the range exactly once, shuffled
func (a *Allocator) candidates() []int {
	size := a.max - a.min + 1
	out := make([]int, size)
	for i := range out {
		out[i] = a.min + i
	}

	a.mu.Lock()
	a.rnd.Shuffle(size, func(i, j int) { out[i], out[j] = out[j], out[i] })
	a.mu.Unlock()
	return out
}
