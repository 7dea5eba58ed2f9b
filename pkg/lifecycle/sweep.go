package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cuemby/gpubox/pkg/events"
	"github.com/cuemby/gpubox/pkg/log"
	"github.com/cuemby/gpubox/pkg/metrics"
	"github.com/cuemby/gpubox/pkg/types"
)

// Sweep compares every persisted record with every gpubox-managed engine
// container and reports mismatches in both directions. It changes nothing.
func (m *Manager) Sweep(ctx context.Context) (report *types.SweepReport, err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.SweepDuration)
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.SweepsTotal.WithLabelValues(result).Inc()
	}()

	containers, err := m.store.ListContainers()
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	live, err := m.engine.ListManaged(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list engine containers: %w", err)
	}

	claims, err := m.store.ListPortClaims()
	if err != nil {
		return nil, fmt.Errorf("failed to list port claims: %w", err)
	}

	persisted := make(map[string]bool, len(containers))
	for _, c := range containers {
		persisted[c.Name] = true
	}
	running := make(map[string]bool, len(live))
	for _, name := range live {
		running[name] = true
	}

	report = &types.SweepReport{
		PersistedWithoutEngine: []string{},
		EngineWithoutPersisted: []string{},
		ClaimsWithoutPersisted: []string{},
		CheckedAt:              m.now(),
	}
	for name := range persisted {
		if !running[name] {
			report.PersistedWithoutEngine = append(report.PersistedWithoutEngine, name)
		}
	}
	for name := range running {
		if !persisted[name] {
			report.EngineWithoutPersisted = append(report.EngineWithoutPersisted, name)
		}
	}
	claimed := make(map[string]bool)
	for _, claimOwner := range claims {
		if !persisted[claimOwner] && !claimed[claimOwner] {
			claimed[claimOwner] = true
			report.ClaimsWithoutPersisted = append(report.ClaimsWithoutPersisted, claimOwner)
		}
	}
	sort.Strings(report.PersistedWithoutEngine)
	sort.Strings(report.EngineWithoutPersisted)
	sort.Strings(report.ClaimsWithoutPersisted)

	metrics.OrphansTotal.WithLabelValues("persisted_without_engine").Set(float64(len(report.PersistedWithoutEngine)))
	metrics.OrphansTotal.WithLabelValues("engine_without_persisted").Set(float64(len(report.EngineWithoutPersisted)))
	metrics.OrphansTotal.WithLabelValues("claims_without_persisted").Set(float64(len(report.ClaimsWithoutPersisted)))

	if !report.Clean() {
		m.logger.Warn().
			Strs("persisted_without_engine", report.PersistedWithoutEngine).
			Strs("engine_without_persisted", report.EngineWithoutPersisted).
			Strs("claims_without_persisted", report.ClaimsWithoutPersisted).
			Msg("Orphan sweep found mismatches")
		m.publish(events.EventOrphansDetected, "", types.Actor{}, fmt.Sprintf(
			"%d persisted without engine, %d engine without persisted, %d claims without persisted",
			len(report.PersistedWithoutEngine), len(report.EngineWithoutPersisted), len(report.ClaimsWithoutPersisted)),
			map[string]string{
				"persisted_without_engine": strings.Join(report.PersistedWithoutEngine, ","),
				"engine_without_persisted": strings.Join(report.EngineWithoutPersisted, ","),
				"claims_without_persisted": strings.Join(report.ClaimsWithoutPersisted, ","),
			})
	}
	return report, nil
}

// ReleaseStaleClaims frees the port claims of every owner that has neither a
// record nor an engine container. Each owner is rechecked under its name lock,
// so claims of a create still in flight are left alone. It returns the owners
// whose claims were released.
func (m *Manager) ReleaseStaleClaims(ctx context.Context) ([]string, error) {
	report, err := m.Sweep(ctx)
	if err != nil {
		return nil, err
	}

	released := []string{}
	for _, name := range report.ClaimsWithoutPersisted {
		ok, err := m.releaseIfStale(ctx, name)
		if err != nil {
			return released, err
		}
		if ok {
			released = append(released, name)
		}
	}
	return released, nil
}

func (m *Manager) releaseIfStale(ctx context.Context, name string) (bool, error) {
	unlock := m.locks.Lock(name)
	defer unlock()

	if _, err := m.store.GetContainerByName(name); err == nil {
		return false, nil
	} else if !errors.Is(err, types.ErrNotFound) {
		return false, err
	}
	snap, err := m.engine.Inspect(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s: %w", name, err)
	}
	if snap.State != types.StateNotFound {
		return false, nil
	}
	if err := m.ports.Release(name); err != nil {
		return false, fmt.Errorf("failed to release port claims of %s: %w", name, err)
	}
	logger := log.WithContainer("lifecycle", name)
	logger.Info().Msg("Released stale port claims")
	return true, nil
}

// SweepAs runs Sweep on behalf of an administrator
func (m *Manager) SweepAs(ctx context.Context, actor types.Actor) (*types.SweepReport, error) {
	if err := authorize(actor, nil, AdminOnly); err != nil {
		return nil, err
	}
	return m.Sweep(ctx)
}
