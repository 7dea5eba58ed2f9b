package lifecycle

import (
	"context"
	"fmt"
	"sort"

	"github.com/cuemby/gpubox/pkg/metrics"
	"github.com/cuemby/gpubox/pkg/types"
)

// BatchStats maps container names to their usage sample and live status
type BatchStats struct {
	Stats  map[string]types.StatsSnapshot  `json:"stats"`
	Status map[string]types.StatusSnapshot `json:"status"`
}

// CollectBatch gathers stats and status for names with one stats query and
// one inspect query, whatever the number of names. An empty set makes no
// engine call.
func (m *Manager) CollectBatch(ctx context.Context, names []string) (*BatchStats, error) {
	result := &BatchStats{
		Stats:  map[string]types.StatsSnapshot{},
		Status: map[string]types.StatusSnapshot{},
	}
	if len(names) == 0 {
		return result, nil
	}

	stats, err := m.engine.StatsBatch(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("batch stats query failed: %w", err)
	}
	status, err := m.engine.InspectBatch(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("batch inspect query failed: %w", err)
	}

	for _, name := range names {
		if s, ok := stats[name]; ok {
			result.Stats[name] = s
		}
		if s, ok := status[name]; ok {
			result.Status[name] = s
		} else {
			result.Status[name] = types.StatusSnapshot{Name: name, State: types.StateNotFound}
		}
	}
	return result, nil
}

// BatchStats collects stats and status for every persisted container.
// Administrators only.
func (m *Manager) BatchStats(ctx context.Context, actor types.Actor) (_ *BatchStats, err error) {
	timer := metrics.NewTimer()
	defer func() { m.observe("batch_stats", timer, err) }()

	if err := authorize(actor, nil, AdminOnly); err != nil {
		return nil, err
	}
	containers, err := m.store.ListContainers()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(containers))
	for _, c := range containers {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return m.CollectBatch(ctx, names)
}
