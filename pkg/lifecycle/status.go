package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cuemby/gpubox/pkg/log"
	"github.com/cuemby/gpubox/pkg/metrics"
	"github.com/cuemby/gpubox/pkg/types"
	"golang.org/x/sync/errgroup"
)

// statusOf queries the live state of one container. Engine failures degrade
// to StateUnknown; a missing engine container is StateNotFound. Neither is
// an error.
func (m *Manager) statusOf(ctx context.Context, c *types.Container) *types.ContainerView {
	view := &types.ContainerView{Container: c, State: types.StateUnknown}

	snap, err := m.engine.Inspect(ctx, c.Name)
	if err != nil {
		logger := log.WithContainer("lifecycle", c.Name)
		logger.Warn().Err(err).Msg("Live status unavailable")
		return view
	}
	view.State = snap.State
	if snap.State.Known() {
		status := string(snap.State)
		view.Status = &status
	}
	return view
}

// mergeStatus attaches live status to every record with at most
// StatusFanout concurrent engine queries. Records are never written back.
func (m *Manager) mergeStatus(ctx context.Context, containers []*types.Container) []*types.ContainerView {
	views := make([]*types.ContainerView, len(containers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.StatusFanout)
	for i, c := range containers {
		g.Go(func() error {
			views[i] = m.statusOf(gctx, c)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}

// Get returns one container with its live status
func (m *Manager) Get(ctx context.Context, actor types.Actor, name string) (*types.ContainerView, error) {
	c, err := m.lookup(actor, name, OwnerOrAdmin)
	if err != nil {
		return nil, err
	}
	return m.statusOf(ctx, c), nil
}

// ListMine returns the actor's containers with live status
func (m *Manager) ListMine(ctx context.Context, actor types.Actor) ([]*types.ContainerView, error) {
	if err := authorize(actor, nil, AnyUser); err != nil {
		return nil, err
	}
	containers, err := m.store.ListContainersByUser(actor.UserID)
	if err != nil {
		return nil, err
	}
	return m.mergeStatus(ctx, containers), nil
}

// ListAll returns every container with live status. Administrators only.
func (m *Manager) ListAll(ctx context.Context, actor types.Actor) ([]*types.ContainerView, error) {
	if err := authorize(actor, nil, AdminOnly); err != nil {
		return nil, err
	}
	containers, err := m.store.ListContainers()
	if err != nil {
		return nil, err
	}
	views := m.mergeStatus(ctx, containers)

	counts := make(map[types.ContainerState]int)
	for _, v := range views {
		counts[v.State]++
	}
	metrics.ContainersByState.Reset()
	for state, n := range counts {
		metrics.ContainersByState.WithLabelValues(string(state)).Set(float64(n))
	}
	metrics.ContainersTotal.Set(float64(len(views)))
	return views, nil
}

// Logs returns the last tail lines of the container output
func (m *Manager) Logs(ctx context.Context, actor types.Actor, name string, tail int) (string, error) {
	if _, err := m.lookup(actor, name, OwnerOrAdmin); err != nil {
		return "", err
	}
	return m.engine.Logs(ctx, name, tail)
}

// Stats returns a one-shot resource sample of one container
func (m *Manager) Stats(ctx context.Context, actor types.Actor, name string) (types.StatsSnapshot, error) {
	if _, err := m.lookup(actor, name, OwnerOrAdmin); err != nil {
		return types.StatsSnapshot{}, err
	}
	return m.engine.Stats(ctx, name)
}

// JupyterURL returns the externally reachable notebook address
func (m *Manager) JupyterURL(actor types.Actor, name string) (string, error) {
	c, err := m.lookup(actor, name, OwnerOrAdmin)
	if err != nil {
		return "", err
	}
	return "http://" + m.opts.PublicHost + ":" + strconv.Itoa(c.JupyterPort), nil
}

// SearchImages finds images whose name contains term
func (m *Manager) SearchImages(ctx context.Context, actor types.Actor, term string) ([]types.ImageSearchResult, error) {
	if err := authorize(actor, nil, AnyUser); err != nil {
		return nil, err
	}
	term = strings.TrimSpace(term)
	if len(term) < 2 {
		return nil, types.Validationf("search term must be at least 2 characters")
	}
	if strings.HasPrefix(term, "-") {
		return nil, types.Validationf("invalid search term %q", term)
	}
	results, err := m.engine.Search(ctx, term, m.opts.SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("image search failed: %w", err)
	}
	return results, nil
}
