package api

import (
	"context"
	"sync"

	"github.com/cuemby/gpubox/pkg/lifecycle"
	"github.com/cuemby/gpubox/pkg/types"
)

var (
	adminActor = types.Actor{UserID: 1, Role: types.RoleAdmin}
	userActor  = types.Actor{UserID: 42, Role: types.RoleUser}
)

type tokenVerifier map[string]types.Actor

func (v tokenVerifier) Verify(token string) (types.Actor, error) {
	actor, ok := v[token]
	if !ok {
		return types.Actor{}, types.ErrUnauthenticated
	}
	return actor, nil
}

var testVerifier = tokenVerifier{
	"admin-token": adminActor,
	"user-token":  userActor,
}

// fakeService records the last call and returns err when set
type fakeService struct {
	mu       sync.Mutex
	err      error
	lastOp   string
	lastName string
	lastArg  any
	actor    types.Actor
}

func (f *fakeService) record(op string, actor types.Actor, name string, arg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastOp, f.actor, f.lastName, f.lastArg = op, actor, name, arg
	return f.err
}

func sampleContainer(name string) *types.Container {
	return &types.Container{ID: 1, Name: name, ImageName: "ubuntu:latest", SSHPort: 20001, JupyterPort: 20002, UserID: 42, GPU: "none", RAM: "2g", CPU: 2}
}

func (f *fakeService) Create(ctx context.Context, actor types.Actor, req lifecycle.CreateRequest) (*types.Container, error) {
	if err := f.record("create", actor, "", req); err != nil {
		return nil, err
	}
	return sampleContainer("test-user-20240102150405-1f2e3d4c"), nil
}

func (f *fakeService) Reset(ctx context.Context, actor types.Actor, name string) error {
	return f.record("reset", actor, name, nil)
}

func (f *fakeService) Start(ctx context.Context, actor types.Actor, name string) error {
	return f.record("start", actor, name, nil)
}

func (f *fakeService) Stop(ctx context.Context, actor types.Actor, name string) error {
	return f.record("stop", actor, name, nil)
}

func (f *fakeService) Restart(ctx context.Context, actor types.Actor, name string) error {
	return f.record("restart", actor, name, nil)
}

func (f *fakeService) Delete(ctx context.Context, actor types.Actor, name string) error {
	return f.record("delete", actor, name, nil)
}

func (f *fakeService) ChangePassword(ctx context.Context, actor types.Actor, name, password string) error {
	return f.record("change_password", actor, name, password)
}

func (f *fakeService) Get(ctx context.Context, actor types.Actor, name string) (*types.ContainerView, error) {
	if err := f.record("get", actor, name, nil); err != nil {
		return nil, err
	}
	return &types.ContainerView{Container: sampleContainer(name), State: types.StateNotFound}, nil
}

func (f *fakeService) ListMine(ctx context.Context, actor types.Actor) ([]*types.ContainerView, error) {
	if err := f.record("list_mine", actor, "", nil); err != nil {
		return nil, err
	}
	running := "running"
	return []*types.ContainerView{{Container: sampleContainer("c1"), Status: &running, State: types.StateRunning}}, nil
}

func (f *fakeService) ListAll(ctx context.Context, actor types.Actor) ([]*types.ContainerView, error) {
	if err := f.record("list_all", actor, "", nil); err != nil {
		return nil, err
	}
	return []*types.ContainerView{}, nil
}

func (f *fakeService) Logs(ctx context.Context, actor types.Actor, name string, tail int) (string, error) {
	if err := f.record("logs", actor, name, tail); err != nil {
		return "", err
	}
	return "hello\n", nil
}

func (f *fakeService) Stats(ctx context.Context, actor types.Actor, name string) (types.StatsSnapshot, error) {
	if err := f.record("stats", actor, name, nil); err != nil {
		return types.StatsSnapshot{}, err
	}
	return types.StatsSnapshot{Name: name, CPUPerc: "1.00%"}, nil
}

func (f *fakeService) BatchStats(ctx context.Context, actor types.Actor) (*lifecycle.BatchStats, error) {
	if err := f.record("batch_stats", actor, "", nil); err != nil {
		return nil, err
	}
	return &lifecycle.BatchStats{
		Stats:  map[string]types.StatsSnapshot{},
		Status: map[string]types.StatusSnapshot{},
	}, nil
}

func (f *fakeService) JupyterURL(actor types.Actor, name string) (string, error) {
	if err := f.record("jupyter", actor, name, nil); err != nil {
		return "", err
	}
	return "http://localhost:20002", nil
}

func (f *fakeService) SearchImages(ctx context.Context, actor types.Actor, term string) ([]types.ImageSearchResult, error) {
	if err := f.record("search", actor, "", term); err != nil {
		return nil, err
	}
	return []types.ImageSearchResult{{Name: term}}, nil
}

func (f *fakeService) SweepAs(ctx context.Context, actor types.Actor) (*types.SweepReport, error) {
	if err := f.record("sweep", actor, "", nil); err != nil {
		return nil, err
	}
	return &types.SweepReport{PersistedWithoutEngine: []string{"stale"}, EngineWithoutPersisted: []string{}}, nil
}

func (f *fakeService) OpenTicket(actor types.Actor, req lifecycle.TicketRequest) (*types.Ticket, error) {
	if err := f.record("open_ticket", actor, req.ContainerName, req); err != nil {
		return nil, err
	}
	return &types.Ticket{ID: 1, Subject: req.Subject, OwnerUserID: actor.UserID, Status: types.TicketOpen}, nil
}

func (f *fakeService) Tickets(actor types.Actor) ([]*types.Ticket, error) {
	if err := f.record("tickets", actor, "", nil); err != nil {
		return nil, err
	}
	return []*types.Ticket{}, nil
}
