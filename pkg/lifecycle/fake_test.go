package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cuemby/gpubox/pkg/engine"
	"github.com/cuemby/gpubox/pkg/ports"
	"github.com/cuemby/gpubox/pkg/storage"
	"github.com/cuemby/gpubox/pkg/types"
	"github.com/stretchr/testify/require"
)

// fakeEngine is an in-memory engine that records every invocation
type fakeEngine struct {
	mu     sync.Mutex
	live   map[string]engine.RunSpec
	states map[string]types.ContainerState
	calls  []string

	runErr     error
	removeErr  error
	execErr    error
	inspectErr error
	stdinSeen  []string

	// restartHook runs inside Restart, outside the fake's lock
	restartHook func()
	inFlight    atomic.Int32
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		live:   make(map[string]engine.RunSpec),
		states: make(map[string]types.ContainerState),
	}
}

func (f *fakeEngine) record(verb string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, verb)
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) Has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.live[name]
	return ok
}

func (f *fakeEngine) Spec(name string) engine.RunSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live[name]
}

func (f *fakeEngine) Run(ctx context.Context, spec engine.RunSpec) error {
	f.record("run")
	if _, err := engine.BuildRunArgs(spec, engine.BuildOptions{}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runErr != nil {
		return f.runErr
	}
	f.live[spec.Name] = spec
	f.states[spec.Name] = types.StateRunning
	return nil
}

func (f *fakeEngine) Remove(ctx context.Context, name string) error {
	f.record("rm")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.live, name)
	delete(f.states, name)
	return nil
}

func (f *fakeEngine) setState(verb, name string, state types.ContainerState) error {
	f.record(verb)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.live[name]; !ok {
		return &types.EngineError{Args: []string{verb, name}, ExitCode: 1, Stderr: "No such container: " + name, Err: types.ErrNotFound}
	}
	f.states[name] = state
	return nil
}

func (f *fakeEngine) Start(ctx context.Context, name string) error {
	return f.setState("start", name, types.StateRunning)
}

func (f *fakeEngine) Stop(ctx context.Context, name string) error {
	return f.setState("stop", name, types.StateExited)
}

func (f *fakeEngine) Restart(ctx context.Context, name string) error {
	f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	if f.restartHook != nil {
		f.restartHook()
	}
	return f.setState("restart", name, types.StateRunning)
}

func (f *fakeEngine) Exec(ctx context.Context, name string, stdin string, cmd ...string) (string, error) {
	f.record("exec")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stdinSeen = append(f.stdinSeen, stdin)
	return "", f.execErr
}

func (f *fakeEngine) Logs(ctx context.Context, name string, tail int) (string, error) {
	f.record("logs")
	return "log line\n", nil
}

func (f *fakeEngine) Inspect(ctx context.Context, name string) (types.StatusSnapshot, error) {
	f.record("inspect")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inspectErr != nil {
		return types.StatusSnapshot{}, f.inspectErr
	}
	state, ok := f.states[name]
	if !ok {
		return types.StatusSnapshot{Name: name, State: types.StateNotFound}, nil
	}
	return types.StatusSnapshot{Name: name, State: state, Pid: 100}, nil
}

func (f *fakeEngine) Stats(ctx context.Context, name string) (types.StatsSnapshot, error) {
	f.record("stats")
	return types.StatsSnapshot{Name: name, CPUPerc: "1.00%"}, nil
}

func (f *fakeEngine) InspectBatch(ctx context.Context, names []string) (map[string]types.StatusSnapshot, error) {
	if len(names) == 0 {
		return map[string]types.StatusSnapshot{}, nil
	}
	f.record("inspect-batch")
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]types.StatusSnapshot)
	for _, n := range names {
		if state, ok := f.states[n]; ok {
			out[n] = types.StatusSnapshot{Name: n, State: state, Pid: 100}
		}
	}
	return out, nil
}

func (f *fakeEngine) StatsBatch(ctx context.Context, names []string) (map[string]types.StatsSnapshot, error) {
	if len(names) == 0 {
		return map[string]types.StatsSnapshot{}, nil
	}
	f.record("stats-batch")
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]types.StatsSnapshot)
	for _, n := range names {
		if _, ok := f.live[n]; ok {
			out[n] = types.StatsSnapshot{Name: n, CPUPerc: "0.50%"}
		}
	}
	return out, nil
}

func (f *fakeEngine) Search(ctx context.Context, term string, limit int) ([]types.ImageSearchResult, error) {
	f.record("search")
	return []types.ImageSearchResult{{Name: term, Official: true}}, nil
}

func (f *fakeEngine) ListManaged(ctx context.Context) ([]string, error) {
	f.record("ps")
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for n := range f.live {
		names = append(names, n)
	}
	return names, nil
}

func (f *fakeEngine) Ping(ctx context.Context) error {
	f.record("version")
	return nil
}

// faultyStore fails selected writes
type faultyStore struct {
	storage.Store
	createErr   error
	deleteErr   error
	passwordErr error
}

func (s *faultyStore) CreateContainer(c *types.Container) error {
	if s.createErr != nil {
		return s.createErr
	}
	return s.Store.CreateContainer(c)
}

func (s *faultyStore) DeleteContainer(name string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.Store.DeleteContainer(name)
}

func (s *faultyStore) UpdateContainerPassword(name, password string) error {
	if s.passwordErr != nil {
		return s.passwordErr
	}
	return s.Store.UpdateContainerPassword(name, password)
}

type harness struct {
	mgr    *Manager
	store  *faultyStore
	bolt   *storage.BoltStore
	engine *fakeEngine
}

var (
	admin = types.Actor{UserID: 1, Role: types.RoleAdmin}
	owner = types.Actor{UserID: 42, Role: types.RoleUser}
	other = types.Actor{UserID: 7, Role: types.RoleUser}
)

func newHarness(t *testing.T) *harness {
	t.Helper()
	bolt, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	for _, u := range []*types.User{
		{ID: 1, Name: "Root Admin", Role: types.RoleAdmin},
		{ID: 42, Name: "Test User", Role: types.RoleUser},
		{ID: 7, Name: "Someone Else", Role: types.RoleUser},
	} {
		require.NoError(t, bolt.CreateUser(u))
	}

	store := &faultyStore{Store: bolt}
	alloc, err := ports.NewAllocator(store, 20000, 21000)
	require.NoError(t, err)

	eng := newFakeEngine()
	mgr := NewManager(store, eng, alloc, nil, Options{
		PasswordMinLength: 8,
		StatusFanout:      4,
		PublicHost:        "localhost",
	})
	return &harness{mgr: mgr, store: store, bolt: bolt, engine: eng}
}

func defaultRequest() CreateRequest {
	return CreateRequest{
		Image:       "ubuntu:latest",
		MemoryLimit: "2g",
		CPUs:        2,
		GPUs:        "none",
		UserID:      42,
	}
}

// seed creates a container for user 42 and clears the recorded calls
func (h *harness) seed(t *testing.T) *types.Container {
	t.Helper()
	c, err := h.mgr.Create(context.Background(), admin, defaultRequest())
	require.NoError(t, err)
	h.engine.mu.Lock()
	h.engine.calls = nil
	h.engine.mu.Unlock()
	return c
}
