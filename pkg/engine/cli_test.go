package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/gpubox/pkg/config"
	"github.com/cuemby/gpubox/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const swapWarning = "WARNING: Your kernel does not support swap limit capabilities or the cgroup is not mounted. Memory limited without swap.\n"

func newTestCLI(respond func(args []string) fakeResponse) (*CLI, *fakeFactory) {
	f := &fakeFactory{respond: respond}
	cfg := config.Default()
	cfg.Timeouts = config.Timeouts{
		Run:     200 * time.Millisecond,
		Default: 200 * time.Millisecond,
		Stats:   200 * time.Millisecond,
	}
	return NewCLI(cfg.Docker, cfg.Timeouts, f), f
}

func TestIsBenignDiagnostic(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   bool
	}{
		{"empty", "", true},
		{"whitespace", "  \n", true},
		{"swap warning", swapWarning, true},
		{"swap warning twice", swapWarning + swapWarning, true},
		{"other warning", "WARNING: something else\n", false},
		{"swap warning plus error", swapWarning + "docker: Error response from daemon: conflict\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBenignDiagnostic(tt.stderr))
		})
	}
}

func TestRunUsesBinaryAndDNS(t *testing.T) {
	cli, f := newTestCLI(nil)

	require.NoError(t, cli.Run(context.Background(), validSpec()))

	calls := f.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "docker", calls[0].name)
	_, dns := countFlag(calls[0].args, "--dns")
	assert.Equal(t, []string{"8.8.8.8", "1.1.1.1"}, dns)
}

func TestRunDiagnostics(t *testing.T) {
	tests := []struct {
		name    string
		resp    fakeResponse
		wantErr error
	}{
		{"clean", fakeResponse{stdout: "abc123\n"}, nil},
		{"benign warning", fakeResponse{stdout: "abc123\n", stderr: swapWarning}, nil},
		{"unknown diagnostic", fakeResponse{stdout: "abc123\n", stderr: "WARNING: IPv4 forwarding is disabled\n"}, types.ErrEngine},
		{"non-zero exit", fakeResponse{stderr: "docker: invalid reference format\n", exit: 125}, types.ErrEngine},
		{"timeout", fakeResponse{hang: true}, types.ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, _ := newTestCLI(func([]string) fakeResponse { return tt.resp })

			err := cli.Run(context.Background(), validSpec())
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestTimeoutIsNotEngineError(t *testing.T) {
	cli, _ := newTestCLI(func([]string) fakeResponse { return fakeResponse{hang: true} })

	err := cli.Start(context.Background(), "box")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrTimeout))
	assert.False(t, errors.Is(err, types.ErrEngine))
	assert.Equal(t, "TIMEOUT", types.Code(err))
}

func TestEngineErrorRedactsPassword(t *testing.T) {
	cli, _ := newTestCLI(func([]string) fakeResponse {
		return fakeResponse{stderr: "boom", exit: 1}
	})

	err := cli.Run(context.Background(), validSpec())
	var engErr *types.EngineError
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, 1, engErr.ExitCode)
	assert.Contains(t, engErr.Args, "ROOT_PASSWORD=<redacted>")
	assert.NotContains(t, joined(engErr.Args), validSpec().Password)
}

func TestRemoveToleratesMissing(t *testing.T) {
	cli, _ := newTestCLI(func([]string) fakeResponse {
		return fakeResponse{stderr: "Error response from daemon: No such container: box\n", exit: 1}
	})
	assert.NoError(t, cli.Remove(context.Background(), "box"))
}

func TestInspectNotFound(t *testing.T) {
	cli, _ := newTestCLI(func([]string) fakeResponse {
		return fakeResponse{stderr: "Error: No such object: ghost\n", exit: 1}
	})

	snap, err := cli.Inspect(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, types.StateNotFound, snap.State)
}

func TestInspectRunning(t *testing.T) {
	cli, _ := newTestCLI(func([]string) fakeResponse {
		return fakeResponse{stdout: "/box:running:4242\n"}
	})

	snap, err := cli.Inspect(context.Background(), "box")
	require.NoError(t, err)
	assert.Equal(t, types.StateRunning, snap.State)
	assert.Equal(t, 4242, snap.Pid)
}

func TestBatchEmptyMakesNoCalls(t *testing.T) {
	cli, f := newTestCLI(nil)

	stats, err := cli.StatsBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, stats)

	status, err := cli.InspectBatch(context.Background(), []string{})
	require.NoError(t, err)
	assert.Empty(t, status)

	assert.Empty(t, f.Calls())
}

func TestInspectBatchSingleCall(t *testing.T) {
	cli, f := newTestCLI(func(args []string) fakeResponse {
		return fakeResponse{
			stdout: "/a:running:11\n/b:exited:0\ngarbage line\n",
			stderr: "Error: No such object: c\n",
			exit:   1,
		}
	})

	snaps, err := cli.InspectBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, f.Calls(), 1)
	assert.Equal(t, []string{"inspect", "--format", inspectFormat, "a", "b", "c"}, f.Calls()[0].args)

	assert.Equal(t, types.StateRunning, snaps["a"].State)
	assert.Equal(t, 11, snaps["a"].Pid)
	assert.Equal(t, types.StateExited, snaps["b"].State)
	assert.Equal(t, types.StateNotFound, snaps["c"].State)
}

func TestInspectBatchEngineFailure(t *testing.T) {
	cli, _ := newTestCLI(func([]string) fakeResponse {
		return fakeResponse{stderr: "Cannot connect to the Docker daemon\n", exit: 1}
	})

	_, err := cli.InspectBatch(context.Background(), []string{"a"})
	assert.True(t, errors.Is(err, types.ErrEngine))
}

func TestStatsBatchSingleCall(t *testing.T) {
	cli, f := newTestCLI(func(args []string) fakeResponse {
		return fakeResponse{stdout: `{"BlockIO":"0B / 0B","CPUPerc":"1.50%","Container":"a","ID":"aaa","MemPerc":"0.05%","MemUsage":"1.5MiB / 2GiB","Name":"a","NetIO":"1kB / 2kB","PIDs":"3"}
{not json
{"CPUPerc":"0.00%","Name":"b","MemUsage":"0B / 0B"}
`}
	})

	stats, err := cli.StatsBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, f.Calls(), 1)
	assert.Equal(t, []string{"stats", "--no-stream", "--format", jsonFormat, "a", "b"}, f.Calls()[0].args)

	require.Len(t, stats, 2)
	assert.Equal(t, "1.50%", stats["a"].CPUPerc)
	assert.Equal(t, int64(1572864), stats["a"].MemBytes)
	assert.Equal(t, int64(2*1024*1024*1024), stats["a"].MemLimitB)
	assert.Equal(t, "3", stats["a"].PIDs)
}

func TestExecPassesStdin(t *testing.T) {
	cli, f := newTestCLI(nil)

	_, err := cli.Exec(context.Background(), "box", "root:secret\n", "chpasswd")
	require.NoError(t, err)

	calls := f.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"exec", "-i", "box", "chpasswd"}, calls[0].args)
	assert.Equal(t, "root:secret\n", calls[0].stdin)
}

func TestLogsCombinesStreams(t *testing.T) {
	cli, f := newTestCLI(func([]string) fakeResponse {
		return fakeResponse{stdout: "out\n", stderr: "err\n"}
	})

	logs, err := cli.Logs(context.Background(), "box", 0)
	require.NoError(t, err)
	assert.Contains(t, logs, "out")
	assert.Contains(t, logs, "err")
	assert.Equal(t, []string{"logs", "--tail", "200", "box"}, f.Calls()[0].args)
}

func TestSearchAndListManaged(t *testing.T) {
	cli, _ := newTestCLI(func(args []string) fakeResponse {
		switch {
		case verbIs(args, "search"):
			return fakeResponse{stdout: `{"Name":"ubuntu","Description":"Ubuntu","StarCount":"17000","IsOfficial":"[OK]"}
{"Name":"ubuntu-dev","Description":"","StarCount":"3","IsOfficial":""}
`}
		case verbIs(args, "ps"):
			return fakeResponse{stdout: "a\nb\n"}
		}
		return fakeResponse{}
	})

	images, err := cli.Search(context.Background(), "ubuntu", 0)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.True(t, images[0].Official)
	assert.False(t, images[1].Official)

	names, err := cli.ListManaged(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}
