package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/cuemby/gpubox/pkg/config"
	"github.com/cuemby/gpubox/pkg/log"
	"github.com/cuemby/gpubox/pkg/metrics"
	"github.com/cuemby/gpubox/pkg/types"
	"github.com/rs/zerolog"
)

// benignDiagnostics are engine warnings that do not fail an operation
var benignDiagnostics = []string{
	"WARNING: Your kernel does not support swap limit capabilities",
}

// missingMarkers identify engine errors caused by an unknown container
var missingMarkers = []string{
	"No such container",
	"No such object",
}

// CLI implements Client by invoking the docker command line
type CLI struct {
	binary   string
	dns      []string
	timeouts config.Timeouts
	factory  CommandFactory
	logger   zerolog.Logger
}

// NewCLI creates a docker CLI client. A nil factory launches real processes.
func NewCLI(docker config.Docker, timeouts config.Timeouts, factory CommandFactory) *CLI {
	if factory == nil {
		factory = NewCommandFactory()
	}
	return &CLI{
		binary:   docker.Binary,
		dns:      docker.DNSList(),
		timeouts: timeouts,
		factory:  factory,
		logger:   log.WithComponent("engine"),
	}
}

// result is the captured output of one invocation
type result struct {
	stdout []byte
	stderr []byte
}

// invoke runs the engine once under a deadline. Stdout and stderr are
// returned even when the process fails.
func (c *CLI) invoke(ctx context.Context, timeout time.Duration, stdin string, args ...string) (result, error) {
	verb := args[0]
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := c.factory.CommandContext(ctx, c.binary, args...)
	cmd.SetStdout(&stdout)
	cmd.SetStderr(&stderr)
	if stdin != "" {
		cmd.SetStdin(strings.NewReader(stdin))
	}

	c.logger.Debug().
		Str("cmd", shellescape.QuoteCommand(append([]string{c.binary}, redact(args)...))).
		Dur("timeout", timeout).
		Msg("Invoking engine")

	timer := metrics.NewTimer()
	err := cmd.Run()
	timer.ObserveDurationVec(metrics.EngineInvocationDuration, verb)
	res := result{stdout: stdout.Bytes(), stderr: stderr.Bytes()}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		metrics.EngineInvocationsTotal.WithLabelValues(verb, "timeout").Inc()
		c.logger.Warn().Str("verb", verb).Dur("timeout", timeout).Msg("Engine invocation timed out")
		return res, fmt.Errorf("engine %s exceeded %s: %w", verb, timeout, types.ErrTimeout)
	case ctx.Err() != nil:
		metrics.EngineInvocationsTotal.WithLabelValues(verb, "canceled").Inc()
		return res, fmt.Errorf("engine %s: %w", verb, ctx.Err())
	case err != nil:
		metrics.EngineInvocationsTotal.WithLabelValues(verb, "error").Inc()
		engErr := &types.EngineError{
			Args:     redact(args),
			ExitCode: cmd.ExitCode(),
			Stderr:   string(res.stderr),
		}
		if isMissing(res.stderr) {
			engErr.Err = types.ErrNotFound
		} else if engErr.ExitCode < 0 {
			engErr.Err = err
		}
		return res, engErr
	}

	metrics.EngineInvocationsTotal.WithLabelValues(verb, "ok").Inc()
	return res, nil
}

// invokeStrict treats any diagnostic output other than a benign warning as failure
func (c *CLI) invokeStrict(ctx context.Context, timeout time.Duration, args ...string) (result, error) {
	res, err := c.invoke(ctx, timeout, "", args...)
	if err != nil {
		return res, err
	}
	if !IsBenignDiagnostic(string(res.stderr)) {
		metrics.EngineInvocationsTotal.WithLabelValues(args[0], "diagnostic").Inc()
		return res, &types.EngineError{Args: redact(args), Stderr: string(res.stderr)}
	}
	if len(bytes.TrimSpace(res.stderr)) > 0 {
		c.logger.Debug().Str("verb", args[0]).Str("stderr", strings.TrimSpace(string(res.stderr))).
			Msg("Ignoring benign engine diagnostic")
	}
	return res, nil
}

// IsBenignDiagnostic reports whether every line of an engine error stream is
// a known harmless warning. An empty stream is benign.
func IsBenignDiagnostic(stderr string) bool {
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		benign := false
		for _, known := range benignDiagnostics {
			if strings.HasPrefix(line, known) {
				benign = true
				break
			}
		}
		if !benign {
			return false
		}
	}
	return true
}

func isMissing(stderr []byte) bool {
	for _, m := range missingMarkers {
		if bytes.Contains(stderr, []byte(m)) {
			return true
		}
	}
	return false
}

// onlyMissing reports whether every error line is about an unknown container
func onlyMissing(stderr []byte) bool {
	found := false
	for _, line := range lines(stderr) {
		if !isMissing(line) {
			return false
		}
		found = true
	}
	return found
}

// redact hides credentials passed through the environment
func redact(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.HasPrefix(a, EnvRootPassword+"=") {
			a = EnvRootPassword + "=<redacted>"
		}
		out[i] = a
	}
	return out
}

func (c *CLI) Run(ctx context.Context, spec RunSpec) error {
	args, err := BuildRunArgs(spec, BuildOptions{DNSServers: c.dns})
	if err != nil {
		return err
	}
	_, err = c.invokeStrict(ctx, c.timeouts.Run, args...)
	return err
}

func (c *CLI) Remove(ctx context.Context, name string) error {
	_, err := c.invoke(ctx, c.timeouts.Default, "", "rm", "-f", name)
	if errors.Is(err, types.ErrNotFound) {
		return nil
	}
	return err
}

func (c *CLI) Start(ctx context.Context, name string) error {
	_, err := c.invokeStrict(ctx, c.timeouts.Default, "start", name)
	return err
}

func (c *CLI) Stop(ctx context.Context, name string) error {
	_, err := c.invokeStrict(ctx, c.timeouts.Default, "stop", name)
	return err
}

func (c *CLI) Restart(ctx context.Context, name string) error {
	_, err := c.invokeStrict(ctx, c.timeouts.Default, "restart", name)
	return err
}

func (c *CLI) Exec(ctx context.Context, name string, stdin string, cmd ...string) (string, error) {
	args := []string{"exec"}
	if stdin != "" {
		args = append(args, "-i")
	}
	args = append(args, name)
	args = append(args, cmd...)
	res, err := c.invoke(ctx, c.timeouts.Default, stdin, args...)
	return string(res.stdout), err
}

func (c *CLI) Logs(ctx context.Context, name string, tail int) (string, error) {
	if tail <= 0 {
		tail = 200
	}
	res, err := c.invoke(ctx, c.timeouts.Default, "", "logs", "--tail", strconv.Itoa(tail), name)
	if err != nil {
		return "", err
	}
	// container stderr is part of the log
	return string(res.stdout) + string(res.stderr), nil
}

func (c *CLI) Inspect(ctx context.Context, name string) (types.StatusSnapshot, error) {
	res, err := c.invoke(ctx, c.timeouts.Default, "", "inspect", "--format", inspectFormat, name)
	if errors.Is(err, types.ErrNotFound) {
		return types.StatusSnapshot{Name: name, State: types.StateNotFound}, nil
	}
	if err != nil {
		return types.StatusSnapshot{}, err
	}
	snaps := parseInspect(res.stdout)
	snap, ok := snaps[name]
	if !ok {
		return types.StatusSnapshot{}, &types.EngineError{Args: []string{"inspect"}, Stderr: "unexpected inspect output"}
	}
	return snap, nil
}

func (c *CLI) Stats(ctx context.Context, name string) (types.StatsSnapshot, error) {
	res, err := c.invoke(ctx, c.timeouts.Stats, "", "stats", "--no-stream", "--format", jsonFormat, name)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return types.StatsSnapshot{}, types.NotFoundf("engine container %s", name)
		}
		return types.StatsSnapshot{}, err
	}
	stats := parseStats(res.stdout)
	snap, ok := stats[name]
	if !ok {
		return types.StatsSnapshot{}, &types.EngineError{Args: []string{"stats"}, Stderr: "unexpected stats output"}
	}
	return snap, nil
}

// InspectBatch queries all names in one invocation. Names the engine does
// not know are reported as StateNotFound.
func (c *CLI) InspectBatch(ctx context.Context, names []string) (map[string]types.StatusSnapshot, error) {
	if len(names) == 0 {
		return map[string]types.StatusSnapshot{}, nil
	}

	args := append([]string{"inspect", "--format", inspectFormat}, names...)
	res, err := c.invoke(ctx, c.timeouts.Stats, "", args...)
	if err != nil && !(errors.Is(err, types.ErrNotFound) && onlyMissing(res.stderr)) {
		return nil, err
	}

	snaps := parseInspect(res.stdout)
	for _, name := range names {
		if _, ok := snaps[name]; !ok {
			snaps[name] = types.StatusSnapshot{Name: name, State: types.StateNotFound}
		}
	}
	return snaps, nil
}

// StatsBatch samples all names in one invocation. Names the engine does not
// know are absent from the result.
func (c *CLI) StatsBatch(ctx context.Context, names []string) (map[string]types.StatsSnapshot, error) {
	if len(names) == 0 {
		return map[string]types.StatsSnapshot{}, nil
	}

	args := append([]string{"stats", "--no-stream", "--format", jsonFormat}, names...)
	res, err := c.invoke(ctx, c.timeouts.Stats, "", args...)
	if err != nil && !(errors.Is(err, types.ErrNotFound) && onlyMissing(res.stderr)) {
		return nil, err
	}
	return parseStats(res.stdout), nil
}

func (c *CLI) Search(ctx context.Context, term string, limit int) ([]types.ImageSearchResult, error) {
	if limit <= 0 {
		limit = 25
	}
	res, err := c.invoke(ctx, c.timeouts.Default, "", "search", "--no-trunc", "--limit", strconv.Itoa(limit), "--format", jsonFormat, term)
	if err != nil {
		return nil, err
	}
	return parseSearch(res.stdout), nil
}

func (c *CLI) ListManaged(ctx context.Context) ([]string, error) {
	res, err := c.invoke(ctx, c.timeouts.Default, "", "ps", "-a", "--filter", "label="+LabelManaged+"=true", "--format", "{{.Names}}")
	if err != nil {
		return nil, err
	}
	return parseNames(res.stdout), nil
}

func (c *CLI) Ping(ctx context.Context) error {
	_, err := c.invoke(ctx, c.timeouts.Default, "", "version", "--format", "{{.Server.Version}}")
	return err
}
