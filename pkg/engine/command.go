package engine

import (
	"context"
	"io"
	"os/exec"
)

// CommandFactory creates CommandExecutor instances.
//
// The factory abstracts process creation so that the CLI client does not
// depend directly on exec.Cmd and can be driven by a fake in tests.
type CommandFactory interface {
	CommandContext(ctx context.Context, name string, args ...string) CommandExecutor
}

// CommandExecutor is the minimal surface of a process used by the client
type CommandExecutor interface {
	Run() error
	ExitCode() int
	SetStdout(w io.Writer)
	SetStderr(w io.Writer)
	SetStdin(r io.Reader)
}

// NewCommandFactory returns the factory that launches real OS processes
func NewCommandFactory() *ExecCommandFactory {
	return &ExecCommandFactory{}
}

// ExecCommandFactory creates executors backed by exec.Cmd
type ExecCommandFactory struct{}

// CommandContext returns an executor that is killed when ctx is done
func (f *ExecCommandFactory) CommandContext(ctx context.Context, name string, args ...string) CommandExecutor {
	return &ExecCmd{cmd: exec.CommandContext(ctx, name, args...)}
}

// ExecCmd is the CommandExecutor backed by exec.Cmd
type ExecCmd struct {
	cmd *exec.Cmd
}

func (e *ExecCmd) Run() error {
	return e.cmd.Run()
}

// ExitCode returns the exit status of the finished process, or -1 if it
// never started or was killed by a signal
func (e *ExecCmd) ExitCode() int {
	if e.cmd.ProcessState == nil {
		return -1
	}
	return e.cmd.ProcessState.ExitCode()
}

func (e *ExecCmd) SetStdout(w io.Writer) {
	e.cmd.Stdout = w
}

func (e *ExecCmd) SetStderr(w io.Writer) {
	e.cmd.Stderr = w
}

func (e *ExecCmd) SetStdin(r io.Reader) {
	e.cmd.Stdin = r
}
