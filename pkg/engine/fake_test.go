package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

type fakeResponse struct {
	stdout string
	stderr string
	exit   int
	hang   bool
}

type fakeCall struct {
	name  string
	args  []string
	stdin string
}

// fakeFactory records every command and answers from respond
type fakeFactory struct {
	mu      sync.Mutex
	calls   []fakeCall
	respond func(args []string) fakeResponse
}

func (f *fakeFactory) CommandContext(ctx context.Context, name string, args ...string) CommandExecutor {
	return &fakeCmd{ctx: ctx, factory: f, name: name, args: args}
}

func (f *fakeFactory) Calls() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeCall(nil), f.calls...)
}

type fakeCmd struct {
	ctx     context.Context
	factory *fakeFactory
	name    string
	args    []string
	stdout  io.Writer
	stderr  io.Writer
	stdin   io.Reader
	exit    int
}

func (c *fakeCmd) Run() error {
	call := fakeCall{name: c.name, args: c.args}
	if c.stdin != nil {
		b, _ := io.ReadAll(c.stdin)
		call.stdin = string(b)
	}
	c.factory.mu.Lock()
	c.factory.calls = append(c.factory.calls, call)
	respond := c.factory.respond
	c.factory.mu.Unlock()

	resp := fakeResponse{}
	if respond != nil {
		resp = respond(c.args)
	}
	if resp.hang {
		<-c.ctx.Done()
		c.exit = -1
		return c.ctx.Err()
	}
	if c.stdout != nil {
		_, _ = io.WriteString(c.stdout, resp.stdout)
	}
	if c.stderr != nil {
		_, _ = io.WriteString(c.stderr, resp.stderr)
	}
	c.exit = resp.exit
	if resp.exit != 0 {
		return fmt.Errorf("exit status %d", resp.exit)
	}
	return nil
}

func (c *fakeCmd) ExitCode() int { return c.exit }
func (c *fakeCmd) SetStdout(w io.Writer) { c.stdout = w }
func (c *fakeCmd) SetStderr(w io.Writer) { c.stderr = w }
func (c *fakeCmd) SetStdin(r io.Reader) { c.stdin = r }

func verbIs(args []string, verb string) bool {
	return len(args) > 0 && args[0] == verb
}

func joined(args []string) string {
	return strings.Join(args, " ")
}
