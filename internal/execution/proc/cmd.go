package proc

import (
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

// shellPath is the command interpreter used for shell commands.
const shellPath = "/bin/sh"

// Stager is implemented by everything that can form the stages of a
// pipeline: single commands and pipelines.
type Stager interface {
	Commands() []*Cmd
}

// Cmd describes one invocation of an external program. A Cmd is
// immutable: Update, Default and Append return new descriptors, so a Cmd
// may be shared and run any number of times, also concurrently.
type Cmd struct {
	argv []string
	opts options
}

var _ Stager = (*Cmd)(nil)

// New creates a command descriptor from argv, the program followed by
// its arguments.
func New(argv []string, opts ...Option) (*Cmd, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty argv", ErrInvalidArgument)
	}

	if argv[0] == "" {
		return nil, fmt.Errorf("%w: empty program name", ErrInvalidArgument)
	}

	return &Cmd{
		argv: slices.Clone(argv),
		opts: newOptions(opts...),
	}, nil
}

// Command is a shorthand for New([]string{name, args...}).
func Command(name string, args ...string) (*Cmd, error) {
	return New(append([]string{name}, args...))
}

// Argv returns a copy of the command's argv.
func (c *Cmd) Argv() []string {
	return slices.Clone(c.argv)
}

// Commands returns the command itself as a single stage.
func (c *Cmd) Commands() []*Cmd {
	return []*Cmd{c}
}

// Update returns a copy of the command with the given options
// overriding the existing ones.
func (c *Cmd) Update(opts ...Option) *Cmd {
	return &Cmd{
		argv: c.argv,
		opts: merge(c.opts, newOptions(opts...)),
	}
}

// Default returns a copy of the command with the given options applied
// only where the command does not set them already.
func (c *Cmd) Default(opts ...Option) *Cmd {
	return &Cmd{
		argv: c.argv,
		opts: merge(newOptions(opts...), c.opts),
	}
}

// Append returns a copy of the command with extra arguments.
func (c *Cmd) Append(args ...string) *Cmd {
	return &Cmd{
		argv: slices.Concat(c.argv, args),
		opts: merge(c.opts, options{}),
	}
}

// Pipe connects the command's standard output to the standard input of
// next, returning the resulting pipeline descriptor.
func (c *Cmd) Pipe(next Stager) *Pipeline {
	return &Pipeline{
		cmds: slices.Concat([]*Cmd{c}, next.Commands()),
	}
}

// Popen spawns the command as a single-stage pipeline.
func (c *Cmd) Popen(config PopenConfig) (*PopenPipeline, error) {
	if config.Log == nil {
		config.Log = c.opts.log
	}

	return Popen(c.Commands(), config)
}

// Run runs the command to completion, feeding it stdin, and returns its
// standard output. A non-zero exit status is reported as *CommandError
// carrying the captured output. Standard error is captured unless the
// command redirects it; output captured on success is logged.
func (c *Cmd) Run(ctx context.Context, stdin []byte) ([]byte, error) {
	stdout, _, err := c.RunOutput(ctx, stdin)
	return stdout, err
}

// RunOutput is like Run, but also returns the captured standard error,
// whether or not the command succeeded.
func (c *Cmd) RunOutput(ctx context.Context, stdin []byte) ([]byte, []byte, error) {
	return run(ctx, c.Commands(), c.String(), c.opts, stdin)
}

func (c *Cmd) String() string {
	return quoteArgv(c.argv)
}

// execCmd builds the os/exec command for this descriptor. Standard
// streams are wired by the caller.
func (c *Cmd) execCmd() *exec.Cmd {
	argv := c.argv
	if c.opts.useShell() {
		argv = []string{shellPath, "-c", strings.Join(c.argv, " ")}
	}

	cmd := exec.Command(argv[0], argv[1:]...)

	if c.opts.dir != nil {
		cmd.Dir = *c.opts.dir
	}

	if c.opts.envSet {
		env := c.opts.env
		if c.opts.envInherit {
			env = EnvPlus(env)
		}
		cmd.Env = envList(env)
	}

	if c.opts.childSetup != nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
		c.opts.childSetup(cmd.SysProcAttr)
	}

	return cmd
}

// run is shared by Cmd.Run and Pipeline.Run.
func run(
	ctx context.Context,
	stages []*Cmd,
	desc string,
	opts options,
	stdin []byte,
) ([]byte, []byte, error) {
	log := opts.logger().With(zap.String("command", desc))

	p, err := Popen(stages, PopenConfig{
		Stdin:  opts.stdin,
		Stdout: opts.stdout,
		Stderr: opts.stderr,
		Log:    opts.log,
	})
	if err != nil {
		return nil, nil, err
	}

	log.Debug("run", zap.Int("stdin_bytes", len(stdin)))

	stdout, stderr, err := p.Communicate(ctx, stdin)
	if err != nil {
		return stdout, stderr, err
	}

	codes := p.Wait()
	if firstFailure(codes) != 0 {
		return stdout, stderr, newCommandError(desc, codes, stdout, stderr)
	}

	if len(stderr) > 0 {
		log.Warn("command wrote to stderr", zap.ByteString("stderr", stderr))
	}

	return stdout, stderr, nil
}
