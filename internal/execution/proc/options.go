package proc

import (
	"maps"
	"syscall"

	"go.uber.org/zap"
)

// ChildSetupFunc configures the process attributes of a child before it
// is spawned, e.g. to place it in its own process group.
type ChildSetupFunc func(attr *syscall.SysProcAttr)

// options holds the spawn options of a command. Every field has an
// explicit "unset" state, so that option sets can be layered.
type options struct {
	stdin  Redirect
	stdout Redirect
	stderr Redirect

	dir    *string
	env    map[string]string
	envSet bool
	shell  *bool

	// envInherit makes env a set of overrides on top of the parent's
	// environment, read at spawn time
	envInherit bool

	childSetup ChildSetupFunc

	log *zap.Logger
}

// Option sets a spawn option of a command.
type Option func(*options)

// WithStdin sets where the command reads its standard input from.
func WithStdin(r Redirect) Option {
	return func(o *options) {
		o.stdin = r
	}
}

// WithStdout sets where the command writes its standard output to.
func WithStdout(r Redirect) Option {
	return func(o *options) {
		o.stdout = r
	}
}

// WithStderr sets where the command writes its standard error to. In a
// pipeline, a stage with an explicit stderr redirect does not take part
// in the merged stderr stream.
func WithStderr(r Redirect) Option {
	return func(o *options) {
		o.stderr = r
	}
}

// WithDir sets the working directory of the command.
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = &dir
	}
}

// WithEnv replaces the environment of the command. A nil map restores
// inheritance of the parent's environment.
func WithEnv(env map[string]string) Option {
	return func(o *options) {
		o.env = maps.Clone(env)
		o.envSet = env != nil
		o.envInherit = false
	}
}

// WithEnvPlus sets the environment of the command to the parent's
// environment plus the given overrides. The parent's environment is read
// each time the command is spawned.
func WithEnvPlus(overrides map[string]string) Option {
	return func(o *options) {
		o.env = maps.Clone(overrides)
		o.envSet = true
		o.envInherit = true
	}
}

// WithShell makes the command run its argv, joined by spaces, through
// /bin/sh -c.
func WithShell(shell bool) Option {
	return func(o *options) {
		o.shell = &shell
	}
}

// WithChildSetup registers a hook that configures the child's process
// attributes before it is spawned.
func WithChildSetup(fn ChildSetupFunc) Option {
	return func(o *options) {
		o.childSetup = fn
	}
}

// WithLogger sets the logger used by the command and the pipelines
// spawned from it. Without it, the global zap logger is used.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

func newOptions(opts ...Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// merge returns base with every option set in over taking precedence.
func merge(base, over options) options {
	merged := base

	merged.stdin = over.stdin.or(base.stdin)
	merged.stdout = over.stdout.or(base.stdout)
	merged.stderr = over.stderr.or(base.stderr)

	if over.dir != nil {
		merged.dir = over.dir
	}

	if over.envSet {
		merged.env = over.env
		merged.envSet = true
		merged.envInherit = over.envInherit
	}

	if over.shell != nil {
		merged.shell = over.shell
	}

	if over.childSetup != nil {
		merged.childSetup = over.childSetup
	}

	if over.log != nil {
		merged.log = over.log
	}

	merged.env = maps.Clone(merged.env)

	return merged
}

// withoutRedirects returns a copy of o with the stream redirects unset.
func (o options) withoutRedirects() options {
	o.stdin = Redirect{}
	o.stdout = Redirect{}
	o.stderr = Redirect{}

	return o
}

func (o options) logger() *zap.Logger {
	if o.log != nil {
		return o.log
	}

	return zap.L()
}

func (o options) useShell() bool {
	return o.shell != nil && *o.shell
}
