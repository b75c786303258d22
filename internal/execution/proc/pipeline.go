package proc

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Pipeline describes a chain of commands `a | b | c` that has not been
// started yet. Like Cmd, a Pipeline is immutable.
//
// Stream redirects set on the pipeline apply to the pipeline as a whole:
// stdin feeds the first stage, stdout drains the last one and stderr
// receives the merged standard error of all stages. Every other option
// acts as a default for each stage.
type Pipeline struct {
	cmds []*Cmd
	opts options
}

var _ Stager = (*Pipeline)(nil)

// NewPipeline creates a pipeline descriptor from one or more commands.
func NewPipeline(cmds ...*Cmd) (*Pipeline, error) {
	if len(cmds) == 0 {
		return nil, fmt.Errorf("%w: pipeline without commands", ErrInvalidArgument)
	}

	for i, cmd := range cmds {
		if cmd == nil {
			return nil, fmt.Errorf("%w: nil command at stage %d", ErrInvalidArgument, i)
		}
	}

	return &Pipeline{cmds: slices.Clone(cmds)}, nil
}

// Commands returns the stages of the pipeline, with pipeline-level
// defaults applied.
func (p *Pipeline) Commands() []*Cmd {
	defaults := p.opts.withoutRedirects()

	cmds := make([]*Cmd, len(p.cmds))
	for i, cmd := range p.cmds {
		cmds[i] = &Cmd{
			argv: cmd.argv,
			opts: merge(defaults, cmd.opts),
		}
	}

	return cmds
}

// Len returns the number of stages.
func (p *Pipeline) Len() int {
	return len(p.cmds)
}

// Pipe appends next, a command or a whole pipeline, to the pipeline.
func (p *Pipeline) Pipe(next Stager) *Pipeline {
	return &Pipeline{
		cmds: slices.Concat(p.cmds, next.Commands()),
		opts: merge(p.opts, options{}),
	}
}

// Update returns a copy of the pipeline with the given pipeline-level
// options overriding the existing ones.
func (p *Pipeline) Update(opts ...Option) *Pipeline {
	return &Pipeline{
		cmds: p.cmds,
		opts: merge(p.opts, newOptions(opts...)),
	}
}

// Popen spawns every stage of the pipeline. Redirects left unset in
// config fall back to the pipeline's own.
func (p *Pipeline) Popen(config PopenConfig) (*PopenPipeline, error) {
	config.Stdin = config.Stdin.or(p.opts.stdin)
	config.Stdout = config.Stdout.or(p.opts.stdout)
	config.Stderr = config.Stderr.or(p.opts.stderr)

	if config.Log == nil {
		config.Log = p.opts.log
	}

	return Popen(p.Commands(), config)
}

// Run runs the pipeline to completion, feeding stdin to the first stage,
// and returns the standard output of the last stage. If any stage exits
// with a non-zero status, a *CommandError with the return codes of all
// stages and the captured output is returned.
func (p *Pipeline) Run(ctx context.Context, stdin []byte) ([]byte, error) {
	stdout, _, err := p.RunOutput(ctx, stdin)
	return stdout, err
}

// RunOutput is like Run, but also returns the merged standard error of
// the stages.
func (p *Pipeline) RunOutput(ctx context.Context, stdin []byte) ([]byte, []byte, error) {
	return run(ctx, p.Commands(), p.String(), p.opts, stdin)
}

func (p *Pipeline) String() string {
	parts := make([]string, len(p.cmds))
	for i, cmd := range p.cmds {
		parts[i] = cmd.String()
	}

	return strings.Join(parts, " | ")
}
