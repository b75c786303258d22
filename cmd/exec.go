package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lambda-feedback/procpipe/config"
	"github.com/lambda-feedback/procpipe/internal/execution/proc"
	"github.com/lambda-feedback/procpipe/internal/shell"
	"github.com/lambda-feedback/procpipe/util/conf"
	"github.com/lambda-feedback/procpipe/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	execCmdDescription = `The exec command runs a single pipeline in the foreground.
The arguments are split into stages on literal "|" arguments,
no other shell syntax is interpreted:

    procpipe exec -- grep -v '^#' '|' sort '|' uniq -c

The first stage reads the process stdin, the last stage writes
to the process stdout and all stages share the process stderr.
The command exits with the first non-zero exit code in stage
order, or 128+n if that stage was killed by signal n.`
	execCmd = &cli.Command{
		Name:        "exec",
		Usage:       "Run a pipeline in the foreground.",
		ArgsUsage:   "ARGV [| ARGV]...",
		Description: execCmdDescription,
		Action:      execAction,
	}
)

var errNoArgs = errors.New("no command given")

// terminateGrace is how long stages may take to exit after an interrupt
// before they are killed.
const terminateGrace = 5 * time.Second

func execAction(ctx *cli.Context) error {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return err
	}

	cfg, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return err
	}

	p, err := parsePipeline(ctx.Args().Slice(), proc.WithLogger(log))
	if err != nil {
		return err
	}

	runCtx := ctx.Context
	if timeout := cfg.Runtime.Runner.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}

	running, err := p.Popen(proc.PopenConfig{
		Stdin:       proc.Inherit,
		Stdout:      proc.Inherit,
		Stderr:      proc.Inherit,
		PollTimeout: cfg.Runtime.Runner.PollTimeout,
		Log:         log,
	})
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	finished := make(chan struct{})
	defer close(finished)

	go func() {
		select {
		case <-finished:
		case <-sigCtx.Done():
			select {
			case <-finished:
				return
			default:
			}

			log.Info("interrupted, terminating pipeline")

			if err := running.Terminate(terminateGrace); err != nil {
				log.Warn("failed to terminate pipeline", zap.Error(err))
			}
		}
	}()

	if _, _, err := running.Communicate(runCtx, nil); err != nil {
		log.Debug("pipeline interrupted", zap.Error(err))
	}

	codes := running.Wait()

	log.Debug("pipeline exited", zap.Ints("return_codes", codes))

	return shell.NewExitError(exitStatus(codes))
}

// parsePipeline splits args on literal "|" arguments into stages.
func parsePipeline(args []string, opts ...proc.Option) (*proc.Pipeline, error) {
	if len(args) == 0 {
		return nil, errNoArgs
	}

	var cmds []*proc.Cmd

	start := 0
	for i := 0; i <= len(args); i++ {
		if i < len(args) && args[i] != "|" {
			continue
		}

		cmd, err := proc.New(args[start:i], opts...)
		if err != nil {
			return nil, err
		}

		cmds = append(cmds, cmd)
		start = i + 1
	}

	return proc.NewPipeline(cmds...)
}

// exitStatus maps the stage codes to a process exit status, shells
// report a death by signal n as 128+n.
func exitStatus(codes []int) int {
	for _, code := range codes {
		if code < 0 {
			return 128 - code
		}
		if code > 0 {
			return code
		}
	}

	return 0
}

func init() {
	rootApp.Commands = append(rootApp.Commands, execCmd)
}
