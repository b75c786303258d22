package dispatcher

import (
	"context"

	"github.com/lambda-feedback/procpipe/internal/execution/runner"
)

type Dispatcher interface {
	// Send runs a pipeline request on a runner and returns the result
	Send(context.Context, runner.Request) (*runner.Result, error)

	// Start starts the dispatcher and all runners
	Start(context.Context) error

	// Shutdown stops the dispatcher and waits for all runners to finish.
	Shutdown(context.Context) error
}

type RunnerFactory func(runner.Params) (runner.Runner, error)

func defaultRunnerFactory(params runner.Params) (runner.Runner, error) {
	return runner.New(params)
}
