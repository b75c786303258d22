package execution

import (
	"context"

	"github.com/lambda-feedback/procpipe/internal/execution/dispatcher"
	"github.com/lambda-feedback/procpipe/internal/execution/runner"
	"go.uber.org/zap"
)

type Dispatcher dispatcher.Dispatcher

type Config struct {
	// MaxWorkers is the maximum number of concurrent pipeline runs
	// when employing a pooled dispatcher.
	MaxWorkers int `conf:"max_workers"`

	// Dedicated runs all pipelines one after another on a single
	// runner instead of a pool.
	Dedicated bool `conf:"dedicated"`

	// Definitions is the path of a YAML file with pipeline definitions.
	Definitions string `conf:"definitions"`

	// Command is a single command, run through the shell, that is
	// registered as the default pipeline.
	Command string `conf:"command"`

	// Runner is the configuration of the runners
	Runner runner.Config `conf:",squash"`
}

type Params struct {
	// Context is the context to use for the dispatcher
	Context context.Context

	// Config is the config for the dispatcher and the underlying runners
	Config Config

	// Log is the logger to use for the dispatcher
	Log *zap.Logger
}

func NewDispatcher(params Params) (dispatcher.Dispatcher, error) {
	if params.Config.Dedicated {
		return dispatcher.NewDedicatedDispatcher(
			dispatcher.DedicatedDispatcherParams{
				Config: dispatcher.DedicatedDispatcherConfig{
					Runner: params.Config.Runner,
				},
				Log: params.Log,
			},
		)
	} else {
		return dispatcher.NewPooledDispatcher(
			dispatcher.PooledDispatcherParams{
				Config: dispatcher.PooledDispatcherConfig{
					Runner:     params.Config.Runner,
					MaxWorkers: params.Config.MaxWorkers,
				},
				Context: params.Context,
				Log:     params.Log,
			},
		)
	}
}
