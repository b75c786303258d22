package dispatcher

import (
	"context"
	"fmt"

	"github.com/lambda-feedback/procpipe/internal/execution/runner"
	"go.uber.org/zap"
)

// DedicatedDispatcher sends every request to one long-lived runner, so
// pipelines run strictly one after another.
type DedicatedDispatcher struct {
	runner runner.Runner
	log    *zap.Logger
}

var _ Dispatcher = (*DedicatedDispatcher)(nil)

type DedicatedDispatcherConfig struct {
	// Runner is the configuration to use for the runner
	Runner runner.Config `conf:"runner,squash"`
}

type DedicatedDispatcherParams struct {
	// Config is the config for the dispatcher and the underlying runner
	Config DedicatedDispatcherConfig

	// RunnerFactory is the factory function to create the runner
	RunnerFactory RunnerFactory

	// Log is the logger to use for the dispatcher
	Log *zap.Logger
}

func NewDedicatedDispatcher(params DedicatedDispatcherParams) (Dispatcher, error) {
	if params.RunnerFactory == nil {
		params.RunnerFactory = defaultRunnerFactory
	}

	r, err := params.RunnerFactory(runner.Params{
		Config: params.Config.Runner,
		Log:    params.Log,
	})
	if err != nil {
		return nil, err
	}

	return &DedicatedDispatcher{
		runner: r,
		log:    params.Log.Named("dispatcher_dedicated"),
	}, nil
}

func (m *DedicatedDispatcher) Start(ctx context.Context) error {
	m.log.Debug("booting")

	if err := m.runner.Start(ctx); err != nil {
		m.log.Error("error booting", zap.Error(err))
		return err
	}

	m.log.Debug("done booting")

	return nil
}

func (m *DedicatedDispatcher) Send(ctx context.Context, req runner.Request) (*runner.Result, error) {
	m.log.Debug("sending request")

	res, err := m.runner.Run(ctx, req)
	if err != nil {
		m.log.Error("error running pipeline", zap.Error(err))
		return res, fmt.Errorf("error running pipeline: %w", err)
	}

	m.log.Debug("request done")

	return res, nil
}

// Shutdown stops the dispatcher and waits for the runner to finish.
func (m *DedicatedDispatcher) Shutdown(ctx context.Context) error {
	m.log.Debug("shutting down")

	if err := m.runner.Shutdown(ctx); err != nil {
		m.log.Error("error shutting down", zap.Error(err))
		return err
	}

	m.log.Debug("shut down")

	return nil
}
