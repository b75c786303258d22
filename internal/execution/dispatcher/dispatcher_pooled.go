package dispatcher

import (
	"context"
	"fmt"
	"runtime"

	"github.com/jackc/puddle/v2"
	"github.com/lambda-feedback/procpipe/internal/execution/runner"
	"go.uber.org/zap"
)

// PooledDispatcher runs requests concurrently on a bounded pool of
// runners.
type PooledDispatcher struct {
	ctx  context.Context
	pool *puddle.Pool[runner.Runner]
	log  *zap.Logger
}

var _ Dispatcher = (*PooledDispatcher)(nil)

type PooledDispatcherConfig struct {
	// MaxWorkers is the maximum number of concurrent pipeline runs.
	// Defaults to the number of CPU cores.
	MaxWorkers int `conf:"max_workers"`

	// Runner is the configuration to use for the runners
	Runner runner.Config `conf:"runner,squash"`
}

type PooledDispatcherParams struct {
	// Context is the context to use for the dispatcher
	Context context.Context

	// Config is the config for the dispatcher and the underlying runners
	Config PooledDispatcherConfig

	// RunnerFactory is the factory function to create a new runner
	RunnerFactory RunnerFactory

	// Log is the logger to use for the dispatcher
	Log *zap.Logger
}

func NewPooledDispatcher(params PooledDispatcherParams) (Dispatcher, error) {
	if params.RunnerFactory == nil {
		params.RunnerFactory = defaultRunnerFactory
	}

	if params.Context == nil {
		params.Context = context.Background()
	}

	if params.Config.MaxWorkers <= 0 {
		params.Config.MaxWorkers = runtime.NumCPU()
	}

	pool, err := createPool(params)
	if err != nil {
		return nil, err
	}

	return &PooledDispatcher{
		pool: pool,
		ctx:  params.Context,
		log:  params.Log.Named("dispatcher_pooled"),
	}, nil
}

func (m *PooledDispatcher) Start(context.Context) error {
	// runners are created lazily by the pool
	return nil
}

func (m *PooledDispatcher) Send(ctx context.Context, req runner.Request) (*runner.Result, error) {
	resource, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("error acquiring runner: %w", err)
	}

	res, err := resource.Value().Run(ctx, req)
	if err != nil {
		m.log.Debug("destroying runner due to error", zap.Error(err))
		resource.Destroy()
		return res, fmt.Errorf("error running pipeline: %w", err)
	}

	m.log.Debug("releasing runner back to pool")
	resource.Release()

	return res, nil
}

// Shutdown stops the dispatcher and waits for all runners to finish.
func (m *PooledDispatcher) Shutdown(context.Context) error {
	m.log.Debug("shutting down dispatcher")
	m.pool.Close()
	return nil
}

// MARK: - Pool

func createPool(params PooledDispatcherParams) (*puddle.Pool[runner.Runner], error) {
	log := params.Log.Named("dispatcher_pool")

	constructor := func(ctx context.Context) (runner.Runner, error) {
		r, err := params.RunnerFactory(runner.Params{
			Config: params.Config.Runner,
			Log:    params.Log,
		})
		if err != nil {
			return nil, err
		}

		if err = r.Start(ctx); err != nil {
			return nil, err
		}

		return r, nil
	}

	destructor := func(r runner.Runner) {
		if err := r.Shutdown(params.Context); err != nil {
			log.Error("error shutting down runner", zap.Error(err))
		}
	}

	return puddle.NewPool(&puddle.Config[runner.Runner]{
		Constructor: constructor,
		Destructor:  destructor,
		MaxSize:     int32(params.Config.MaxWorkers),
	})
}
