package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/lambda-feedback/procpipe/internal/execution"
	"github.com/lambda-feedback/procpipe/internal/execution/definition"
	"github.com/lambda-feedback/procpipe/internal/execution/runner"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrPipelineNotFound = errors.New("pipeline not found")

// Runtime is the interface for a runtime.
type Runtime interface {
	// Handle runs the named pipeline with the request's stdin.
	Handle(context.Context, RunRequest) (*Result, error)

	// Pipelines lists the pipelines the runtime can run.
	Pipelines() []definition.Entry

	Start(context.Context) error

	Shutdown(context.Context) error
}

// Result is the outcome of a pipeline run.
type Result = runner.Result

// Dispatcher is the runtime-specific dispatcher type.
type Dispatcher = execution.Dispatcher

// Config is the runtime-specific type for the config.
type Config = execution.Config

// PipelineRuntime runs pipelines of a catalog through a dispatcher.
type PipelineRuntime struct {
	catalog *definition.Catalog

	dispatcher Dispatcher

	log *zap.Logger
}

var _ Runtime = (*PipelineRuntime)(nil)

// RuntimeParams defines the dependencies for the runtime.
type RuntimeParams struct {
	fx.In

	// Context is the context to use for the underlying dispatcher
	Context context.Context

	// Config is the config for the catalog and the dispatcher
	Config Config

	// Log is the logger to use for the runtime
	Log *zap.Logger
}

// NewRuntime creates a new runtime.
func NewRuntime(params RuntimeParams) (Runtime, error) {
	log := params.Log.Named("runtime")

	catalog, err := execution.LoadCatalog(params.Config, log)
	if err != nil {
		return nil, err
	}

	dispatcher, err := execution.NewDispatcher(execution.Params{
		Context: params.Context,
		Config:  params.Config,
		Log:     params.Log,
	})
	if err != nil {
		return nil, err
	}

	return &PipelineRuntime{
		catalog:    catalog,
		dispatcher: dispatcher,
		log:        log,
	}, nil
}

func NewLifecycleRuntime(params RuntimeParams, lc fx.Lifecycle) (Runtime, error) {
	r, err := NewRuntime(params)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return r.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return r.Shutdown(ctx)
		},
	})

	return r, nil
}

func (r *PipelineRuntime) Start(ctx context.Context) error {
	return r.dispatcher.Start(ctx)
}

func (r *PipelineRuntime) Handle(ctx context.Context, req RunRequest) (*Result, error) {
	p, ok := r.catalog.Get(req.Pipeline)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPipelineNotFound, req.Pipeline)
	}

	return r.dispatcher.Send(ctx, runner.Request{
		Pipeline: p,
		Stdin:    req.Stdin,
	})
}

func (r *PipelineRuntime) Pipelines() []definition.Entry {
	return r.catalog.Entries()
}

func (r *PipelineRuntime) Shutdown(ctx context.Context) error {
	return r.dispatcher.Shutdown(ctx)
}
