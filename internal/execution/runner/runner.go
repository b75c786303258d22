package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lambda-feedback/procpipe/internal/execution/poller"
	"github.com/lambda-feedback/procpipe/internal/execution/proc"
	"go.uber.org/zap"
)

type Runner interface {
	// Start prepares the runner for executing pipelines.
	Start(ctx context.Context) error

	// Run spawns the requested pipeline, feeds it the request's stdin
	// and waits for it to complete. A non-zero exit status of any stage
	// is reported through the Result, not as an error.
	Run(ctx context.Context, req Request) (*Result, error)

	// Shutdown releases the resources held by the runner.
	Shutdown(ctx context.Context) error
}

// PipelineRunner runs one pipeline at a time, reusing a single poller
// for every run.
type PipelineRunner struct {
	config Config

	poller *poller.Poller

	// runLock serializes runs, the poller is not safe for concurrent use
	runLock sync.Mutex

	log *zap.Logger
}

var _ Runner = (*PipelineRunner)(nil)

type Params struct {
	// Config is the config used for every run
	Config Config

	// Log is the logger to use for the runner
	Log *zap.Logger
}

func New(params Params) (Runner, error) {
	if params.Config.Timeout < 0 {
		return nil, fmt.Errorf("invalid timeout: %v", params.Config.Timeout)
	}

	return &PipelineRunner{
		config: params.Config,
		log:    params.Log.Named("runner"),
	}, nil
}

func (r *PipelineRunner) Start(context.Context) error {
	r.runLock.Lock()
	defer r.runLock.Unlock()

	if r.poller != nil {
		return nil
	}

	r.poller = poller.New(r.log)

	r.log.Debug("started")

	return nil
}

func (r *PipelineRunner) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Pipeline == nil {
		return nil, ErrNilPipeline
	}

	r.runLock.Lock()
	defer r.runLock.Unlock()

	if r.poller == nil {
		return nil, ErrNotStarted
	}

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	log := r.log.With(zap.Stringer("pipeline", req.Pipeline))

	log.Debug("running pipeline", zap.Int("stdin_bytes", len(req.Stdin)))

	start := time.Now()

	p, err := req.Pipeline.Popen(proc.PopenConfig{
		PollTimeout: r.config.PollTimeout,
		Poller:      r.poller,
		Log:         log,
	})
	if err != nil {
		log.Error("failed to start pipeline", zap.Error(err))
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}

	stdout, stderr, err := p.Communicate(ctx, req.Stdin)
	if err != nil {
		// stages may still be running after an i/o failure
		if killErr := p.Kill(); killErr != nil {
			log.Warn("failed to kill pipeline", zap.Error(killErr))
		}
	}

	result := &Result{
		Stdout:      stdout,
		Stderr:      stderr,
		ReturnCodes: p.Wait(),
		Duration:    time.Since(start),
	}

	if err != nil {
		log.Error("pipeline failed", zap.Error(err), zap.Ints("return_codes", result.ReturnCodes))
		return result, fmt.Errorf("pipeline failed: %w", err)
	}

	log.Debug("pipeline completed",
		zap.Ints("return_codes", result.ReturnCodes),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func (r *PipelineRunner) Shutdown(context.Context) error {
	r.runLock.Lock()
	defer r.runLock.Unlock()

	if r.poller == nil {
		return nil
	}

	err := r.poller.Close()

	r.poller = nil

	r.log.Debug("shut down")

	return err
}
