package ipc

import (
	"context"
	"errors"

	"github.com/lambda-feedback/procpipe/internal/execution/definition"
	"github.com/lambda-feedback/procpipe/internal/execution/runner"
	"github.com/lambda-feedback/procpipe/runtime"
	"go.uber.org/zap"
)

// JSON-RPC error codes of the pipeline service.
const (
	CodeInvalidParams    = -32602
	CodePipelineNotFound = -32004
	CodeTimeout          = -32008
	CodeUnavailable      = -32003
	CodeInternal         = -32000
)

// serviceError attaches a JSON-RPC error code to an error.
type serviceError struct {
	code int
	err  error
}

func (e *serviceError) Error() string  { return e.err.Error() }
func (e *serviceError) ErrorCode() int { return e.code }
func (e *serviceError) Unwrap() error  { return e.err }

func newServiceError(err error) error {
	code := CodeInternal

	switch {
	case errors.Is(err, runtime.ErrPipelineNotFound):
		code = CodePipelineNotFound
	case errors.Is(err, context.DeadlineExceeded):
		code = CodeTimeout
	case errors.Is(err, runner.ErrNotStarted):
		code = CodeUnavailable
	}

	return &serviceError{code: code, err: err}
}

// PipelineService exposes a runtime as the "pipeline" JSON-RPC namespace,
// with the methods pipeline_run and pipeline_list.
type PipelineService struct {
	runtime runtime.Runtime
	log     *zap.Logger
}

func NewPipelineService(rt runtime.Runtime, log *zap.Logger) *PipelineService {
	return &PipelineService{runtime: rt, log: log}
}

// Run runs the named pipeline.
func (s *PipelineService) Run(ctx context.Context, name string, body runtime.RunBody) (*runtime.RunResponse, error) {
	log := s.log.With(zap.String("pipeline", name))

	stdin, err := body.Decode()
	if err != nil {
		log.Debug("failed to decode stdin", zap.Error(err))
		return nil, &serviceError{code: CodeInvalidParams, err: err}
	}

	res, err := s.runtime.Handle(ctx, runtime.RunRequest{Pipeline: name, Stdin: stdin})
	if err != nil {
		log.Debug("failed to run pipeline", zap.Error(err))
		return nil, newServiceError(err)
	}

	resp := runtime.NewRunResponse(name, res)

	return &resp, nil
}

// List lists the available pipelines.
func (s *PipelineService) List() []definition.Entry {
	return s.runtime.Pipelines()
}
