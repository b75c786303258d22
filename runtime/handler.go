package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/lambda-feedback/procpipe/internal/execution"
	"github.com/lambda-feedback/procpipe/internal/execution/runner"
	"github.com/lambda-feedback/procpipe/runtime/schema"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrInvalidMethod    = errors.New("invalid method")
	ErrSchemaNotFound   = errors.New("schema not found")
	ErrInvalidPipeline  = errors.New("invalid pipeline")
	ErrInvalidBody      = errors.New("invalid body")
	ErrValidationFailed = errors.New("validation failed")
)

var wellKnownErrors = []struct {
	err    error
	status int
}{
	{ErrInvalidMethod, http.StatusMethodNotAllowed},
	{ErrSchemaNotFound, http.StatusInternalServerError},
	{ErrPipelineNotFound, http.StatusNotFound},
	{ErrInvalidPipeline, http.StatusBadRequest},
	{ErrInvalidBody, http.StatusBadRequest},
	{ErrValidationFailed, http.StatusBadRequest},
	{runner.ErrNotStarted, http.StatusServiceUnavailable},
	{context.DeadlineExceeded, http.StatusGatewayTimeout},
}

// HandlerParams defines the dependencies for the runtime handler.
type HandlerParams struct {
	fx.In

	Runtime Runtime

	Log *zap.Logger
}

// RuntimeHandler is a runtime handler that uses a runtime to handle requests.
type RuntimeHandler struct {
	runtime Runtime

	schemas map[validationType]*schema.Schema

	log *zap.Logger
}

// NewRuntimeHandler creates a new runtime handler.
func NewRuntimeHandler(params HandlerParams) (Handler, error) {
	requestSchema, err := schema.NewRequestSchema()
	if err != nil {
		return nil, err
	}

	responseSchema, err := schema.NewResponseSchema()
	if err != nil {
		return nil, err
	}

	schemas := map[validationType]*schema.Schema{
		validationTypeRequest:  requestSchema,
		validationTypeResponse: responseSchema,
	}

	return &RuntimeHandler{
		runtime: params.Runtime,
		schemas: schemas,
		log:     params.Log.Named("handler"),
	}, nil
}

// Handle handles a runtime request. GET on the root lists the pipelines,
// POST runs the pipeline named by the "pipeline" header or the path.
func (h *RuntimeHandler) Handle(ctx context.Context, req Request) Response {
	log := h.log.With(
		zap.String("path", req.Path),
		zap.String("method", req.Method),
	)

	switch req.Method {
	case http.MethodGet:
		if strings.Trim(req.Path, "/") != "" {
			return h.errorResponse(log, ErrInvalidMethod)
		}
		return h.list(log)
	case http.MethodPost:
		return h.run(ctx, log, req)
	default:
		log.Debug("invalid method")
		return h.errorResponse(log, ErrInvalidMethod)
	}
}

func (h *RuntimeHandler) list(log *zap.Logger) Response {
	body, err := json.Marshal(ListResponse{Pipelines: h.runtime.Pipelines()})
	if err != nil {
		return h.errorResponse(log, err)
	}

	return newResponse(http.StatusOK, body)
}

func (h *RuntimeHandler) run(ctx context.Context, log *zap.Logger, req Request) Response {
	name, ok := getPipeline(req)
	if !ok {
		log.Debug("invalid pipeline path")
		return h.errorResponse(log, ErrInvalidPipeline)
	}

	log = log.With(zap.String("pipeline", name))

	data := req.Body
	if len(strings.TrimSpace(string(data))) == 0 {
		data = []byte("{}")
	}

	// Validate the request data against the request schema
	if err := h.validate(validationTypeRequest, data); err != nil {
		return h.errorResponse(log, err)
	}

	var body RunBody
	if err := json.Unmarshal(data, &body); err != nil {
		log.Debug("failed to parse body", zap.Error(err))
		return h.errorResponse(log, ErrInvalidBody)
	}

	stdin, err := body.Decode()
	if err != nil {
		log.Debug("failed to decode stdin", zap.Error(err))
		return h.errorResponse(log, errors.Join(ErrInvalidBody, err))
	}

	res, err := h.runtime.Handle(ctx, RunRequest{Pipeline: name, Stdin: stdin})
	if err != nil {
		log.Debug("failed to run pipeline", zap.Error(err))
		return h.errorResponse(log, err)
	}

	respBody, err := json.Marshal(NewRunResponse(name, res))
	if err != nil {
		return h.errorResponse(log, err)
	}

	// Validate the response data against the response schema
	if err := h.validate(validationTypeResponse, respBody); err != nil {
		return h.errorResponse(log, err)
	}

	return newResponse(http.StatusOK, respBody)
}

// getPipeline returns the pipeline named by the request. The root path
// without a header addresses the default pipeline.
func getPipeline(req Request) (string, bool) {
	if name := req.Header.Get("pipeline"); name != "" {
		return name, true
	}

	path := strings.Trim(req.Path, "/")
	if path == "" {
		return execution.DefaultPipeline, true
	}

	if strings.Contains(path, "/") {
		return "", false
	}

	return path, true
}

func (h *RuntimeHandler) errorResponse(log *zap.Logger, err error) Response {
	status := getErrorStatusCode(err)

	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		sentry.CaptureException(err)
	}

	return newErrorResponse(status, err)
}
