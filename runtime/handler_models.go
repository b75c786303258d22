package runtime

import (
	"context"
	"net/http"

	"github.com/lambda-feedback/procpipe/internal/execution/definition"
)

// Request represents an incoming request.
type Request struct {
	Path   string
	Method string
	Body   []byte
	Header http.Header
}

// Response represents an outgoing response.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Handler is the interface for handling runtime requests.
type Handler interface {
	Handle(ctx context.Context, request Request) Response
}

// ListResponse is the body returned when listing pipelines.
type ListResponse struct {
	Pipelines []definition.Entry `json:"pipelines"`
}
