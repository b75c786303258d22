package handler

import (
	"net/http"

	"github.com/lambda-feedback/procpipe/internal/server"
)

// NewRootRoute serves the pipeline list and the default pipeline.
func NewRootRoute(handler *PipelineHandler) server.HttpHandlerResult {
	return server.AsHttpHandler("/", handler)
}

func NewPipelineRoute(handler *PipelineHandler) server.HttpHandlerResult {
	return server.AsHttpHandler("/{pipeline}", handler)
}

func NewHealthRoute() server.HttpHandlerResult {
	return server.AsHttpHandler("/health", http.HandlerFunc(HealthHandler))
}
