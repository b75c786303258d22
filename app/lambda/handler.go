package lambda

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/lambda-feedback/procpipe/internal/server"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// LambdaHandlerParams represents the parameters required for
// the Lambda handler.
type LambdaHandlerParams struct {
	fx.In

	// Config is the configuration for the Lambda handler.
	Config Config

	// Handlers is a slice of HTTP handlers grouped together.
	Handlers []*server.HttpHandler `group:"handlers"`

	// Context is the context for the Lambda handler.
	Context context.Context

	// Logger is the logger for the Lambda handler.
	Logger *zap.Logger
}

// LambdaHandler translates Lambda proxy events into requests for the
// pipeline routes.
type LambdaHandler struct {
	source ProxySource
	ctx    context.Context
	cancel context.CancelFunc
	proxy  any
	log    *zap.Logger
}

// NewLambdaHandler creates a new instance of LambdaHandler. An error is
// returned if the configured proxy source is unknown.
func NewLambdaHandler(params LambdaHandlerParams) (*LambdaHandler, error) {
	source, err := ParseProxySource(params.Config.ProxySource.String())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(params.Context)

	return &LambdaHandler{
		source: source,
		ctx:    ctx,
		cancel: cancel,
		proxy:  proxyFunction(source, server.NewMux(params.Handlers)),
		log:    params.Logger,
	}, nil
}

// NewLifecycleHandler creates a new instance of LambdaHandler
// with the given parameters and attaches lifecycle hooks to
// start and stop the handler.
func NewLifecycleHandler(params LambdaHandlerParams, lc fx.Lifecycle) (*LambdaHandler, error) {
	handler, err := NewLambdaHandler(params)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			handler.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			handler.Shutdown()
			return nil
		},
	})

	return handler, nil
}

// Start runs the Lambda runtime client in a new goroutine.
func (s *LambdaHandler) Start() {
	s.log.Debug("using lambda event proxy", zap.Stringer("proxy_source", s.source))

	go lambda.StartWithOptions(s.proxy, lambda.WithContext(s.ctx))
}

// Invoke handles a single raw Lambda event.
func (s *LambdaHandler) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	return lambda.NewHandler(s.proxy).Invoke(ctx, payload)
}

// Shutdown cancels the execution of the LambdaHandler.
func (s *LambdaHandler) Shutdown() {
	s.cancel()
}

// proxyFunction returns the proxy function of the proxy source.
func proxyFunction(source ProxySource, mux *http.ServeMux) any {
	switch source {
	case ProxySourceApiGatewayV1:
		return httpadapter.New(mux).ProxyWithContext
	case ProxySourceAlb:
		return httpadapter.NewALB(mux).ProxyWithContext
	default:
		return httpadapter.NewV2(mux).ProxyWithContext
	}
}
