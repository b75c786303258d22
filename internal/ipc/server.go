package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lambda-feedback/procpipe/runtime"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Namespace is the JSON-RPC namespace of the pipeline service.
const Namespace = "pipeline"

type ServerParams struct {
	fx.In

	Config  Config
	Runtime runtime.Runtime
	Logger  *zap.Logger
}

// Server serves the pipeline service over a unix socket.
type Server struct {
	endpoint string
	rpc      *rpc.Server
	listener net.Listener
	log      *zap.Logger
}

func NewServer(params ServerParams) (*Server, error) {
	if params.Config.Endpoint == "" {
		return nil, errors.New("no ipc endpoint configured")
	}

	log := params.Logger.Named("ipc")

	server := rpc.NewServer()

	service := NewPipelineService(params.Runtime, log)
	if err := server.RegisterName(Namespace, service); err != nil {
		return nil, fmt.Errorf("failed to register service: %w", err)
	}

	return &Server{
		endpoint: params.Config.Endpoint,
		rpc:      server,
		log:      log,
	}, nil
}

func NewLifecycleServer(params ServerParams, lc fx.Lifecycle) (*Server, error) {
	server, err := NewServer(params)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := server.Listen(ctx); err != nil {
				return err
			}
			go server.Serve()
			return nil
		},
		OnStop: func(context.Context) error {
			return server.Shutdown()
		},
	})

	return server, nil
}

// Listen creates the unix socket, replacing a stale one.
func (s *Server) Listen(ctx context.Context) error {
	if err := os.Remove(s.endpoint); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	cfg := net.ListenConfig{}

	listener, err := cfg.Listen(ctx, "unix", s.endpoint)
	if err != nil {
		s.log.Error("failed to listen", zap.Error(err), zap.String("endpoint", s.endpoint))
		return err
	}

	if err := os.Chmod(s.endpoint, 0o600); err != nil {
		listener.Close()
		return err
	}

	s.listener = listener

	s.log.Info("listening", zap.String("endpoint", s.endpoint))

	return nil
}

func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}

	if err := s.rpc.ServeListener(s.listener); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Error("failed to serve", zap.Error(err))
		return err
	}

	return nil
}

// Shutdown stops accepting connections and closes the open ones.
func (s *Server) Shutdown() error {
	var err error
	if s.listener != nil {
		err = s.listener.Close()
		s.listener = nil
	}

	s.rpc.Stop()

	if err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Error("failed to shutdown", zap.Error(err))
		return err
	}

	return nil
}
