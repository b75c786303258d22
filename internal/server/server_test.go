package server_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/lambda-feedback/procpipe/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHttpServer_ServesHandlers(t *testing.T) {
	hello := server.AsHttpHandler("/hello", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))

	s := server.NewHttpServer(server.HttpServerParams{
		Context:  context.Background(),
		Config:   server.HttpConfig{Host: "127.0.0.1", Port: 0},
		Handlers: []*server.HttpHandler{hello.Handler},
		Logger:   zap.NewNop(),
	})

	assert.Nil(t, s.Addr())
	assert.Error(t, s.Serve())

	require.NoError(t, s.Listen(context.Background()))

	go s.Serve()
	defer s.Shutdown(context.Background())

	res, err := http.Get(fmt.Sprintf("http://%s/hello", s.Addr()))
	require.NoError(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "hello", string(body))
}

func TestHttpServer_ListenFailsOnBusyPort(t *testing.T) {
	first := server.NewHttpServer(server.HttpServerParams{
		Context: context.Background(),
		Config:  server.HttpConfig{Host: "127.0.0.1", Port: 0},
		Logger:  zap.NewNop(),
	})
	require.NoError(t, first.Listen(context.Background()))

	go first.Serve()
	defer first.Shutdown(context.Background())

	second := server.NewHttpServer(server.HttpServerParams{
		Context: context.Background(),
		Config:  server.HttpConfig{Host: "127.0.0.1", Port: first.Addr().(*net.TCPAddr).Port},
		Logger:  zap.NewNop(),
	})
	assert.Error(t, second.Listen(context.Background()))
}
