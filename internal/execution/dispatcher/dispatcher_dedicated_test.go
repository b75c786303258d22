package dispatcher_test

import (
	"context"
	"testing"

	"github.com/lambda-feedback/procpipe/internal/execution/dispatcher"
	"github.com/lambda-feedback/procpipe/internal/execution/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDedicatedDispatcher_New_FailsIfFactoryFails(t *testing.T) {
	_, err := dispatcher.NewDedicatedDispatcher(dispatcher.DedicatedDispatcherParams{
		RunnerFactory: func(runner.Params) (runner.Runner, error) {
			return nil, assert.AnError
		},
		Log: zap.NewNop(),
	})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestDedicatedDispatcher_Lifecycle(t *testing.T) {
	m, r := createDedicatedDispatcher(t)

	req := runner.Request{Stdin: []byte("in")}
	result := &runner.Result{Stdout: []byte("out")}

	r.On("Start", mock.Anything).Return(nil).Once()
	r.On("Run", mock.Anything, req).Return(result, nil).Twice()
	r.On("Shutdown", mock.Anything).Return(nil).Once()

	require.NoError(t, m.Start(context.Background()))

	for range 2 {
		res, err := m.Send(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, result, res)
	}

	require.NoError(t, m.Shutdown(context.Background()))

	r.AssertExpectations(t)
}

func TestDedicatedDispatcher_Start_Fails(t *testing.T) {
	m, r := createDedicatedDispatcher(t)

	r.On("Start", mock.Anything).Return(assert.AnError)

	assert.ErrorIs(t, m.Start(context.Background()), assert.AnError)
}

func TestDedicatedDispatcher_Send_Fails(t *testing.T) {
	m, r := createDedicatedDispatcher(t)

	r.On("Run", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	res, err := m.Send(context.Background(), runner.Request{})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, res)
}

func TestDedicatedDispatcher_Shutdown_Fails(t *testing.T) {
	m, r := createDedicatedDispatcher(t)

	r.On("Shutdown", mock.Anything).Return(assert.AnError)

	assert.ErrorIs(t, m.Shutdown(context.Background()), assert.AnError)
}

func createDedicatedDispatcher(t *testing.T) (dispatcher.Dispatcher, *MockRunner) {
	r := new(MockRunner)

	m, err := dispatcher.NewDedicatedDispatcher(dispatcher.DedicatedDispatcherParams{
		RunnerFactory: func(runner.Params) (runner.Runner, error) {
			return r, nil
		},
		Log: zap.NewNop(),
	})
	require.NoError(t, err)

	return m, r
}
