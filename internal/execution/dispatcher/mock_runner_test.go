package dispatcher_test

import (
	"context"

	"github.com/lambda-feedback/procpipe/internal/execution/runner"
	"github.com/stretchr/testify/mock"
)

type MockRunner struct {
	mock.Mock
}

var _ runner.Runner = (*MockRunner)(nil)

func (m *MockRunner) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRunner) Run(ctx context.Context, req runner.Request) (*runner.Result, error) {
	args := m.Called(ctx, req)

	res, _ := args.Get(0).(*runner.Result)

	return res, args.Error(1)
}

func (m *MockRunner) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
