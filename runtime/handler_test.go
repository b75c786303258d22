package runtime_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/lambda-feedback/procpipe/internal/execution/definition"
	"github.com/lambda-feedback/procpipe/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// mockRuntime implements the runtime.Runtime interface.
type mockRuntime struct {
	mock.Mock
}

func (m *mockRuntime) Handle(ctx context.Context, request runtime.RunRequest) (*runtime.Result, error) {
	args := m.Called(ctx, request)

	res, _ := args.Get(0).(*runtime.Result)

	return res, args.Error(1)
}

func (m *mockRuntime) Pipelines() []definition.Entry {
	args := m.Called()
	return args.Get(0).([]definition.Entry)
}

func (m *mockRuntime) Start(ctx context.Context) error {
	//Not required for tests
	panic("Not required")
}

func (m *mockRuntime) Shutdown(ctx context.Context) error {
	//Not required for tests
	panic("Not required")
}

func setupLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

func setupHandler(t *testing.T, rt runtime.Runtime) runtime.Handler {
	handler, err := runtime.NewRuntimeHandler(runtime.HandlerParams{
		Runtime: rt,
		Log:     setupLogger(t),
	})
	require.NoError(t, err)

	return handler
}

func createRequest(method, path string, body []byte, header http.Header) runtime.Request {
	return runtime.Request{
		Method: method,
		Path:   path,
		Body:   body,
		Header: header,
	}
}

func parseResponseBody(t *testing.T, resp runtime.Response) runtime.RunResponse {
	require.Equal(t, http.StatusOK, resp.StatusCode, string(resp.Body))

	var respBody runtime.RunResponse
	err := json.Unmarshal(resp.Body, &respBody)
	require.NoError(t, err)

	return respBody
}

func parseErrorMessage(t *testing.T, resp runtime.Response) string {
	var respBody struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body, &respBody))

	return respBody.Error.Message
}

func TestRuntimeHandler_Handle_Success(t *testing.T) {
	mockRT := new(mockRuntime)
	mockRT.On("Handle", mock.Anything, runtime.RunRequest{
		Pipeline: "upper",
		Stdin:    []byte("hello"),
	}).Return(&runtime.Result{
		Stdout:      []byte("HELLO"),
		ReturnCodes: []int{0, 0},
		Duration:    1500 * time.Millisecond,
	}, nil)

	handler := setupHandler(t, mockRT)

	req := createRequest(http.MethodPost, "/upper", []byte(`{"stdin": "hello"}`), http.Header{})

	resp := handler.Handle(context.Background(), req)
	respBody := parseResponseBody(t, resp)

	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, runtime.RunResponse{
		Pipeline:    "upper",
		Success:     true,
		ExitCode:    0,
		ReturnCodes: []int{0, 0},
		Stdout:      "HELLO",
		Stderr:      "",
		Encoding:    runtime.EncodingUTF8,
		DurationMs:  1500,
	}, respBody)

	mockRT.AssertExpectations(t)
}

func TestRuntimeHandler_Handle_PipelineHeader(t *testing.T) {
	mockRT := new(mockRuntime)
	mockRT.On("Handle", mock.Anything, mock.MatchedBy(func(r runtime.RunRequest) bool {
		return r.Pipeline == "upper"
	})).Return(&runtime.Result{ReturnCodes: []int{0}}, nil)

	handler := setupHandler(t, mockRT)

	req := createRequest(http.MethodPost, "/", nil, http.Header{
		"Pipeline": []string{"upper"},
	})

	respBody := parseResponseBody(t, handler.Handle(context.Background(), req))

	assert.Equal(t, "upper", respBody.Pipeline)
	mockRT.AssertExpectations(t)
}

func TestRuntimeHandler_Handle_RootRunsDefaultPipeline(t *testing.T) {
	mockRT := new(mockRuntime)
	mockRT.On("Handle", mock.Anything, runtime.RunRequest{
		Pipeline: "default",
		Stdin:    []byte{},
	}).Return(&runtime.Result{ReturnCodes: []int{0}}, nil)

	handler := setupHandler(t, mockRT)

	req := createRequest(http.MethodPost, "/", nil, http.Header{})

	respBody := parseResponseBody(t, handler.Handle(context.Background(), req))

	assert.Equal(t, "default", respBody.Pipeline)
	mockRT.AssertExpectations(t)
}

func TestRuntimeHandler_Handle_FailedStageIsNotAnError(t *testing.T) {
	mockRT := new(mockRuntime)
	mockRT.On("Handle", mock.Anything, mock.Anything).Return(&runtime.Result{
		Stderr:      []byte("broken\n"),
		ReturnCodes: []int{0, 3},
	}, nil)

	handler := setupHandler(t, mockRT)

	req := createRequest(http.MethodPost, "/upper", []byte(`{}`), http.Header{})

	respBody := parseResponseBody(t, handler.Handle(context.Background(), req))

	assert.False(t, respBody.Success)
	assert.Equal(t, 3, respBody.ExitCode)
	assert.Equal(t, []int{0, 3}, respBody.ReturnCodes)
	assert.Equal(t, "broken\n", respBody.Stderr)
}

func TestRuntimeHandler_Handle_Base64(t *testing.T) {
	binary := []byte{0xff, 0x00, 0xfe}

	mockRT := new(mockRuntime)
	mockRT.On("Handle", mock.Anything, runtime.RunRequest{
		Pipeline: "cat",
		Stdin:    binary,
	}).Return(&runtime.Result{
		Stdout:      binary,
		ReturnCodes: []int{0},
	}, nil)

	handler := setupHandler(t, mockRT)

	body := fmt.Sprintf(`{"stdin": %q, "encoding": "base64"}`, base64.StdEncoding.EncodeToString(binary))
	req := createRequest(http.MethodPost, "/cat", []byte(body), http.Header{})

	respBody := parseResponseBody(t, handler.Handle(context.Background(), req))

	assert.Equal(t, runtime.EncodingBase64, respBody.Encoding)

	stdout, err := base64.StdEncoding.DecodeString(respBody.Stdout)
	require.NoError(t, err)
	assert.Equal(t, binary, stdout)
}

func TestRuntimeHandler_Handle_ListsPipelines(t *testing.T) {
	entries := []definition.Entry{
		{Name: "upper", Command: "tr a-z A-Z"},
	}

	mockRT := new(mockRuntime)
	mockRT.On("Pipelines").Return(entries)

	handler := setupHandler(t, mockRT)

	resp := handler.Handle(context.Background(), createRequest(http.MethodGet, "/", nil, http.Header{}))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list runtime.ListResponse
	require.NoError(t, json.Unmarshal(resp.Body, &list))

	assert.Equal(t, entries, list.Pipelines)
}

func TestRuntimeHandler_Handle_InvalidMethod(t *testing.T) {
	handler := setupHandler(t, &mockRuntime{})

	for _, req := range []runtime.Request{
		createRequest(http.MethodGet, "/upper", nil, http.Header{}),
		createRequest(http.MethodPut, "/upper", []byte(`{}`), http.Header{}),
	} {
		resp := handler.Handle(context.Background(), req)
		require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	}
}

func TestRuntimeHandler_Handle_InvalidPipelinePath(t *testing.T) {
	handler := setupHandler(t, &mockRuntime{})

	req := createRequest(http.MethodPost, "/a/b", []byte(`{}`), http.Header{})
	resp := handler.Handle(context.Background(), req)

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRuntimeHandler_Handle_SchemaViolation(t *testing.T) {
	handler := setupHandler(t, &mockRuntime{})

	req := createRequest(http.MethodPost, "/upper", []byte(`{"stdin": 1}`), http.Header{})
	resp := handler.Handle(context.Background(), req)

	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var respBody struct {
		Error struct {
			Details []string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body, &respBody))
	assert.NotEmpty(t, respBody.Error.Details)
}

func TestRuntimeHandler_Handle_MalformedBody(t *testing.T) {
	handler := setupHandler(t, &mockRuntime{})

	req := createRequest(http.MethodPost, "/upper", []byte(`{"stdin":`), http.Header{})
	resp := handler.Handle(context.Background(), req)

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRuntimeHandler_Handle_InvalidBase64(t *testing.T) {
	handler := setupHandler(t, &mockRuntime{})

	req := createRequest(http.MethodPost, "/upper", []byte(`{"stdin": "%%%", "encoding": "base64"}`), http.Header{})
	resp := handler.Handle(context.Background(), req)

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRuntimeHandler_Handle_RuntimeErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", fmt.Errorf("%w: %q", runtime.ErrPipelineNotFound, "nope"), http.StatusNotFound},
		{"timeout", fmt.Errorf("pipeline failed: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRT := new(mockRuntime)
			mockRT.On("Handle", mock.Anything, mock.Anything).Return(nil, tt.err)

			handler := setupHandler(t, mockRT)

			req := createRequest(http.MethodPost, "/nope", []byte(`{}`), http.Header{})
			resp := handler.Handle(context.Background(), req)

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.err.Error(), parseErrorMessage(t, resp))
		})
	}
}
