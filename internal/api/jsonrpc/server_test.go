package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/sandbox/internal/api/jsonrpc/types"
	apitypes "github.com/weisyn/sandbox/internal/api/types"
)

func newTestServer() *Server {
	s := NewServer(nil, 64)
	s.RegisterMethod("echo", func(_ context.Context, params json.RawMessage) (interface{}, error) {
		return params, nil
	})
	s.RegisterMethod("boom", func(context.Context, json.RawMessage) (interface{}, error) {
		panic("boom")
	})
	s.RegisterMethod("fail", func(context.Context, json.RawMessage) (interface{}, error) {
		return nil, errors.New("disk on fire")
	})
	s.RegisterMethod("bad", func(context.Context, json.RawMessage) (interface{}, error) {
		return nil, types.NewError(types.CodeInvalidParams, "", "nope")
	})
	return s
}

func TestHandle(t *testing.T) {
	s := newTestServer()
	ctx := context.Background()

	resp := s.Handle(ctx, []byte(`{"jsonrpc":"2.0","id":7,"method":"echo","params":[1]}`))
	require.Nil(t, resp.Error)
	assert.Equal(t, json.Number("7"), resp.ID)
	assert.JSONEq(t, `[1]`, string(resp.Result.(json.RawMessage)))

	tests := []struct {
		name string
		raw  string
		code int
	}{
		{"parse", `{`, types.CodeParseError},
		{"envelope", `{"jsonrpc":"1.0","id":1,"method":"echo"}`, types.CodeInvalidRequest},
		{"unknown", `{"jsonrpc":"2.0","id":1,"method":"nope"}`, types.CodeMethodNotFound},
		{"panic", `{"jsonrpc":"2.0","id":1,"method":"boom"}`, types.CodeInternalError},
		{"plain error", `{"jsonrpc":"2.0","id":1,"method":"fail"}`, types.CodeServerError},
		{"rpc error", `{"jsonrpc":"2.0","id":1,"method":"bad"}`, types.CodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.Handle(ctx, []byte(tt.raw))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}

	resp = s.Handle(ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"fail"}`))
	problem, ok := resp.Error.Data.(*apitypes.ProblemDetails)
	require.True(t, ok)
	assert.Equal(t, apitypes.CodeCommonInternalError, problem.Code)
}

func TestServeHTTP(t *testing.T) {
	s := newTestServer()

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"echo","params":{}}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"result":{}`)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"echo","params":"`+strings.Repeat("x", 100)+`"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":-32600`)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rpc", nil))
	assert.Contains(t, rec.Body.String(), `"code":-32600`)

	assert.Equal(t, []string{"bad", "boom", "echo", "fail"}, s.Methods())
}
