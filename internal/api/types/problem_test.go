package types

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProblemBuilder(t *testing.T) {
	p := Problem(CodeSandboxStateChanged, 409, "账本在执行期间已变化，请重试。").
		Because("version 3 != 4").
		With("expected", 3).
		MarkRetryable()

	assert.Equal(t, "Conflict", p.Title)
	assert.Equal(t, LayerSandboxService, p.Layer)
	assert.Equal(t, "version 3 != 4", p.Error())
	assert.Equal(t, 3, p.Details["expected"])
	assert.True(t, p.Retryable)
	assert.NotEmpty(t, p.TraceID)
}

func TestInternalProblem(t *testing.T) {
	p := Internal(LayerAPI, errors.New("boom"))
	assert.Equal(t, CodeCommonInternalError, p.Code)
	assert.Equal(t, 500, p.Status)
	assert.Equal(t, "Internal error: boom", p.Detail)
}

func TestAsProblemUnwraps(t *testing.T) {
	p := Problem(CodeSandboxReadOnly, 503, "只读")
	got, ok := AsProblem(fmt.Errorf("wrapped: %w", p))
	require.True(t, ok)
	assert.Same(t, p, got)

	_, ok = AsProblem(errors.New("plain"))
	assert.False(t, ok)
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	Problem(CodeSandboxContractNotFound, 404, "合约不存在。").WriteJSON(rec)
	assert.Equal(t, 404, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"code":"SANDBOX_CONTRACT_NOT_FOUND"`)
}
