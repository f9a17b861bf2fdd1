package methods

import (
	"context"
	"errors"

	"github.com/weisyn/sandbox/internal/api/jsonrpc/types"
	apitypes "github.com/weisyn/sandbox/internal/api/types"
	"github.com/weisyn/sandbox/internal/core/conversion"
	"github.com/weisyn/sandbox/internal/core/ledger"
	"github.com/weisyn/sandbox/internal/core/orchestrator"
	"github.com/weisyn/sandbox/internal/core/sandbox"
	enginepkg "github.com/weisyn/sandbox/pkg/interfaces/engine"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/writegate"
)

// NewInvalidParamsError 参数无法解析（-32602）
func NewInvalidParamsError(reason string, details map[string]interface{}) *types.Error {
	problem := apitypes.Problem(apitypes.CodeCommonValidationError, 400, "请求参数无效。").
		In(apitypes.LayerAPI).
		Because(reason)
	for k, v := range details {
		problem.With(k, v)
	}
	return types.NewError(types.CodeInvalidParams, "", problem)
}

// NewInternalError 未分类的内部错误（-32000）
func NewInternalError(err error) *types.Error {
	problem := apitypes.Internal(apitypes.LayerSandboxService, err)
	return types.NewError(types.CodeServerError, problem.UserMessage, problem)
}

// NewConversionError 参数转换失败，data 携带出错路径与参数序号
func NewConversionError(ce *conversion.ConversionError) *types.Error {
	problem := apitypes.Problem(apitypes.CodeSandboxConversionFailed, 400, "参数与合约函数的类型描述不符。").
		Because(ce.Error()).
		With("kind", string(ce.Kind)).
		With("path", ce.Path).
		With("expected", ce.Expected).
		With("actual", ce.Actual)
	if ce.Position != conversion.NoPosition {
		problem.With("position", ce.Position)
	}
	return types.NewError(types.CodeInvalidParams, "", problem)
}

// NewArityMismatchError 参数个数不符
func NewArityMismatchError(am *orchestrator.ArityMismatchError) *types.Error {
	problem := apitypes.Problem(apitypes.CodeSandboxArityMismatch, 400, "参数个数与合约函数不符。").
		Because(am.Error()).
		With("function", am.Function).
		With("expected", am.Expected).
		With("actual", am.Actual)
	return types.NewError(types.CodeInvalidParams, "", problem)
}

// NewInvalidKeyError 账本键无法解析
func NewInvalidKeyError(err error) *types.Error {
	problem := apitypes.Problem(apitypes.CodeSandboxInvalidKey, 400, "账本键格式无效。").Because(err.Error())
	if ce, ok := conversion.AsConversionError(err); ok {
		problem.With("path", ce.Path).With("kind", string(ce.Kind))
	}
	return types.NewError(types.CodeInvalidParams, "", problem)
}

func serverError(problem *apitypes.ProblemDetails) *types.Error {
	return types.NewError(types.CodeServerError, problem.UserMessage, problem)
}

// ToRPCError 将沙箱错误映射为 JSON-RPC 错误
func ToRPCError(err error) *types.Error {
	var rpcErr *types.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if ce, ok := conversion.AsConversionError(err); ok {
		return NewConversionError(ce)
	}
	var am *orchestrator.ArityMismatchError
	if errors.As(err, &am) {
		return NewArityMismatchError(am)
	}

	switch {
	case orchestrator.IsRetryable(err):
		problem := apitypes.Problem(apitypes.CodeSandboxStateChanged, 409, "账本在执行期间已变化，请重试。").
			Because(err.Error()).
			MarkRetryable()
		var conflict *ledger.ConflictError
		if errors.As(err, &conflict) {
			problem.With("expected", conflict.Expected).With("actual", conflict.Actual)
		}
		return serverError(problem)
	case errors.Is(err, orchestrator.ErrContractNotFound):
		return serverError(apitypes.Problem(apitypes.CodeSandboxContractNotFound, 404, "合约不存在。").Because(err.Error()))
	case errors.Is(err, orchestrator.ErrFunctionNotFound):
		return serverError(apitypes.Problem(apitypes.CodeSandboxFunctionNotFound, 404, "合约中不存在该函数。").Because(err.Error()))
	case errors.Is(err, writegate.ErrReadOnly), errors.Is(err, sandbox.ErrStopped):
		return serverError(apitypes.Problem(apitypes.CodeSandboxReadOnly, 503, "沙箱处于只读模式，不接受写请求。").Because(err.Error()))
	case errors.Is(err, sandbox.ErrContractExists):
		return serverError(apitypes.Problem(apitypes.CodeSandboxContractExists, 409, "该地址已部署合约。").Because(err.Error()))
	case errors.Is(err, sandbox.ErrNoInvoker):
		return serverError(apitypes.Problem(apitypes.CodeSandboxInvokerRequired, 400, "必须指定调用者账户。").Because(err.Error()))
	case errors.Is(err, enginepkg.ErrInvalidCode):
		return serverError(apitypes.Problem(apitypes.CodeSandboxInvalidCode, 400, "合约代码无效。").Because(err.Error()))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return serverError(apitypes.Problem(apitypes.CodeCommonTimeout, 504, "请求已取消或超时。").Because(err.Error()))
	}
	return NewInternalError(err)
}
