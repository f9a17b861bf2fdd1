// Package types API 层共享的错误类型
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// 错误产生的层
const (
	LayerSandboxService = "sandbox-service"
	LayerAPI            = "api"
)

// 错误码
const (
	CodeSandboxConversionFailed = "SANDBOX_CONVERSION_FAILED"
	CodeSandboxArityMismatch    = "SANDBOX_ARITY_MISMATCH"
	CodeSandboxStateChanged     = "SANDBOX_STATE_CHANGED"
	CodeSandboxContractNotFound = "SANDBOX_CONTRACT_NOT_FOUND"
	CodeSandboxFunctionNotFound = "SANDBOX_FUNCTION_NOT_FOUND"
	CodeSandboxReadOnly         = "SANDBOX_READ_ONLY"
	CodeSandboxContractExists   = "SANDBOX_CONTRACT_EXISTS"
	CodeSandboxInvalidCode      = "SANDBOX_INVALID_CODE"
	CodeSandboxInvalidKey       = "SANDBOX_INVALID_KEY"
	CodeSandboxInvokerRequired  = "SANDBOX_INVOKER_REQUIRED"

	CodeCommonValidationError    = "COMMON_VALIDATION_ERROR"
	CodeCommonInternalError      = "COMMON_INTERNAL_ERROR"
	CodeCommonTimeout            = "COMMON_TIMEOUT"
	CodeCommonServiceUnavailable = "COMMON_SERVICE_UNAVAILABLE"
)

const internalMessage = "服务器内部错误，请稍后重试或联系管理员。"

// ProblemDetails RFC7807 错误描述
//
// type/title/status/detail/instance 为标准字段，其余为沙箱扩展。
type ProblemDetails struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title,omitempty"`
	Status   int    `json:"status,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Code        string                 `json:"code"`
	Layer       string                 `json:"layer"`
	UserMessage string                 `json:"userMessage"`
	Retryable   bool                   `json:"retryable,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	TraceID     string                 `json:"traceId"`
	Timestamp   string                 `json:"timestamp"`
}

// Problem 新建一个 Problem Details；layer 默认 sandbox-service
func Problem(code string, status int, userMessage string) *ProblemDetails {
	return &ProblemDetails{
		Title:       http.StatusText(status),
		Status:      status,
		Code:        code,
		Layer:       LayerSandboxService,
		UserMessage: userMessage,
		TraceID:     uuid.NewString(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// Internal 未分类错误统一包装为 500
func Internal(layer string, cause interface{}) *ProblemDetails {
	return Problem(CodeCommonInternalError, http.StatusInternalServerError, internalMessage).
		In(layer).
		Because(fmt.Sprintf("Internal error: %v", cause))
}

// In 设置错误所在层
func (p *ProblemDetails) In(layer string) *ProblemDetails {
	p.Layer = layer
	return p
}

// Because 设置面向开发者的 detail
func (p *ProblemDetails) Because(detail string) *ProblemDetails {
	p.Detail = detail
	return p
}

// With 追加一个扩展字段
func (p *ProblemDetails) With(key string, value interface{}) *ProblemDetails {
	if p.Details == nil {
		p.Details = make(map[string]interface{})
	}
	p.Details[key] = value
	return p
}

// MarkRetryable 客户端可原样重试
func (p *ProblemDetails) MarkRetryable() *ProblemDetails {
	p.Retryable = true
	return p
}

func (p *ProblemDetails) Error() string {
	if p.Detail != "" {
		return p.Detail
	}
	return p.UserMessage
}

// WriteJSON 以 application/problem+json 写出
func (p *ProblemDetails) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// AsProblem 在错误链中查找 Problem Details
func AsProblem(err error) (*ProblemDetails, bool) {
	var pd *ProblemDetails
	if errors.As(err, &pd) {
		return pd, true
	}
	return nil, false
}
