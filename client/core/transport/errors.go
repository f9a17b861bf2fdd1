// Package transport 沙箱 JSON-RPC 与 WebSocket 客户端传输层
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
)

// RPCError 服务端返回的 JSON-RPC 错误，Data 原样保留
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Problem 服务端放在 data 中的错误描述，只解出客户端关心的字段
type Problem struct {
	Code        string                 `json:"code"`
	Detail      string                 `json:"detail"`
	UserMessage string                 `json:"userMessage"`
	Retryable   bool                   `json:"retryable"`
	Details     map[string]interface{} `json:"details"`
}

// Problem data 不是错误描述时返回 false
func (e *RPCError) Problem() (*Problem, bool) {
	if len(e.Data) == 0 || e.Data[0] != '{' {
		return nil, false
	}
	var p Problem
	if json.Unmarshal(e.Data, &p) != nil || p.Code == "" {
		return nil, false
	}
	return &p, true
}

func (e *RPCError) Error() string {
	if p, ok := e.Problem(); ok && p.Detail != "" {
		return fmt.Sprintf("jsonrpc %d %s: %s", e.Code, p.Code, p.Detail)
	}
	return fmt.Sprintf("jsonrpc %d: %s", e.Code, e.Message)
}

// IsRetryable 服务端标记为可重试（如账本在执行期间变化）
func IsRetryable(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	p, ok := rpcErr.Problem()
	return ok && p.Retryable
}
