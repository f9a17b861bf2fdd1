// Package types JSON-RPC 2.0 报文
package types

import (
	"encoding/json"
	"fmt"
)

// Version 报文中 jsonrpc 字段的唯一合法值
const Version = "2.0"

// 错误码：-327xx/-326xx 为协议保留，-32000 为沙箱服务错误，详情见 data 中的 Problem Details
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

var standardMessages = map[int]string{
	CodeParseError:     "Parse error",
	CodeInvalidRequest: "Invalid Request",
	CodeMethodNotFound: "Method not found",
	CodeInvalidParams:  "Invalid params",
	CodeInternalError:  "Internal error",
	CodeServerError:    "Server error",
}

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response Result 与 Error 恰有一个非空
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error 既是方法返回的错误，也是响应中的 error 对象
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string { return fmt.Sprintf("jsonrpc %d: %s", e.Code, e.Message) }

// NewError message 为空时取错误码的标准文本
func NewError(code int, message string, data interface{}) *Error {
	if message == "" {
		message = standardMessages[code]
	}
	return &Error{Code: code, Message: message, Data: data}
}

func Success(id, result interface{}) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

func Failure(id interface{}, err *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: err}
}
