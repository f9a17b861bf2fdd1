// Package client 沙箱 JSON-RPC 客户端
package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/weisyn/sandbox/client/core/transport"
	"github.com/weisyn/sandbox/internal/api/jsonrpc/methods"
	"github.com/weisyn/sandbox/internal/core/sandbox"
	"github.com/weisyn/sandbox/pkg/types"
)

// Caller JSON-RPC 调用方，HTTP 与 WebSocket 传输都实现它
type Caller interface {
	Call(ctx context.Context, method string, params interface{}, result interface{}) error
}

// Client 沙箱客户端
type Client struct {
	transport Caller
}

// New 创建客户端，nodeURL 如 "http://127.0.0.1:8080/rpc"
func New(nodeURL string) *Client {
	return NewWithTimeout(nodeURL, 30*time.Second)
}

// NewWithTimeout 创建带自定义超时的客户端实例
func NewWithTimeout(nodeURL string, timeout time.Duration) *Client {
	return &Client{transport: transport.NewHTTPClient(nodeURL, timeout)}
}

// NewWithTransport 使用自定义传输创建客户端
func NewWithTransport(t Caller) *Client {
	return &Client{transport: t}
}

// RPCURL 由服务地址推导 JSON-RPC 端点，已带路径时原样返回
func RPCURL(endpoint string) string {
	endpoint = strings.TrimRight(endpoint, "/")
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	if strings.HasSuffix(endpoint, "/rpc") {
		return endpoint
	}
	return endpoint + "/rpc"
}

// WSURL 由服务地址推导 WebSocket 端点
func WSURL(endpoint string) string {
	u := strings.TrimSuffix(RPCURL(endpoint), "/rpc")
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u + "/ws"
}

// Invoke 调用合约函数
func (c *Client) Invoke(ctx context.Context, p *methods.InvokeParams) (*methods.InvokeResult, error) {
	var out methods.InvokeResult
	if err := c.transport.Call(ctx, "invoke", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReadEntryResult readEntry 结果
type ReadEntryResult struct {
	Version uint64         `json:"version"`
	Found   bool           `json:"found"`
	Key     any            `json:"key"`
	Entry   map[string]any `json:"entry,omitempty"`
}

// ReadEntry 读取账本条目，key 为键的 JSON 形式
func (c *Client) ReadEntry(ctx context.Context, key json.RawMessage) (*ReadEntryResult, error) {
	var out ReadEntryResult
	if err := c.transport.Call(ctx, "readEntry", map[string]any{"key": key}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeployResult deploy 结果
type DeployResult struct {
	Address  string              `json:"address"`
	CodeHash string              `json:"code_hash"`
	Version  uint64              `json:"version"`
	Spec     *types.ContractSpec `json:"spec"`
}

// Deploy 部署合约
func (c *Client) Deploy(ctx context.Context, code, salt []byte) (*DeployResult, error) {
	var out DeployResult
	params := map[string]any{"code": base64.StdEncoding.EncodeToString(code), "salt": string(salt)}
	if err := c.transport.Call(ctx, "deploy", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetAccount 设置账户余额，返回提交后的账本版本
func (c *Client) SetAccount(ctx context.Context, address, balance string) (uint64, error) {
	var out struct {
		Version uint64 `json:"version"`
	}
	params := map[string]any{"address": address, "balance": json.Number(balance)}
	if err := c.transport.Call(ctx, "setAccount", params, &out); err != nil {
		return 0, err
	}
	return out.Version, nil
}

// ContractSpec 合约函数描述
func (c *Client) ContractSpec(ctx context.Context, contract string) (*types.ContractSpec, error) {
	var out types.ContractSpec
	if err := c.transport.Call(ctx, "getContractSpec", map[string]any{"contract": contract}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LedgerInfo 账本概况
func (c *Client) LedgerInfo(ctx context.Context) (*sandbox.LedgerInfo, error) {
	var out sandbox.LedgerInfo
	if err := c.transport.Call(ctx, "getLedgerInfo", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Requests 进行中与最近完成的请求
func (c *Client) Requests(ctx context.Context) (active, recent []sandbox.RequestInfo, err error) {
	var out struct {
		Active []sandbox.RequestInfo `json:"active"`
		Recent []sandbox.RequestInfo `json:"recent"`
	}
	if err := c.transport.Call(ctx, "getRequests", nil, &out); err != nil {
		return nil, nil, err
	}
	return out.Active, out.Recent, nil
}
