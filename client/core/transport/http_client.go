package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// maxResponseBytes 单个响应的上限，超出视为传输错误
const maxResponseBytes = 32 << 20

// HTTPClient 以 HTTP POST 承载 JSON-RPC 2.0 调用，并发安全
type HTTPClient struct {
	endpoint string
	hc       *http.Client
	header   http.Header
	seq      atomic.Uint64
}

// HTTPOption 客户端选项
type HTTPOption func(*HTTPClient)

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.hc = hc }
}

// WithHeader 每个请求附带的头
func WithHeader(key, value string) HTTPOption {
	return func(c *HTTPClient) { c.header.Set(key, value) }
}

// NewHTTPClient timeout 为 0 时使用 30 秒
func NewHTTPClient(endpoint string, timeout time.Duration, opts ...HTTPOption) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &HTTPClient{
		endpoint: endpoint,
		hc:       &http.Client{Timeout: timeout},
		header:   http.Header{"Content-Type": []string{"application/json"}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type callRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type callResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Call 调用 method 并把结果解到 result，result 为 nil 时丢弃结果
func (c *HTTPClient) Call(ctx context.Context, method string, params, result interface{}) error {
	id := c.seq.Add(1)
	body, err := json.Marshal(&callRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("%s: 编码请求失败: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	req.Header = c.header.Clone()

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return fmt.Errorf("%s: 读取响应失败: %w", method, err)
	}
	if len(raw) > maxResponseBytes {
		return fmt.Errorf("%s: 响应超过 %d 字节", method, maxResponseBytes)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d: %s", method, resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out callResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("%s: 解析响应失败: %w", method, err)
	}
	if out.Error != nil {
		return out.Error
	}
	if got := string(bytes.TrimSpace(out.ID)); got != fmt.Sprint(id) {
		return fmt.Errorf("%s: 响应 id %s 与请求 %d 不符", method, got, id)
	}
	if result == nil || len(out.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(out.Result, result); err != nil {
		return fmt.Errorf("%s: 解析结果失败: %w", method, err)
	}
	return nil
}
