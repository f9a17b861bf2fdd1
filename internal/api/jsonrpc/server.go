// Package jsonrpc JSON-RPC 2.0 分发
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"sort"

	"go.uber.org/zap"

	"github.com/weisyn/sandbox/internal/api/jsonrpc/types"
	apitypes "github.com/weisyn/sandbox/internal/api/types"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
)

// Server JSON-RPC 2.0 服务器
type Server struct {
	logger  *zap.Logger
	methods map[string]MethodHandler
	maxBody int64
}

// MethodHandler JSON-RPC方法处理器
type MethodHandler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// NewServer 创建JSON-RPC服务器，maxBody 为 0 时不限制请求体大小
func NewServer(logger log.Logger, maxBody int64) *Server {
	zl := zap.NewNop()
	if logger != nil && logger.GetZapLogger() != nil {
		zl = logger.GetZapLogger()
	}
	return &Server{
		logger:  zl,
		methods: make(map[string]MethodHandler),
		maxBody: maxBody,
	}
}

// RegisterMethod 注册JSON-RPC方法
func (s *Server) RegisterMethod(method string, handler MethodHandler) {
	s.methods[method] = handler
}

// Methods 已注册的方法名
func (s *Server) Methods() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServeHTTP 处理HTTP请求；JSON-RPC 错误也以 200 返回
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.write(w, protocolError(nil, types.CodeInvalidRequest,
			apitypes.CodeCommonValidationError, "请求方法无效，仅支持 POST 方法。", "Only POST method is allowed", 405))
		return
	}
	body := io.Reader(r.Body)
	if s.maxBody > 0 {
		body = io.LimitReader(r.Body, s.maxBody+1)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		s.write(w, protocolError(nil, types.CodeParseError,
			apitypes.CodeCommonValidationError, "读取请求失败。", err.Error(), 400))
		return
	}
	if s.maxBody > 0 && int64(len(raw)) > s.maxBody {
		s.write(w, protocolError(nil, types.CodeInvalidRequest,
			apitypes.CodeCommonValidationError, "请求体过大。", fmt.Sprintf("request body exceeds %d bytes", s.maxBody), 413))
		return
	}
	s.write(w, s.Handle(r.Context(), raw))
}

// Handle 处理单个 JSON-RPC 报文，供 HTTP 与 WebSocket 共用
func (s *Server) Handle(ctx context.Context, raw []byte) (resp *types.Response) {
	var req types.Request
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("JSON-RPC handler panic recovered",
				zap.Any("panic", rec),
				zap.String("method", req.Method),
				zap.ByteString("stack", debug.Stack()),
			)
			resp = protocolError(req.ID, types.CodeInternalError,
				apitypes.CodeCommonInternalError, "服务器内部错误，请稍后重试或联系管理员。", fmt.Sprintf("Panic recovered: %v", rec), 500)
		}
	}()

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return protocolError(nil, types.CodeParseError,
			apitypes.CodeCommonValidationError, "请求格式无效，无法解析 JSON。", fmt.Sprintf("Parse error: %v", err), 400)
	}
	if req.JSONRPC != types.Version || req.Method == "" {
		return protocolError(req.ID, types.CodeInvalidRequest,
			apitypes.CodeCommonValidationError, "请求格式无效，jsonrpc 字段必须为 '2.0' 且 method 不能为空。", "invalid JSON-RPC envelope", 400)
	}

	handler, ok := s.methods[req.Method]
	if !ok {
		return protocolError(req.ID, types.CodeMethodNotFound,
			apitypes.CodeCommonValidationError, "方法不存在，请检查方法名称。", fmt.Sprintf("Method '%s' not found", req.Method), 404)
	}

	result, err := handler(ctx, req.Params)
	if err != nil {
		rpcErr := asRPCError(err)
		fields := []zap.Field{zap.String("method", req.Method), zap.Int("code", rpcErr.Code), zap.Error(err)}
		if problem, ok := rpcErr.Data.(*apitypes.ProblemDetails); ok {
			fields = append(fields, zap.String("problem", problem.Code), zap.String("traceId", problem.TraceID))
		}
		s.logger.Warn("JSON-RPC error", fields...)
		return types.Failure(req.ID, rpcErr)
	}
	return types.Success(req.ID, result)
}

func (s *Server) write(w http.ResponseWriter, resp *types.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// protocolError 协议层错误，Problem Details 放在 data 中
func protocolError(id interface{}, rpcCode int, code, userMessage, detail string, status int) *types.Response {
	problem := apitypes.Problem(code, status, userMessage).In(apitypes.LayerAPI).Because(detail)
	return types.Failure(id, types.NewError(rpcCode, "", problem))
}

// asRPCError 方法错误应是 *types.Error 或 Problem Details，其余按内部错误处理
func asRPCError(err error) *types.Error {
	var rpcErr *types.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	problem, ok := apitypes.AsProblem(err)
	if !ok {
		problem = apitypes.Internal(apitypes.LayerSandboxService, err)
	}
	return types.NewError(types.CodeServerError, problem.UserMessage, problem)
}
