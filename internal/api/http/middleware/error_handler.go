package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apitypes "github.com/weisyn/sandbox/internal/api/types"
)

// ErrorHandler 将处理器登记的错误统一输出为 Problem Details
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		problem, ok := apitypes.AsProblem(err)
		if !ok {
			problem = apitypes.Internal(apitypes.LayerAPI, err).With("path", c.Request.URL.Path)
		}
		logger.Error("HTTP error",
			zap.String("code", problem.Code),
			zap.String("traceId", problem.TraceID),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		problem.WriteJSON(c.Writer)
		c.Abort()
	}
}

// Recovery 捕获处理器 panic 并返回 Problem Details
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		logger.Error("HTTP handler panic recovered", zap.Any("panic", rec), zap.String("path", c.Request.URL.Path))
		apitypes.Internal(apitypes.LayerAPI, rec).
			Because(fmt.Sprintf("Panic recovered: %v", rec)).
			WriteJSON(c.Writer)
		c.Abort()
	})
}

// CORS 按配置的源放行跨域请求，"*" 表示任意源
func CORS(origins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := allowed[origin]; ok || allowAll {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
