package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader 请求追踪头
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID 沿用客户端给出的 X-Request-ID，没有时生成一个；同时写入请求的 context
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), requestIDKey{}, id))
		c.Next()
	}
}

// RequestIDFrom 取出 RequestID 写入的追踪 ID，没有时为空
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func GetRequestID(c *gin.Context) string {
	return RequestIDFrom(c.Request.Context())
}
