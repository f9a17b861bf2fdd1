package api

import "time"

// API服务默认值
const (
	// defaultHost 默认只监听本机，沙箱面向本地开发
	defaultHost = "127.0.0.1"

	// defaultPort 默认端口
	defaultPort = 8080

	defaultEnableWebSocket = true
	defaultEnableMetrics   = true

	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	// defaultMaxRequestSize 单个请求体上限 4MB（部署字节码走同一入口）
	defaultMaxRequestSize = 4 * 1024 * 1024

	defaultWSReadBufferSize  = 1024
	defaultWSWriteBufferSize = 1024
	defaultWSMaxConnections  = 100
)

var defaultCORSOrigins = []string{"*"}
