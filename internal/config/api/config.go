package api

import (
	"net"
	"strconv"
	"time"

	"github.com/weisyn/sandbox/pkg/types"
)

// APIOptions API服务配置选项
type APIOptions struct {
	Host string `json:"host"` // 监听地址
	Port int    `json:"port"` // 监听端口

	EnableWebSocket bool `json:"enable_websocket"` // 是否启用 /ws
	EnableMetrics   bool `json:"enable_metrics"`   // 是否暴露 /metrics

	ReadTimeout     time.Duration `json:"read_timeout"`     // 读取超时时间
	WriteTimeout    time.Duration `json:"write_timeout"`    // 写入超时时间
	ShutdownTimeout time.Duration `json:"shutdown_timeout"` // 优雅关闭等待时间

	MaxRequestSize int      `json:"max_request_size"` // 最大请求大小(字节)
	CORSOrigins    []string `json:"cors_origins"`     // 允许的CORS源

	// WebSocket 缓冲区
	WSReadBufferSize  int `json:"ws_read_buffer_size"`
	WSWriteBufferSize int `json:"ws_write_buffer_size"`
	WSMaxConnections  int `json:"ws_max_connections"`
}

// Address 监听地址 host:port
func (o *APIOptions) Address() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// Config API配置实现
type Config struct {
	options *APIOptions
}

// New 创建API配置实现
func New(userConfig *types.UserAPIConfig) *Config {
	// 1. 先创建完整的默认配置
	defaultOptions := createDefaultAPIOptions()

	// 2. 如果有用户配置，则转换并覆盖默认配置
	if userConfig != nil {
		convertAndMergeUserConfig(defaultOptions, userConfig)
	}

	return &Config{
		options: defaultOptions,
	}
}

// createDefaultAPIOptions 创建默认API配置
func createDefaultAPIOptions() *APIOptions {
	return &APIOptions{
		Host:              defaultHost,
		Port:              defaultPort,
		EnableWebSocket:   defaultEnableWebSocket,
		EnableMetrics:     defaultEnableMetrics,
		ReadTimeout:       defaultReadTimeout,
		WriteTimeout:      defaultWriteTimeout,
		ShutdownTimeout:   defaultShutdownTimeout,
		MaxRequestSize:    defaultMaxRequestSize,
		CORSOrigins:       append([]string{}, defaultCORSOrigins...),
		WSReadBufferSize:  defaultWSReadBufferSize,
		WSWriteBufferSize: defaultWSWriteBufferSize,
		WSMaxConnections:  defaultWSMaxConnections,
	}
}

// convertAndMergeUserConfig 将用户配置转换并合并到默认配置中
// 使用指针类型来准确区分"未设置"和"设置为零值"
func convertAndMergeUserConfig(opts *APIOptions, userConfig *types.UserAPIConfig) {
	if userConfig.Host != nil {
		opts.Host = *userConfig.Host
	}
	if userConfig.Port != nil {
		opts.Port = *userConfig.Port
	}
	if userConfig.EnableWebSocket != nil {
		opts.EnableWebSocket = *userConfig.EnableWebSocket
	}
	if userConfig.EnableMetrics != nil {
		opts.EnableMetrics = *userConfig.EnableMetrics
	}
	// 超时为 Go duration 字符串，解析失败时保留默认值
	if userConfig.ReadTimeout != nil {
		if d, err := time.ParseDuration(*userConfig.ReadTimeout); err == nil {
			opts.ReadTimeout = d
		}
	}
	if userConfig.WriteTimeout != nil {
		if d, err := time.ParseDuration(*userConfig.WriteTimeout); err == nil {
			opts.WriteTimeout = d
		}
	}
	if userConfig.MaxRequestSize != nil && *userConfig.MaxRequestSize > 0 {
		opts.MaxRequestSize = *userConfig.MaxRequestSize
	}
	if len(userConfig.CORSOrigins) > 0 {
		opts.CORSOrigins = append([]string{}, userConfig.CORSOrigins...)
	}
}

// GetOptions 获取完整的API配置选项
func (c *Config) GetOptions() *APIOptions {
	return c.options
}
