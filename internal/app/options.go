package app

import (
	"os"

	"github.com/weisyn/sandbox/internal/config"
	configiface "github.com/weisyn/sandbox/pkg/interfaces/config"
	"github.com/weisyn/sandbox/pkg/types"
)

// Option 启动选项
type Option func(*options)

// options 同时作为 config.AppOptions 注入配置模块
type options struct {
	configFile string
	appConfig  *types.AppConfig
	overrides  []func(*types.AppConfig)
	withAPI    bool
}

var _ configiface.AppOptions = (*options)(nil)

// WithConfigFile 为空时回退到环境变量 SANDBOX_CONFIG_PATH
func WithConfigFile(path string) Option {
	return func(o *options) { o.configFile = path }
}

// WithAppConfig 直接给定配置，忽略配置文件
func WithAppConfig(cfg *types.AppConfig) Option {
	return func(o *options) { o.appConfig = cfg }
}

// WithOverride 在配置加载之后修改配置，命令行参数经由它覆盖文件
func WithOverride(fn func(*types.AppConfig)) Option {
	return func(o *options) { o.overrides = append(o.overrides, fn) }
}

// WithoutAPI 不启动 HTTP/WebSocket 服务，供一次性命令使用
func WithoutAPI() Option {
	return func(o *options) { o.withAPI = false }
}

func newOptions(opts ...Option) *options {
	o := &options{withAPI: true}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// resolve 加载配置、应用覆盖项并校验最终结果
func (o *options) resolve() error {
	if o.appConfig == nil {
		path := o.configFile
		if path == "" {
			path = os.Getenv("SANDBOX_CONFIG_PATH")
		}
		cfg, err := config.LoadAppConfig(path)
		if err != nil {
			return err
		}
		o.appConfig = cfg
	}
	for _, fn := range o.overrides {
		fn(o.appConfig)
	}
	return config.Validate(o.appConfig)
}

func (o *options) GetAppConfig() *types.AppConfig { return o.appConfig }
