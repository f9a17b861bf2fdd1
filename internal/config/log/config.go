// Package log 日志配置
package log

import (
	logif "github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/sandbox/pkg/types"
)

// LogOptions 日志输出与轮转参数
type LogOptions struct {
	Level     logif.LogLevel `json:"level"`
	ToConsole bool           `json:"to_console"`
	// FilePath 为空时不写文件
	FilePath string `json:"file_path"`

	MaxSize    int  `json:"max_size"`
	MaxBackups int  `json:"max_backups"`
	MaxAge     int  `json:"max_age"`
	Compress   bool `json:"compress"`

	EnableCaller     bool `json:"enable_caller"`
	EnableStacktrace bool `json:"enable_stacktrace"`
}

type Config struct {
	options *LogOptions
}

// New 以默认值为底叠加用户配置
//
// 指定了日志文件而没有显式设置 to_console 时，关闭控制台输出。
func New(user *types.UserLogConfig) *Config {
	o := &LogOptions{
		Level:            defaultLevel,
		ToConsole:        defaultToConsole,
		FilePath:         defaultFilePath,
		MaxSize:          defaultMaxSize,
		MaxBackups:       defaultMaxBackups,
		MaxAge:           defaultMaxAge,
		Compress:         defaultCompress,
		EnableCaller:     defaultEnableCaller,
		EnableStacktrace: defaultEnableStacktrace,
	}
	if user == nil {
		return &Config{options: o}
	}
	if user.Level != nil {
		o.Level = logif.LogLevel(*user.Level)
	}
	if user.FilePath != nil {
		o.FilePath = *user.FilePath
		o.ToConsole = false
	}
	override(&o.ToConsole, user.ToConsole)
	override(&o.MaxSize, user.MaxSize)
	override(&o.MaxBackups, user.MaxBackups)
	override(&o.MaxAge, user.MaxAge)
	override(&o.Compress, user.Compress)
	override(&o.EnableCaller, user.EnableCaller)
	override(&o.EnableStacktrace, user.EnableStacktrace)
	return &Config{options: o}
}

func override[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// NewFromOptions nil 时退回默认值
func NewFromOptions(options *LogOptions) *Config {
	if options == nil {
		return New(nil)
	}
	return &Config{options: options}
}

func (c *Config) GetOptions() *LogOptions { return c.options }
