package log

import logif "github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"

const (
	defaultLevel = logif.InfoLevel

	// 沙箱是交互式开发工具，默认只写控制台
	defaultToConsole = true
	defaultFilePath  = ""

	// 轮转：单文件 MB、保留个数、保留天数
	defaultMaxSize    = 100
	defaultMaxBackups = 10
	defaultMaxAge     = 30
	defaultCompress   = true

	defaultEnableCaller     = true
	defaultEnableStacktrace = false
)
