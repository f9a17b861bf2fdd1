// Package config provides configuration provider interfaces.
package config

import (
	apiconfig "github.com/weisyn/sandbox/internal/config/api"
	eventconfig "github.com/weisyn/sandbox/internal/config/event"
	logconfig "github.com/weisyn/sandbox/internal/config/log"
	sandboxconfig "github.com/weisyn/sandbox/internal/config/sandbox"
	storageconfig "github.com/weisyn/sandbox/internal/config/storage"
	badgerconfig "github.com/weisyn/sandbox/internal/config/storage/badger"
	memoryconfig "github.com/weisyn/sandbox/internal/config/storage/memory"
	"github.com/weisyn/sandbox/pkg/types"
)

// Provider 配置提供者接口
//
// 每个 Get 方法返回已合并默认值与用户配置的选项，调用方不得修改返回值。
type Provider interface {
	// GetLog 获取日志配置
	GetLog() *logconfig.LogOptions

	// GetAPI 获取API服务配置
	GetAPI() *apiconfig.APIOptions

	// GetSandbox 获取沙箱执行配置
	GetSandbox() *sandboxconfig.SandboxOptions

	// GetStorage 获取账本存储配置
	GetStorage() *storageconfig.StorageOptions

	// GetBadger 获取BadgerDB存储配置
	GetBadger() *badgerconfig.BadgerOptions

	// GetMemory 获取内存缓存配置
	GetMemory() *memoryconfig.MemoryOptions

	// GetEvent 获取事件配置
	GetEvent() *eventconfig.EventOptions

	// GetAppConfig 获取原始应用配置
	GetAppConfig() *types.AppConfig
}
