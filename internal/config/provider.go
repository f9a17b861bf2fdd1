// Package config 提供应用配置管理功能
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/weisyn/sandbox/internal/config/api"
	"github.com/weisyn/sandbox/internal/config/event"
	"github.com/weisyn/sandbox/internal/config/log"
	"github.com/weisyn/sandbox/internal/config/sandbox"
	"github.com/weisyn/sandbox/internal/config/storage"
	"github.com/weisyn/sandbox/internal/config/storage/badger"
	"github.com/weisyn/sandbox/internal/config/storage/memory"
	"github.com/weisyn/sandbox/pkg/interfaces/config"
	"github.com/weisyn/sandbox/pkg/types"
)

// Provider 实现配置提供者接口
//
// 各选项在首次访问时构建并缓存，之后每次返回同一实例。
type Provider struct {
	appConfig *types.AppConfig

	once    sync.Once
	log     *log.LogOptions
	api     *api.APIOptions
	sandbox *sandbox.SandboxOptions
	storage *storage.StorageOptions
	badger  *badger.BadgerOptions
	memory  *memory.MemoryOptions
	event   *event.EventOptions
}

// 编译时校验
var _ config.Provider = (*Provider)(nil)

// NewProvider 创建配置提供者
func NewProvider(appConfig *types.AppConfig) config.Provider {
	if appConfig == nil {
		appConfig = &types.AppConfig{}
	}
	return &Provider{
		appConfig: appConfig,
	}
}

func (p *Provider) build() {
	p.once.Do(func() {
		c := p.appConfig
		p.log = log.New(c.Log).GetOptions()
		p.api = api.New(c.API).GetOptions()
		p.sandbox = sandbox.New(c.Sandbox).GetOptions()
		p.storage = storage.New(c.Storage).GetOptions()
		p.badger = badger.New(c.Storage).GetOptions()
		p.memory = memory.New().GetOptions()
		p.event = event.New(c.Event).GetOptions()
	})
}

// GetLog 获取日志配置
func (p *Provider) GetLog() *log.LogOptions {
	p.build()
	return p.log
}

// GetAPI 获取API服务配置
func (p *Provider) GetAPI() *api.APIOptions {
	p.build()
	return p.api
}

// GetSandbox 获取沙箱执行配置
func (p *Provider) GetSandbox() *sandbox.SandboxOptions {
	p.build()
	return p.sandbox
}

// GetStorage 获取账本存储配置
func (p *Provider) GetStorage() *storage.StorageOptions {
	p.build()
	return p.storage
}

// GetBadger 获取BadgerDB存储配置
func (p *Provider) GetBadger() *badger.BadgerOptions {
	p.build()
	return p.badger
}

// GetMemory 获取内存缓存配置
func (p *Provider) GetMemory() *memory.MemoryOptions {
	p.build()
	return p.memory
}

// GetEvent 获取事件配置
func (p *Provider) GetEvent() *event.EventOptions {
	p.build()
	return p.event
}

// GetAppConfig 获取原始应用配置
func (p *Provider) GetAppConfig() *types.AppConfig {
	return p.appConfig
}

// LoadAppConfig 从 JSON 文件读取用户配置
//
// path 为空时返回空配置；文件不存在或解析失败返回错误，由调用方决定是否终止启动。
func LoadAppConfig(path string) (*types.AppConfig, error) {
	if path == "" {
		return &types.AppConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	appConfig, err := ParseAppConfig(data)
	if err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}
	return appConfig, nil
}

// ParseAppConfig 解析并校验 JSON 配置内容，拒绝未知字段
func ParseAppConfig(data []byte) (*types.AppConfig, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var appConfig types.AppConfig
	if err := dec.Decode(&appConfig); err != nil {
		return nil, err
	}
	if err := Validate(&appConfig); err != nil {
		return nil, err
	}
	return &appConfig, nil
}
