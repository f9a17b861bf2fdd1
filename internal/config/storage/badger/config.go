package badger

import (
	"time"

	"github.com/weisyn/sandbox/pkg/types"
)

// BadgerOptions 账本 badger 后端的打开参数
type BadgerOptions struct {
	Path         string `json:"path"`
	SyncWrites   bool   `json:"sync_writes"`
	MemTableSize int64  `json:"mem_table_size"`
	// InMemory 不落盘，仅测试使用
	InMemory bool `json:"in_memory"`

	// GCInterval 值日志回收周期，0 表示不做周期回收
	GCInterval     time.Duration `json:"gc_interval"`
	GCDiscardRatio float64       `json:"gc_discard_ratio"`
}

// Config 包装 BadgerOptions 供存储层读取
type Config struct {
	options *BadgerOptions
}

// New 以默认值为底，叠加用户的存储配置
func New(user *types.UserStorageConfig) *Config {
	opts := &BadgerOptions{
		Path:           defaultPath,
		SyncWrites:     defaultSyncWrites,
		MemTableSize:   defaultMemTableSize,
		GCInterval:     defaultGCInterval,
		GCDiscardRatio: defaultGCDiscardRatio,
	}
	if user != nil {
		if user.BadgerPath != nil && *user.BadgerPath != "" {
			opts.Path = *user.BadgerPath
		}
		if user.SyncWrites != nil {
			opts.SyncWrites = *user.SyncWrites
		}
	}
	return &Config{options: opts}
}

// NewFromOptions 直接使用已有的选项
func NewFromOptions(options *BadgerOptions) *Config {
	return &Config{options: options}
}

func (c *Config) GetOptions() *BadgerOptions { return c.options }

func (c *Config) GetPath() string { return c.options.Path }

func (c *Config) IsSyncWritesEnabled() bool { return c.options.SyncWrites }

// GetMemTableSize 未设置时取默认值
func (c *Config) GetMemTableSize() int64 {
	if c.options.MemTableSize <= 0 {
		return defaultMemTableSize
	}
	return c.options.MemTableSize
}

func (c *Config) IsInMemory() bool { return c.options.InMemory }

// GCSchedule 返回回收周期与丢弃比例；内存模式没有值日志，周期为 0
func (c *Config) GCSchedule() (time.Duration, float64) {
	if c.options.InMemory {
		return 0, 0
	}
	ratio := c.options.GCDiscardRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = defaultGCDiscardRatio
	}
	return c.options.GCInterval, ratio
}
