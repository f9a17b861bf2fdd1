package memory

import "time"

// MemoryOptions bigcache 参数
type MemoryOptions struct {
	LifeWindow         time.Duration `json:"life_window"`
	CleanWindow        time.Duration `json:"clean_window"`
	MaxEntriesInWindow int           `json:"max_entries_in_window"`
	MaxEntrySize       int           `json:"max_entry_size"`
	// Shards 必须为 2 的幂
	Shards int `json:"shards"`
	// HardMaxMB 缓存上限，0 表示不限
	HardMaxMB int `json:"hard_max_mb"`
}

// Config 合约描述缓存的配置，不接受用户覆盖
type Config struct {
	options *MemoryOptions
}

func New() *Config {
	return &Config{options: &MemoryOptions{
		LifeWindow:         defaultLifeWindow,
		CleanWindow:        defaultCleanWindow,
		MaxEntriesInWindow: defaultMaxEntriesInWindow,
		MaxEntrySize:       defaultMaxEntrySize,
		Shards:             defaultShards,
		HardMaxMB:          defaultHardMaxMB,
	}}
}

// NewFromOptions nil 时退回默认值
func NewFromOptions(options *MemoryOptions) *Config {
	if options == nil {
		return New()
	}
	return &Config{options: options}
}

func (c *Config) GetOptions() *MemoryOptions { return c.options }
