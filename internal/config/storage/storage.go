// Package storage 账本存储配置
package storage

import "github.com/weisyn/sandbox/pkg/types"

// 账本持久化后端
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// StorageOptions 账本存储配置选项
type StorageOptions struct {
	Backend    string `json:"backend"`     // file | badger
	LedgerFile string `json:"ledger_file"` // file 后端的快照文件路径
	Compress   bool   `json:"compress"`    // file 后端是否 snappy 压缩
}

// Config 账本存储配置实现
type Config struct {
	options *StorageOptions
}

// New 创建账本存储配置
func New(userConfig *types.UserStorageConfig) *Config {
	options := &StorageOptions{
		Backend:    defaultBackend,
		LedgerFile: defaultLedgerFile,
		Compress:   defaultCompress,
	}
	if userConfig != nil {
		if userConfig.Backend != nil && *userConfig.Backend != "" {
			options.Backend = *userConfig.Backend
		}
		if userConfig.LedgerFile != nil && *userConfig.LedgerFile != "" {
			options.LedgerFile = *userConfig.LedgerFile
		}
		if userConfig.Compress != nil {
			options.Compress = *userConfig.Compress
		}
	}
	return &Config{options: options}
}

// GetOptions 获取配置选项
func (c *Config) GetOptions() *StorageOptions {
	return c.options
}
