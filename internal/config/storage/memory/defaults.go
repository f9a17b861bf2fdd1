package memory

import "time"

const (
	// 合约描述由字节码决定，一小时后重新派生即可
	defaultLifeWindow  = time.Hour
	defaultCleanWindow = 10 * time.Minute

	defaultMaxEntriesInWindow = 1024
	// 合约描述 JSON 的典型大小
	defaultMaxEntrySize = 4096
	defaultShards       = 64
	defaultHardMaxMB    = 64
)
