package badger

import "time"

const (
	defaultPath = "./data/ledger-badger"

	// 提交返回前必须落盘
	defaultSyncWrites = true

	// 沙箱账本很小，16MB 足够
	defaultMemTableSize = 16 << 20

	defaultGCInterval     = 30 * time.Minute
	defaultGCDiscardRatio = 0.5
)
