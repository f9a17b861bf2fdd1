package storage

const (
	defaultBackend = BackendFile

	// defaultLedgerFile 与命令行 --ledger-file 默认值一致
	defaultLedgerFile = "ledger.json"

	defaultCompress = true
)
