package types

// AppConfig 用户配置文件结构
//
// 字段均为指针：nil 表示未设置，使用默认值；非 nil 即使是零值也会被采用。
type AppConfig struct {
	Log     *UserLogConfig     `json:"log,omitempty"`
	API     *UserAPIConfig     `json:"api,omitempty"`
	Sandbox *UserSandboxConfig `json:"sandbox,omitempty"`
	Storage *UserStorageConfig `json:"storage,omitempty"`
	Event   *UserEventConfig   `json:"event,omitempty"`
}

// UserLogConfig 日志配置
type UserLogConfig struct {
	Level            *string `json:"level,omitempty"`
	ToConsole        *bool   `json:"to_console,omitempty"`
	FilePath         *string `json:"file_path,omitempty"`
	MaxSize          *int    `json:"max_size,omitempty"`
	MaxBackups       *int    `json:"max_backups,omitempty"`
	MaxAge           *int    `json:"max_age,omitempty"`
	Compress         *bool   `json:"compress,omitempty"`
	EnableCaller     *bool   `json:"enable_caller,omitempty"`
	EnableStacktrace *bool   `json:"enable_stacktrace,omitempty"`
}

// UserAPIConfig API 配置
type UserAPIConfig struct {
	Host            *string  `json:"host,omitempty"`
	Port            *int     `json:"port,omitempty"`
	EnableWebSocket *bool    `json:"enable_websocket,omitempty"`
	EnableMetrics   *bool    `json:"enable_metrics,omitempty"`
	ReadTimeout     *string  `json:"read_timeout,omitempty"`
	WriteTimeout    *string  `json:"write_timeout,omitempty"`
	MaxRequestSize  *int     `json:"max_request_size,omitempty"`
	CORSOrigins     []string `json:"cors_origins,omitempty"`
}

// UserSandboxConfig 沙箱执行配置
type UserSandboxConfig struct {
	Engine                 *string `json:"engine,omitempty"`
	DefaultInstructions    *uint64 `json:"default_instructions,omitempty"`
	MaxInstructions        *uint64 `json:"max_instructions,omitempty"`
	DefaultMemoryBytes     *uint64 `json:"default_memory_bytes,omitempty"`
	MaxMemoryBytes         *uint64 `json:"max_memory_bytes,omitempty"`
	ExecutionTimeoutMs     *uint64 `json:"execution_timeout_ms,omitempty"`
	DefaultInvoker         *string `json:"default_invoker,omitempty"`
	LearnFootprint         *bool   `json:"learn_footprint,omitempty"`
	HintKeysPerFunction    *int    `json:"hint_keys_per_function,omitempty"`
	HintFunctions          *int    `json:"hint_functions,omitempty"`
	ReadOnly               *bool   `json:"read_only,omitempty"`
	TemporaryEntryLifetime *uint64 `json:"temporary_entry_lifetime,omitempty"`
	RequestHistory         *int    `json:"request_history,omitempty"`
	ModuleCacheSize        *int    `json:"module_cache_size,omitempty"`
}

// UserStorageConfig 账本存储配置
type UserStorageConfig struct {
	Backend    *string `json:"backend,omitempty"`
	LedgerFile *string `json:"ledger_file,omitempty"`
	BadgerPath *string `json:"badger_path,omitempty"`
	SyncWrites *bool   `json:"sync_writes,omitempty"`
	Compress   *bool   `json:"compress,omitempty"`
}

// UserEventConfig 事件总线配置
type UserEventConfig struct {
	Enabled     *bool `json:"enabled,omitempty"`
	HistorySize *int  `json:"history_size,omitempty"`
}
