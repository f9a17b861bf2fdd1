// Package sandbox 沙箱执行配置
package sandbox

import (
	"time"

	"github.com/weisyn/sandbox/pkg/types"
)

// 执行引擎名称
const (
	EngineWASM     = "wasm"
	EngineScripted = "scripted"
)

// SandboxOptions 沙箱执行配置选项
type SandboxOptions struct {
	// Engine 执行引擎
	Engine string `json:"engine"`

	// 未指定预算时使用默认值，指定时不得超过上限
	DefaultInstructions uint64 `json:"default_instructions"`
	MaxInstructions     uint64 `json:"max_instructions"`
	DefaultMemoryBytes  uint64 `json:"default_memory_bytes"`
	MaxMemoryBytes      uint64 `json:"max_memory_bytes"`

	// ExecutionTimeout 单次执行的墙钟兜底上限，超时按陷入处理；终止由指令预算保证
	ExecutionTimeout time.Duration `json:"execution_timeout"`

	// DefaultInvoker 未指定调用者时使用的账户地址（Base58Check），空表示必须显式指定
	DefaultInvoker string `json:"default_invoker"`

	// LearnFootprint 是否记录成功调用的实际访问集合作为后续调用的足迹提示
	LearnFootprint bool `json:"learn_footprint"`
	// HintKeysPerFunction 每个合约函数保留的提示键数，超出时淘汰最久未命中的键
	HintKeysPerFunction int `json:"hint_keys_per_function"`
	// HintFunctions 保留提示的 (合约, 函数) 数
	HintFunctions int `json:"hint_functions"`

	// ReadOnly 以只读模式启动
	ReadOnly bool `json:"read_only"`

	// TemporaryEntryLifetime 临时条目写入后存活的版本数，0 表示不过期
	TemporaryEntryLifetime uint64 `json:"temporary_entry_lifetime"`

	// RequestHistory 保留的已完成请求记录数
	RequestHistory int `json:"request_history"`

	// ModuleCacheSize 编译结果缓存的合约数
	ModuleCacheSize int `json:"module_cache_size"`
}

// Config 沙箱配置实现
type Config struct {
	options *SandboxOptions
}

// New 创建沙箱配置
func New(userConfig *types.UserSandboxConfig) *Config {
	options := createDefaultSandboxOptions()
	if userConfig != nil {
		applyUserConfig(options, userConfig)
	}
	return &Config{options: options}
}

func createDefaultSandboxOptions() *SandboxOptions {
	return &SandboxOptions{
		Engine:                 defaultEngine,
		DefaultInstructions:    defaultInstructions,
		MaxInstructions:        defaultMaxInstructions,
		DefaultMemoryBytes:     defaultMemoryBytes,
		MaxMemoryBytes:         defaultMaxMemoryBytes,
		ExecutionTimeout:       defaultExecutionTimeout,
		LearnFootprint:         defaultLearnFootprint,
		HintKeysPerFunction:    defaultHintKeysPerFunction,
		HintFunctions:          defaultHintFunctions,
		TemporaryEntryLifetime: defaultTemporaryEntryLifetime,
		RequestHistory:         defaultRequestHistory,
		ModuleCacheSize:        defaultModuleCacheSize,
	}
}

func applyUserConfig(options *SandboxOptions, c *types.UserSandboxConfig) {
	if c.Engine != nil && *c.Engine != "" {
		options.Engine = *c.Engine
	}
	if c.DefaultInstructions != nil {
		options.DefaultInstructions = *c.DefaultInstructions
	}
	if c.MaxInstructions != nil {
		options.MaxInstructions = *c.MaxInstructions
	}
	if c.DefaultMemoryBytes != nil {
		options.DefaultMemoryBytes = *c.DefaultMemoryBytes
	}
	if c.MaxMemoryBytes != nil {
		options.MaxMemoryBytes = *c.MaxMemoryBytes
	}
	if c.ExecutionTimeoutMs != nil && *c.ExecutionTimeoutMs > 0 {
		options.ExecutionTimeout = time.Duration(*c.ExecutionTimeoutMs) * time.Millisecond
	}
	if c.DefaultInvoker != nil {
		options.DefaultInvoker = *c.DefaultInvoker
	}
	if c.LearnFootprint != nil {
		options.LearnFootprint = *c.LearnFootprint
	}
	if c.HintKeysPerFunction != nil && *c.HintKeysPerFunction > 0 {
		options.HintKeysPerFunction = *c.HintKeysPerFunction
	}
	if c.HintFunctions != nil && *c.HintFunctions > 0 {
		options.HintFunctions = *c.HintFunctions
	}
	if c.ReadOnly != nil {
		options.ReadOnly = *c.ReadOnly
	}
	if c.TemporaryEntryLifetime != nil {
		options.TemporaryEntryLifetime = *c.TemporaryEntryLifetime
	}
	if c.RequestHistory != nil && *c.RequestHistory >= 0 {
		options.RequestHistory = *c.RequestHistory
	}
	if c.ModuleCacheSize != nil && *c.ModuleCacheSize > 0 {
		options.ModuleCacheSize = *c.ModuleCacheSize
	}
	// 上限不得小于默认值
	if options.MaxInstructions < options.DefaultInstructions {
		options.MaxInstructions = options.DefaultInstructions
	}
	if options.MaxMemoryBytes < options.DefaultMemoryBytes {
		options.MaxMemoryBytes = options.DefaultMemoryBytes
	}
}

// NewFromOptions 包装已有选项
func NewFromOptions(options *SandboxOptions) *Config {
	if options == nil {
		return New(nil)
	}
	return &Config{options: options}
}

// GetOptions 获取配置选项
func (c *Config) GetOptions() *SandboxOptions {
	return c.options
}

// ResolveBudget 用默认值补齐并按上限截断调用方给出的预算
func (o *SandboxOptions) ResolveBudget(b types.Budget) types.Budget {
	if b.InstructionLimit == 0 {
		b.InstructionLimit = o.DefaultInstructions
	}
	if b.InstructionLimit > o.MaxInstructions {
		b.InstructionLimit = o.MaxInstructions
	}
	if b.MemoryLimitBytes == 0 {
		b.MemoryLimitBytes = o.DefaultMemoryBytes
	}
	if b.MemoryLimitBytes > o.MaxMemoryBytes {
		b.MemoryLimitBytes = o.MaxMemoryBytes
	}
	return b
}
