package sandbox

import "time"

const (
	defaultEngine = EngineWASM

	// 计量单位为 guest 函数进入次数与宿主调用次数之和
	defaultInstructions    = 1_000_000
	defaultMaxInstructions = 100_000_000

	// 线性内存以 64KiB 页为单位分配
	defaultMemoryBytes    = 16 << 20
	defaultMaxMemoryBytes = 64 << 20

	defaultExecutionTimeout = 10 * time.Second

	defaultLearnFootprint      = true
	defaultHintKeysPerFunction = 32
	defaultHintFunctions       = 1024

	defaultTemporaryEntryLifetime = 0

	defaultRequestHistory = 256

	defaultModuleCacheSize = 64
)
