// Package configs 随二进制分发的示例配置
package configs

import _ "embed"

//go:embed sandbox.json
var sandboxConfig []byte

// GetSandboxConfig 示例配置文件内容，取值与内置默认值一致
func GetSandboxConfig() []byte {
	return append([]byte(nil), sandboxConfig...)
}
