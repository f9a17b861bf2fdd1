package config

import (
	"fmt"

	"github.com/weisyn/sandbox/internal/config/storage"
	logif "github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/sandbox/pkg/types"
)

// Validate 检查无法靠默认值兜底的枚举字段
func Validate(c *types.AppConfig) error {
	if c.Log != nil && c.Log.Level != nil {
		if l := logif.LogLevel(*c.Log.Level); !l.Valid() {
			return fmt.Errorf("log.level: 未知日志级别 %q", *c.Log.Level)
		}
	}
	if c.Storage != nil && c.Storage.Backend != nil {
		switch *c.Storage.Backend {
		case "", storage.BackendFile, storage.BackendBadger:
		default:
			return fmt.Errorf("storage.backend: 未知账本后端 %q", *c.Storage.Backend)
		}
	}
	return nil
}
