// Package clock 时间源接口
package clock

import "time"

// Clock 统一的时间源，测试中可替换为可控实现
type Clock interface {
	// Now 当前时间
	Now() time.Time

	// Since 从 t 到现在的时长
	Since(t time.Time) time.Duration
}
