// Package clock 时间源实现：系统时钟与测试用的手动时钟
package clock

import (
	"time"

	infraClock "github.com/weisyn/sandbox/pkg/interfaces/infrastructure/clock"
)

// SystemClock 使用系统真实时间
type SystemClock struct{}

// NewSystemClock 创建系统时钟
func NewSystemClock() infraClock.Clock { return SystemClock{} }

func (SystemClock) Now() time.Time                  { return time.Now() }
func (SystemClock) Since(t time.Time) time.Duration { return time.Since(t) }

// OrSystem nil 时返回系统时钟
func OrSystem(c infraClock.Clock) infraClock.Clock {
	if c == nil {
		return SystemClock{}
	}
	return c
}
