package clock

import (
	"sync"
	"time"

	infraClock "github.com/weisyn/sandbox/pkg/interfaces/infrastructure/clock"
)

// MockClock 测试用时钟，只在 Advance 时前进
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock 创建停在 initial 的时钟
func NewMockClock(initial time.Time) *MockClock { return &MockClock{now: initial} }

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration { return c.Now().Sub(t) }

// Advance 推进时间
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var _ infraClock.Clock = (*MockClock)(nil)
