// Package writegate 写门闸实现
package writegate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/weisyn/sandbox/internal/core/infrastructure/clock"
	infraClock "github.com/weisyn/sandbox/pkg/interfaces/infrastructure/clock"
	wgif "github.com/weisyn/sandbox/pkg/interfaces/infrastructure/writegate"
)

type gate struct {
	clock infraClock.Clock

	mu    sync.RWMutex
	holds map[string]wgif.Hold
}

var _ wgif.WriteGate = (*gate)(nil)

// New 创建门闸，clk 为 nil 时使用系统时钟
func New(clk infraClock.Clock) wgif.WriteGate {
	return &gate{clock: clock.OrSystem(clk), holds: make(map[string]wgif.Hold)}
}

func (g *gate) EnterReadOnly(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.holds[reason]; !ok {
		g.holds[reason] = wgif.Hold{Reason: reason, Since: g.clock.Now()}
	}
}

func (g *gate) ExitReadOnly(reason string) {
	g.mu.Lock()
	delete(g.holds, reason)
	g.mu.Unlock()
}

func (g *gate) IsReadOnly() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.holds) > 0
}

func (g *gate) Holds() []wgif.Hold {
	g.mu.RLock()
	out := make([]wgif.Hold, 0, len(g.holds))
	for _, h := range g.holds {
		out = append(out, h)
	}
	g.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Since.Equal(out[j].Since) {
			return out[i].Reason < out[j].Reason
		}
		return out[i].Since.Before(out[j].Since)
	})
	return out
}

func (g *gate) AssertWriteAllowed(ctx context.Context, op string) error {
	if holds := g.Holds(); len(holds) > 0 {
		reasons := make([]string, len(holds))
		for i, h := range holds {
			reasons[i] = h.Reason
		}
		return fmt.Errorf("%w: %s (%s)", wgif.ErrReadOnly, op, strings.Join(reasons, "; "))
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
