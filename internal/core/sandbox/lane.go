package sandbox

import (
	"container/list"
	"context"
	"sync"
)

// writeLane 按到达顺序授予的写者锁
//
// 释放时直接把所有权交给队首等待者，后来者不能插队。
// 在获得锁之前取消的等待者离开队列；取消与授予同时发生时，
// 已授予的锁会被立即转交下一位。
type writeLane struct {
	mu      sync.Mutex
	held    bool
	waiters *list.List // chan struct{}
}

func newWriteLane() *writeLane {
	return &writeLane{waiters: list.New()}
}

// Lock 排队获取写者锁
func (l *writeLane) Lock(ctx context.Context) error {
	l.mu.Lock()
	if !l.held && l.waiters.Len() == 0 {
		l.held = true
		l.mu.Unlock()
		return nil
	}
	granted := make(chan struct{})
	elem := l.waiters.PushBack(granted)
	l.mu.Unlock()

	select {
	case <-granted:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-granted:
			l.mu.Unlock()
			l.Unlock()
		default:
			l.waiters.Remove(elem)
			l.mu.Unlock()
		}
		return ctx.Err()
	}
}

// Unlock 释放写者锁
func (l *writeLane) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if front := l.waiters.Front(); front != nil {
		l.waiters.Remove(front)
		close(front.Value.(chan struct{}))
		return
	}
	l.held = false
}

// Waiting 排队中的写者数
func (l *writeLane) Waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waiters.Len()
}
