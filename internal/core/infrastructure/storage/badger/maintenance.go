package badger

import (
	"context"
	"errors"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
)

// gcLoop 周期回收值日志，每轮回收到无可重写文件为止
func (s *Store) gcLoop(ctx context.Context, interval time.Duration, ratio float64) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.collectGarbage(ctx, ratio)
			if errors.Is(err, ErrClosed) {
				return
			}
			if err != nil {
				s.logger.Warnf("值日志回收失败: %v", err)
				continue
			}
			if n > 0 {
				s.logger.Debugf("值日志回收完成，重写 %d 个文件", n)
			}
		}
	}
}

// collectGarbage 反复调用 RunValueLogGC 直到返回 ErrNoRewrite，返回重写的文件数
func (s *Store) collectGarbage(ctx context.Context, ratio float64) (int, error) {
	if err := s.enter(); err != nil {
		return 0, err
	}
	defer s.leave()

	rewritten := 0
	for ctx.Err() == nil {
		err := s.db.RunValueLogGC(ratio)
		switch {
		case err == nil:
			rewritten++
		case errors.Is(err, badgerdb.ErrNoRewrite), errors.Is(err, badgerdb.ErrRejected):
			return rewritten, nil
		default:
			return rewritten, err
		}
	}
	return rewritten, ctx.Err()
}
