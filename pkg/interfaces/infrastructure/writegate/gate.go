// Package writegate 全局写门闸接口
//
// 门闸持有零个或多个只读原因，任一原因在位时账本拒绝提交，读取不受影响。
// 以 --read-only 启动、服务停止排空写队列都会登记一个原因。
package writegate

import (
	"context"
	"time"
)

// Hold 一个只读原因及登记时间
type Hold struct {
	Reason string
	Since  time.Time
}

// WriteGate 写门闸
//
//	if err := gate.AssertWriteAllowed(ctx, "ledger.commit"); err != nil {
//	    return err
//	}
type WriteGate interface {
	// EnterReadOnly 登记只读原因，重复登记同一原因保留最早时间
	EnterReadOnly(reason string)

	// ExitReadOnly 撤销一个只读原因，其他原因仍然生效
	ExitReadOnly(reason string)

	IsReadOnly() bool

	// Holds 当前全部只读原因，按登记时间排序
	Holds() []Hold

	// AssertWriteAllowed 只读时返回包装了 ErrReadOnly 的错误
	AssertWriteAllowed(ctx context.Context, operation string) error
}
