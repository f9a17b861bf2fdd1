// Package event 进程内事件总线接口
//
// 账本提交、调用完成等通知经由总线分发给 WebSocket 订阅者等消费方。
package event

// Topic 事件主题
type Topic string

// EventBus 事件总线
//
// handler 为单参数函数，参数类型与该主题的载荷类型一致。处理函数在 Publish 的
// 调用方 goroutine 中同步执行，不得阻塞。
type EventBus interface {
	Subscribe(topic Topic, handler interface{}) error
	Unsubscribe(topic Topic, handler interface{}) error
	Publish(topic Topic, payload interface{})

	// History 主题最近的载荷，按发布顺序；未保留历史时为 nil
	History(topic Topic) []interface{}
}
