package event

const (
	defaultEnabled = true

	// defaultHistorySize 新建立的 WebSocket 订阅可回放最近的事件
	defaultHistorySize = 64
)
