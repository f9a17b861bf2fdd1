// Package types WebSocket 推送报文
package types

// 订阅类型
const (
	SubscriptionCommits     = "commits"
	SubscriptionInvocations = "invocations"
)

// NotificationMethod 推送报文的 method 字段
const NotificationMethod = "sandbox_subscription"

// SubscriptionEvent WebSocket订阅事件
type SubscriptionEvent struct {
	Subscription string      `json:"subscription"` // 订阅ID
	Result       interface{} `json:"result"`       // 事件数据
	// ResumeToken 断线后从该位置续订（仅 commits）
	ResumeToken string `json:"resumeToken,omitempty"`
}

// Notification JSON-RPC 2.0 通知
type Notification struct {
	JSONRPC string             `json:"jsonrpc"`
	Method  string             `json:"method"`
	Params  *SubscriptionEvent `json:"params"`
}
