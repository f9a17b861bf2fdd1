package sandbox

import (
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/sandbox/pkg/types"
)

// 沙箱发布的事件主题
const (
	// EventLedgerCommitted 账本提交了新版本，载荷 *CommitEvent
	EventLedgerCommitted event.Topic = "ledger.committed"
	// EventInvocationCompleted 一次调用完成，载荷 *InvocationEvent
	EventInvocationCompleted event.Topic = "sandbox.invocation.completed"
)

// CommitEvent 账本提交通知
type CommitEvent struct {
	Version  uint64            `json:"version"`
	Previous uint64            `json:"previous"`
	Keys     []types.LedgerKey `json:"-"`
	// KeyIDs 变更键的字符串形式
	KeyIDs []string `json:"keys"`
}

// InvocationEvent 调用完成通知
type InvocationEvent struct {
	RequestID        string                 `json:"request_id"`
	Contract         string                 `json:"contract"`
	Function         string                 `json:"function"`
	Status           types.InvocationStatus `json:"status,omitempty"`
	Error            string                 `json:"error,omitempty"`
	Simulated        bool                   `json:"simulated"`
	Retried          bool                   `json:"retried"`
	BaseVersion      uint64                 `json:"base_version"`
	CommittedVersion uint64                 `json:"committed_version,omitempty"`
}
