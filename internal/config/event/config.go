// Package event 事件总线配置
package event

import "github.com/weisyn/sandbox/pkg/types"

// EventOptions 事件总线选项
type EventOptions struct {
	Enabled bool `json:"enabled"`
	// HistorySize 每个主题保留的最近事件数，WebSocket 订阅的断点续传依赖它；0 表示不保留
	HistorySize int `json:"history_size"`
}

type Config struct {
	options *EventOptions
}

func New(user *types.UserEventConfig) *Config {
	o := &EventOptions{Enabled: defaultEnabled, HistorySize: defaultHistorySize}
	if user != nil {
		if user.Enabled != nil {
			o.Enabled = *user.Enabled
		}
		if user.HistorySize != nil && *user.HistorySize >= 0 {
			o.HistorySize = *user.HistorySize
		}
	}
	return &Config{options: o}
}

// NewFromOptions nil 时退回默认值
func NewFromOptions(options *EventOptions) *Config {
	if options == nil {
		return New(nil)
	}
	return &Config{options: options}
}

func (c *Config) GetOptions() *EventOptions { return c.options }
