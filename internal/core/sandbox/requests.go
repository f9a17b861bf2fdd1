package sandbox

import (
	"sort"
	"sync"
	"time"

	clockimpl "github.com/weisyn/sandbox/internal/core/infrastructure/clock"
	"github.com/weisyn/sandbox/internal/core/infrastructure/metrics"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
)

// RequestState 请求状态
type RequestState string

const (
	StateReceived          RequestState = "received"
	StateValidating        RequestState = "validating"
	StateAwaitingWriteLock RequestState = "awaiting_write_lock"
	StateExecuting         RequestState = "executing"
	StateCommitting        RequestState = "committing"
	StateResponded         RequestState = "responded"
)

// 允许的状态迁移；任何状态都可以直接进入 Responded
var transitions = map[RequestState][]RequestState{
	StateReceived:          {StateValidating},
	StateValidating:        {StateAwaitingWriteLock, StateExecuting},
	StateAwaitingWriteLock: {StateExecuting},
	StateExecuting:         {StateCommitting},
	StateCommitting:        {},
}

func allowed(from, to RequestState) bool {
	if to == StateResponded {
		return from != StateResponded
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// RequestInfo 请求的可观察状态
type RequestInfo struct {
	ID       string       `json:"id"`
	Kind     string       `json:"kind"`
	Contract string       `json:"contract,omitempty"`
	Function string       `json:"function,omitempty"`
	State    RequestState `json:"state"`
	Started  time.Time    `json:"started"`
	Updated  time.Time    `json:"updated"`
	// Outcome 调用结果分类或错误码，仅 Responded 时有值
	Outcome string `json:"outcome,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StateHook 状态迁移回调
type StateHook func(info RequestInfo, from RequestState)

// tracker 记录进行中与最近完成的请求
type tracker struct {
	mu      sync.Mutex
	active  map[string]*RequestInfo
	history []RequestInfo
	limit   int
	hooks   []StateHook
	clock   clock.Clock

	metrics *metrics.Metrics
	logger  log.Logger
}

func newTracker(limit int, clk clock.Clock, m *metrics.Metrics, logger log.Logger) *tracker {
	return &tracker{active: make(map[string]*RequestInfo), limit: limit, clock: clockimpl.OrSystem(clk), metrics: m, logger: logger}
}

func (t *tracker) onTransition(h StateHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = append(t.hooks, h)
}

// begin 登记新请求，初始状态 Received
func (t *tracker) begin(id, kind, contract, function string) *request {
	now := t.clock.Now()
	info := &RequestInfo{ID: id, Kind: kind, Contract: contract, Function: function, State: StateReceived, Started: now, Updated: now}
	t.mu.Lock()
	t.active[id] = info
	hooks := t.hooks
	t.mu.Unlock()

	t.metrics.ObserveRequestState(string(StateReceived))
	for _, h := range hooks {
		h(*info, "")
	}
	return &request{t: t, id: id}
}

func (t *tracker) advance(id string, to RequestState, outcome string, err error) {
	t.mu.Lock()
	info, ok := t.active[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	from := info.State
	if !allowed(from, to) {
		t.mu.Unlock()
		t.logger.Errorf("非法的请求状态迁移: id=%s %s -> %s", id, from, to)
		return
	}
	info.State = to
	info.Updated = t.clock.Now()
	if to == StateResponded {
		info.Outcome = outcome
		if err != nil {
			info.Error = err.Error()
		}
		delete(t.active, id)
		if t.limit > 0 {
			t.history = append(t.history, *info)
			if len(t.history) > t.limit {
				t.history = append([]RequestInfo(nil), t.history[len(t.history)-t.limit:]...)
			}
		}
	}
	snapshot := *info
	hooks := t.hooks
	t.mu.Unlock()

	t.metrics.ObserveRequestState(string(to))
	t.logger.Debugf("请求状态: id=%s %s -> %s", id, from, to)
	for _, h := range hooks {
		h(snapshot, from)
	}
}

// list 进行中的请求（按开始时间）与最近完成的请求
func (t *tracker) list() (active, recent []RequestInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, info := range t.active {
		active = append(active, *info)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Started.Before(active[j].Started) })
	recent = append(recent, t.history...)
	return active, recent
}

// request 单个请求的状态句柄
type request struct {
	t    *tracker
	id   string
	done bool
}

func (r *request) to(s RequestState) { r.t.advance(r.id, s, "", nil) }

// respond 进入终态，重复调用无效
func (r *request) respond(outcome string, err error) {
	if r.done {
		return
	}
	r.done = true
	r.t.advance(r.id, StateResponded, outcome, err)
}
