package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apiconfig "github.com/weisyn/sandbox/internal/config/api"
	eventconfig "github.com/weisyn/sandbox/internal/config/event"
	sandboxconfig "github.com/weisyn/sandbox/internal/config/sandbox"
	"github.com/weisyn/sandbox/internal/core/engines/scripted"
	"github.com/weisyn/sandbox/internal/core/infrastructure/crypto/address"
	"github.com/weisyn/sandbox/internal/core/infrastructure/event"
	"github.com/weisyn/sandbox/internal/core/infrastructure/metrics"
	"github.com/weisyn/sandbox/internal/core/infrastructure/writegate"
	"github.com/weisyn/sandbox/internal/core/ledger"
	"github.com/weisyn/sandbox/internal/core/orchestrator"
	"github.com/weisyn/sandbox/internal/core/sandbox"
	"github.com/weisyn/sandbox/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	alice = types.Address{Kind: types.AddressAccount, Hash: [20]byte{0xa}}
	bob   = types.Address{Kind: types.AddressAccount, Hash: [20]byte{0xb}}
)

type apiFixture struct {
	ts    *httptest.Server
	svc   *sandbox.Service
	store *ledger.Store
	token types.Address
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()
	store, err := ledger.Open(ctx, ledger.NewFilePersister(filepath.Join(t.TempDir(), "ledger.json"), false, nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	opts := sandboxconfig.New(nil).GetOptions()
	bus := event.New(eventconfig.New(nil), nil)
	m := metrics.New()
	orch := orchestrator.New(store, scripted.New(nil), orchestrator.WithSandboxOptions(opts))
	svc, err := sandbox.New(orch, opts, sandbox.WithEventBus(bus), sandbox.WithWriteGate(writegate.New(nil)), sandbox.WithMetrics(m))
	require.NoError(t, err)

	res, err := svc.Deploy(ctx, scripted.Code("token"), nil)
	require.NoError(t, err)
	_, err = svc.SetAccount(ctx, alice, big.NewInt(100))
	require.NoError(t, err)

	apiOpts := *apiconfig.New(nil).GetOptions()
	apiOpts.EnableWebSocket = true
	apiOpts.EnableMetrics = true
	server, err := NewServer(Deps{
		Options:  &apiOpts,
		Service:  svc,
		EventBus: bus,
		Metrics:  m,
		Engines:  []string{"scripted"},
	})
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = server.Stop(context.Background())
	})
	return &apiFixture{ts: ts, svc: svc, store: store, token: res.Address}
}

type rpcReply struct {
	ID     any             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	} `json:"error"`
}

func (f *apiFixture) rpc(t *testing.T, body string) rpcReply {
	t.Helper()
	resp, err := http.Post(f.ts.URL+"/rpc", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out rpcReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (f *apiFixture) call(t *testing.T, method string, params any) rpcReply {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	require.NoError(t, err)
	return f.rpc(t, string(raw))
}

func (f *apiFixture) balance(t *testing.T, a types.Address) int64 {
	t.Helper()
	e, ok := f.store.Get(types.AccountKey(a))
	if !ok {
		return 0
	}
	b, _, ok := types.AccountBalance(e.Value)
	require.True(t, ok)
	return b.Int64()
}

func transferParams(f *apiFixture, amount any) map[string]any {
	return map[string]any{
		"contract":   address.Encode(f.token),
		"function":   "transfer",
		"args":       []any{address.Encode(alice), address.Encode(bob), amount},
		"invoker":    address.Encode(alice),
		"read_write": []any{map[string]any{"account": address.Encode(bob)}},
	}
}

func TestInvokeTransferOverRPC(t *testing.T) {
	f := newAPIFixture(t)
	before := f.store.Snapshot().Version()

	reply := f.call(t, "invoke", transferParams(f, 30))
	require.Nil(t, reply.Error)

	var res struct {
		Status           string           `json:"status"`
		BaseVersion      uint64           `json:"base_version"`
		CommittedVersion uint64           `json:"committed_version"`
		Changes          []map[string]any `json:"changes"`
	}
	require.NoError(t, json.Unmarshal(reply.Result, &res))
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, before, res.BaseVersion)
	assert.Equal(t, before+1, res.CommittedVersion)
	assert.Len(t, res.Changes, 2)
	assert.EqualValues(t, 70, f.balance(t, alice))
	assert.EqualValues(t, 30, f.balance(t, bob))
}

func TestInvokeShapeMismatchIsInvalidParams(t *testing.T) {
	f := newAPIFixture(t)
	before := f.store.Snapshot().Version()

	reply := f.call(t, "invoke", transferParams(f, "abc"))
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32602, reply.Error.Code)

	var problem struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(reply.Error.Data, &problem))
	assert.Equal(t, "SANDBOX_CONVERSION_FAILED", problem.Code)
	assert.Equal(t, "shape_mismatch", problem.Details["kind"])
	assert.EqualValues(t, 2, problem.Details["position"])
	assert.Equal(t, before, f.store.Snapshot().Version())
}

func TestInvokeArityMismatch(t *testing.T) {
	f := newAPIFixture(t)
	p := transferParams(f, 1)
	p["args"] = []any{address.Encode(alice), address.Encode(bob)}

	reply := f.call(t, "invoke", p)
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32602, reply.Error.Code)
	assert.Contains(t, string(reply.Error.Data), "SANDBOX_ARITY_MISMATCH")
}

func TestProtocolErrors(t *testing.T) {
	f := newAPIFixture(t)

	reply := f.rpc(t, `{"jsonrpc":"2.0","id":1,"method":"nope","params":{}}`)
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32601, reply.Error.Code)

	reply = f.rpc(t, `{"jsonrpc":"2.0","id":1,`)
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32700, reply.Error.Code)

	reply = f.rpc(t, `{"jsonrpc":"1.0","id":1,"method":"getLedgerInfo"}`)
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32600, reply.Error.Code)

	reply = f.call(t, "invoke", map[string]any{"contract": "not-an-address", "function": "transfer"})
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32602, reply.Error.Code)

	reply = f.call(t, "invoke", map[string]any{"contract": address.Encode(f.token), "function": "mint", "args": []any{}})
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32000, reply.Error.Code)
	assert.Contains(t, string(reply.Error.Data), "SANDBOX_FUNCTION_NOT_FOUND")
}

func TestCallCompatibility(t *testing.T) {
	f := newAPIFixture(t)

	reply := f.call(t, "call", []any{map[string]any{
		"id":   address.Encode(f.token),
		"func": "balance",
		"args": []any{address.Encode(alice)},
	}})
	require.Nil(t, reply.Error)

	var res struct {
		JSON   any    `json:"json"`
		XDR    string `json:"xdr"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(reply.Result, &res))
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "100", res.JSON)
	enc, err := base64.StdEncoding.DecodeString(res.XDR)
	require.NoError(t, err)
	v, err := types.DecodeValue(enc)
	require.NoError(t, err)
	assert.Equal(t, types.KindI128, v.Kind())
}

func TestReadEntryAndSetAccount(t *testing.T) {
	f := newAPIFixture(t)

	reply := f.call(t, "setAccount", map[string]any{"address": address.Encode(bob), "balance": "12345678901234567890"})
	require.Nil(t, reply.Error)

	reply = f.call(t, "readEntry", map[string]any{"key": map[string]any{"account": address.Encode(bob)}})
	require.Nil(t, reply.Error)
	var res struct {
		Version uint64         `json:"version"`
		Found   bool           `json:"found"`
		Entry   map[string]any `json:"entry"`
	}
	require.NoError(t, json.Unmarshal(reply.Result, &res))
	assert.True(t, res.Found)
	assert.Equal(t, f.store.Snapshot().Version(), res.Version)
	assert.Contains(t, string(reply.Result), "12345678901234567890")

	reply = f.call(t, "readEntry", map[string]any{"key": map[string]any{"account": address.Encode(types.Address{Kind: types.AddressAccount, Hash: [20]byte{0xee}})}})
	require.Nil(t, reply.Error)
	require.NoError(t, json.Unmarshal(reply.Result, &res))
	assert.False(t, res.Found)

	reply = f.call(t, "readEntry", map[string]any{"key": map[string]any{"bogus": 1}})
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32602, reply.Error.Code)
}

func TestDeployOverRPC(t *testing.T) {
	f := newAPIFixture(t)
	code := base64.StdEncoding.EncodeToString(scripted.Code("counter"))

	reply := f.call(t, "deploy", map[string]any{"code": code, "salt": "a"})
	require.Nil(t, reply.Error)
	var res struct {
		Address string `json:"address"`
	}
	require.NoError(t, json.Unmarshal(reply.Result, &res))
	require.NotEmpty(t, res.Address)

	reply = f.call(t, "deploy", map[string]any{"code": code, "salt": "a"})
	require.NotNil(t, reply.Error)
	assert.Contains(t, string(reply.Error.Data), "SANDBOX_CONTRACT_EXISTS")

	reply = f.call(t, "getContractSpec", map[string]any{"contract": res.Address})
	require.Nil(t, reply.Error)
	assert.Contains(t, string(reply.Result), "increment")
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Get(f.ts.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	f.call(t, "getLedgerInfo", nil)

	resp, err = http.Get(f.ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "sandbox_http_requests_total")

	require.NoError(t, f.svc.Stop(context.Background()))
	resp, err = http.Get(f.ts.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRejectsNonPost(t *testing.T) {
	f := newAPIFixture(t)
	resp, err := http.Get(f.ts.URL + "/rpc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(f.ts.URL+"/rpc", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketCommitSubscription(t *testing.T) {
	f := newAPIFixture(t)
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "sandbox_subscribe", "params": []any{"commits"},
	}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var sub rpcReply
	require.NoError(t, conn.ReadJSON(&sub))
	require.Nil(t, sub.Error)
	var subID string
	require.NoError(t, json.Unmarshal(sub.Result, &subID))
	require.NotEmpty(t, subID)

	reply := f.call(t, "invoke", transferParams(f, 5))
	require.Nil(t, reply.Error)

	var note struct {
		Method string `json:"method"`
		Params struct {
			Subscription string `json:"subscription"`
			Result       struct {
				Version uint64   `json:"version"`
				Keys    []string `json:"keys"`
			} `json:"result"`
		} `json:"params"`
	}
	require.NoError(t, conn.ReadJSON(&note))
	assert.Equal(t, "sandbox_subscription", note.Method)
	assert.Equal(t, subID, note.Params.Subscription)
	assert.Equal(t, f.store.Snapshot().Version(), note.Params.Result.Version)
	assert.Len(t, note.Params.Result.Keys, 2)

	// 同一连接上也可以发普通 RPC
	require.NoError(t, conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": 2, "method": "getLedgerInfo"}))
	var info rpcReply
	require.NoError(t, conn.ReadJSON(&info))
	require.Nil(t, info.Error)
	assert.Contains(t, string(info.Result), "version")
}
