package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	eventconfig "github.com/weisyn/sandbox/internal/config/event"
	sandboxconfig "github.com/weisyn/sandbox/internal/config/sandbox"
	"github.com/weisyn/sandbox/internal/core/engines/host"
	"github.com/weisyn/sandbox/internal/core/engines/scripted"
	"github.com/weisyn/sandbox/internal/core/infrastructure/crypto/address"
	"github.com/weisyn/sandbox/internal/core/infrastructure/event"
	"github.com/weisyn/sandbox/internal/core/infrastructure/writegate"
	"github.com/weisyn/sandbox/internal/core/ledger"
	"github.com/weisyn/sandbox/internal/core/orchestrator"
	enginepkg "github.com/weisyn/sandbox/pkg/interfaces/engine"
	wgif "github.com/weisyn/sandbox/pkg/interfaces/infrastructure/writegate"
	"github.com/weisyn/sandbox/pkg/types"
)

var (
	alice = types.Address{Kind: types.AddressAccount, Hash: [20]byte{0xa}}
	bob   = types.Address{Kind: types.AddressAccount, Hash: [20]byte{0xb}}
)

// countingEngine 统计引擎执行次数
type countingEngine struct {
	enginepkg.Engine
	executes atomic.Int32
}

func (c *countingEngine) Execute(ctx context.Context, req *enginepkg.ExecutionRequest) (*enginepkg.ExecutionOutcome, error) {
	c.executes.Add(1)
	return c.Engine.Execute(ctx, req)
}

// blocker 执行到一半时停住的合约，用于观察持锁期间的行为
type blocker struct {
	entered chan struct{}
	release chan struct{}
}

func newBlocker() *blocker {
	return &blocker{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (b *blocker) script() *scripted.Script {
	return &scripted.Script{
		Spec: types.ContractSpec{Functions: []types.FunctionSpec{
			{Name: "hold", Returns: types.Scalar(types.TypeVoid)},
		}},
		Funcs: map[string]scripted.Func{
			"hold": func(env host.Env, _ []types.TypedValue) (types.TypedValue, error) {
				b.entered <- struct{}{}
				<-b.release
				key := types.DataKey(env.Contract(), types.MustSymbol("held"), types.DurabilityPersistent)
				return types.Void(), env.Put(key, types.Bool(true))
			},
		},
	}
}

type fixture struct {
	svc     *Service
	store   *ledger.Store
	engine  *countingEngine
	gate    wgif.WriteGate
	bus     *event.EventBus
	blocker *blocker

	token   types.Address
	counter types.Address
	holder  types.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := ledger.Open(ctx, ledger.NewFilePersister(filepath.Join(t.TempDir(), "ledger.json"), true, nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	b := newBlocker()
	se := scripted.New(nil)
	require.NoError(t, se.Register("holder", b.script()))
	eng := &countingEngine{Engine: se}

	opts := sandboxconfig.New(nil).GetOptions()
	gate := writegate.New(nil)
	bus := event.New(eventconfig.New(nil), nil)
	orch := orchestrator.New(store, eng, orchestrator.WithSandboxOptions(opts))
	svc, err := New(orch, opts, WithWriteGate(gate), WithEventBus(bus))
	require.NoError(t, err)

	f := &fixture{svc: svc, store: store, engine: eng, gate: gate, bus: bus, blocker: b}
	f.token = f.deploy(t, "token")
	f.counter = f.deploy(t, "counter")
	f.holder = f.deploy(t, "holder")
	_, err = svc.SetAccount(ctx, alice, big.NewInt(100))
	require.NoError(t, err)
	return f
}

func (f *fixture) deploy(t *testing.T, name string) types.Address {
	t.Helper()
	res, err := f.svc.Deploy(context.Background(), scripted.Code(name), nil)
	require.NoError(t, err)
	return res.Address
}

func (f *fixture) balance(t *testing.T, a types.Address) int64 {
	t.Helper()
	e, ok := f.store.Get(types.AccountKey(a))
	if !ok {
		return 0
	}
	b, _, ok := types.AccountBalance(e.Value)
	require.True(t, ok)
	return b.Int64()
}

func jsonArgs(t *testing.T, args ...any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return raw
}

func transferRequest(t *testing.T, token types.Address, amount any) *InvokeRequest {
	return &InvokeRequest{
		Contract:  token,
		Function:  "transfer",
		Args:      jsonArgs(t, address.Encode(alice), address.Encode(bob), amount),
		Invoker:   alice,
		ReadWrite: []types.LedgerKey{types.AccountKey(bob)},
	}
}

func countKey(c types.Address) types.LedgerKey {
	return types.DataKey(c, types.MustSymbol("count"), types.DurabilityPersistent)
}

func mustU64(t *testing.T, v types.TypedValue) uint64 {
	t.Helper()
	n, ok := v.AsU64()
	require.True(t, ok, fmt.Sprintf("not a u64: %s", v))
	return n
}
