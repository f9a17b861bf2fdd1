package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	sandboxconfig "github.com/weisyn/sandbox/internal/config/sandbox"
	"github.com/weisyn/sandbox/internal/core/engines/host"
	"github.com/weisyn/sandbox/internal/core/engines/scripted"
	"github.com/weisyn/sandbox/internal/core/ledger"
	enginepkg "github.com/weisyn/sandbox/pkg/interfaces/engine"
	"github.com/weisyn/sandbox/pkg/types"
)

var (
	alice = types.Address{Kind: types.AddressAccount, Hash: [20]byte{0xa}}
	bob   = types.Address{Kind: types.AddressAccount, Hash: [20]byte{0xb}}
	carol = types.Address{Kind: types.AddressAccount, Hash: [20]byte{0xc}}
)

// countingEngine 记录引擎被调用的次数与最近一次请求
type countingEngine struct {
	enginepkg.Engine
	executes atomic.Int32
	resolves atomic.Int32

	mu       sync.Mutex
	requests []*enginepkg.ExecutionRequest
}

func (c *countingEngine) Execute(ctx context.Context, req *enginepkg.ExecutionRequest) (*enginepkg.ExecutionOutcome, error) {
	c.executes.Add(1)
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	return c.Engine.Execute(ctx, req)
}

func (c *countingEngine) ResolveSpec(ctx context.Context, code []byte) (*types.ContractSpec, error) {
	c.resolves.Add(1)
	return c.Engine.ResolveSpec(ctx, code)
}

func (c *countingEngine) lastRequest() *enginepkg.ExecutionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

// scanScript 按参数依次读取 k1..kn，或写入指定键
func scanScript() *scripted.Script {
	key := func(env host.Env, i uint32) types.LedgerKey {
		return types.DataKey(env.Contract(), types.MustSymbol(fmt.Sprintf("k%d", i)), types.DurabilityPersistent)
	}
	return &scripted.Script{
		Spec: types.ContractSpec{Functions: []types.FunctionSpec{
			{Name: "touch", Params: []types.FunctionParam{{Name: "n", Type: types.Scalar(types.TypeU32)}}, Returns: types.Scalar(types.TypeU32)},
			{Name: "put", Params: []types.FunctionParam{{Name: "i", Type: types.Scalar(types.TypeU32)}}, Returns: types.Scalar(types.TypeVoid)},
		}},
		Funcs: map[string]scripted.Func{
			"touch": func(env host.Env, args []types.TypedValue) (types.TypedValue, error) {
				n, _ := args[0].AsU32()
				var found uint32
				for i := uint32(1); i <= n; i++ {
					_, ok, err := env.Get(key(env, i))
					if err != nil {
						return types.TypedValue{}, err
					}
					if ok {
						found++
					}
				}
				return types.U32(found), nil
			},
			"put": func(env host.Env, args []types.TypedValue) (types.TypedValue, error) {
				i, _ := args[0].AsU32()
				return types.Void(), env.Put(key(env, i), types.U32(i))
			},
		},
	}
}

type fixture struct {
	store   *ledger.Store
	engine  *countingEngine
	orch    *Orchestrator
	token   types.Address
	scanner types.Address
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := ledger.Open(ctx, ledger.NewFilePersister(filepath.Join(t.TempDir(), "ledger.json"), true, nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	se := scripted.New(nil)
	require.NoError(t, se.Register("scanner", scanScript()))
	eng := &countingEngine{Engine: se}

	sopts := sandboxconfig.New(nil).GetOptions()
	f := &fixture{
		store:  store,
		engine: eng,
		orch:   New(store, eng, append([]Option{WithSandboxOptions(sopts)}, opts...)...),
	}

	var deltas []types.Delta
	f.token, deltas = deploy(scripted.Code("token"), deltas)
	f.scanner, deltas = deploy(scripted.Code("scanner"), deltas)
	deltas = append(deltas, accountDelta(t, alice, 100), accountDelta(t, bob, 5), accountDelta(t, carol, 1))
	_, err = store.Commit(ctx, deltas, 0)
	require.NoError(t, err)
	return f
}

func deploy(code []byte, deltas []types.Delta) (types.Address, []types.Delta) {
	hash := types.HashBytes(code)
	addr := types.ContractAddress(hash, nil)
	codeKey := types.CodeKey(hash)
	instKey := types.InstanceKey(addr)
	return addr, append(deltas,
		types.Delta{Key: codeKey, Entry: &types.LedgerEntry{Key: codeKey, Value: types.Bytes(code)}},
		types.Delta{Key: instKey, Entry: &types.LedgerEntry{Key: instKey, Value: types.InstanceValue(types.ContractInstance{CodeHash: hash})}},
	)
}

func accountDelta(t *testing.T, a types.Address, balance int64) types.Delta {
	t.Helper()
	v, err := types.AccountValue(big.NewInt(balance), 0)
	require.NoError(t, err)
	k := types.AccountKey(a)
	return types.Delta{Key: k, Entry: &types.LedgerEntry{Key: k, Value: v}}
}

func balanceOf(t *testing.T, s *ledger.Store, a types.Address) int64 {
	t.Helper()
	e, ok := s.Get(types.AccountKey(a))
	require.True(t, ok)
	b, _, ok := types.AccountBalance(e.Value)
	require.True(t, ok)
	return b.Int64()
}

func transfer(from, to types.Address, amount uint32) []types.TypedValue {
	return []types.TypedValue{types.AddressValue(from), types.AddressValue(to), types.U32(amount)}
}
