package sandbox

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/sandbox/internal/core/conversion"
	"github.com/weisyn/sandbox/internal/core/infrastructure/crypto/address"
	"github.com/weisyn/sandbox/internal/core/orchestrator"
	wgif "github.com/weisyn/sandbox/pkg/interfaces/infrastructure/writegate"
	"github.com/weisyn/sandbox/pkg/types"
)

func TestTransferThroughService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.store.Version()

	var commits []*CommitEvent
	require.NoError(t, f.bus.Subscribe(EventLedgerCommitted, func(ev *CommitEvent) { commits = append(commits, ev) }))

	resp, err := f.svc.Invoke(ctx, transferRequest(t, f.token, 30))
	require.NoError(t, err)
	require.Equal(t, types.StatusSuccess, resp.Result.Status, resp.Result.TrapReason)
	assert.False(t, resp.Simulated)
	assert.Equal(t, "scripted", resp.Engine)
	assert.NotEmpty(t, resp.RequestID)

	assert.Equal(t, int64(70), f.balance(t, alice))
	assert.Equal(t, int64(30), f.balance(t, bob))
	assert.Equal(t, before+1, f.store.Version())
	assert.Equal(t, before+1, resp.Result.CommittedVersion)

	require.Len(t, commits, 1)
	assert.Equal(t, before+1, commits[0].Version)
	assert.Equal(t, before, commits[0].Previous)
	assert.Len(t, commits[0].KeyIDs, 2)
}

func TestShapeMismatchRejectedBeforeExecution(t *testing.T) {
	f := newFixture(t)
	before := f.store.Version()

	_, err := f.svc.Invoke(context.Background(), transferRequest(t, f.token, "abc"))
	require.Error(t, err)
	assert.ErrorIs(t, err, conversion.ErrShapeMismatch)
	ce, ok := conversion.AsConversionError(err)
	require.True(t, ok)
	assert.Equal(t, 2, ce.Position)
	assert.Zero(t, f.engine.executes.Load())
	assert.Equal(t, before, f.store.Version())

	_, recent := f.svc.Requests()
	require.NotEmpty(t, recent)
	last := recent[len(recent)-1]
	assert.Equal(t, StateResponded, last.State)
	assert.Equal(t, string(conversion.KindShapeMismatch), last.Outcome)
}

func TestArityMismatchRejectedBeforeExecution(t *testing.T) {
	f := newFixture(t)
	for _, args := range [][]any{{"x", "y"}, {"x", "y", 1, 2}} {
		req := transferRequest(t, f.token, 1)
		req.Args = jsonArgs(t, args...)
		_, err := f.svc.Invoke(context.Background(), req)
		var am *orchestrator.ArityMismatchError
		require.ErrorAs(t, err, &am)
		assert.Equal(t, 3, am.Expected)
		assert.Equal(t, len(args), am.Actual)
	}
	assert.Zero(t, f.engine.executes.Load())
}

func TestEncodedArgs(t *testing.T) {
	f := newFixture(t)
	encoded := types.EncodeValue(types.Vec(types.AddressValue(alice), types.AddressValue(bob), types.U32(12)))

	resp, err := f.svc.Invoke(context.Background(), &InvokeRequest{
		Contract:    f.token,
		Function:    "transfer",
		EncodedArgs: encoded,
		Invoker:     alice,
		ReadWrite:   []types.LedgerKey{types.AccountKey(bob)},
	})
	require.NoError(t, err)
	require.True(t, resp.Result.Succeeded())
	assert.Equal(t, int64(12), f.balance(t, bob))
}

func TestReadOnlyFunctionIsSimulated(t *testing.T) {
	f := newFixture(t)
	before := f.store.Version()

	_, err := f.svc.Invoke(context.Background(), &InvokeRequest{
		Contract: f.token,
		Function: "balance",
		Args:     jsonArgs(t, "not-an-address"),
	})
	assert.ErrorIs(t, err, conversion.ErrInvalidAddress)

	resp, err := f.svc.Invoke(context.Background(), &InvokeRequest{
		Contract: f.token,
		Function: "balance",
		Args:     jsonArgs(t, address.Encode(alice)),
	})
	require.NoError(t, err)
	assert.True(t, resp.Simulated)
	require.True(t, resp.Result.Succeeded())
	assert.Equal(t, "100", resp.Value)
	assert.Equal(t, before, f.store.Version())
}

func TestSimulateDoesNotCommit(t *testing.T) {
	f := newFixture(t)
	before := f.store.Version()
	req := transferRequest(t, f.token, 30)
	req.Simulate = true

	resp, err := f.svc.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.True(t, resp.Result.Succeeded())
	assert.True(t, resp.Simulated)
	assert.Len(t, resp.Result.Deltas, 2)
	assert.Equal(t, before, f.store.Version())
	assert.Equal(t, int64(100), f.balance(t, alice))
}

func TestConcurrentWritersTotalOrder(t *testing.T) {
	f := newFixture(t)
	before := f.store.Version()
	const n = 24

	// :count 未声明，由足迹扩展重试或已学到的提示补上
	var wg sync.WaitGroup
	versions := make([]uint64, n)
	counts := make([]uint64, n)
	statuses := make([]types.InvocationStatus, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := f.svc.Invoke(context.Background(), &InvokeRequest{Contract: f.counter, Function: "increment", Invoker: alice})
			if err != nil {
				errs[i] = err
				return
			}
			statuses[i] = resp.Result.Status
			versions[i] = resp.Result.CommittedVersion
			counts[i], _ = resp.Result.Value.AsU64()
		}(i)
	}
	wg.Wait()
	distinct := make(map[uint64]bool, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, types.StatusSuccess, statuses[i])
		distinct[versions[i]] = true
	}
	assert.Len(t, distinct, n)

	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	sort.Slice(counts, func(i, j int) bool { return counts[i] < counts[j] })
	for i := 0; i < n; i++ {
		assert.Equal(t, before+uint64(i)+1, versions[i])
		assert.Equal(t, uint64(i)+1, counts[i])
	}
	e, ok := f.store.Get(countKey(f.counter))
	require.True(t, ok)
	assert.Equal(t, uint64(n), mustU64(t, e.Value))
	assert.Equal(t, before+n, f.store.Version())
}

func TestReadsDoNotWaitForWriter(t *testing.T) {
	f := newFixture(t)
	before := f.store.Version()

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Invoke(context.Background(), &InvokeRequest{Contract: f.holder, Function: "hold", Invoker: alice})
		done <- err
	}()
	<-f.blocker.entered

	e, version, ok := f.svc.ReadEntry(context.Background(), types.AccountKey(alice))
	require.True(t, ok)
	assert.Equal(t, before, version)
	assert.NotNil(t, e)

	resp, err := f.svc.Invoke(context.Background(), &InvokeRequest{Contract: f.counter, Function: "get"})
	require.NoError(t, err)
	assert.True(t, resp.Simulated)

	active, _ := f.svc.Requests()
	require.Len(t, active, 1)
	assert.Equal(t, StateExecuting, active[0].State)

	close(f.blocker.release)
	require.NoError(t, <-done)
	assert.Equal(t, before+1, f.store.Version())
}

func TestDisconnectDoesNotAbortCommit(t *testing.T) {
	f := newFixture(t)
	before := f.store.Version()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Invoke(ctx, &InvokeRequest{Contract: f.holder, Function: "hold", Invoker: alice})
		done <- err
	}()
	<-f.blocker.entered
	cancel()
	close(f.blocker.release)

	require.NoError(t, <-done)
	assert.Equal(t, before+1, f.store.Version())
	_, ok := f.store.Get(types.DataKey(f.holder, types.MustSymbol("held"), types.DurabilityPersistent))
	assert.True(t, ok)
}

func TestCancelWhileQueuedLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	before := f.store.Version()

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Invoke(context.Background(), &InvokeRequest{Contract: f.holder, Function: "hold", Invoker: alice})
		done <- err
	}()
	<-f.blocker.entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.svc.Invoke(ctx, &InvokeRequest{Contract: f.counter, Function: "increment", Invoker: alice})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(f.blocker.release)
	require.NoError(t, <-done)
	assert.Equal(t, before+1, f.store.Version())
	_, ok := f.store.Get(countKey(f.counter))
	assert.False(t, ok)
}

func TestRequestStateTransitions(t *testing.T) {
	f := newFixture(t)
	var mu sync.Mutex
	var states []RequestState
	f.svc.OnRequestState(func(info RequestInfo, _ RequestState) {
		mu.Lock()
		states = append(states, info.State)
		mu.Unlock()
	})

	_, err := f.svc.Invoke(context.Background(), &InvokeRequest{Contract: f.counter, Function: "increment", Invoker: alice})
	require.NoError(t, err)
	assert.Equal(t, []RequestState{
		StateReceived, StateValidating, StateAwaitingWriteLock, StateExecuting, StateCommitting, StateResponded,
	}, states)

	states = nil
	_, err = f.svc.Invoke(context.Background(), &InvokeRequest{Contract: f.counter, Function: "get"})
	require.NoError(t, err)
	assert.Equal(t, []RequestState{StateReceived, StateValidating, StateExecuting, StateResponded}, states)

	_, recent := f.svc.Requests()
	require.Len(t, recent, 2)
	assert.Equal(t, string(types.StatusSuccess), recent[1].Outcome)
}

func TestInvocationEvents(t *testing.T) {
	f := newFixture(t)
	var events []*InvocationEvent
	require.NoError(t, f.bus.Subscribe(EventInvocationCompleted, func(ev *InvocationEvent) { events = append(events, ev) }))

	_, err := f.svc.Invoke(context.Background(), transferRequest(t, f.token, 500))
	require.NoError(t, err)
	_, err = f.svc.Invoke(context.Background(), &InvokeRequest{Contract: f.token, Function: "missing"})
	require.ErrorIs(t, err, orchestrator.ErrFunctionNotFound)

	require.Len(t, events, 2)
	assert.Equal(t, types.StatusTrapped, events[0].Status)
	assert.Zero(t, events[0].CommittedVersion)
	assert.Equal(t, "transfer", events[0].Function)
	assert.NotEmpty(t, events[1].Error)
}

func TestMissingInvoker(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Invoke(context.Background(), &InvokeRequest{Contract: f.counter, Function: "increment"})
	assert.ErrorIs(t, err, ErrNoInvoker)
	assert.Zero(t, f.engine.executes.Load())
}

func TestDeployTwiceRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Deploy(context.Background(), []byte("scripted:counter"), nil)
	assert.ErrorIs(t, err, ErrContractExists)

	res, err := f.svc.Deploy(context.Background(), []byte("scripted:counter"), []byte("second"))
	require.NoError(t, err)
	assert.NotEqual(t, f.counter, res.Address)

	spec, err := f.svc.ContractSpec(context.Background(), res.Address)
	require.NoError(t, err)
	assert.Len(t, spec.Functions, 2)

	_, err = f.svc.Deploy(context.Background(), []byte("scripted:nope"), nil)
	assert.Error(t, err)
}

func TestSetAccountKeepsSequence(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Invoke(context.Background(), transferRequest(t, f.token, 10))
	require.NoError(t, err)

	_, err = f.svc.SetAccount(context.Background(), alice, big.NewInt(1000))
	require.NoError(t, err)
	e, ok := f.store.Get(types.AccountKey(alice))
	require.True(t, ok)
	bal, seq, ok := types.AccountBalance(e.Value)
	require.True(t, ok)
	assert.Equal(t, int64(1000), bal.Int64())
	assert.Equal(t, uint64(1), seq)

	_, err = f.svc.SetAccount(context.Background(), f.token, big.NewInt(1000))
	assert.Error(t, err)
}

func TestStopEntersReadOnly(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Stop(context.Background()))
	assert.True(t, f.gate.IsReadOnly())
	assert.True(t, f.svc.LedgerInfo().ReadOnly)
	assert.Equal(t, []string{"sandbox stopped"}, f.svc.LedgerInfo().ReadOnlyReasons)

	_, err := f.svc.Invoke(context.Background(), &InvokeRequest{Contract: f.counter, Function: "increment", Invoker: alice})
	assert.True(t, errors.Is(err, ErrStopped))

	resp, err := f.svc.Invoke(context.Background(), &InvokeRequest{Contract: f.counter, Function: "get"})
	require.NoError(t, err)
	assert.True(t, resp.Result.Succeeded())
}

func TestReadOnlyGateRejectsWrites(t *testing.T) {
	f := newFixture(t)
	f.gate.EnterReadOnly("maintenance")
	_, err := f.svc.Invoke(context.Background(), &InvokeRequest{Contract: f.counter, Function: "increment", Invoker: alice})
	assert.ErrorIs(t, err, wgif.ErrReadOnly)
	_, err = f.svc.SetAccount(context.Background(), bob, big.NewInt(1000))
	assert.ErrorIs(t, err, wgif.ErrReadOnly)
}
