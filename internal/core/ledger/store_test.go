package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageconfig "github.com/weisyn/sandbox/internal/config/storage"
	"github.com/weisyn/sandbox/internal/core/infrastructure/metrics"
	"github.com/weisyn/sandbox/internal/core/infrastructure/writegate"
	wgif "github.com/weisyn/sandbox/pkg/interfaces/infrastructure/writegate"
	"github.com/weisyn/sandbox/pkg/types"
)

func openFileStore(t *testing.T, path string, opts ...Option) (*Store, *FilePersister) {
	t.Helper()
	p := NewFilePersister(path, true, nil)
	s, err := Open(context.Background(), p, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, p
}

func TestOpenMissingFileIsEmptyVersionZero(t *testing.T) {
	s, _ := openFileStore(t, filepath.Join(t.TempDir(), "ledger.json"))
	assert.Equal(t, uint64(0), s.Version())
	assert.Equal(t, 0, s.Snapshot().Len())
	_, ok := s.Get(types.AccountKey(testAccount(1)))
	assert.False(t, ok)
}

func TestCommitPersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s, _ := openFileStore(t, path)
	a, b := testAccount(1), testAccount(2)

	v, err := s.Commit(context.Background(), []types.Delta{accountDelta(t, a, 100), accountDelta(t, b, 5)}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	e, ok := s.Get(types.AccountKey(a))
	require.True(t, ok)
	assert.Equal(t, uint64(1), e.LastModified)

	reloaded, _ := openFileStore(t, path)
	assert.Equal(t, uint64(1), reloaded.Version())
	assert.Equal(t, int64(100), balanceOf(t, reloaded, a))
	assert.Equal(t, int64(5), balanceOf(t, reloaded, b))
}

func TestCommitUncompressedReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	p := NewFilePersister(path, false, nil)
	s, err := Open(context.Background(), p)
	require.NoError(t, err)
	_, err = s.Commit(context.Background(), []types.Delta{accountDelta(t, testAccount(1), 7)}, 0)
	require.NoError(t, err)

	reloaded, _ := openFileStore(t, path)
	assert.Equal(t, int64(7), balanceOf(t, reloaded, testAccount(1)))
}

func TestCommitVersionConflict(t *testing.T) {
	s, _ := openFileStore(t, filepath.Join(t.TempDir(), "ledger.json"))
	_, err := s.Commit(context.Background(), []types.Delta{accountDelta(t, testAccount(1), 1)}, 0)
	require.NoError(t, err)

	_, err = s.Commit(context.Background(), []types.Delta{accountDelta(t, testAccount(1), 2)}, 0)
	require.ErrorIs(t, err, ErrConflict)
	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, uint64(0), ce.Expected)
	assert.Equal(t, uint64(1), ce.Actual)

	assert.Equal(t, uint64(1), s.Version())
	assert.Equal(t, int64(1), balanceOf(t, s, testAccount(1)))
}

func TestCommitEmptyDeltasKeepsVersion(t *testing.T) {
	s, _ := openFileStore(t, filepath.Join(t.TempDir(), "ledger.json"))
	v, err := s.Commit(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)

	_, err = s.Commit(context.Background(), nil, 3)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCommitRejectsInvalidDeltas(t *testing.T) {
	s, _ := openFileStore(t, filepath.Join(t.TempDir(), "ledger.json"))
	ctx := context.Background()

	t.Run("重复键", func(t *testing.T) {
		d := accountDelta(t, testAccount(1), 1)
		_, err := s.Commit(ctx, []types.Delta{d, d}, 0)
		assert.ErrorIs(t, err, ErrInvalidDelta)
	})

	t.Run("代码哈希不符", func(t *testing.T) {
		d := codeDelta([]byte("wasm"))
		d.Entry.Value = types.Bytes([]byte("other"))
		_, err := s.Commit(ctx, []types.Delta{d}, 0)
		assert.ErrorIs(t, err, ErrInvalidDelta)
	})

	t.Run("条目键不一致", func(t *testing.T) {
		d := accountDelta(t, testAccount(1), 1)
		d.Key = types.AccountKey(testAccount(2))
		_, err := s.Commit(ctx, []types.Delta{d}, 0)
		assert.ErrorIs(t, err, ErrInvalidDelta)
	})

	assert.Equal(t, uint64(0), s.Version())

	_, err := s.Commit(ctx, []types.Delta{codeDelta([]byte("wasm"))}, 0)
	assert.NoError(t, err)
}

func TestCommitTombstoneDeletes(t *testing.T) {
	s, _ := openFileStore(t, filepath.Join(t.TempDir(), "ledger.json"))
	ctx := context.Background()
	a := testAccount(1)
	_, err := s.Commit(ctx, []types.Delta{accountDelta(t, a, 1)}, 0)
	require.NoError(t, err)

	_, err = s.Commit(ctx, []types.Delta{{Key: types.AccountKey(a)}}, 1)
	require.NoError(t, err)
	_, ok := s.Get(types.AccountKey(a))
	assert.False(t, ok)
}

// TestSnapshotIsImmutableAfterCommit 读者持有的旧快照不受后续提交影响
func TestSnapshotIsImmutableAfterCommit(t *testing.T) {
	s, _ := openFileStore(t, filepath.Join(t.TempDir(), "ledger.json"))
	a := testAccount(1)
	_, err := s.Commit(context.Background(), []types.Delta{accountDelta(t, a, 10)}, 0)
	require.NoError(t, err)

	old := s.Snapshot()
	_, err = s.Commit(context.Background(), []types.Delta{accountDelta(t, a, 20)}, 1)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), old.Version())
	assert.Equal(t, int64(10), balanceOf(t, old, a))
	assert.Equal(t, int64(20), balanceOf(t, s, a))

	e, _ := old.Get(types.AccountKey(a))
	e.Value = types.Void()
	assert.Equal(t, int64(10), balanceOf(t, old, a))
}

func TestTemporaryEntryExpires(t *testing.T) {
	s, _ := openFileStore(t, filepath.Join(t.TempDir(), "ledger.json"))
	contract := types.ContractAddress(types.HashBytes([]byte("c")), nil)
	k := types.DataKey(contract, types.MustSymbol("tmp"), types.DurabilityTemporary)
	_, err := s.Commit(context.Background(), []types.Delta{{Key: k, Entry: &types.LedgerEntry{Key: k, Value: types.U32(1), LiveUntil: 1}}}, 0)
	require.NoError(t, err)
	_, ok := s.Get(k)
	assert.True(t, ok)

	_, err = s.Commit(context.Background(), []types.Delta{accountDelta(t, testAccount(1), 1)}, 1)
	require.NoError(t, err)
	_, ok = s.Get(k)
	assert.False(t, ok)
	assert.Len(t, s.Snapshot().Entries(), 1)
}

func TestCommitRefusedWhenReadOnly(t *testing.T) {
	gate := writegate.New(nil)
	m := metrics.New()
	s, _ := openFileStore(t, filepath.Join(t.TempDir(), "ledger.json"), WithWriteGate(gate), WithMetrics(m))
	gate.EnterReadOnly("test")

	_, err := s.Commit(context.Background(), []types.Delta{accountDelta(t, testAccount(1), 1)}, 0)
	assert.ErrorIs(t, err, wgif.ErrReadOnly)
	assert.Equal(t, uint64(0), s.Version())

	gate.ExitReadOnly("test")
	_, err = s.Commit(context.Background(), []types.Delta{accountDelta(t, testAccount(1), 1)}, 0)
	assert.NoError(t, err)
}

func TestOnCommitHook(t *testing.T) {
	s, _ := openFileStore(t, filepath.Join(t.TempDir(), "ledger.json"))
	var got []CommitInfo
	s.OnCommit(func(ci CommitInfo) { got = append(got, ci) })

	_, err := s.Commit(context.Background(), []types.Delta{accountDelta(t, testAccount(1), 1)}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].Version)
	assert.Equal(t, uint64(0), got[0].Previous)
	assert.Len(t, got[0].Deltas, 1)
}

func TestCloseRejectsCommits(t *testing.T) {
	s, _ := openFileStore(t, filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err := s.Commit(context.Background(), nil, 0)
	assert.ErrorIs(t, err, ErrClosed)
}

// TestConcurrentCommitsTotalOrder 并发写者基于观察到的版本提交，冲突时重读重试
func TestConcurrentCommitsTotalOrder(t *testing.T) {
	s, _ := openFileStore(t, filepath.Join(t.TempDir(), "ledger.json"))
	a := testAccount(1)
	_, err := s.Commit(context.Background(), []types.Delta{accountDelta(t, a, 0)}, 0)
	require.NoError(t, err)

	var versions []uint64
	var mu sync.Mutex
	s.OnCommit(func(ci CommitInfo) {
		mu.Lock()
		versions = append(versions, ci.Version)
		mu.Unlock()
	})

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				snap := s.Snapshot()
				e, _ := snap.Get(types.AccountKey(a))
				bal, _, _ := types.AccountBalance(e.Value)
				next := accountDelta(t, a, bal.Int64()+1)
				_, err := s.Commit(context.Background(), []types.Delta{next}, snap.Version())
				if errors.Is(err, ErrConflict) {
					continue
				}
				assert.NoError(t, err)
				return
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(writers), balanceOf(t, s, a))
	assert.Equal(t, uint64(writers+1), s.Version())
	require.Len(t, versions, writers)
	for i, v := range versions {
		assert.Equal(t, uint64(i+2), v)
	}
}

func TestFootprintCandidates(t *testing.T) {
	s, _ := openFileStore(t, filepath.Join(t.TempDir(), "ledger.json"))
	code := []byte("wasm")
	hash := types.HashBytes(code)
	contract := types.ContractAddress(hash, nil)
	inst := types.InstanceKey(contract)
	_, err := s.Commit(context.Background(), []types.Delta{
		codeDelta(code),
		{Key: inst, Entry: &types.LedgerEntry{Key: inst, Value: types.InstanceValue(types.ContractInstance{CodeHash: hash})}},
	}, 0)
	require.NoError(t, err)

	invoker := testAccount(9)
	k := types.DataKey(contract, types.MustSymbol("k"), types.DurabilityPersistent)
	learned := types.DataKey(contract, types.MustSymbol("seen"), types.DurabilityPersistent)
	fp := s.ComputeFootprintCandidates(FootprintRequest{
		Contract:  contract,
		Invoker:   invoker,
		ReadOnly:  []types.LedgerKey{learned, k},
		ReadWrite: []types.LedgerKey{k},
	})

	assert.True(t, fp.CanRead(types.CodeKey(hash)))
	assert.False(t, fp.CanWrite(types.CodeKey(hash)))
	assert.True(t, fp.CanRead(inst))
	assert.True(t, fp.CanRead(learned))
	assert.False(t, fp.CanWrite(learned))
	assert.True(t, fp.CanWrite(types.AccountKey(invoker)))
	assert.True(t, fp.CanWrite(k))
	assert.Equal(t, 5, fp.Len())

	entries := s.Snapshot().Select(fp)
	assert.Len(t, entries, 2)
	assert.Contains(t, entries, types.CodeKey(hash).ID())
}

func TestNewPersisterSelectsBackend(t *testing.T) {
	p, err := NewPersister(&storageconfig.StorageOptions{Backend: "file", LedgerFile: "x.json"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "file", p.Name())

	_, err = NewPersister(&storageconfig.StorageOptions{Backend: "badger"}, nil, nil)
	assert.Error(t, err)

	_, err = NewPersister(&storageconfig.StorageOptions{Backend: "sqlite"}, nil, nil)
	assert.Error(t, err)
}
