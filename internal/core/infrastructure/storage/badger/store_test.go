package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	badgerconfig "github.com/weisyn/sandbox/internal/config/storage/badger"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/storage"
)

func openDiskStore(t *testing.T) *Store {
	t.Helper()
	cfg := badgerconfig.NewFromOptions(&badgerconfig.BadgerOptions{
		Path:         t.TempDir(),
		MemTableSize: 1 << 20,
	})
	s, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func put(t *testing.T, s *Store, kv ...string) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), func(w storage.BatchWriter) error {
		for i := 0; i+1 < len(kv); i += 2 {
			if err := w.Set([]byte(kv[i]), []byte(kv[i+1])); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestValueThresholdFitsBatch(t *testing.T) {
	for _, mem := range []int64{1 << 20, 4 << 20, 16 << 20, 64 << 20} {
		v := valueThreshold(mem)
		assert.LessOrEqual(t, v, mem*15/100, "memtable %d", mem)
		assert.LessOrEqual(t, v, int64(maxValueThreshold))
		assert.Positive(t, v)
	}
}

func TestSmallMemTableOpens(t *testing.T) {
	s := openDiskStore(t)
	big := make([]byte, 200<<10)
	require.NoError(t, s.Update(context.Background(), func(w storage.BatchWriter) error {
		return w.Set([]byte("big"), big)
	}))
	got, err := s.Get(context.Background(), []byte("big"))
	require.NoError(t, err)
	assert.Len(t, got, len(big))
}

func TestGetMissingKey(t *testing.T) {
	s := openDiskStore(t)
	v, err := s.Get(context.Background(), []byte("nope"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestScanIsKeyOrderedAndPrefixBound(t *testing.T) {
	s := openDiskStore(t)
	put(t, s, "e/3", "c", "e/1", "a", "meta", "m", "e/2", "b")

	var keys, vals []string
	err := s.Scan(context.Background(), []byte("e/"), func(k, v []byte) error {
		keys = append(keys, string(k))
		vals = append(vals, string(v))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"e/1", "e/2", "e/3"}, keys)
	assert.Equal(t, []string{"a", "b", "c"}, vals)
}

func TestScanStopsOnCallbackError(t *testing.T) {
	s := openDiskStore(t)
	put(t, s, "p/1", "x", "p/2", "y")

	stop := errors.New("stop")
	seen := 0
	err := s.Scan(context.Background(), []byte("p/"), func(_, _ []byte) error {
		seen++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, seen)
}

func TestUpdateIsAllOrNothing(t *testing.T) {
	s := openDiskStore(t)
	ctx := context.Background()
	put(t, s, "a", "1", "b", "2")

	boom := errors.New("boom")
	err := s.Update(ctx, func(w storage.BatchWriter) error {
		require.NoError(t, w.Set([]byte("a"), []byte("changed")))
		require.NoError(t, w.Delete([]byte("b")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	a, err := s.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), a)
	b, err := s.Get(ctx, []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), b)
}

func TestUpdateDropsWritesWhenContextCancelled(t *testing.T) {
	s := openDiskStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := s.Update(ctx, func(w storage.BatchWriter) error {
		cancel()
		return w.Set([]byte("k"), []byte("v"))
	})
	assert.ErrorIs(t, err, context.Canceled)

	v, err := s.Get(context.Background(), []byte("k"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestReopenKeepsCommittedData(t *testing.T) {
	dir := t.TempDir()
	opts := &badgerconfig.BadgerOptions{Path: dir, SyncWrites: true, MemTableSize: 1 << 20}

	s, err := New(badgerconfig.NewFromOptions(opts), nil)
	require.NoError(t, err)
	put(t, s, "k", "v")
	require.NoError(t, s.Close())

	s, err = New(badgerconfig.NewFromOptions(opts), nil)
	require.NoError(t, err)
	defer s.Close()
	v, err := s.Get(context.Background(), []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	s := openDiskStore(t)
	ctx := context.Background()
	require.NoError(t, s.Close())

	_, err := s.Get(ctx, []byte("k"))
	assert.ErrorIs(t, err, ErrClosed)
	err = s.Update(ctx, func(storage.BatchWriter) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, s.Close())
}

func TestCollectGarbageOnQuietStore(t *testing.T) {
	s := openDiskStore(t)
	put(t, s, "k", "v")
	n, err := s.collectGarbage(context.Background(), 0.5)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInMemoryStoreHasNoGCLoop(t *testing.T) {
	s, err := New(badgerconfig.NewFromOptions(&badgerconfig.BadgerOptions{InMemory: true, GCInterval: 1}), nil)
	require.NoError(t, err)
	defer s.Close()
	assert.Nil(t, s.gcDone)
}
