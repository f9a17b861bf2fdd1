package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/sandbox/pkg/types"
)

var errSimulatedCrash = errors.New("simulated crash")

// TestCrashBeforeRenameKeepsPreviousVersion 临时文件已落盘但未替换时崩溃，重新加载仍是提交前版本
func TestCrashBeforeRenameKeepsPreviousVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s, p := openFileStore(t, path)
	a := testAccount(1)
	_, err := s.Commit(context.Background(), []types.Delta{accountDelta(t, a, 100)}, 0)
	require.NoError(t, err)

	// 保留一份临时文件，模拟进程在 rename 之前被杀死
	p.beforeRename = func(tmpPath string) error {
		require.NoError(t, copyFile(tmpPath, path+".tmp-crashed"))
		return errSimulatedCrash
	}
	_, err = s.Commit(context.Background(), []types.Delta{accountDelta(t, a, 70)}, 1)
	require.ErrorIs(t, err, errSimulatedCrash)

	// 失败的提交对读者不可见
	assert.Equal(t, uint64(1), s.Version())
	assert.Equal(t, int64(100), balanceOf(t, s, a))

	reloaded, _ := openFileStore(t, path)
	assert.Equal(t, uint64(1), reloaded.Version())
	assert.Equal(t, int64(100), balanceOf(t, reloaded, a))

	leftovers, _ := filepath.Glob(path + ".tmp-*")
	assert.Empty(t, leftovers)
}

func TestFailedWriteLeavesNoTempFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s, p := openFileStore(t, path)
	p.beforeRename = func(string) error { return errSimulatedCrash }

	_, err := s.Commit(context.Background(), []types.Delta{accountDelta(t, testAccount(1), 1)}, 0)
	require.Error(t, err)
	leftovers, _ := filepath.Glob(path + ".tmp-*")
	assert.Empty(t, leftovers)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	newValidFile := func(t *testing.T) string {
		path := filepath.Join(t.TempDir(), "ledger.json")
		s, _ := openFileStore(t, path)
		_, err := s.Commit(context.Background(), []types.Delta{accountDelta(t, testAccount(1), 100)}, 0)
		require.NoError(t, err)
		return path
	}
	rewrite := func(t *testing.T, path string, edit func(env map[string]any)) {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var env map[string]any
		require.NoError(t, json.Unmarshal(data, &env))
		edit(env)
		data, err = json.Marshal(env)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}

	cases := map[string]func(t *testing.T, path string){
		"截断": func(t *testing.T, path string) {
			data, _ := os.ReadFile(path)
			require.NoError(t, os.WriteFile(path, data[:len(data)/2], 0o644))
		},
		"空文件": func(t *testing.T, path string) {
			require.NoError(t, os.WriteFile(path, nil, 0o644))
		},
		"篡改版本号": func(t *testing.T, path string) {
			rewrite(t, path, func(env map[string]any) { env["version"] = 9 })
		},
		"篡改条目数": func(t *testing.T, path string) {
			rewrite(t, path, func(env map[string]any) { env["entries"] = 2 })
		},
		"篡改校验和": func(t *testing.T, path string) {
			rewrite(t, path, func(env map[string]any) { env["sha256"] = "00" })
		},
		"未知格式": func(t *testing.T, path string) {
			rewrite(t, path, func(env map[string]any) { env["format"] = 99 })
		},
		"未知压缩": func(t *testing.T, path string) {
			rewrite(t, path, func(env map[string]any) { env["compression"] = "zstd" })
		},
		"正文损坏": func(t *testing.T, path string) {
			rewrite(t, path, func(env map[string]any) { env["body"] = "AAAA" })
		},
	}
	for name, corrupt := range cases {
		t.Run(name, func(t *testing.T) {
			path := newValidFile(t)
			corrupt(t, path)
			_, err := Open(context.Background(), NewFilePersister(path, true, nil))
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
