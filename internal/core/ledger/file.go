package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/golang/snappy"

	logimpl "github.com/weisyn/sandbox/internal/core/infrastructure/log"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/sandbox/pkg/types"
)

const (
	fileFormat = 1

	compressionNone   = "none"
	compressionSnappy = "snappy"

	// 单条目编码上限，防止损坏的长度前缀导致超大分配
	maxEntrySize = 64 << 20
)

// fileEnvelope 快照文件结构
//
// Body 为按键排序的条目序列（uvarint 长度 + 规范编码），
// Checksum 覆盖 version、条目数与未压缩的 Body。
type fileEnvelope struct {
	Format      int    `json:"format"`
	Version     uint64 `json:"version"`
	Entries     int    `json:"entries"`
	Compression string `json:"compression"`
	Checksum    string `json:"sha256"`
	Body        []byte `json:"body"`
}

// FilePersister 单文件快照持久化
//
// 每次提交整体重写：写临时文件 -> fsync -> rename 覆盖 -> fsync 目录。
// 任意一步失败或进程崩溃，目标路径上仍是上一版本的完整文件。
type FilePersister struct {
	path     string
	compress bool
	logger   log.Logger

	// beforeRename 测试注入点：临时文件已落盘、尚未替换目标文件
	beforeRename func(tmpPath string) error
}

// NewFilePersister 创建文件持久化后端
func NewFilePersister(path string, compress bool, logger log.Logger) *FilePersister {
	return &FilePersister{path: path, compress: compress, logger: logimpl.OrNop(logger)}
}

// Name 后端名称
func (p *FilePersister) Name() string { return "file" }

// Path 快照文件路径
func (p *FilePersister) Path() string { return p.path }

// Load 读取并校验快照文件
func (p *FilePersister) Load(ctx context.Context) (uint64, []*types.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	p.removeStaleTemps()

	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		p.logger.Infof("快照文件不存在，使用空账本: %s", p.path)
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("读取快照文件失败: %w", err)
	}

	var env fileEnvelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return 0, nil, corruptf("%s: malformed envelope: %v", p.path, err)
	}
	if env.Format != fileFormat {
		return 0, nil, corruptf("%s: unsupported format %d", p.path, env.Format)
	}

	body := env.Body
	switch env.Compression {
	case compressionNone:
	case compressionSnappy:
		body, err = snappy.Decode(nil, env.Body)
		if err != nil {
			return 0, nil, corruptf("%s: snappy body: %v", p.path, err)
		}
	default:
		return 0, nil, corruptf("%s: unknown compression %q", p.path, env.Compression)
	}

	sum := checksum(env.Version, env.Entries, body)
	if hex.EncodeToString(sum[:]) != env.Checksum {
		return 0, nil, corruptf("%s: checksum mismatch", p.path)
	}

	entries, err := decodeEntries(body)
	if err != nil {
		return 0, nil, corruptf("%s: %v", p.path, err)
	}
	if len(entries) != env.Entries {
		return 0, nil, corruptf("%s: entry count %d, header says %d", p.path, len(entries), env.Entries)
	}
	return env.Version, entries, nil
}

// Save 原子替换快照文件
func (p *FilePersister) Save(ctx context.Context, next *Snapshot, _ []types.Delta) error {
	entries := next.Entries()
	body := encodeEntries(entries)
	sum := checksum(next.Version(), len(entries), body)

	env := fileEnvelope{
		Format:      fileFormat,
		Version:     next.Version(),
		Entries:     len(entries),
		Compression: compressionNone,
		Checksum:    hex.EncodeToString(sum[:]),
		Body:        body,
	}
	if p.compress {
		env.Compression = compressionSnappy
		env.Body = snappy.Encode(nil, body)
	}
	data, err := json.Marshal(&env)
	if err != nil {
		return fmt.Errorf("序列化快照失败: %w", err)
	}
	return p.writeAtomic(data)
}

func (p *FilePersister) writeAtomic(data []byte) error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建快照目录失败: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("创建临时快照文件失败: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("写入临时快照文件失败: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("同步临时快照文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("关闭临时快照文件失败: %w", err)
	}

	if p.beforeRename != nil {
		if err := p.beforeRename(tmpPath); err != nil {
			return err
		}
	}

	if err := os.Rename(tmpPath, p.path); err != nil {
		return fmt.Errorf("替换快照文件失败: %w", err)
	}
	committed = true
	if err := syncDir(dir); err != nil {
		p.logger.Warnf("同步快照目录失败: %v", err)
	}
	return nil
}

// Close 文件后端无常驻资源
func (p *FilePersister) Close() error { return nil }

// removeStaleTemps 清理上次崩溃遗留的临时文件
func (p *FilePersister) removeStaleTemps() {
	matches, err := filepath.Glob(p.path + ".tmp-*")
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			p.logger.Warnf("已清理遗留的临时快照文件: %s", m)
		}
	}
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

func checksum(version uint64, count int, body []byte) [sha256.Size]byte {
	h := sha256.New()
	var hdr [16]byte
	binary.BigEndian.PutUint64(hdr[:8], version)
	binary.BigEndian.PutUint64(hdr[8:], uint64(count))
	h.Write(hdr[:])
	h.Write(body)
	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

func encodeEntries(entries []*types.LedgerEntry) []byte {
	var buf []byte
	for _, e := range entries {
		enc := types.EncodeEntry(e)
		buf = binary.AppendUvarint(buf, uint64(len(enc)))
		buf = append(buf, enc...)
	}
	return buf
}

func decodeEntries(body []byte) ([]*types.LedgerEntry, error) {
	var out []*types.LedgerEntry
	for len(body) > 0 {
		n, w := binary.Uvarint(body)
		if w <= 0 || n > maxEntrySize || n > uint64(len(body)-w) {
			return nil, fmt.Errorf("bad entry length at entry %d", len(out))
		}
		body = body[w:]
		e, err := types.DecodeEntry(body[:n])
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", len(out), err)
		}
		out = append(out, e)
		body = body[n:]
	}
	return out, nil
}
