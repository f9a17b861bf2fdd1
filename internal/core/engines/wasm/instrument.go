package wasm

import (
	"bytes"
	"errors"
	"fmt"
)

// 循环计量
//
// 监听器只在进入 guest 函数时计步，不含调用的循环不会经过它。编译前在每个
// loop 块开头插入对计步函数的调用：计步函数体为空，追加在类型与函数索引空间
// 末尾，已有索引不变；进入它时由 meter 计一步。

const (
	secType     = 1
	secImport   = 2
	secFunction = 3
	secCode     = 10

	opLoop = 0x03
	opCall = 0x10
)

var errMalformedModule = errors.New("malformed module")

var (
	tickType = []byte{0x60, 0x00, 0x00}
	// 无局部变量，函数体只有 end
	tickBody = []byte{0x02, 0x00, 0x0b}
)

type rawSection struct {
	id      byte
	payload []byte
}

// instrumentLoops 返回在每个循环头插入计步调用的模块，没有循环时原样返回
func instrumentLoops(code []byte) ([]byte, error) {
	if len(code) < 8 || !bytes.HasPrefix(code, magic) {
		return nil, errMalformedModule
	}
	var secs []rawSection
	for pos := 8; pos < len(code); {
		size, next, err := readU32(code, pos+1)
		if err != nil {
			return nil, err
		}
		end := next + int(size)
		if end > len(code) {
			return nil, fmt.Errorf("%w: section 0x%02x overflows module", errMalformedModule, code[pos])
		}
		secs = append(secs, rawSection{id: code[pos], payload: code[next:end]})
		pos = end
	}

	ti, fi, ci := findSection(secs, secType), findSection(secs, secFunction), findSection(secs, secCode)
	if ti < 0 || fi < 0 || ci < 0 {
		return code, nil
	}
	imported := uint32(0)
	if ii := findSection(secs, secImport); ii >= 0 {
		n, err := countFuncImports(secs[ii].payload)
		if err != nil {
			return nil, err
		}
		imported = n
	}

	typeSec, typeCount, err := appendItem(secs[ti].payload, tickType)
	if err != nil {
		return nil, err
	}
	funcSec, funcCount, err := appendItem(secs[fi].payload, appendULEB(nil, uint64(typeCount)))
	if err != nil {
		return nil, err
	}
	codeSec, loops, err := instrumentCode(secs[ci].payload, imported+funcCount)
	if err != nil {
		return nil, err
	}
	if loops == 0 {
		return code, nil
	}
	secs[ti].payload, secs[fi].payload, secs[ci].payload = typeSec, funcSec, codeSec

	out := append(make([]byte, 0, len(code)+len(code)/8), code[:8]...)
	for _, s := range secs {
		out = append(out, s.id)
		out = appendULEB(out, uint64(len(s.payload)))
		out = append(out, s.payload...)
	}
	return out, nil
}

func findSection(secs []rawSection, id byte) int {
	for i := range secs {
		if secs[i].id == id {
			return i
		}
	}
	return -1
}

// appendItem 向向量末尾追加一项，返回追加前的项数（即新项的索引）
func appendItem(payload, item []byte) ([]byte, uint32, error) {
	n, pos, err := readU32(payload, 0)
	if err != nil {
		return nil, 0, err
	}
	out := appendULEB(nil, uint64(n)+1)
	out = append(out, payload[pos:]...)
	return append(out, item...), n, nil
}

// countFuncImports 导入段中函数导入的个数
func countFuncImports(payload []byte) (uint32, error) {
	n, pos, err := readU32(payload, 0)
	if err != nil {
		return 0, err
	}
	funcs := uint32(0)
	for i := uint32(0); i < n; i++ {
		// 模块名与字段名
		for j := 0; j < 2; j++ {
			l, next, err := readU32(payload, pos)
			if err != nil {
				return 0, err
			}
			pos = next + int(l)
		}
		if pos >= len(payload) {
			return 0, errMalformedModule
		}
		kind := payload[pos]
		pos++
		switch kind {
		case 0x00:
			funcs++
			pos, err = skipLEB(payload, pos, 1)
		case 0x01:
			pos, err = skipLimits(payload, pos+1)
		case 0x02:
			pos, err = skipLimits(payload, pos)
		case 0x03:
			pos, err = skipBytes(payload, pos, 2)
		default:
			err = fmt.Errorf("%w: import kind 0x%02x", errMalformedModule, kind)
		}
		if err != nil {
			return 0, err
		}
	}
	return funcs, nil
}

func skipLimits(b []byte, pos int) (int, error) {
	if pos >= len(b) {
		return 0, errMalformedModule
	}
	flags := b[pos]
	n := 1
	if flags&0x01 != 0 {
		n = 2
	}
	return skipLEB(b, pos+1, n)
}

// instrumentCode 改写代码段并在末尾追加计步函数体，返回插入的调用数
func instrumentCode(payload []byte, tick uint32) ([]byte, int, error) {
	n, pos, err := readU32(payload, 0)
	if err != nil {
		return nil, 0, err
	}
	call := appendULEB([]byte{opCall}, uint64(tick))
	out := appendULEB(make([]byte, 0, len(payload)+len(payload)/8), uint64(n)+1)
	loops := 0
	for i := uint32(0); i < n; i++ {
		size, next, err := readU32(payload, pos)
		if err != nil {
			return nil, 0, err
		}
		end := next + int(size)
		if end > len(payload) {
			return nil, 0, fmt.Errorf("%w: function body %d overflows code section", errMalformedModule, i)
		}
		body, k, err := instrumentBody(payload[next:end], call)
		if err != nil {
			return nil, 0, fmt.Errorf("function body %d: %w", i, err)
		}
		out = appendULEB(out, uint64(len(body)))
		out = append(out, body...)
		loops += k
		pos = end
	}
	if pos != len(payload) {
		return nil, 0, fmt.Errorf("%w: trailing bytes in code section", errMalformedModule)
	}
	return append(out, tickBody...), loops, nil
}

func instrumentBody(body, call []byte) ([]byte, int, error) {
	groups, pos, err := readU32(body, 0)
	if err != nil {
		return nil, 0, err
	}
	for i := uint32(0); i < groups; i++ {
		// 个数 + 值类型
		if pos, err = skipLEB(body, pos, 1); err != nil {
			return nil, 0, err
		}
		if pos, err = skipBytes(body, pos, 1); err != nil {
			return nil, 0, err
		}
	}
	out := append(make([]byte, 0, len(body)+len(call)*4), body[:pos]...)
	loops := 0
	for pos < len(body) {
		next, err := skipInstr(body, pos)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, body[pos:next]...)
		if body[pos] == opLoop {
			out = append(out, call...)
			loops++
		}
		pos = next
	}
	return out, loops, nil
}

// skipInstr 返回 pos 处指令（含立即数）之后的偏移
func skipInstr(b []byte, pos int) (int, error) {
	op := b[pos]
	pos++
	switch {
	case op <= 0x01, op == 0x05, op == 0x0b, op == 0x0f, op == 0x1a, op == 0x1b, op == 0xd1:
		return pos, nil
	case op >= 0x45 && op <= 0xc4:
		return pos, nil
	case op >= 0x02 && op <= 0x04:
		// 块类型：0x40、单字节值类型或有符号类型索引，都按一个 LEB 跳过
		return skipLEB(b, pos, 1)
	case op == 0x0c, op == 0x0d, op == 0x10, op == 0x12, op == 0xd2:
		return skipLEB(b, pos, 1)
	case op >= 0x20 && op <= 0x26:
		return skipLEB(b, pos, 1)
	case op == 0x0e:
		n, next, err := readU32(b, pos)
		if err != nil {
			return 0, err
		}
		return skipLEB(b, next, int(n)+1)
	case op == 0x11, op == 0x13:
		return skipLEB(b, pos, 2)
	case op == 0x1c:
		n, next, err := readU32(b, pos)
		if err != nil {
			return 0, err
		}
		return skipBytes(b, next, int(n))
	case op >= 0x28 && op <= 0x3e:
		return skipLEB(b, pos, 2)
	case op == 0x3f, op == 0x40, op == 0xd0:
		return skipBytes(b, pos, 1)
	case op == 0x41, op == 0x42:
		return skipLEB(b, pos, 1)
	case op == 0x43:
		return skipBytes(b, pos, 4)
	case op == 0x44:
		return skipBytes(b, pos, 8)
	case op == 0xfc:
		return skipMisc(b, pos)
	case op == 0xfd:
		return skipVector(b, pos)
	}
	return 0, fmt.Errorf("%w: unsupported opcode 0x%02x", errMalformedModule, op)
}

// skipMisc 0xfc 前缀：饱和截断、批量内存与表操作
func skipMisc(b []byte, pos int) (int, error) {
	sub, pos, err := readU32(b, pos)
	if err != nil {
		return 0, err
	}
	switch {
	case sub <= 7:
		return pos, nil
	case sub == 8:
		if pos, err = skipLEB(b, pos, 1); err != nil {
			return 0, err
		}
		return skipBytes(b, pos, 1)
	case sub == 9, sub == 13, sub == 15, sub == 16, sub == 17:
		return skipLEB(b, pos, 1)
	case sub == 10:
		return skipBytes(b, pos, 2)
	case sub == 11:
		return skipBytes(b, pos, 1)
	case sub == 12, sub == 14:
		return skipLEB(b, pos, 2)
	}
	return 0, fmt.Errorf("%w: unsupported 0xfc opcode %d", errMalformedModule, sub)
}

// skipVector 0xfd 前缀：SIMD
func skipVector(b []byte, pos int) (int, error) {
	sub, pos, err := readU32(b, pos)
	if err != nil {
		return 0, err
	}
	switch {
	case sub <= 11, sub == 92, sub == 93:
		return skipLEB(b, pos, 2)
	case sub == 12, sub == 13:
		return skipBytes(b, pos, 16)
	case sub >= 21 && sub <= 34:
		return skipBytes(b, pos, 1)
	case sub >= 84 && sub <= 91:
		if pos, err = skipLEB(b, pos, 2); err != nil {
			return 0, err
		}
		return skipBytes(b, pos, 1)
	}
	return pos, nil
}

func readU32(b []byte, pos int) (uint32, int, error) {
	var v uint64
	for shift := 0; shift < 35; shift += 7 {
		if pos >= len(b) {
			return 0, 0, fmt.Errorf("%w: truncated integer", errMalformedModule)
		}
		c := b[pos]
		pos++
		v |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			if v > 0xffffffff {
				break
			}
			return uint32(v), pos, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: integer overflows u32", errMalformedModule)
}

func skipLEB(b []byte, pos, n int) (int, error) {
	for ; n > 0; n-- {
		for {
			if pos >= len(b) {
				return 0, fmt.Errorf("%w: truncated integer", errMalformedModule)
			}
			c := b[pos]
			pos++
			if c&0x80 == 0 {
				break
			}
		}
	}
	return pos, nil
}

func skipBytes(b []byte, pos, n int) (int, error) {
	if n < 0 || pos+n > len(b) {
		return 0, fmt.Errorf("%w: truncated immediate", errMalformedModule)
	}
	return pos + n, nil
}

func appendULEB(out []byte, v uint64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, c)
		}
		out = append(out, c|0x80)
	}
}
