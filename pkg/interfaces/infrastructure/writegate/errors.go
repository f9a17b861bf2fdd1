package writegate

import "errors"

// ErrReadOnly 处于只读模式
var ErrReadOnly = errors.New("write gate is read-only")
