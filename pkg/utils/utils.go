package utils

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
)

func Fatal(v any) {
	fmt.Fprintf(os.Stderr, "mold: fatal: %v\n", v)
	os.Exit(1)
}

func MustNo(err error) {
	if err != nil {
		Fatal(err)
	}
}

// InternalError is the panic value of a broken invariant inside the linker,
// as opposed to a problem with the user's input files.
type InternalError struct {
	Msg   string
	Stack []byte
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Msg
}

func Assert(res bool) {
	if !res {
		panic(&InternalError{Msg: "assertion failed", Stack: debug.Stack()})
	}
}

func Unreachable() {
	panic(&InternalError{Msg: "unreachable", Stack: debug.Stack()})
}

// Read decodes a little-endian T from the start of content.
func Read[T any](content []byte) (val T) {
	reader := bytes.NewReader(content)
	err := binary.Read(reader, binary.LittleEndian, &val)
	MustNo(err)
	return
}

func ReadSlice[T any](content []byte, size int) []T {
	Assert(len(content)%size == 0)
	ret := make([]T, 0, len(content)/size)
	for len(content) > 0 {
		ret = append(ret, Read[T](content))
		content = content[size:]
	}
	return ret
}

// Write encodes val little-endian at the start of data. data need not be
// aligned; it must be long enough.
func Write[T any](data []byte, val T) {
	buf := &bytes.Buffer{}
	err := binary.Write(buf, binary.LittleEndian, val)
	MustNo(err)
	copy(data, buf.Bytes())
}

func AlignTo(val, align uint64) uint64 {
	if align == 0 {
		return val
	}
	return (val + align - 1) &^ (align - 1)
}

// SignExtend treats bit `size` of val as the sign bit.
func SignExtend(val uint64, size int) uint64 {
	return uint64(int64(val<<(63-size)) >> (63 - size))
}

// o => -o
// plugin => -plugin, --plugin
func AddDashes(option string) []string {
	if len(option) == 1 {
		return []string{"-" + option}
	}
	return []string{"-" + option, "--" + option}
}

func RemovePrefix(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) {
		return strings.TrimPrefix(s, prefix), true
	}
	return s, false
}

func AllZeros(bs []byte) bool {
	for _, b := range bs {
		if b != 0 {
			return false
		}
	}
	return true
}

func RemoveIf[T any](elems []T, condition func(T) bool) []T {
	i := 0
	for _, elem := range elems {
		if condition(elem) {
			continue
		}
		elems[i] = elem
		i++
	}
	return elems[:i]
}
