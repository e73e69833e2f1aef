// Package dynamic reads the few ELF structures needed to decide whether a
// shared object is bound symbolically, and plans the single word to rewrite
// when it is not.
package dynamic

import (
	"debug/elf"

	"github.com/pkg/errors"
)

const (
	Class32 Class = Class(elf.ELFCLASS32)
	Class64 Class = Class(elf.ELFCLASS64)
)

const (
	headerSize = 64

	classIndex = 4
	dataIndex  = 5
)

var magic = []byte{0x7F, 'E', 'L', 'F'}

var (
	ErrMagic             = errors.New("elf: invalid magic")
	ErrClass             = errors.New("elf: unsupported class")
	ErrProgramHeaderSize = errors.New("elf: unexpected program header size")
	ErrTruncated         = errors.New("elf: truncated file")
	ErrNoDynamic         = errors.New("elf: no dynamic segment")
	ErrNoPatchLocation   = errors.New("elf: no room in dynamic segment")
)

type Class uint8

func (c Class) String() string {
	switch c {
	case Class32:
		return "ELF32"
	case Class64:
		return "ELF64"
	default:
		return "unknown"
	}
}

func (c Class) Valid() bool {
	return c == Class32 || c == Class64
}

// TagString gives the conventional name of a dynamic tag, or its value in
// decimal form for tags unknown to debug/elf.
func TagString(tag uint64) string {
	return elf.DynTag(tag).String()
}
