package dynamic

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Layout hides the width differences between ELF32 and ELF64: every read of
// a class-width field goes through it.
type Layout interface {
	Class() Class
	ByteOrder() binary.ByteOrder
	WordSize() int
	ProgramHeaderSize() int
	EntrySize() int
	Word(buf []byte, off int) (uint64, error)
	Half(buf []byte, off int) (uint16, error)
	PutWord(buf []byte, value uint64)
}

func LayoutFor(class Class, order binary.ByteOrder) (Layout, error) {
	if !class.Valid() {
		return nil, errors.Wrapf(ErrClass, "class %d", class)
	}
	if order == nil {
		order = binary.LittleEndian
	}
	return layout{class: class, order: order}, nil
}

type layout struct {
	class Class
	order binary.ByteOrder
}

func (y layout) Class() Class {
	return y.class
}

func (y layout) ByteOrder() binary.ByteOrder {
	return y.order
}

func (y layout) WordSize() int {
	if y.class == Class32 {
		return 4
	}
	return 8
}

func (y layout) ProgramHeaderSize() int {
	if y.class == Class32 {
		return 32
	}
	return 56
}

func (y layout) EntrySize() int {
	return 2 * y.WordSize()
}

func (y layout) Word(buf []byte, off int) (uint64, error) {
	size := y.WordSize()
	if off < 0 || off > len(buf)-size {
		return 0, errors.Wrapf(ErrTruncated, "word at %d outside %d bytes", off, len(buf))
	}
	if size == 4 {
		return uint64(y.order.Uint32(buf[off:])), nil
	}
	return y.order.Uint64(buf[off:]), nil
}

func (y layout) Half(buf []byte, off int) (uint16, error) {
	if off < 0 || off > len(buf)-2 {
		return 0, errors.Wrapf(ErrTruncated, "half word at %d outside %d bytes", off, len(buf))
	}
	return y.order.Uint16(buf[off:]), nil
}

// PutWord encodes value in the first WordSize bytes of buf, truncating it to
// 32 bits for ELF32.
func (y layout) PutWord(buf []byte, value uint64) {
	if y.WordSize() == 4 {
		y.order.PutUint32(buf, uint32(value))
		return
	}
	y.order.PutUint64(buf, value)
}

// offsets of the program header table fields in the ELF header, and of the
// segment fields in one program header.
func (y layout) phoffIndex() int {
	if y.class == Class32 {
		return 0x1c
	}
	return 0x20
}

func (y layout) phentsizeIndex() int {
	if y.class == Class32 {
		return 0x2a
	}
	return 0x36
}

func (y layout) phnumIndex() int {
	return y.phentsizeIndex() + 2
}

func segmentOffsetIndex(y Layout) int {
	return y.WordSize()
}

func segmentSizeIndex(y Layout) int {
	return 4 * y.WordSize()
}
