// Package elftest builds minimal ELF shared objects in memory: an ELF header,
// a PT_LOAD and a PT_DYNAMIC program header and the dynamic table itself.
package elftest

import (
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

const Padding = 0xA5

type Pair struct {
	Tag   uint64
	Value uint64
}

// Object describes the file to build. The zero value is a little-endian
// ELF64 shared object with an empty dynamic table.
type Object struct {
	Class     elf.Class
	BigEndian bool
	Entries   []Pair

	// NoDynamic replaces the PT_DYNAMIC program header by a PT_NOTE.
	NoDynamic bool
	// Phentsize overrides e_phentsize when not zero.
	Phentsize uint16
	// Trailer is the count of bytes appended after the dynamic table.
	Trailer int
}

// Layout reports where Bytes places things.
type Layout struct {
	WordSize      int
	Phoff         int
	DynamicOffset int
	DynamicSize   int
}

func (o Object) class() elf.Class {
	if o.Class == elf.ELFCLASS32 {
		return elf.ELFCLASS32
	}
	return elf.ELFCLASS64
}

func (o Object) order() binary.ByteOrder {
	if o.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (o Object) Layout() Layout {
	var y Layout
	y.Phoff = 64
	if o.class() == elf.ELFCLASS32 {
		y.WordSize = 4
		y.DynamicOffset = y.Phoff + 2*32
	} else {
		y.WordSize = 8
		y.DynamicOffset = y.Phoff + 2*56
	}
	y.DynamicSize = len(o.Entries) * 2 * y.WordSize
	return y
}

// EntryOffset is the file offset of the tag of the i-th dynamic entry.
func (o Object) EntryOffset(i int) int {
	y := o.Layout()
	return y.DynamicOffset + i*2*y.WordSize
}

func (o Object) Bytes() []byte {
	var (
		y     = o.Layout()
		order = o.order()
		size  = y.DynamicOffset + y.DynamicSize + o.Trailer
		buf   = make([]byte, size)
		is32  = o.class() == elf.ELFCLASS32
	)
	putWord := func(off int, v uint64) {
		if is32 {
			order.PutUint32(buf[off:], uint32(v))
		} else {
			order.PutUint64(buf[off:], v)
		}
	}

	copy(buf, elf.ELFMAG)
	buf[elf.EI_CLASS] = byte(o.class())
	if o.BigEndian {
		buf[elf.EI_DATA] = byte(elf.ELFDATA2MSB)
	} else {
		buf[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	}
	buf[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	order.PutUint16(buf[16:], uint16(elf.ET_DYN))

	phentsize, ehsize := uint16(56), uint16(64)
	if is32 {
		phentsize, ehsize = 32, 52
		order.PutUint16(buf[18:], uint16(elf.EM_ARM))
		order.PutUint32(buf[20:], uint32(elf.EV_CURRENT))
		order.PutUint32(buf[28:], uint32(y.Phoff))
		order.PutUint16(buf[40:], ehsize)
	} else {
		order.PutUint16(buf[18:], uint16(elf.EM_AARCH64))
		order.PutUint32(buf[20:], uint32(elf.EV_CURRENT))
		order.PutUint64(buf[32:], uint64(y.Phoff))
		order.PutUint16(buf[52:], ehsize)
	}
	if o.Phentsize != 0 {
		phentsize = o.Phentsize
	}
	if is32 {
		order.PutUint16(buf[42:], phentsize)
		order.PutUint16(buf[44:], 2)
	} else {
		order.PutUint16(buf[54:], phentsize)
		order.PutUint16(buf[56:], 2)
	}

	dynType := elf.PT_DYNAMIC
	if o.NoDynamic {
		dynType = elf.PT_NOTE
	}
	progs := []struct {
		kind   elf.ProgType
		offset int
		size   int
	}{
		{kind: elf.PT_LOAD, offset: 0, size: size},
		{kind: dynType, offset: y.DynamicOffset, size: y.DynamicSize},
	}
	for i, p := range progs {
		var (
			base = y.Phoff + i*int(phentsizeOf(is32))
			w    = y.WordSize
		)
		order.PutUint32(buf[base:], uint32(p.kind))
		putWord(base+w, uint64(p.offset))
		putWord(base+2*w, uint64(p.offset))
		putWord(base+3*w, uint64(p.offset))
		putWord(base+4*w, uint64(p.size))
		putWord(base+5*w, uint64(p.size))
		if is32 {
			order.PutUint32(buf[base+24:], uint32(elf.PF_R|elf.PF_W))
		} else {
			order.PutUint32(buf[base+4:], uint32(elf.PF_R|elf.PF_W))
		}
	}

	for i, e := range o.Entries {
		off := o.EntryOffset(i)
		putWord(off, e.Tag)
		putWord(off+y.WordSize, e.Value)
	}
	for i := y.DynamicOffset + y.DynamicSize; i < size; i++ {
		buf[i] = Padding
	}
	return buf
}

// phentsizeOf is the real program header size, independent of Phentsize.
func phentsizeOf(is32 bool) uint16 {
	if is32 {
		return 32
	}
	return 56
}

// Write stores the object as name under dir and returns its path.
func (o Object) Write(t testing.TB, dir, name string) string {
	t.Helper()
	file := filepath.Join(dir, name)
	if err := os.WriteFile(file, o.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", file, err)
	}
	return file
}
