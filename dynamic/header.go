package dynamic

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Header holds the fields of the ELF header needed to walk the program
// header table.
type Header struct {
	Layout

	Phoff     int64
	Phentsize uint16
	Phnum     uint16
}

func ReadHeader(r io.ReaderAt) (Header, error) {
	var (
		hdr Header
		buf = make([]byte, headerSize)
	)
	if err := readAt(r, 0, buf); err != nil {
		return hdr, err
	}
	if !bytes.Equal(buf[:len(magic)], magic) {
		return hdr, errors.Wrapf(ErrMagic, "%x", buf[:len(magic)])
	}
	class := Class(buf[classIndex])
	if !class.Valid() {
		return hdr, errors.Wrapf(ErrClass, "class %d", class)
	}
	var order binary.ByteOrder = binary.LittleEndian
	if elf.Data(buf[dataIndex]) == elf.ELFDATA2MSB {
		order = binary.BigEndian
	}
	y := layout{class: class, order: order}
	hdr.Layout = y

	phoff, err := y.Word(buf, y.phoffIndex())
	if err != nil {
		return hdr, err
	}
	if hdr.Phoff, err = toOffset(phoff); err != nil {
		return hdr, err
	}
	if hdr.Phentsize, err = y.Half(buf, y.phentsizeIndex()); err != nil {
		return hdr, err
	}
	if hdr.Phnum, err = y.Half(buf, y.phnumIndex()); err != nil {
		return hdr, err
	}
	if int(hdr.Phentsize) != y.ProgramHeaderSize() {
		return hdr, errors.Wrapf(ErrProgramHeaderSize, "%s: got %d, want %d", class, hdr.Phentsize, y.ProgramHeaderSize())
	}
	return hdr, nil
}

// Segment is the file location of the PT_DYNAMIC segment.
type Segment struct {
	Offset int64
	Size   int64
}

func (s Segment) End() int64 {
	return s.Offset + s.Size
}

// FindSegment returns the first PT_DYNAMIC program header. Later ones are
// ignored.
func FindSegment(r io.ReaderAt, hdr Header) (Segment, error) {
	var (
		seg Segment
		buf = make([]byte, hdr.Phentsize)
	)
	for i := 0; i < int(hdr.Phnum); i++ {
		off := hdr.Phoff + int64(i)*int64(hdr.Phentsize)
		if err := readAt(r, off, buf); err != nil {
			return seg, errors.Wrapf(err, "program header %d", i)
		}
		if hdr.ByteOrder().Uint32(buf) != uint32(elf.PT_DYNAMIC) {
			continue
		}
		offset, err := hdr.Word(buf, segmentOffsetIndex(hdr))
		if err != nil {
			return seg, err
		}
		size, err := hdr.Word(buf, segmentSizeIndex(hdr))
		if err != nil {
			return seg, err
		}
		if seg.Offset, err = toOffset(offset); err != nil {
			return seg, err
		}
		if seg.Size, err = toOffset(size); err != nil {
			return seg, err
		}
		if seg.Offset > math.MaxInt64-seg.Size {
			return seg, errors.Wrapf(ErrTruncated, "dynamic segment at %#x overflows", seg.Offset)
		}
		return seg, nil
	}
	return seg, ErrNoDynamic
}

func readAt(r io.ReaderAt, off int64, buf []byte) error {
	rs := io.NewSectionReader(r, off, int64(len(buf)))
	if _, err := io.ReadFull(rs, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return errors.Wrapf(ErrTruncated, "%d bytes at %#x", len(buf), off)
		}
		return errors.Wrapf(err, "read %d bytes at %#x", len(buf), off)
	}
	return nil
}

func toOffset(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, errors.Wrapf(ErrTruncated, "offset %#x", v)
	}
	return int64(v), nil
}
