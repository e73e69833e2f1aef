package dynamic

import (
	"debug/elf"
	"io"

	"github.com/pkg/errors"
)

const (
	tagNull      = uint64(elf.DT_NULL)
	tagSymbolic  = uint64(elf.DT_SYMBOLIC)
	tagFlags     = uint64(elf.DT_FLAGS)
	flagSymbolic = uint64(elf.DF_SYMBOLIC)
)

type Strategy uint8

const (
	// SetFlag ors DF_SYMBOLIC into the value of the DT_FLAGS entry.
	SetFlag Strategy = iota + 1
	// ReuseSlot turns a spare DT_NULL entry into DT_SYMBOLIC.
	ReuseSlot
)

func (s Strategy) String() string {
	switch s {
	case SetFlag:
		return "set-flag"
	case ReuseSlot:
		return "reuse-slot"
	default:
		return "none"
	}
}

type Reason uint8

const (
	NeedsPatch Reason = iota
	HasSymbolic
	HasFlag
)

func (r Reason) String() string {
	switch r {
	case HasSymbolic:
		return "DT_SYMBOLIC"
	case HasFlag:
		return "DF_SYMBOLIC"
	default:
		return "not symbolic"
	}
}

// Plan is the single word to write so that the object becomes symbolic.
type Plan struct {
	Layout

	Strategy Strategy
	Offset   int64
	Value    uint64
}

func (p Plan) Bytes() []byte {
	buf := make([]byte, p.WordSize())
	p.PutWord(buf, p.Value)
	return buf
}

type State struct {
	Class   Class
	Segment Segment
	Reason  Reason
	Plan    *Plan
}

func (s State) Compliant() bool {
	return s.Reason != NeedsPatch
}

// Scan inspects the dynamic segment of the ELF object in r. size is the
// length of the underlying file and bounds the segment.
func Scan(r io.ReaderAt, size int64) (State, error) {
	hdr, seg, buf, err := load(r, size)
	if err != nil {
		return State{}, err
	}
	entries, err := decodeEntries(hdr, seg, buf)
	if err != nil {
		return State{}, err
	}
	s := scanner{Layout: hdr.Layout}
	for i := range entries {
		if s.visit(entries[i], entries[i+1:]) {
			break
		}
	}
	state := State{
		Class:   hdr.Class(),
		Segment: seg,
		Reason:  s.reason,
	}
	if state.Compliant() {
		return state, nil
	}
	if state.Plan = s.plan(); state.Plan == nil {
		return state, errors.Wrapf(ErrNoPatchLocation, "%d entries at %#x", len(entries), seg.Offset)
	}
	return state, nil
}

// scanner accumulates what is seen in the live part of the table. A
// DT_SYMBOLIC entry or a DT_FLAGS with DF_SYMBOLIC ends the scan. A DT_FLAGS
// entry is always preferred to a spare DT_NULL slot.
type scanner struct {
	Layout

	reason Reason
	flags  *Plan
	slot   *Plan
}

func (s *scanner) visit(e Entry, rest []Entry) bool {
	switch e.Tag {
	case tagSymbolic:
		s.reason = HasSymbolic
		return true
	case tagFlags:
		if e.Value&flagSymbolic != 0 {
			s.reason = HasFlag
			return true
		}
		s.flags = &Plan{
			Layout:   s.Layout,
			Strategy: SetFlag,
			Offset:   e.Offset + int64(s.WordSize()),
			Value:    e.Value | flagSymbolic,
		}
	case tagNull:
		// Only reuse a terminator followed by another one, so the table
		// stays terminated once the slot holds DT_SYMBOLIC.
		if len(rest) > 0 && rest[0].Tag == tagNull {
			s.slot = &Plan{
				Layout:   s.Layout,
				Strategy: ReuseSlot,
				Offset:   e.Offset,
				Value:    tagSymbolic,
			}
		}
		return true
	}
	return false
}

func (s *scanner) plan() *Plan {
	if s.flags != nil {
		return s.flags
	}
	return s.slot
}

func load(r io.ReaderAt, size int64) (Header, Segment, []byte, error) {
	hdr, err := ReadHeader(r)
	if err != nil {
		return hdr, Segment{}, nil, err
	}
	seg, err := FindSegment(r, hdr)
	if err != nil {
		return hdr, seg, nil, err
	}
	if seg.End() > size {
		return hdr, seg, nil, errors.Wrapf(ErrTruncated, "dynamic segment %#x-%#x beyond %d bytes", seg.Offset, seg.End(), size)
	}
	buf := make([]byte, seg.Size)
	if err := readAt(r, seg.Offset, buf); err != nil {
		return hdr, seg, nil, errors.Wrap(err, "dynamic segment")
	}
	return hdr, seg, buf, nil
}
