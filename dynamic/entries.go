package dynamic

import (
	"io"
)

// Entry is one (tag, value) pair of the dynamic table. Offset is the file
// offset of its tag.
type Entry struct {
	Offset int64
	Tag    uint64
	Value  uint64
}

func (e Entry) String() string {
	return TagString(e.Tag)
}

// ReadEntries returns the live entries of the dynamic table, up to and
// including the first DT_NULL.
func ReadEntries(r io.ReaderAt, size int64) (Header, Segment, []Entry, error) {
	hdr, seg, buf, err := load(r, size)
	if err != nil {
		return hdr, seg, nil, err
	}
	entries, err := decodeEntries(hdr, seg, buf)
	if err != nil {
		return hdr, seg, nil, err
	}
	for i, e := range entries {
		if e.Tag == tagNull {
			entries = entries[:i+1]
			break
		}
	}
	return hdr, seg, entries, nil
}

// decodeEntries decodes every complete pair of buf. Trailing bytes too short
// for a full pair are ignored.
func decodeEntries(y Layout, seg Segment, buf []byte) ([]Entry, error) {
	var (
		step    = y.EntrySize()
		word    = y.WordSize()
		entries = make([]Entry, 0, len(buf)/step)
	)
	for off := 0; off+step <= len(buf); off += step {
		tag, err := y.Word(buf, off)
		if err != nil {
			return nil, err
		}
		value, err := y.Word(buf, off+word)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			Offset: seg.Offset + int64(off),
			Tag:    tag,
			Value:  value,
		})
	}
	return entries, nil
}
