package symbolic

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/midbel/symbolic/dynamic"
	"github.com/midbel/symbolic/internal/elftest"
)

var (
	needed = elftest.Pair{Tag: uint64(elf.DT_NEEDED), Value: 0x99}
	null   = elftest.Pair{}
)

func flags(v uint64) elftest.Pair {
	return elftest.Pair{Tag: uint64(elf.DT_FLAGS), Value: v}
}

func word(obj elftest.Object, data []byte, off int) uint64 {
	var order binary.ByteOrder = binary.LittleEndian
	if obj.BigEndian {
		order = binary.BigEndian
	}
	if obj.Layout().WordSize == 4 {
		return uint64(order.Uint32(data[off:]))
	}
	return order.Uint64(data[off:])
}

func diff(a, b []byte) []int {
	var ix []int
	for i := range a {
		if a[i] != b[i] {
			ix = append(ix, i)
		}
	}
	return ix
}

func TestPatchFlags(t *testing.T) {
	for _, class := range []elf.Class{elf.ELFCLASS32, elf.ELFCLASS64} {
		t.Run(class.String(), func(t *testing.T) {
			var (
				obj = elftest.Object{
					Class:   class,
					Entries: []elftest.Pair{needed, flags(0x1), null, null},
					Trailer: 32,
				}
				lib = obj.Write(t, t.TempDir(), "libfoo.so")
				dir = t.TempDir()
			)
			res, err := Patch(lib, dir)
			require.NoError(t, err)
			require.Equal(t, Patched, res.Status)
			require.Equal(t, filepath.Join(dir, "libfoo.so"), res.Path)
			require.Equal(t, dynamic.SetFlag, res.State.Plan.Strategy)

			before, err := os.ReadFile(lib)
			require.NoError(t, err)
			after, err := os.ReadFile(res.Path)
			require.NoError(t, err)
			require.Len(t, after, len(before))

			var (
				size  = obj.Layout().WordSize
				value = obj.EntryOffset(1) + size
			)
			for _, i := range diff(before, after) {
				require.GreaterOrEqual(t, i, value)
				require.Less(t, i, value+size)
			}
			require.Equal(t, uint64(0x3), word(obj, after, value))
			require.Equal(t, uint64(elf.DT_FLAGS), word(obj, after, obj.EntryOffset(1)))

			report, err := Inspect(res.Path)
			require.NoError(t, err)
			require.True(t, report.Compliant())
			require.Equal(t, dynamic.HasFlag, report.Reason)
		})
	}
}

func TestPatchSlot(t *testing.T) {
	for _, class := range []elf.Class{elf.ELFCLASS32, elf.ELFCLASS64} {
		for _, big := range []bool{false, true} {
			obj := elftest.Object{
				Class:     class,
				BigEndian: big,
				Entries:   []elftest.Pair{needed, null, null},
			}
			name := class.String()
			if big {
				name += "/msb"
			}
			t.Run(name, func(t *testing.T) {
				var (
					lib = obj.Write(t, t.TempDir(), "libbar.so")
					dir = t.TempDir()
				)
				res, err := Patch(lib, dir)
				require.NoError(t, err)
				require.Equal(t, Patched, res.Status)
				require.Equal(t, dynamic.ReuseSlot, res.State.Plan.Strategy)

				before, err := os.ReadFile(lib)
				require.NoError(t, err)
				after, err := os.ReadFile(res.Path)
				require.NoError(t, err)

				var (
					size = obj.Layout().WordSize
					tag  = obj.EntryOffset(1)
				)
				for _, i := range diff(before, after) {
					require.GreaterOrEqual(t, i, tag)
					require.Less(t, i, tag+size)
				}
				require.Equal(t, uint64(elf.DT_SYMBOLIC), word(obj, after, tag))
				require.Equal(t, uint64(0), word(obj, after, tag+size))

				report, err := Inspect(res.Path)
				require.NoError(t, err)
				require.Equal(t, dynamic.HasSymbolic, report.Reason)
			})
		}
	}
}

func TestPatchCompliant(t *testing.T) {
	for _, entries := range [][]elftest.Pair{
		{needed, {Tag: uint64(elf.DT_SYMBOLIC)}, null},
		{needed, flags(0x2), null},
	} {
		var (
			lib = elftest.Object{Entries: entries}.Write(t, t.TempDir(), "libok.so")
			dir = t.TempDir()
		)
		res, err := Patch(lib, dir)
		require.NoError(t, err)
		require.Equal(t, Compliant, res.Status)
		require.Equal(t, lib, res.Path)

		files, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Empty(t, files)
	}
}

func TestPatchTwice(t *testing.T) {
	var (
		obj = elftest.Object{Entries: []elftest.Pair{needed, null, null}}
		lib = obj.Write(t, t.TempDir(), "libtwice.so")
		dir = t.TempDir()
	)
	first, err := Patch(lib, dir)
	require.NoError(t, err)
	require.Equal(t, Patched, first.Status)

	again, err := Patch(lib, dir)
	require.NoError(t, err)
	require.Equal(t, Cached, again.Status)
	require.Equal(t, first.Path, again.Path)

	res, err := Patch(first.Path, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, Compliant, res.Status)
	require.Equal(t, first.Path, res.Path)
}

func TestPatchErrors(t *testing.T) {
	dir := t.TempDir()
	src := t.TempDir()

	short := filepath.Join(src, "libshort.so")
	require.NoError(t, os.WriteFile(short, []byte("\x7fELF\x02"), 0o644))
	_, err := Patch(short, dir)
	require.ErrorIs(t, err, dynamic.ErrTruncated)

	packed := elftest.Object{Entries: []elftest.Pair{needed, needed, null}}.Write(t, src, "libpacked.so")
	_, err = Patch(packed, dir)
	require.ErrorIs(t, err, dynamic.ErrNoPatchLocation)

	static := elftest.Object{NoDynamic: true}.Write(t, src, "libstatic.so")
	_, err = Patch(static, dir)
	require.ErrorIs(t, err, dynamic.ErrNoDynamic)

	_, err = Patch(filepath.Join(src, "libmissing.so"), dir)
	require.ErrorIs(t, err, os.ErrNotExist)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestPatchLogs(t *testing.T) {
	var (
		buf bytes.Buffer
		p   = New(WithLogger(log.NewLogfmtLogger(&buf)))
		lib = elftest.Object{Entries: []elftest.Pair{needed, flags(0), null}}.Write(t, t.TempDir(), "liblog.so")
	)
	res, err := p.Patch(lib, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, Patched, res.Status)
	require.Contains(t, buf.String(), `msg="patched copy written"`)
	require.Contains(t, buf.String(), "strategy=set-flag")
}

func TestList(t *testing.T) {
	obj := elftest.Object{
		Class:   elf.ELFCLASS32,
		Entries: []elftest.Pair{needed, flags(1), null, null},
	}
	lib := obj.Write(t, t.TempDir(), "liblist.so")
	list, err := List(lib)
	require.NoError(t, err)
	require.Equal(t, dynamic.Class32, list.Class)
	require.Equal(t, int64(obj.Layout().DynamicOffset), list.Segment.Offset)
	require.Len(t, list.Entries, 3)
	require.Equal(t, "DT_NEEDED", list.Entries[0].String())
}

func TestTarget(t *testing.T) {
	require.Equal(t, filepath.Join("out", "libc++_shared.so"), Target("/data/app/lib/arm64/libc++_shared.so", "out"))
	require.Equal(t, filepath.Join("out", "libz.so"), Target("libz.so", "out"))
}
