// Package symbolic makes ELF shared objects behave as if they were linked
// with -Bsymbolic, by patching their dynamic table in a copy of the library.
//
// Android's loader has no RTLD_DEEPBIND: a library patched this way resolves
// its own symbols first, which gives the same result.
package symbolic

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/midbel/symbolic/dynamic"
	"github.com/midbel/symbolic/rw"
)

type Status uint8

const (
	// Compliant libraries are left as they are.
	Compliant Status = iota
	// Cached means a patched copy was already present in the output
	// directory.
	Cached
	// Patched means a new copy has been written.
	Patched
)

func (s Status) String() string {
	switch s {
	case Compliant:
		return "compliant"
	case Cached:
		return "cached"
	case Patched:
		return "patched"
	default:
		return "unknown"
	}
}

// Result tells which file should be loaded in place of the library given to
// Patch.
type Result struct {
	Status Status
	Path   string
	State  dynamic.State
}

type Report struct {
	File string
	Size int64
	dynamic.State
}

type Listing struct {
	File    string
	Size    int64
	Class   dynamic.Class
	Segment dynamic.Segment
	Entries []dynamic.Entry
}

type Option func(*Patcher)

func WithLogger(logger log.Logger) Option {
	return func(p *Patcher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

type Patcher struct {
	logger log.Logger
}

func New(opts ...Option) *Patcher {
	p := Patcher{
		logger: log.NewNopLogger(),
	}
	for _, o := range opts {
		o(&p)
	}
	return &p
}

var std = New()

func Patch(lib, dir string) (Result, error) {
	return std.Patch(lib, dir)
}

func Inspect(lib string) (Report, error) {
	return std.Inspect(lib)
}

func List(lib string) (Listing, error) {
	return std.List(lib)
}

// Target is the path of the patched copy of lib in dir.
func Target(lib, dir string) string {
	return filepath.Join(dir, filepath.Base(lib))
}

// Patch returns the library to load instead of lib: lib itself when it is
// already symbolic, or its patched copy in dir. An existing copy in dir is
// trusted and returned as is.
func (p *Patcher) Patch(lib, dir string) (Result, error) {
	target := Target(lib, dir)
	if _, err := os.Stat(target); err == nil {
		level.Debug(p.logger).Log("msg", "patched copy already present", "lib", lib, "target", target)
		return Result{Status: Cached, Path: target}, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Result{}, errors.Wrap(err, target)
	}

	report, err := p.Inspect(lib)
	if err != nil {
		return Result{}, err
	}
	if report.Compliant() {
		return Result{Status: Compliant, Path: lib, State: report.State}, nil
	}
	plan := report.Plan
	if err := rw.Patch(lib, target, plan.Offset, plan.Bytes()); err != nil {
		level.Error(p.logger).Log("msg", "fail to write patched copy", "lib", lib, "target", target, "err", err)
		return Result{}, errors.Wrap(err, lib)
	}
	level.Debug(p.logger).Log(
		"msg", "patched copy written",
		"lib", lib,
		"target", target,
		"strategy", plan.Strategy,
		"offset", fmt.Sprintf("%#x", plan.Offset),
		"value", fmt.Sprintf("%#x", plan.Value),
	)
	return Result{Status: Patched, Path: target, State: report.State}, nil
}

func (p *Patcher) Inspect(lib string) (Report, error) {
	r, err := os.Open(lib)
	if err != nil {
		return Report{}, errors.Wrap(err, "open library")
	}
	defer r.Close()

	info, err := r.Stat()
	if err != nil {
		return Report{}, errors.Wrap(err, lib)
	}
	state, err := dynamic.Scan(r, info.Size())
	if err != nil {
		return Report{}, errors.Wrap(err, lib)
	}
	level.Debug(p.logger).Log(
		"msg", "library inspected",
		"lib", lib,
		"class", state.Class,
		"dynamic", fmt.Sprintf("%#x", state.Segment.Offset),
		"symbolic", state.Reason,
	)
	report := Report{
		File:  lib,
		Size:  info.Size(),
		State: state,
	}
	return report, nil
}

func (p *Patcher) List(lib string) (Listing, error) {
	r, err := os.Open(lib)
	if err != nil {
		return Listing{}, errors.Wrap(err, "open library")
	}
	defer r.Close()

	info, err := r.Stat()
	if err != nil {
		return Listing{}, errors.Wrap(err, lib)
	}
	hdr, seg, entries, err := dynamic.ReadEntries(r, info.Size())
	if err != nil {
		return Listing{}, errors.Wrap(err, lib)
	}
	list := Listing{
		File:    lib,
		Size:    info.Size(),
		Class:   hdr.Class(),
		Segment: seg,
		Entries: entries,
	}
	return list, nil
}
