package manifest

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

type Library struct {
	Path   string `toml:"path"`
	Output string `toml:"output"`
}

// Target is the path the patched copy of the library would have.
func (b Library) Target() string {
	return filepath.Join(b.Output, filepath.Base(b.Path))
}

type Manifest struct {
	Output    string    `toml:"output"`
	Parallel  int       `toml:"parallel"`
	Libraries []Library `toml:"library"`
}

// Open loads the manifest in file. Relative paths are taken from the
// directory of file.
func Open(file string) (*Manifest, error) {
	r, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	m, err := decode(r)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	m.resolve(filepath.Dir(file))
	if err := m.validate(); err != nil {
		return nil, errors.Wrap(err, file)
	}
	return m, nil
}

// Load decodes a manifest from r. Relative paths are kept as they are.
func Load(r io.Reader) (*Manifest, error) {
	m, err := decode(r)
	if err != nil {
		return nil, err
	}
	m.resolve("")
	return m, m.validate()
}

func decode(r io.Reader) (*Manifest, error) {
	var m Manifest
	md, err := toml.NewDecoder(r).Decode(&m)
	if err != nil {
		return nil, err
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		var list []string
		for _, k := range keys {
			list = append(list, k.String())
		}
		return nil, errors.Errorf("unknown option(s): %s", strings.Join(list, ", "))
	}
	return &m, nil
}

func (m *Manifest) resolve(base string) {
	if m.Parallel <= 0 {
		m.Parallel = runtime.NumCPU()
	}
	m.Output = expand(base, m.Output)
	for i := range m.Libraries {
		lib := &m.Libraries[i]
		lib.Path = expand(base, lib.Path)
		if lib.Output == "" {
			lib.Output = m.Output
		} else {
			lib.Output = expand(base, lib.Output)
		}
	}
}

func (m *Manifest) validate() error {
	seen := make(map[string]string)
	for i, lib := range m.Libraries {
		if lib.Path == "" {
			return errors.Errorf("library #%d: missing path", i+1)
		}
		if lib.Output == "" {
			return errors.Errorf("%s: no output directory", lib.Path)
		}
		target := lib.Target()
		if other, ok := seen[target]; ok {
			return errors.Errorf("%s and %s would both be written to %s", other, lib.Path, target)
		}
		seen[target] = lib.Path
	}
	return nil
}

func expand(base, str string) string {
	if str == "" {
		return str
	}
	str = os.ExpandEnv(str)
	if base != "" && !filepath.IsAbs(str) {
		str = filepath.Join(base, str)
	}
	return filepath.Clean(str)
}
