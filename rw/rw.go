// Package rw writes patched copies of files. The source is never modified:
// bytes are copied to a temporary file next to the destination, patched there
// and the result is linked to its final name only once complete.
package rw

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

var (
	ErrExists    = errors.New("rw: destination already exists")
	ErrCopy      = errors.New("rw: copy failed")
	ErrShortCopy = errors.Wrap(ErrCopy, "short copy")
	ErrWrite     = errors.New("rw: write failed")
)

// Patch creates dst as a copy of src where the bytes at off are replaced by
// word. dst must not exist.
func Patch(src, dst string, off int64, word []byte) error {
	if _, err := os.Lstat(dst); err == nil {
		return errors.Wrap(ErrExists, dst)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "stat destination")
	}
	r, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "open source")
	}
	defer r.Close()

	info, err := r.Stat()
	if err != nil {
		return errors.Wrap(err, "stat source")
	}
	if off < 0 || off > info.Size()-int64(len(word)) {
		return errors.Wrapf(ErrWrite, "%d bytes at %#x outside %d bytes", len(word), off, info.Size())
	}

	w, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return errors.Wrap(err, "create temporary file")
	}
	defer os.Remove(w.Name())

	if err := patch(w, r, info, off, word); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return failure(ErrWrite, err)
	}
	return promote(w.Name(), dst, info.Mode().Perm())
}

// failure keeps both kind and its cause reachable with errors.Is.
func failure(kind, cause error) error {
	return fmt.Errorf("%w: %w", kind, cause)
}

func patch(w *os.File, r io.Reader, info fs.FileInfo, off int64, word []byte) error {
	n, err := io.Copy(w, r)
	if err != nil {
		return failure(ErrCopy, err)
	}
	if n != info.Size() {
		return errors.Wrapf(ErrShortCopy, "%d/%d bytes", n, info.Size())
	}
	if n, err := w.WriteAt(word, off); err != nil || n != len(word) {
		if err == nil {
			err = io.ErrShortWrite
		}
		return errors.Wrapf(failure(ErrWrite, err), "%d bytes at %#x", len(word), off)
	}
	if err := w.Chmod(info.Mode().Perm()); err != nil {
		return errors.Wrap(err, "chmod")
	}
	if err := w.Sync(); err != nil {
		return failure(ErrWrite, err)
	}
	return nil
}

var link = os.Link

// promote gives tmp its final name. Linking fails when dst already exists,
// so two writers racing for the same destination can not clobber each
// other. Filesystems without hard links get an exclusive copy instead.
func promote(tmp, dst string, perm fs.FileMode) error {
	err := link(tmp, dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrExist):
		return errors.Wrap(ErrExists, dst)
	case errors.Is(err, fs.ErrPermission), errors.Is(err, stderrors.ErrUnsupported):
		return duplicate(tmp, dst, perm)
	default:
		return errors.Wrap(err, "link destination")
	}
}

func duplicate(tmp, dst string, perm fs.FileMode) error {
	r, err := os.Open(tmp)
	if err != nil {
		return errors.Wrap(err, "open temporary file")
	}
	defer r.Close()

	w, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return errors.Wrap(ErrExists, dst)
		}
		return errors.Wrap(err, "create destination")
	}
	if _, err = io.Copy(w, r); err == nil {
		err = w.Sync()
	}
	if e := w.Close(); err == nil {
		err = e
	}
	if err != nil {
		os.Remove(dst)
		return failure(ErrCopy, err)
	}
	return nil
}
