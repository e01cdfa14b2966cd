// Package imagefile opens the files disk images are written to and read from.
//
// Files backed by a file descriptor are locked for the lifetime of the handle
// (exclusively when opened for writing), so that two processes never work on
// the same image at the same time. Closing the file releases the lock.
package imagefile

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// ErrLocked is returned when another process holds a lock on the image.
var ErrLocked = errors.New("image is in use by another process")

type fder interface {
	Fd() uintptr
}

// Create creates (or truncates) the image at path for reading and writing.
// An existing image is only truncated once the lock is held.
func Create(fsys afero.Fs, path string) (afero.File, error) {
	f, err := open(fsys, path, os.O_RDWR|os.O_CREATE, true)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// Open opens the existing image at path for reading and writing.
func Open(fsys afero.Fs, path string) (afero.File, error) {
	return open(fsys, path, os.O_RDWR, true)
}

// OpenReadOnly opens the existing image at path for reading.
func OpenReadOnly(fsys afero.Fs, path string) (afero.File, error) {
	return open(fsys, path, os.O_RDONLY, false)
}

func open(fsys afero.Fs, path string, flag int, exclusive bool) (afero.File, error) {
	f, err := fsys.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, err
	}
	if fd, ok := f.(fder); ok {
		if err := lock(fd.Fd(), exclusive); err != nil {
			f.Close()
			return nil, fmt.Errorf("locking %s: %w", path, err)
		}
	}
	return f, nil
}
