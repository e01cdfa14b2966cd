package mkimg

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/gokrazy/mkimg/fat"
)

// Extract returns the contents of the file at the slash-separated path target
// within the volume in img. The directory part of target is resolved in one
// step, relative to the root directory.
func Extract(img io.ReaderAt, target string) ([]byte, error) {
	if !utf8.ValidString(target) {
		return nil, fmt.Errorf("%w: %q contains invalid UTF-8 characters", ErrInvalidPath, target)
	}
	segments := strings.Split(strings.TrimPrefix(target, "/"), "/")
	name := segments[len(segments)-1]
	if name == "" {
		return nil, fmt.Errorf("%w: %q does not name a file", ErrValidation, target)
	}
	var dirPath []string
	for _, segment := range segments[:len(segments)-1] {
		if segment != "" {
			dirPath = append(dirPath, segment)
		}
	}

	fsys, err := fat.Open(img)
	if err != nil {
		return nil, err
	}
	dir := fsys.Root()
	if len(dirPath) > 0 {
		if dir, err = fsys.OpenDir(strings.Join(dirPath, "/")); err != nil {
			return nil, err
		}
	}
	f, err := dir.OpenFile(name)
	if err != nil {
		return nil, err
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", target, err)
	}
	return b, nil
}
