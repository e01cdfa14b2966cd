package mkimg

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"
)

// Mapping places the file or directory at External (a host path) at Internal
// (a slash-separated path relative to the image root).
type Mapping struct {
	External string
	Internal string
}

// Scan walks the directory root and returns one Mapping per entry, in lexical
// order. Internal paths are relative to the parent of root, so that they all
// start with the name of root, unless excludeRoot is set, in which case the
// contents of root end up at the top of the image.
func Scan(fsys afero.Fs, root string, excludeRoot bool, r Reporter) ([]Mapping, error) {
	fi, err := fsys.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: root %s must be a directory", ErrValidation, root)
	}
	base, err := canonicalize(fsys, root)
	if err != nil {
		return nil, err
	}
	if !excludeRoot {
		base = filepath.Dir(base)
	}

	var mappings []Mapping
	err = afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTraversal, err)
		}
		canon, err := canonicalize(fsys, path)
		if err != nil {
			return err
		}
		rel, err := stripPrefix(base, canon)
		if err != nil {
			return err
		}
		internal := filepath.ToSlash(rel)
		if !utf8.ValidString(path) || !utf8.ValidString(internal) {
			return fmt.Errorf("%w: %q contains invalid UTF-8 characters", ErrInvalidPath, path)
		}
		report(r, Event{
			Kind:     EventScanned,
			External: path,
			Internal: internal,
			Size:     info.Size(),
		})
		if internal == "" {
			return nil // the subtraction base itself
		}
		mappings = append(mappings, Mapping{
			External: path,
			Internal: internal,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mappings, nil
}

// Pairs turns an explicit external, internal, external, internal, ... list
// into mappings.
func Pairs(args []string) ([]Mapping, error) {
	if len(args) == 0 || len(args)%2 != 0 {
		return nil, fmt.Errorf("%w: expected pairs of external and internal paths, got %d arguments", ErrValidation, len(args))
	}
	mappings := make([]Mapping, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		m := Mapping{External: args[i], Internal: args[i+1]}
		if m.Internal == "" {
			return nil, fmt.Errorf("%w: empty internal path for %s", ErrValidation, m.External)
		}
		if !utf8.ValidString(m.External) || !utf8.ValidString(m.Internal) {
			return nil, fmt.Errorf("%w: %q -> %q contains invalid UTF-8 characters", ErrInvalidPath, m.External, m.Internal)
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

// canonicalize returns the absolute path of path with all symlinks resolved
// when fsys is the host file system. Other file systems have neither a
// working directory nor symlinks, so their paths are anchored at the root.
func canonicalize(fsys afero.Fs, path string) (string, error) {
	if _, ok := fsys.(*afero.OsFs); !ok {
		if _, err := fsys.Stat(path); err != nil {
			return "", &fs.PathError{Op: "canonicalize", Path: path, Err: err}
		}
		return filepath.Join(string(filepath.Separator), path), nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &fs.PathError{Op: "canonicalize", Path: path, Err: err}
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", &fs.PathError{Op: "canonicalize", Path: path, Err: err}
	}
	return resolved, nil
}

// stripPrefix returns path relative to base, component-wise.
func stripPrefix(base, path string) (string, error) {
	if path == base {
		return "", nil
	}
	prefix := base
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if !strings.HasPrefix(path, prefix) {
		return "", &fs.PathError{
			Op:   "strip_prefix",
			Path: path,
			Err:  fmt.Errorf("not below %s", base),
		}
	}
	return strings.TrimPrefix(path, prefix), nil
}
