package mkimg

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/gokrazy/mkimg/fat"
	"github.com/spf13/afero"
)

// WriteOptions configures Write.
type WriteOptions struct {
	// Size is the length the image is truncated to before formatting.
	Size int64

	// Variant is the FAT width of the new volume.
	Variant fat.Variant

	VolumeLabel string
	OEMName     string

	// Reporter, if non-nil, receives an EventWritten per file.
	Reporter Reporter
}

// Write formats img as a fresh volume and copies the files named by mappings
// (read through src) into it. Mappings of directories only matter as path
// components of the files below them and are skipped. The first error aborts
// the whole operation, leaving a partially populated volume behind.
func Write(img Image, src afero.Fs, opts WriteOptions, mappings []Mapping) error {
	if err := img.Truncate(opts.Size); err != nil {
		return fmt.Errorf("resizing image: %v", err)
	}
	if err := fat.Format(img, opts.Size, fat.FormatOptions{
		Variant:     opts.Variant,
		VolumeLabel: opts.VolumeLabel,
		OEMName:     opts.OEMName,
	}); err != nil {
		return fmt.Errorf("formatting %v volume: %v", opts.Variant, err)
	}
	fsys, err := fat.Mount(img)
	if err != nil {
		return err
	}
	for _, m := range mappings {
		if err := writeMapping(fsys, src, m, opts.Reporter); err != nil {
			return err
		}
	}
	if err := fsys.Unmount(); err != nil {
		return fmt.Errorf("unmounting: %v", err)
	}
	return nil
}

func writeMapping(fsys *fat.FileSystem, src afero.Fs, m Mapping, r Reporter) error {
	if !utf8.ValidString(m.Internal) {
		return fmt.Errorf("%w: %q contains invalid UTF-8 characters", ErrInvalidPath, m.Internal)
	}
	fi, err := src.Stat(m.External)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return nil
	}

	segments := strings.Split(m.Internal, "/")
	dir := fsys.Root()
	for _, segment := range segments[:len(segments)-1] {
		if segment == "" {
			continue
		}
		if dir, err = openOrCreateDir(dir, segment); err != nil {
			return fmt.Errorf("%s: %w", m.Internal, err)
		}
	}
	name := segments[len(segments)-1]
	if name == "" {
		return nil
	}

	b, err := afero.ReadFile(src, m.External)
	if err != nil {
		return err
	}
	f, err := dir.CreateFile(name)
	if err != nil {
		return fmt.Errorf("%s: %w", m.Internal, err)
	}
	if _, err := f.Write(b); err != nil {
		return fmt.Errorf("writing %s: %w", m.Internal, err)
	}
	if err := f.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", m.Internal, err)
	}
	report(r, Event{
		Kind:     EventWritten,
		External: m.External,
		Internal: m.Internal,
		Size:     int64(len(b)),
	})
	return nil
}

func openOrCreateDir(dir *fat.Dir, name string) (*fat.Dir, error) {
	sub, err := dir.OpenDir(name)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return dir.CreateDir(name)
}
