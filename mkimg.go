// Package mkimg builds FAT disk images from host files, lists and extracts
// their contents, and can fabricate deceptive images whose header claims more
// capacity than the image file holds.
package mkimg

import (
	"io"
	"os"

	"github.com/gokrazy/mkimg/fat"
	"github.com/spf13/afero"
)

const (
	// PlainSize is the size of plain (FAT16) images.
	PlainSize = 6 * 1024 * 1024

	// DeceptiveSize is the size of deceptive (FAT32) images before they are
	// shrunk.
	DeceptiveSize = 32 * 1024 * 1024
)

// Image is the backing store of a volume. Both afero.File and *os.File
// satisfy it.
type Image interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
	Stat() (os.FileInfo, error)
	Sync() error
}

// Create writes a plain FAT16 image of PlainSize bytes. opts.Size and
// opts.Variant are ignored.
func Create(img Image, src afero.Fs, mappings []Mapping, opts WriteOptions) error {
	opts.Size = PlainSize
	opts.Variant = fat.FAT16
	return Write(img, src, opts, mappings)
}

// CreateDeceptive writes a FAT32 image of DeceptiveSize bytes and applies
// Deceive to it. opts.Size and opts.Variant are ignored.
func CreateDeceptive(img Image, src afero.Fs, mappings []Mapping, opts WriteOptions) (*Deception, error) {
	opts.Size = DeceptiveSize
	opts.Variant = fat.FAT32
	if err := Write(img, src, opts, mappings); err != nil {
		return nil, err
	}
	return Deceive(img, opts.Reporter)
}
