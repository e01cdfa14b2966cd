package fat

import (
	"errors"
	"fmt"
	"io"
)

const (
	sectorSize   = 512
	dirEntrySize = 32

	// unusableClusters is the number of entries at the start of every FAT
	// which do not describe data clusters: the first two entries have special
	// meaning (copy of the media descriptor and file system state).
	unusableClusters = 2

	// hardDisk is the media descriptor for a hard disk (as opposed to floppy).
	hardDisk = uint8(0xF8)

	fsInfoSector     = 1
	backupBootSector = 6
	fat32RootCluster = 2

	// minFAT16Clusters is the smallest cluster count which readers do not
	// mistake for a FAT12 volume.
	minFAT16Clusters = 4085
	maxFAT16Clusters = 0xFFF4
	maxFAT32Clusters = 0x0FFFFFF4
)

const (
	attrReadOnly  = 0x01
	attrHidden    = 0x02
	attrSystem    = 0x04
	attrVolumeID  = 0x08
	attrDirectory = 0x10
	attrArchive   = 0x20
	attrLongName  = attrReadOnly | attrHidden | attrSystem | attrVolumeID

	deletedEntry = 0xE5
	lastLongName = 0x40
)

// Variant selects the width of the file allocation table entries.
type Variant int

const (
	FAT16 Variant = 16
	FAT32 Variant = 32
)

func (v Variant) String() string {
	switch v {
	case FAT16:
		return "FAT16"
	case FAT32:
		return "FAT32"
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

func (v Variant) entrySize() int {
	if v == FAT32 {
		return 4
	}
	return 2
}

// endOfChain marks the end of a cluster chain in the FAT.
func (v Variant) endOfChain() uint32 {
	if v == FAT32 {
		return 0x0FFFFFFF
	}
	return 0xFFFF
}

func (v Variant) isEndOfChain(entry uint32) bool {
	if v == FAT32 {
		return entry >= 0x0FFFFFF8
	}
	return entry >= 0xFFF8
}

func (v Variant) isBad(entry uint32) bool {
	if v == FAT32 {
		return entry == 0x0FFFFFF7
	}
	return entry == 0xFFF7
}

// Device is the byte region a file system lives in, typically an image file.
type Device interface {
	io.ReaderAt
	io.WriterAt
}

var (
	ErrNotFAT      = errors.New("not a FAT file system")
	ErrNoSpace     = errors.New("no space left on volume")
	ErrReadOnly    = errors.New("file system is read-only")
	ErrInvalidName = errors.New("invalid file name")
	ErrNotDir      = errors.New("not a directory")
	ErrIsDir       = errors.New("is a directory")

	// ErrFileTooLarge is returned when a write would grow a file past 4 GiB.
	ErrFileTooLarge = errors.New("file too large")
)

// readAt fills p from r starting at off. Bytes past the end of r read as
// zero, which keeps images readable after they have been truncated behind
// their declared size.
func readAt(r io.ReaderAt, p []byte, off int64) error {
	n, err := r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err != nil && err != io.EOF {
		return err
	}
	clear(p[n:])
	return nil
}

type readOnlyDevice struct {
	io.ReaderAt
}

func (readOnlyDevice) WriteAt(p []byte, off int64) (int, error) {
	return 0, ErrReadOnly
}
