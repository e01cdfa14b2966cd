package mkimg

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	sectorSize = 512

	// totalSectorsOffset is the offset of the 32-bit total sector count in
	// the boot sector.
	totalSectorsOffset = 0x20

	// freeClustersOffset is the offset of the free cluster count in the
	// FSInfo sector, which follows the boot sector.
	freeClustersOffset = 0x1E8

	unknownFreeClusters = 0xFFFFFFFF

	// minShrunkSize is the smallest length Deceive truncates an image to.
	minShrunkSize = 512 * 1024
)

var fsInfoSignature = []byte("RRaA")

// Deception records what Deceive changed.
type Deception struct {
	OriginalSectors uint32
	DeclaredSectors uint32

	// FSInfo is false if the second sector carries no FSInfo signature, in
	// which case the free cluster counts are zero.
	FSInfo               bool
	OriginalFreeClusters uint32
	DeclaredFreeClusters uint32

	OriginalLength int64
	Length         int64
}

// Deceive inflates the sector count in the boot sector by half and triples
// the FSInfo free cluster count (unless it is unknown), then truncates img to
// the smallest multiple of 512 bytes which keeps every non-zero byte, but not
// below 512 KiB.
//
// The image is read and both changes are planned before anything is written,
// so a failed read leaves img untouched.
func Deceive(img Image, r Reporter) (*Deception, error) {
	fi, err := img.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() < 2*sectorSize {
		return nil, fmt.Errorf("%w: image of %d bytes has no room for a boot and FSInfo sector", ErrValidation, fi.Size())
	}
	content := make([]byte, fi.Size())
	if _, err := img.ReadAt(content, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading image: %v", err)
	}

	d := &Deception{OriginalLength: fi.Size()}
	header := content[:2*sectorSize]
	boot, info := header[:sectorSize], header[sectorSize:]

	d.OriginalSectors = binary.LittleEndian.Uint32(boot[totalSectorsOffset:])
	d.DeclaredSectors = d.OriginalSectors + d.OriginalSectors/2
	binary.LittleEndian.PutUint32(boot[totalSectorsOffset:], d.DeclaredSectors)

	if string(info[:len(fsInfoSignature)]) == string(fsInfoSignature) {
		d.FSInfo = true
		d.OriginalFreeClusters = binary.LittleEndian.Uint32(info[freeClustersOffset:])
		d.DeclaredFreeClusters = d.OriginalFreeClusters
		if d.OriginalFreeClusters != unknownFreeClusters {
			d.DeclaredFreeClusters = d.OriginalFreeClusters * 3
		}
		binary.LittleEndian.PutUint32(info[freeClustersOffset:], d.DeclaredFreeClusters)
	}
	d.Length = shrunkLength(content)

	if _, err := img.WriteAt(header, 0); err != nil {
		return nil, fmt.Errorf("writing header: %v", err)
	}
	report(r, Event{Kind: EventDeceived, Deception: d})
	if err := img.Truncate(d.Length); err != nil {
		return nil, fmt.Errorf("shrinking image: %v", err)
	}
	if err := img.Sync(); err != nil {
		return nil, err
	}
	report(r, Event{Kind: EventShrunk, Size: d.Length, Deception: d})
	return d, nil
}

// shrunkLength returns the offset of the last non-zero byte at or beyond
// minShrunkSize, rounded up to the next sector, or minShrunkSize if there is
// none.
func shrunkLength(content []byte) int64 {
	for i := len(content) - 1; i >= minShrunkSize; i-- {
		if content[i] != 0 {
			return int64((i/sectorSize + 1) * sectorSize)
		}
	}
	return minShrunkSize
}
