package fat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// FormatOptions describes the volume Format lays out.
type FormatOptions struct {
	// Variant is the FAT width to use. It is never derived from the size.
	Variant Variant

	// VolumeLabel is stored upper-cased in the boot sector, truncated to 11
	// characters. Defaults to "NO NAME".
	VolumeLabel string

	// OEMName is stored in the boot sector, truncated to 8 characters.
	// Defaults to "mkimg".
	OEMName string

	// VolumeID is the volume serial number. Defaults to a value derived
	// from the current time.
	VolumeID uint32
}

type geometry struct {
	variant           Variant
	totalSectors      uint32
	sectorsPerCluster uint8
	reservedSectors   uint16
	numFATs           uint8
	rootEntries       uint16
	fatSectors        uint32
	clusters          uint32
}

func (g *geometry) rootDirSectors() uint32 {
	return (uint32(g.rootEntries)*dirEntrySize + sectorSize - 1) / sectorSize
}

func (g *geometry) fatOffset(n int) int64 {
	return (int64(g.reservedSectors) + int64(n)*int64(g.fatSectors)) * sectorSize
}

func (g *geometry) rootDirStart() uint32 {
	return uint32(g.reservedSectors) + uint32(g.numFATs)*g.fatSectors
}

func (g *geometry) dataStart() uint32 {
	return g.rootDirStart() + g.rootDirSectors()
}

func (g *geometry) clusterSize() int {
	return int(g.sectorsPerCluster) * sectorSize
}

func (g *geometry) clusterOffset(cluster uint32) int64 {
	sector := int64(g.dataStart()) + int64(cluster-unusableClusters)*int64(g.sectorsPerCluster)
	return sector * sectorSize
}

// sizeFAT finds the smallest FAT which can address every cluster left over
// once the FAT itself is accounted for.
func (g *geometry) sizeFAT() error {
	overhead := uint64(g.reservedSectors) + uint64(g.rootDirSectors())
	g.fatSectors = 1
	for {
		used := overhead + uint64(g.numFATs)*uint64(g.fatSectors)
		if used >= uint64(g.totalSectors) {
			return fmt.Errorf("%d sectors are too few for a %v volume", g.totalSectors, g.variant)
		}
		clusters := (uint64(g.totalSectors) - used) / uint64(g.sectorsPerCluster)
		need := ((clusters+unusableClusters)*uint64(g.variant.entrySize()) + sectorSize - 1) / sectorSize
		if need <= uint64(g.fatSectors) {
			g.clusters = uint32(clusters)
			return nil
		}
		g.fatSectors = uint32(need)
	}
}

func computeGeometry(variant Variant, totalSectors uint32) (*geometry, error) {
	g := &geometry{
		variant:      variant,
		totalSectors: totalSectors,
		numFATs:      2,
	}
	var maxClusters uint32
	switch variant {
	case FAT16:
		g.reservedSectors = 1
		g.rootEntries = 512
		maxClusters = maxFAT16Clusters
	case FAT32:
		g.reservedSectors = 32
		maxClusters = maxFAT32Clusters
	default:
		return nil, fmt.Errorf("unsupported FAT variant %v", variant)
	}
	for spc := 1; spc <= 128; spc *= 2 {
		g.sectorsPerCluster = uint8(spc)
		if err := g.sizeFAT(); err != nil {
			return nil, err
		}
		if g.clusters > maxClusters {
			continue
		}
		if variant == FAT16 && g.clusters < minFAT16Clusters {
			return nil, fmt.Errorf("%d sectors are too few for a FAT16 volume (%d clusters)", totalSectors, g.clusters)
		}
		return g, nil
	}
	return nil, fmt.Errorf("%d sectors are too many for a %v volume", totalSectors, variant)
}

func padded(s string, n int) []byte {
	b := bytes.Repeat([]byte{' '}, n)
	copy(b, s)
	return b
}

func (g *geometry) writeBootSector(w *bytes.Buffer, opts FormatOptions) error {
	var (
		jumpCode            = [3]byte{0xEB, 0x3C, 0x90}
		oem                 [8]byte
		volumeLabel         [11]byte
		fileSystemType      [8]byte
		bootSectorSignature = [2]byte{0x55, 0xAA}
		fatSectors16        = uint16(g.fatSectors)
	)
	copy(oem[:], padded(opts.OEMName, len(oem)))
	copy(volumeLabel[:], padded(strings.ToUpper(opts.VolumeLabel), len(volumeLabel)))
	copy(fileSystemType[:], padded(g.variant.String(), len(fileSystemType)))
	if g.variant == FAT32 {
		jumpCode = [3]byte{0xEB, 0x58, 0x90}
		fatSectors16 = 0
	}
	fields := []interface{}{
		jumpCode,            // jump code: intel 80x86 jump instruction
		oem,                 // OEM
		uint16(sectorSize),  // in bytes
		g.sectorsPerCluster, // i.e. each FAT entry covers sectorsPerCluster*sectorSize bytes
		g.reservedSectors,   // reserved sectors
		g.numFATs,           // copies of the FAT
		g.rootEntries,       // root directory entries (0 for FAT32)
		uint16(0),           // 0 = use uint32 number of sectors following later
		hardDisk,            // media descriptor
		fatSectors16,        // number of sectors per FAT (0 for FAT32)
		uint16(32),          // (only for bootcode) number of sectors per track
		uint16(64),          // (only for bootcode) number of heads
		uint32(0),           // no hidden sectors
		g.totalSectors,      // total number of sectors
	}
	if g.variant == FAT32 {
		fields = append(fields,
			g.fatSectors,             // number of sectors per FAT
			uint16(0),                // flags: FAT is mirrored
			uint16(0),                // version 0.0
			uint32(fat32RootCluster), // first cluster of the root directory
			uint16(fsInfoSector),     // FSInfo sector
			uint16(backupBootSector), // backup boot sector
			[12]byte{},               // reserved
		)
	}
	fields = append(fields,
		uint8(0x80),   // (only for bootcode) drive number
		uint8(0),      // reserved
		uint8(0x29),   // magic value: boot signature
		opts.VolumeID, // volume serial number
		volumeLabel,
		fileSystemType,
	)
	if g.variant == FAT32 {
		fields = append(fields, [420]byte{})
	} else {
		fields = append(fields, [448]byte{})
	}
	fields = append(fields, bootSectorSignature)
	for _, v := range fields {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if w.Len() != sectorSize {
		return fmt.Errorf("BUG: boot sector is %d bytes", w.Len())
	}
	return nil
}

// fsInfo is the FAT32 sector caching the free space summary.
type fsInfo struct {
	LeadSignature   [4]byte
	Reserved1       [480]byte
	StructSignature [4]byte
	FreeClusters    uint32
	NextFree        uint32
	Reserved2       [12]byte
	TrailSignature  uint32
}

var (
	fsInfoLeadSignature   = [4]byte{'R', 'R', 'a', 'A'}
	fsInfoStructSignature = [4]byte{'r', 'r', 'A', 'a'}
)

const (
	fsInfoTrailSignature = 0xAA550000

	// unknownFreeClusters means the free cluster count was never computed.
	unknownFreeClusters = 0xFFFFFFFF
)

func (fi *fsInfo) valid() bool {
	return fi.LeadSignature == fsInfoLeadSignature &&
		fi.StructSignature == fsInfoStructSignature
}

func (fi *fsInfo) marshal() []byte {
	var buf bytes.Buffer
	// bytes.Buffer never fails
	binary.Write(&buf, binary.LittleEndian, fi)
	return buf.Bytes()
}

func (fsys *FileSystem) writeFAT() error {
	g := &fsys.geo
	buf := make([]byte, len(fsys.fat)*g.variant.entrySize())
	for idx, entry := range fsys.fat {
		if g.variant == FAT32 {
			binary.LittleEndian.PutUint32(buf[idx*4:], entry&0x0FFFFFFF)
		} else {
			binary.LittleEndian.PutUint16(buf[idx*2:], uint16(entry))
		}
	}
	for n := 0; n < int(g.numFATs); n++ {
		if _, err := fsys.dev.WriteAt(buf, g.fatOffset(n)); err != nil {
			return err
		}
	}
	return nil
}

func zero(dev Device, off, length int64) error {
	chunk := make([]byte, 64*1024)
	for length > 0 {
		n := int64(len(chunk))
		if length < n {
			n = length
		}
		if _, err := dev.WriteAt(chunk[:n], off); err != nil {
			return err
		}
		off += n
		length -= n
	}
	return nil
}

// Format lays out an empty FAT volume of size bytes at the start of dev.
// The data area is left untouched; everything up to and including the root
// directory is overwritten.
func Format(dev Device, size int64, opts FormatOptions) error {
	if size/sectorSize > 0xFFFFFFFF {
		return fmt.Errorf("volume size %d exceeds the FAT limit", size)
	}
	g, err := computeGeometry(opts.Variant, uint32(size/sectorSize))
	if err != nil {
		return err
	}
	if opts.VolumeLabel == "" {
		opts.VolumeLabel = "NO NAME"
	}
	if opts.OEMName == "" {
		opts.OEMName = "mkimg"
	}
	if opts.VolumeID == 0 {
		opts.VolumeID = uint32(time.Now().UnixNano())
	}

	metadata := int64(g.dataStart()) * sectorSize
	if g.variant == FAT32 {
		metadata += int64(g.clusterSize()) // root directory cluster
	}
	if err := zero(dev, 0, metadata); err != nil {
		return err
	}

	var boot bytes.Buffer
	if err := g.writeBootSector(&boot, opts); err != nil {
		return err
	}
	if _, err := dev.WriteAt(boot.Bytes(), 0); err != nil {
		return err
	}

	fsys := &FileSystem{
		dev: dev,
		geo: *g,
		fat: make([]uint32, g.clusters+unusableClusters),
	}
	fsys.fat[0] = 0x0FFFFF00 | uint32(hardDisk)
	fsys.fat[1] = g.variant.endOfChain()
	if g.variant == FAT32 {
		fsys.fat[0] &= 0x0FFFFFFF
		fsys.fat[fat32RootCluster] = g.variant.endOfChain()
	} else {
		fsys.fat[0] &= 0xFFFF
	}
	if err := fsys.writeFAT(); err != nil {
		return err
	}

	if g.variant == FAT32 {
		info := fsInfo{
			LeadSignature:   fsInfoLeadSignature,
			StructSignature: fsInfoStructSignature,
			FreeClusters:    g.clusters - 1, // root directory
			NextFree:        fat32RootCluster + 1,
			TrailSignature:  fsInfoTrailSignature,
		}
		if _, err := dev.WriteAt(info.marshal(), fsInfoSector*sectorSize); err != nil {
			return err
		}
		if _, err := dev.WriteAt(boot.Bytes(), backupBootSector*sectorSize); err != nil {
			return err
		}
		if _, err := dev.WriteAt(info.marshal(), (backupBootSector+fsInfoSector)*sectorSize); err != nil {
			return err
		}
	}
	return nil
}
