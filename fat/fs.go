package fat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// bootSector holds the BIOS parameter block fields common to FAT16 and
// FAT32, followed by the FAT32 extension (garbage on FAT16 volumes).
type bootSector struct {
	JumpBoot          [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntries       uint16
	TotalSectors16    uint16
	Media             uint8
	FATSize16         uint16
	SectorsPerTrack   uint16
	NumberOfHeads     uint16
	HiddenSectors     uint32
	TotalSectors32    uint32

	FATSize32        uint32
	ExtFlags         uint16
	Version          uint16
	RootCluster      uint32
	FSInfoSector     uint16
	BackupBootSector uint16
}

// FileSystem is a mounted FAT volume.
type FileSystem struct {
	dev      Device
	readOnly bool
	geo      geometry

	rootCluster  uint32
	fsInfoSector uint16

	// fat holds one entry per cluster, pointing to the next cluster of the
	// chain or marking its end. It is written back by Unmount.
	fat      []uint32
	dirty    bool
	nextFree uint32

	now func() time.Time
}

// Mount opens the FAT volume at the start of dev for reading and writing.
// Changes to the allocation table are kept in memory until Unmount.
func Mount(dev Device) (*FileSystem, error) {
	return mount(dev, false)
}

// Open opens the FAT volume in r read-only.
func Open(r io.ReaderAt) (*FileSystem, error) {
	return mount(readOnlyDevice{r}, true)
}

func mount(dev Device, readOnly bool) (*FileSystem, error) {
	sector := make([]byte, sectorSize)
	if err := readAt(dev, sector, 0); err != nil {
		return nil, fmt.Errorf("reading boot sector: %v", err)
	}
	if sector[510] != 0x55 || sector[511] != 0xAA {
		return nil, fmt.Errorf("%w: missing boot sector signature", ErrNotFAT)
	}
	var bs bootSector
	if err := binary.Read(bytes.NewReader(sector), binary.LittleEndian, &bs); err != nil {
		return nil, err
	}
	if bs.BytesPerSector != sectorSize {
		return nil, fmt.Errorf("%w: unsupported sector size %d", ErrNotFAT, bs.BytesPerSector)
	}
	spc := bs.SectorsPerCluster
	if spc == 0 || spc&(spc-1) != 0 {
		return nil, fmt.Errorf("%w: invalid sectors per cluster %d", ErrNotFAT, spc)
	}
	if bs.ReservedSectors == 0 || bs.NumFATs == 0 {
		return nil, fmt.Errorf("%w: invalid reserved sector or FAT count", ErrNotFAT)
	}

	fsys := &FileSystem{
		dev:      dev,
		readOnly: readOnly,
		geo: geometry{
			variant:           FAT16,
			totalSectors:      uint32(bs.TotalSectors16),
			sectorsPerCluster: spc,
			reservedSectors:   bs.ReservedSectors,
			numFATs:           bs.NumFATs,
			rootEntries:       bs.RootEntries,
			fatSectors:        uint32(bs.FATSize16),
		},
		nextFree: unusableClusters,
		now:      time.Now,
	}
	g := &fsys.geo
	if g.totalSectors == 0 {
		g.totalSectors = bs.TotalSectors32
	}
	if g.fatSectors == 0 {
		g.variant = FAT32
		g.fatSectors = bs.FATSize32
		fsys.rootCluster = bs.RootCluster
		fsys.fsInfoSector = bs.FSInfoSector
	}
	if g.fatSectors == 0 || g.totalSectors <= g.dataStart() {
		return nil, fmt.Errorf("%w: inconsistent geometry", ErrNotFAT)
	}

	g.clusters = (g.totalSectors - g.dataStart()) / uint32(spc)
	// The declared sector count can exceed what the FAT addresses.
	capacity := g.fatSectors*sectorSize/uint32(g.variant.entrySize()) - unusableClusters
	if g.clusters > capacity {
		g.clusters = capacity
	}
	if g.variant == FAT16 && g.clusters > maxFAT16Clusters {
		g.clusters = maxFAT16Clusters
	}
	if g.variant == FAT32 && (fsys.rootCluster < unusableClusters || fsys.rootCluster >= g.clusters+unusableClusters) {
		return nil, fmt.Errorf("%w: root cluster %d out of range", ErrNotFAT, fsys.rootCluster)
	}

	if err := fsys.readFAT(); err != nil {
		return nil, err
	}
	if info, err := fsys.readFSInfo(); err == nil && info != nil {
		if info.NextFree >= unusableClusters && info.NextFree < uint32(len(fsys.fat)) {
			fsys.nextFree = info.NextFree
		}
	}
	return fsys, nil
}

func (fsys *FileSystem) readFAT() error {
	g := &fsys.geo
	size := g.variant.entrySize()
	buf := make([]byte, (int(g.clusters)+unusableClusters)*size)
	if err := readAt(fsys.dev, buf, g.fatOffset(0)); err != nil {
		return fmt.Errorf("reading FAT: %v", err)
	}
	fsys.fat = make([]uint32, int(g.clusters)+unusableClusters)
	for idx := range fsys.fat {
		if g.variant == FAT32 {
			fsys.fat[idx] = binary.LittleEndian.Uint32(buf[idx*4:]) & 0x0FFFFFFF
		} else {
			fsys.fat[idx] = uint32(binary.LittleEndian.Uint16(buf[idx*2:]))
		}
	}
	return nil
}

// readFSInfo returns nil if the volume carries no valid FSInfo sector.
func (fsys *FileSystem) readFSInfo() (*fsInfo, error) {
	if fsys.geo.variant != FAT32 || fsys.fsInfoSector == 0 || fsys.fsInfoSector >= fsys.geo.reservedSectors {
		return nil, nil
	}
	sector := make([]byte, sectorSize)
	if err := readAt(fsys.dev, sector, int64(fsys.fsInfoSector)*sectorSize); err != nil {
		return nil, err
	}
	var info fsInfo
	if err := binary.Read(bytes.NewReader(sector), binary.LittleEndian, &info); err != nil {
		return nil, err
	}
	if !info.valid() {
		return nil, nil
	}
	return &info, nil
}

// Variant returns the FAT width of the volume.
func (fsys *FileSystem) Variant() Variant { return fsys.geo.variant }

// TotalSectors returns the sector count declared in the boot sector.
func (fsys *FileSystem) TotalSectors() uint32 { return fsys.geo.totalSectors }

// ClusterSize returns the allocation unit in bytes.
func (fsys *FileSystem) ClusterSize() int { return fsys.geo.clusterSize() }

// FreeClusters counts the unallocated clusters in the allocation table.
func (fsys *FileSystem) FreeClusters() uint32 {
	var free uint32
	for _, entry := range fsys.fat[unusableClusters:] {
		if entry == 0 {
			free++
		}
	}
	return free
}

// allocate marks a free cluster as the end of a chain and, if prev is not
// zero, appends it to the chain ending in prev.
func (fsys *FileSystem) allocate(prev uint32) (uint32, error) {
	if fsys.readOnly {
		return 0, ErrReadOnly
	}
	n := uint32(len(fsys.fat))
	start := fsys.nextFree
	if start < unusableClusters || start >= n {
		start = unusableClusters
	}
	for i := uint32(0); i < n-unusableClusters; i++ {
		cluster := start + i
		if cluster >= n {
			cluster -= n - unusableClusters
		}
		if fsys.fat[cluster] != 0 {
			continue
		}
		fsys.fat[cluster] = fsys.geo.variant.endOfChain()
		if prev != 0 {
			fsys.fat[prev] = cluster
		}
		fsys.nextFree = cluster + 1
		fsys.dirty = true
		return cluster, nil
	}
	return 0, ErrNoSpace
}

// chain returns the clusters of the chain starting at first, in order.
func (fsys *FileSystem) chain(first uint32) ([]uint32, error) {
	if first == 0 {
		return nil, nil
	}
	var clusters []uint32
	for cluster := first; ; {
		if cluster < unusableClusters || cluster >= uint32(len(fsys.fat)) {
			return nil, fmt.Errorf("cluster chain at %d: cluster %d out of range", first, cluster)
		}
		if len(clusters) >= len(fsys.fat) {
			return nil, fmt.Errorf("cluster chain at %d: loop detected", first)
		}
		clusters = append(clusters, cluster)
		next := fsys.fat[cluster]
		if fsys.geo.variant.isEndOfChain(next) {
			return clusters, nil
		}
		if next == 0 || fsys.geo.variant.isBad(next) {
			return nil, fmt.Errorf("cluster chain at %d: broken after cluster %d", first, cluster)
		}
		cluster = next
	}
}

func (fsys *FileSystem) release(first uint32) error {
	clusters, err := fsys.chain(first)
	if err != nil {
		return err
	}
	for _, cluster := range clusters {
		fsys.fat[cluster] = 0
		if cluster < fsys.nextFree {
			fsys.nextFree = cluster
		}
	}
	if len(clusters) > 0 {
		fsys.dirty = true
	}
	return nil
}

func (fsys *FileSystem) zeroCluster(cluster uint32) error {
	return zero(fsys.dev, fsys.geo.clusterOffset(cluster), int64(fsys.geo.clusterSize()))
}

// Root returns the root directory.
func (fsys *FileSystem) Root() *Dir {
	if fsys.geo.variant == FAT32 {
		return &Dir{fsys: fsys, cluster: fsys.rootCluster}
	}
	return &Dir{fsys: fsys}
}

// OpenDir resolves a slash-separated path relative to the root directory.
// Empty components are ignored, so "" and "/" name the root itself.
func (fsys *FileSystem) OpenDir(path string) (*Dir, error) {
	dir := fsys.Root()
	for _, component := range strings.Split(path, "/") {
		if component == "" {
			continue
		}
		next, err := dir.openDir(component)
		if err != nil {
			return nil, &os.PathError{Op: "open", Path: path, Err: err}
		}
		dir = next
	}
	return dir, nil
}

// Unmount writes the allocation table to every FAT copy and refreshes the
// FSInfo summary. The FileSystem must not be used after calling Unmount.
func (fsys *FileSystem) Unmount() error {
	if fsys.readOnly || !fsys.dirty {
		return nil
	}
	if err := fsys.writeFAT(); err != nil {
		return fmt.Errorf("writing FAT: %v", err)
	}
	info, err := fsys.readFSInfo()
	if err != nil {
		return fmt.Errorf("reading FSInfo: %v", err)
	}
	if info != nil {
		info.FreeClusters = fsys.FreeClusters()
		info.NextFree = fsys.nextFree
		if _, err := fsys.dev.WriteAt(info.marshal(), int64(fsys.fsInfoSector)*sectorSize); err != nil {
			return fmt.Errorf("writing FSInfo: %v", err)
		}
	}
	fsys.dirty = false
	return nil
}
