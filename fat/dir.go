package fat

import (
	"bytes"
	"encoding/binary"
	"os"
	"strings"
	"time"
)

// direntry is the on-disk layout of a short (8.3) directory entry.
type direntry struct {
	Name            [11]byte
	Attribute       byte
	NTReserved      byte
	CreateTimeTenth byte
	CreateTime      uint16
	CreateDate      uint16
	LastAccessDate  uint16
	FirstClusterHI  uint16
	WriteTime       uint16
	WriteDate       uint16
	FirstClusterLO  uint16
	FileSize        uint32
}

// lfnEntry is the on-disk layout of a VFAT long file name entry.
type lfnEntry struct {
	Sequence  byte
	First     [5]uint16
	Attribute byte
	EntryType byte
	Checksum  byte
	Second    [6]uint16
	Zero      [2]byte
	Third     [2]uint16
}

func marshalEntry(v interface{}) []byte {
	var buf bytes.Buffer
	// bytes.Buffer never fails
	binary.Write(&buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func unmarshalEntry(raw []byte, v interface{}) {
	// raw always holds dirEntrySize bytes
	binary.Read(bytes.NewReader(raw), binary.LittleEndian, v)
}

func (de *direntry) cluster() uint32 {
	return uint32(de.FirstClusterHI)<<16 | uint32(de.FirstClusterLO)
}

func (de *direntry) setCluster(cluster uint32) {
	de.FirstClusterHI = uint16(cluster >> 16)
	de.FirstClusterLO = uint16(cluster)
}

func (de *direntry) touch(t time.Time) {
	de.WriteTime = marshalTime(t)
	de.WriteDate = marshalDate(t)
	de.LastAccessDate = de.WriteDate
}

func newDirentry(short [11]byte, attr byte, cluster uint32, t time.Time) direntry {
	de := direntry{
		Name:       short,
		Attribute:  attr,
		CreateTime: marshalTime(t),
		CreateDate: marshalDate(t),
	}
	de.setCluster(cluster)
	de.touch(t)
	return de
}

// Entry describes one directory entry.
type Entry struct {
	Name    string
	Size    int64
	IsDir   bool
	ModTime time.Time

	short   [11]byte
	cluster uint32
	slot    int
}

// ShortName returns the 8.3 alias of the entry.
func (e *Entry) ShortName() string {
	return shortString(e.short)
}

// Dir is a handle on a directory. It holds no state besides the location of
// the directory, so handles may be discarded and re-opened at will.
type Dir struct {
	fsys *FileSystem

	// cluster is the first cluster of the directory, or 0 for the fixed
	// size root directory region of FAT16 volumes.
	cluster uint32
}

// dirData is the raw content of a directory together with the device
// offsets it was read from.
type dirData struct {
	buf   []byte
	bases []int64
	chunk int
}

func (dd *dirData) slots() int {
	return len(dd.buf) / dirEntrySize
}

func (dd *dirData) slot(idx int) []byte {
	return dd.buf[idx*dirEntrySize : (idx+1)*dirEntrySize]
}

func (dd *dirData) offset(idx int) int64 {
	pos := idx * dirEntrySize
	return dd.bases[pos/dd.chunk] + int64(pos%dd.chunk)
}

func (d *Dir) load() (*dirData, error) {
	g := &d.fsys.geo
	if d.cluster == 0 {
		size := int(g.rootEntries) * dirEntrySize
		dd := &dirData{
			buf:   make([]byte, size),
			bases: []int64{int64(g.rootDirStart()) * sectorSize},
			chunk: size,
		}
		if size == 0 {
			dd.chunk = dirEntrySize
			return dd, nil
		}
		if err := readAt(d.fsys.dev, dd.buf, dd.bases[0]); err != nil {
			return nil, err
		}
		return dd, nil
	}
	clusters, err := d.fsys.chain(d.cluster)
	if err != nil {
		return nil, err
	}
	cs := g.clusterSize()
	dd := &dirData{
		buf:   make([]byte, len(clusters)*cs),
		chunk: cs,
	}
	for idx, cluster := range clusters {
		off := g.clusterOffset(cluster)
		dd.bases = append(dd.bases, off)
		if err := readAt(d.fsys.dev, dd.buf[idx*cs:(idx+1)*cs], off); err != nil {
			return nil, err
		}
	}
	return dd, nil
}

func (dd *dirData) entries() []Entry {
	var (
		result    []Entry
		fragments [][]uint16
		sum       byte
	)
	for idx := 0; idx < dd.slots(); idx++ {
		raw := dd.slot(idx)
		if raw[0] == 0x00 {
			break // end of directory
		}
		if raw[0] == deletedEntry {
			fragments = nil
			continue
		}
		if raw[11]&0x3F == attrLongName {
			var lfn lfnEntry
			unmarshalEntry(raw, &lfn)
			if lfn.Sequence&lastLongName != 0 {
				fragments = make([][]uint16, lfn.Sequence&0x1F)
				sum = lfn.Checksum
			}
			n := int(lfn.Sequence&0x1F) - 1
			if n < 0 || n >= len(fragments) || lfn.Checksum != sum {
				fragments = nil
				continue
			}
			fragments[n] = lfn.chars()
			continue
		}
		var de direntry
		unmarshalEntry(raw, &de)
		if de.Attribute&attrVolumeID != 0 {
			fragments = nil
			continue
		}
		e := Entry{
			Name:    displayShort(de.Name, de.NTReserved),
			Size:    int64(de.FileSize),
			IsDir:   de.Attribute&attrDirectory != 0,
			ModTime: unmarshalTimeDate(de.WriteTime, de.WriteDate),
			short:   de.Name,
			cluster: de.cluster(),
			slot:    idx,
		}
		if fragments != nil && sum == checksum(de.Name) {
			if name := decodeLongName(fragments); name != "" {
				e.Name = name
			}
		}
		if e.IsDir {
			e.Size = 0
		}
		result = append(result, e)
		fragments = nil
	}
	return result
}

func (dd *dirData) find(name string) (Entry, bool) {
	for _, e := range dd.entries() {
		if strings.EqualFold(e.Name, name) || strings.EqualFold(shortString(e.short), name) {
			return e, true
		}
	}
	return Entry{}, false
}

// Entries returns the entries of the directory in on-disk order, including
// the "." and ".." entries of subdirectories.
func (d *Dir) Entries() ([]Entry, error) {
	dd, err := d.load()
	if err != nil {
		return nil, err
	}
	return dd.entries(), nil
}

func (d *Dir) openDir(name string) (*Dir, error) {
	dd, err := d.load()
	if err != nil {
		return nil, err
	}
	e, ok := dd.find(name)
	if !ok {
		return nil, os.ErrNotExist
	}
	if !e.IsDir {
		return nil, ErrNotDir
	}
	if e.cluster == 0 {
		// ".." entries of top-level directories point to the root as 0
		return d.fsys.Root(), nil
	}
	return &Dir{fsys: d.fsys, cluster: e.cluster}, nil
}

// OpenDir opens the subdirectory name. The returned error satisfies
// errors.Is(err, os.ErrNotExist) if there is no such entry.
func (d *Dir) OpenDir(name string) (*Dir, error) {
	sub, err := d.openDir(name)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}
	return sub, nil
}

// add writes the entries for name and returns the re-read directory along
// with the slot of the short entry.
func (d *Dir) add(name string, attr byte, cluster uint32) (*dirData, int, error) {
	if d.fsys.readOnly {
		return nil, 0, ErrReadOnly
	}
	if !validName(name) {
		return nil, 0, ErrInvalidName
	}
	dd, err := d.load()
	if err != nil {
		return nil, 0, err
	}
	if _, ok := dd.find(name); ok {
		return nil, 0, os.ErrExist
	}

	var slots [][]byte
	short, ok := exactShort(name)
	if !ok || d.shortTaken(dd, short) {
		taken := make(map[[11]byte]bool)
		for _, e := range dd.entries() {
			taken[e.short] = true
		}
		if short, ok = generateShort(name, taken); !ok {
			return nil, 0, ErrNoSpace
		}
		lfns := longNameEntries(name, checksum(short))
		for idx := range lfns {
			slots = append(slots, marshalEntry(&lfns[idx]))
		}
	}
	de := newDirentry(short, attr, cluster, d.fsys.now())
	slots = append(slots, marshalEntry(&de))

	start, err := d.reserve(dd, len(slots))
	if err != nil {
		return nil, 0, err
	}
	for idx, raw := range slots {
		if _, err := d.fsys.dev.WriteAt(raw, dd.offset(start+idx)); err != nil {
			return nil, 0, err
		}
		copy(dd.slot(start+idx), raw)
	}
	return dd, start + len(slots) - 1, nil
}

func (d *Dir) shortTaken(dd *dirData, short [11]byte) bool {
	for _, e := range dd.entries() {
		if e.short == short {
			return true
		}
	}
	return false
}

// reserve finds n consecutive unused slots, growing the directory by a
// cluster at a time if required.
func (d *Dir) reserve(dd *dirData, n int) (int, error) {
	for {
		run := 0
		for idx := 0; idx < dd.slots(); idx++ {
			if b := dd.slot(idx)[0]; b == 0x00 || b == deletedEntry {
				run++
				if run == n {
					return idx - n + 1, nil
				}
				continue
			}
			run = 0
		}
		if d.cluster == 0 {
			return 0, ErrNoSpace // fixed size root directory
		}
		if err := d.grow(dd); err != nil {
			return 0, err
		}
	}
}

func (d *Dir) grow(dd *dirData) error {
	clusters, err := d.fsys.chain(d.cluster)
	if err != nil {
		return err
	}
	cluster, err := d.fsys.allocate(clusters[len(clusters)-1])
	if err != nil {
		return err
	}
	if err := d.fsys.zeroCluster(cluster); err != nil {
		return err
	}
	dd.buf = append(dd.buf, make([]byte, d.fsys.geo.clusterSize())...)
	dd.bases = append(dd.bases, d.fsys.geo.clusterOffset(cluster))
	return nil
}

// CreateDir creates the subdirectory name and returns a handle on it.
func (d *Dir) CreateDir(name string) (*Dir, error) {
	if d.fsys.readOnly {
		return nil, &os.PathError{Op: "mkdir", Path: name, Err: ErrReadOnly}
	}
	cluster, err := d.fsys.allocate(0)
	if err != nil {
		return nil, &os.PathError{Op: "mkdir", Path: name, Err: err}
	}
	if err := d.fsys.zeroCluster(cluster); err != nil {
		return nil, err
	}
	now := d.fsys.now()
	parent := d.cluster
	if d.fsys.geo.variant == FAT32 && parent == d.fsys.rootCluster {
		parent = 0
	}
	dot := newDirentry(packShort(".", ""), attrDirectory, cluster, now)
	dotdot := newDirentry(packShort("..", ""), attrDirectory, parent, now)
	off := d.fsys.geo.clusterOffset(cluster)
	if _, err := d.fsys.dev.WriteAt(marshalEntry(&dot), off); err != nil {
		return nil, err
	}
	if _, err := d.fsys.dev.WriteAt(marshalEntry(&dotdot), off+dirEntrySize); err != nil {
		return nil, err
	}
	if _, _, err := d.add(name, attrDirectory, cluster); err != nil {
		if rerr := d.fsys.release(cluster); rerr != nil {
			return nil, rerr
		}
		return nil, &os.PathError{Op: "mkdir", Path: name, Err: err}
	}
	return &Dir{fsys: d.fsys, cluster: cluster}, nil
}

// CreateFile creates the file name, truncating it if it already exists.
func (d *Dir) CreateFile(name string) (*File, error) {
	if d.fsys.readOnly {
		return nil, &os.PathError{Op: "create", Path: name, Err: ErrReadOnly}
	}
	dd, err := d.load()
	if err != nil {
		return nil, err
	}
	if e, ok := dd.find(name); ok {
		if e.IsDir {
			return nil, &os.PathError{Op: "create", Path: name, Err: ErrIsDir}
		}
		if err := d.fsys.release(e.cluster); err != nil {
			return nil, err
		}
		f := &File{
			fsys:     d.fsys,
			entryOff: dd.offset(e.slot),
			dirty:    true,
		}
		return f, f.Flush()
	}
	dd, slot, err := d.add(name, attrArchive, 0)
	if err != nil {
		return nil, &os.PathError{Op: "create", Path: name, Err: err}
	}
	return &File{
		fsys:     d.fsys,
		entryOff: dd.offset(slot),
	}, nil
}

// OpenFile opens the file name for reading and writing.
func (d *Dir) OpenFile(name string) (*File, error) {
	dd, err := d.load()
	if err != nil {
		return nil, err
	}
	e, ok := dd.find(name)
	if !ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	if e.IsDir {
		return nil, &os.PathError{Op: "open", Path: name, Err: ErrIsDir}
	}
	clusters, err := d.fsys.chain(e.cluster)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}
	return &File{
		fsys:     d.fsys,
		entryOff: dd.offset(e.slot),
		first:    e.cluster,
		clusters: clusters,
		size:     e.Size,
	}, nil
}
