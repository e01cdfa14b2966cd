package fat

import "io"

// maxFileSize is the largest size the 32-bit size field can express.
const maxFileSize = 0xFFFFFFFF

// File is an open regular file. Reads and writes advance a shared position
// which starts at the beginning of the file.
type File struct {
	fsys *FileSystem

	// entryOff is the device offset of the short directory entry.
	entryOff int64

	first    uint32
	clusters []uint32
	size     int64
	pos      int64
	dirty    bool
}

// Size returns the current length of the file in bytes.
func (f *File) Size() int64 { return f.size }

func (f *File) Read(p []byte) (int, error) {
	if f.pos >= f.size {
		return 0, io.EOF
	}
	if remaining := f.size - f.pos; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	cs := int64(f.fsys.geo.clusterSize())
	var n int
	for n < len(p) {
		idx := f.pos / cs
		if idx >= int64(len(f.clusters)) {
			return n, io.ErrUnexpectedEOF
		}
		within := f.pos % cs
		chunk := p[n:]
		if int64(len(chunk)) > cs-within {
			chunk = chunk[:cs-within]
		}
		off := f.fsys.geo.clusterOffset(f.clusters[idx]) + within
		if err := readAt(f.fsys.dev, chunk, off); err != nil {
			return n, err
		}
		n += len(chunk)
		f.pos += int64(len(chunk))
	}
	return n, nil
}

func (f *File) Write(p []byte) (int, error) {
	if f.fsys.readOnly {
		return 0, ErrReadOnly
	}
	if f.pos+int64(len(p)) > maxFileSize {
		return 0, ErrFileTooLarge
	}
	cs := int64(f.fsys.geo.clusterSize())
	var n int
	for n < len(p) {
		idx := f.pos / cs
		for idx >= int64(len(f.clusters)) {
			var prev uint32
			if len(f.clusters) > 0 {
				prev = f.clusters[len(f.clusters)-1]
			}
			cluster, err := f.fsys.allocate(prev)
			if err != nil {
				return n, err
			}
			if prev == 0 {
				f.first = cluster
			}
			f.clusters = append(f.clusters, cluster)
			f.dirty = true
		}
		within := f.pos % cs
		chunk := p[n:]
		if int64(len(chunk)) > cs-within {
			chunk = chunk[:cs-within]
		}
		off := f.fsys.geo.clusterOffset(f.clusters[idx]) + within
		if _, err := f.fsys.dev.WriteAt(chunk, off); err != nil {
			return n, err
		}
		n += len(chunk)
		f.pos += int64(len(chunk))
		if f.pos > f.size {
			f.size = f.pos
			f.dirty = true
		}
	}
	return n, nil
}

// Flush updates the directory entry with the first cluster, size and
// modification time of the file.
func (f *File) Flush() error {
	if !f.dirty {
		return nil
	}
	raw := make([]byte, dirEntrySize)
	if err := readAt(f.fsys.dev, raw, f.entryOff); err != nil {
		return err
	}
	var de direntry
	unmarshalEntry(raw, &de)
	de.setCluster(f.first)
	de.FileSize = uint32(f.size)
	de.touch(f.fsys.now())
	if _, err := f.fsys.dev.WriteAt(marshalEntry(&de), f.entryOff); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

// Close flushes the directory entry. The allocation table is only written
// once the file system is unmounted.
func (f *File) Close() error {
	return f.Flush()
}
