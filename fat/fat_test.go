package fat

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
)

const (
	testFAT16Size = 6 * 1024 * 1024
	testFAT32Size = 32 * 1024 * 1024
)

var testTime = time.Date(2017, 9, 6, 8, 13, 28, 0, time.UTC)

// newVolume formats an image in a temporary directory and mounts it.
func newVolume(t *testing.T, variant Variant, size int64) (*FileSystem, afero.File) {
	t.Helper()
	img, err := afero.NewOsFs().Create(filepath.Join(t.TempDir(), "test.img"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { img.Close() })
	if err := img.Truncate(size); err != nil {
		t.Fatal(err)
	}
	if err := Format(img, size, FormatOptions{Variant: variant, VolumeID: 0x1234}); err != nil {
		t.Fatal(err)
	}
	fsys, err := Mount(img)
	if err != nil {
		t.Fatal(err)
	}
	fsys.now = func() time.Time { return testTime }
	return fsys, img
}

func writeFile(t *testing.T, dir *Dir, name string, content []byte) {
	t.Helper()
	f, err := dir.CreateFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, dir *Dir, name string) []byte {
	t.Helper()
	f, err := dir.OpenFile(name)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, f.Size())
	if _, err := f.Read(buf); err != nil && len(buf) > 0 {
		t.Fatal(err)
	}
	return buf
}
