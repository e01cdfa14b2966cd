package mkimg_test

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

// newSource returns a file system holding
//
//	/src/root/file1.txt      "hi"
//	/src/root/sub/file2.bin  00 01
func newSource(t *testing.T) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for path, contents := range map[string]string{
		"/src/root/file1.txt":     "hi",
		"/src/root/sub/file2.bin": "\x00\x01",
	} {
		if err := afero.WriteFile(fsys, path, []byte(contents), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return fsys
}

func newImage(t *testing.T) afero.File {
	t.Helper()
	img, err := afero.NewOsFs().Create(filepath.Join(t.TempDir(), "test.img"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { img.Close() })
	return img
}
