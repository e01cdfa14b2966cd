package mkimg_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gokrazy/mkimg"
	"github.com/gokrazy/mkimg/fat"
	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func header(t *testing.T, img afero.File) (sectors uint32, signature string, free uint32) {
	t.Helper()
	buf := make([]byte, 1024)
	if _, err := img.ReadAt(buf, 0); err != nil {
		t.Fatal(err)
	}
	return binary.LittleEndian.Uint32(buf[0x20:]),
		string(buf[512:516]),
		binary.LittleEndian.Uint32(buf[512+0x1E8:])
}

func TestDeceive(t *testing.T) {
	src := newSource(t)
	mappings, err := mkimg.Scan(src, "/src/root", true, nil)
	if err != nil {
		t.Fatal(err)
	}
	img := newImage(t)
	opts := mkimg.WriteOptions{Size: mkimg.DeceptiveSize, Variant: fat.FAT32}
	if err := mkimg.Write(img, src, opts, mappings); err != nil {
		t.Fatal(err)
	}
	sectors, signature, free := header(t, img)
	if signature != "RRaA" {
		t.Fatalf("FSInfo signature: got %q, want RRaA", signature)
	}

	d, err := mkimg.Deceive(img, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := &mkimg.Deception{
		OriginalSectors:      sectors,
		DeclaredSectors:      sectors + sectors/2,
		FSInfo:               true,
		OriginalFreeClusters: free,
		DeclaredFreeClusters: free * 3,
		OriginalLength:       mkimg.DeceptiveSize,
		Length:               d.Length,
	}
	if diff := cmp.Diff(want, d); diff != "" {
		t.Fatalf("unexpected deception: diff (-want +got):\n%s", diff)
	}

	gotSectors, _, gotFree := header(t, img)
	if got, want := gotSectors, uint32(float64(sectors)*1.5); got != want {
		t.Errorf("declared sectors: got %d, want %d", got, want)
	}
	if got, want := gotFree, free*3; got != want {
		t.Errorf("declared free clusters: got %d, want %d", got, want)
	}

	fi, err := img.Stat()
	if err != nil {
		t.Fatal(err)
	}
	if got := fi.Size(); got != d.Length || got%512 != 0 || got < 512*1024 {
		t.Errorf("shrunk size %d is not a multiple of 512 of at least 512 KiB (reported %d)", got, d.Length)
	}
	if declared := int64(gotSectors) * 512; declared <= fi.Size() {
		t.Errorf("declared size %d does not exceed actual size %d", declared, fi.Size())
	}

	// The shrunk image stays readable.
	got, err := mkimg.Extract(img, "sub/file2.bin")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x00, 0x01}, got); diff != "" {
		t.Fatalf("unexpected contents: diff (-want +got):\n%s", diff)
	}
}

// syntheticImage returns a 2 MiB image with the given header fields and a
// non-zero byte at last (if positive).
func syntheticImage(t *testing.T, sectors uint32, fsInfo bool, free uint32, last int) afero.File {
	t.Helper()
	buf := make([]byte, 2*1024*1024)
	binary.LittleEndian.PutUint32(buf[0x20:], sectors)
	if fsInfo {
		copy(buf[512:], "RRaA")
		binary.LittleEndian.PutUint32(buf[512+0x1E8:], free)
	}
	if last > 0 {
		buf[last] = 0xFF
	}
	img := newImage(t)
	if _, err := img.WriteAt(buf, 0); err != nil {
		t.Fatal(err)
	}
	return img
}

func TestDeceiveUnknownFreeCount(t *testing.T) {
	img := syntheticImage(t, 4096, true, 0xFFFFFFFF, 0)
	d, err := mkimg.Deceive(img, nil)
	if err != nil {
		t.Fatal(err)
	}
	sectors, _, free := header(t, img)
	if got, want := sectors, uint32(6144); got != want {
		t.Errorf("declared sectors: got %d, want %d", got, want)
	}
	if got, want := free, uint32(0xFFFFFFFF); got != want {
		t.Errorf("free clusters: got %#x, want %#x", got, want)
	}
	if got, want := d.Length, int64(512*1024); got != want {
		t.Errorf("shrunk length: got %d, want %d", got, want)
	}
}

func TestDeceiveWithoutFSInfo(t *testing.T) {
	img := syntheticImage(t, 12288, false, 0, 0)
	d, err := mkimg.Deceive(img, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.FSInfo {
		t.Errorf("FSInfo reported without signature")
	}
	sectors, _, free := header(t, img)
	if got, want := sectors, uint32(18432); got != want {
		t.Errorf("declared sectors: got %d, want %d", got, want)
	}
	if free != 0 {
		t.Errorf("free clusters rewritten without FSInfo signature: %d", free)
	}
}

func TestDeceiveFreeCountWraps(t *testing.T) {
	img := syntheticImage(t, 2, true, 0x60000000, 0)
	if _, err := mkimg.Deceive(img, nil); err != nil {
		t.Fatal(err)
	}
	_, _, free := header(t, img)
	if got, want := free, uint32(0x60000000*3&0xFFFFFFFF); got != want {
		t.Errorf("free clusters: got %#x, want %#x", got, want)
	}
}

func TestShrinkKeepsLastByte(t *testing.T) {
	for _, tt := range []struct {
		last int
		want int64
	}{
		{last: 0, want: 512 * 1024},
		{last: 512*1024 - 1, want: 512 * 1024},
		{last: 512 * 1024, want: 512*1024 + 512},
		{last: 1024*1024 + 3, want: 1024*1024 + 512},
		{last: 2*1024*1024 - 1, want: 2 * 1024 * 1024},
	} {
		img := syntheticImage(t, 4096, false, 0, tt.last)
		d, err := mkimg.Deceive(img, nil)
		if err != nil {
			t.Fatal(err)
		}
		if d.Length != tt.want {
			t.Errorf("last non-zero byte at %d: shrunk to %d, want %d", tt.last, d.Length, tt.want)
		}
		if d.Length <= int64(tt.last) && tt.last >= 512*1024 {
			t.Errorf("shrunk to %d, cutting off byte %d", d.Length, tt.last)
		}
	}
}

func TestDeceiveTooSmall(t *testing.T) {
	img := newImage(t)
	if _, err := img.WriteAt(make([]byte, 512), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := mkimg.Deceive(img, nil); !errors.Is(err, mkimg.ErrValidation) {
		t.Fatalf("Deceive: got %v, want %v", err, mkimg.ErrValidation)
	}
	if fi, err := img.Stat(); err != nil || fi.Size() != 512 {
		t.Fatalf("image modified after failed Deceive: %v, %v", fi, err)
	}
}

// failingHeader rejects every write.
type failingHeader struct {
	afero.File
}

func (failingHeader) WriteAt(p []byte, off int64) (int, error) {
	return 0, errors.New("write error")
}

func TestDeceiveWriteFails(t *testing.T) {
	img := syntheticImage(t, 4096, true, 100, 0)
	ctrl := gomock.NewController(t)
	r := NewMockReporter(ctrl)
	r.EXPECT().Report(gomock.Any()).Times(0)

	if _, err := mkimg.Deceive(failingHeader{img}, r); err == nil {
		t.Fatal("Deceive unexpectedly succeeded")
	}
	sectors, _, free := header(t, img)
	if sectors != 4096 || free != 100 {
		t.Errorf("header modified after failed Deceive: %d sectors, %d free clusters", sectors, free)
	}
	fi, err := img.Stat()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := fi.Size(), int64(2*1024*1024); got != want {
		t.Errorf("image size after failed Deceive: got %d, want %d", got, want)
	}
}

func TestCreateDeceptiveReports(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := NewMockReporter(ctrl)
	var deceived *mkimg.Deception
	gomock.InOrder(
		r.EXPECT().Report(gomock.Any()).Times(2), // files
		r.EXPECT().Report(gomock.Any()).Do(func(ev mkimg.Event) {
			if ev.Kind != mkimg.EventDeceived {
				t.Errorf("unexpected event %v, want %v", ev.Kind, mkimg.EventDeceived)
			}
			deceived = ev.Deception
		}),
		r.EXPECT().Report(gomock.Any()).Do(func(ev mkimg.Event) {
			if ev.Kind != mkimg.EventShrunk {
				t.Errorf("unexpected event %v, want %v", ev.Kind, mkimg.EventShrunk)
			}
			if ev.Size != ev.Deception.Length {
				t.Errorf("EventShrunk size %d, deception length %d", ev.Size, ev.Deception.Length)
			}
		}),
	)
	src := newSource(t)
	mappings, err := mkimg.Pairs([]string{
		"/src/root/file1.txt", "file1.txt",
		"/src/root/sub/file2.bin", "sub/file2.bin",
	})
	if err != nil {
		t.Fatal(err)
	}
	d, err := mkimg.CreateDeceptive(newImage(t), src, mappings, mkimg.WriteOptions{Reporter: r})
	if err != nil {
		t.Fatal(err)
	}
	if deceived != d {
		t.Errorf("EventDeceived carried a different Deception")
	}
	if got, want := d.OriginalSectors, uint32(mkimg.DeceptiveSize/512); got != want {
		t.Errorf("original sectors: got %d, want %d", got, want)
	}
}
