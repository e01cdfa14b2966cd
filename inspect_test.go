package mkimg_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/gokrazy/mkimg"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"
)

func TestExamine(t *testing.T) {
	src := newSource(t)
	mappings, err := mkimg.Scan(src, "/src/root", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	img := newImage(t)
	if err := mkimg.Create(img, src, mappings, mkimg.WriteOptions{}); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := mkimg.Examine(img, &buf, mkimg.ExamineOptions{}); err != nil {
		t.Fatal(err)
	}
	want := `root 0 bytes (DIR)
    Contents of root:
      . 0 bytes (DIR)
      .. 0 bytes (DIR)
      file1.txt 2 bytes (FILE)
        Content: "hi"
      sub 0 bytes (DIR)
      Contents of sub:
        . 0 bytes (DIR)
        .. 0 bytes (DIR)
        file2.bin 2 bytes (FILE)
          Content: 2 bytes of binary data
`
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("unexpected listing: diff (-want +got):\n%s", diff)
	}
}

func TestExamineRootFilesAndDigest(t *testing.T) {
	src := afero.NewMemMapFs()
	text := "line one\r\n\tline two\n"
	big := bytes.Repeat([]byte{'x'}, 200001)
	for path, contents := range map[string][]byte{
		"/text": []byte(text),
		"/big":  big,
	} {
		if err := afero.WriteFile(src, path, contents, 0644); err != nil {
			t.Fatal(err)
		}
	}
	mappings, err := mkimg.Pairs([]string{"/text", "notes.txt", "/big", "big.bin"})
	if err != nil {
		t.Fatal(err)
	}
	img := newImage(t)
	if err := mkimg.Create(img, src, mappings, mkimg.WriteOptions{}); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := mkimg.Examine(img, &buf, mkimg.ExamineOptions{Digest: true}); err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"notes.txt 20 bytes (FILE)",
		`  Content: "line one\r\n\tline two\n"`,
		fmt.Sprintf("  BLAKE2b-256: %x", blake2b.Sum256([]byte(text))),
		"big.bin 200001 bytes (FILE)",
		"",
	}, "\n")
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("unexpected listing: diff (-want +got):\n%s", diff)
	}
}

func TestExamineDepthLimit(t *testing.T) {
	src := afero.NewMemMapFs()
	if err := afero.WriteFile(src, "/leaf", []byte("deep"), 0644); err != nil {
		t.Fatal(err)
	}
	mappings, err := mkimg.Pairs([]string{"/leaf", "d1/d2/d3/d4/d5/d6/d7/leaf"})
	if err != nil {
		t.Fatal(err)
	}
	img := newImage(t)
	if err := mkimg.Create(img, src, mappings, mkimg.WriteOptions{}); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := mkimg.Examine(img, &buf, mkimg.ExamineOptions{}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, dir := range []string{"d1", "d2", "d3", "d4", "d5"} {
		if !strings.Contains(out, "Contents of "+dir+":") {
			t.Errorf("listing does not descend into %s:\n%s", dir, out)
		}
	}
	if !strings.Contains(out, "d6 0 bytes (DIR)") {
		t.Errorf("listing does not list d6:\n%s", out)
	}
	if strings.Contains(out, "Contents of d6:") || strings.Contains(out, "d7") || strings.Contains(out, "leaf") {
		t.Errorf("listing descends beyond the depth limit:\n%s", out)
	}
}

func TestExamineNotFAT(t *testing.T) {
	if err := mkimg.Examine(bytes.NewReader(make([]byte, 4096)), &bytes.Buffer{}, mkimg.ExamineOptions{}); err == nil {
		t.Fatal("Examine of a zeroed image unexpectedly succeeded")
	}
}
