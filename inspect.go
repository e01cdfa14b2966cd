package mkimg

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/gokrazy/mkimg/fat"
	"golang.org/x/crypto/blake2b"
)

const (
	// maxPreviewSize is the largest file Examine shows the content of.
	maxPreviewSize = 200000

	maxExamineDepth = 5
)

// ExamineOptions configures Examine.
type ExamineOptions struct {
	// Digest adds the BLAKE2b-256 digest of every previewed file.
	Digest bool
}

// Examine writes a recursive listing of the volume in img to w. Files of up
// to 200000 bytes are previewed, as text if they only contain printable
// ASCII characters. Files which cannot be read are listed without preview.
func Examine(img io.ReaderAt, w io.Writer, opts ExamineOptions) error {
	fsys, err := fat.Open(img)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	root := fsys.Root()
	entries, err := root.Entries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		printEntry(bw, root, e, "", opts)
		if e.IsDir && e.Name != "." && e.Name != ".." {
			if err := examineDir(bw, root, e.Name, 1, opts); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func examineDir(w *bufio.Writer, parent *fat.Dir, name string, depth int, opts ExamineOptions) error {
	dir, err := parent.OpenDir(name)
	if err != nil {
		return nil // listed, but not descended into
	}
	indent := strings.Repeat("  ", depth+1)
	fmt.Fprintf(w, "%sContents of %s:\n", indent, name)
	entries, err := dir.Entries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		printEntry(w, dir, e, indent+"  ", opts)
		if e.IsDir && e.Name != "." && e.Name != ".." && depth < maxExamineDepth {
			if err := examineDir(w, dir, e.Name, depth+1, opts); err != nil {
				return err
			}
		}
	}
	return nil
}

func printEntry(w *bufio.Writer, dir *fat.Dir, e fat.Entry, indent string, opts ExamineOptions) {
	tag := "(FILE)"
	if e.IsDir {
		tag = "(DIR)"
	}
	fmt.Fprintf(w, "%s%s %d bytes %s\n", indent, e.Name, e.Size, tag)
	if e.IsDir || e.Size > maxPreviewSize {
		return
	}
	contents, err := readEntry(dir, e.Name)
	if err != nil {
		return
	}
	if printable(contents) {
		fmt.Fprintf(w, "%s  Content: %q\n", indent, contents)
	} else {
		fmt.Fprintf(w, "%s  Content: %d bytes of binary data\n", indent, len(contents))
	}
	if opts.Digest {
		fmt.Fprintf(w, "%s  BLAKE2b-256: %x\n", indent, blake2b.Sum256(contents))
	}
}

func readEntry(dir *fat.Dir, name string) ([]byte, error) {
	f, err := dir.OpenFile(name)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}

// printable reports whether b consists of printable ASCII characters,
// newlines, carriage returns and tabs only.
func printable(b []byte) bool {
	for _, c := range b {
		switch {
		case c >= 0x20 && c < 0x7F:
		case c == '\n', c == '\r', c == '\t':
		default:
			return false
		}
	}
	return true
}
