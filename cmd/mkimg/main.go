// mkimg builds FAT disk images, optionally deceptive ones whose header claims
// more capacity than the image file holds, and lists or extracts their
// contents.
//
// Usage:
//
//	mkimg create [--plain] [--exclude-root] [--label L] (--root <dir> | --map <ext> <int> ... | --manifest <file>) [img_path]
//	mkimg examine [--digest] <img_path>
//	mkimg extract <img_path> <internal_path> <output_path>
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/gokrazy/mkimg/config"
	"github.com/spf13/afero"
	"golang.org/x/term"
)

const usage = `mkimg builds, examines and extracts from FAT disk images.

Usage:
  mkimg create [flags] (--root <dir> | --map <ext> <int> ... | --manifest <file>) [img_path]
  mkimg examine [--digest] <img_path>
  mkimg extract <img_path> <internal_path> <output_path>

Run mkimg <command> --help for the flags of a command.
`

type app struct {
	fsys   afero.Fs
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer

	// progress enables the periodic status line on stderr.
	progress bool
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.stderr, usage)
		return fmt.Errorf("missing command")
	}
	switch cmd, args := args[0], args[1:]; cmd {
	case "create":
		return a.create(ctx, args)
	case "examine":
		return a.examine(args)
	case "extract":
		return a.extract(args)
	case "help", "-h", "--help":
		fmt.Fprint(a.stdout, usage)
		return nil
	default:
		fmt.Fprint(a.stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func main() {
	log.SetFlags(0)
	fsys := afero.NewOsFs()
	cfg, err := config.Load(fsys)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	a := &app{
		fsys:     fsys,
		cfg:      cfg,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		progress: term.IsTerminal(int(os.Stderr.Fd())),
	}
	if err := a.run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
