package main

import (
	"errors"
	"fmt"

	"github.com/gokrazy/mkimg"
	"github.com/gokrazy/mkimg/imagefile"
	"github.com/spf13/pflag"
)

func (a *app) examine(args []string) error {
	fset := pflag.NewFlagSet("examine", pflag.ContinueOnError)
	fset.SetOutput(a.stderr)
	digest := fset.Bool("digest", false, "print the BLAKE2b-256 digest of every previewed file")
	if err := fset.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if fset.NArg() != 1 {
		return fmt.Errorf("%w: usage: mkimg examine [--digest] <img_path>", mkimg.ErrValidation)
	}
	img, err := imagefile.OpenReadOnly(a.fsys, fset.Arg(0))
	if err != nil {
		return err
	}
	defer img.Close()
	return mkimg.Examine(img, a.stdout, mkimg.ExamineOptions{Digest: *digest})
}
