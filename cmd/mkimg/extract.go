package main

import (
	"errors"
	"fmt"

	"github.com/gokrazy/mkimg"
	"github.com/gokrazy/mkimg/imagefile"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
)

func (a *app) extract(args []string) error {
	fset := pflag.NewFlagSet("extract", pflag.ContinueOnError)
	fset.SetOutput(a.stderr)
	if err := fset.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if fset.NArg() != 3 {
		return fmt.Errorf("%w: usage: mkimg extract <img_path> <internal_path> <output_path>", mkimg.ErrValidation)
	}
	img, err := imagefile.OpenReadOnly(a.fsys, fset.Arg(0))
	if err != nil {
		return err
	}
	defer img.Close()
	b, err := mkimg.Extract(img, fset.Arg(1))
	if err != nil {
		return err
	}
	return afero.WriteFile(a.fsys, fset.Arg(2), b, 0644)
}
