package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gokrazy/mkimg"
	"github.com/gokrazy/mkimg/config"
	"github.com/gokrazy/mkimg/humanize"
	"github.com/gokrazy/mkimg/imagefile"
	"github.com/gokrazy/mkimg/progress"
	"github.com/spf13/pflag"
)

func (a *app) create(ctx context.Context, args []string) error {
	fset := pflag.NewFlagSet("create", pflag.ContinueOnError)
	fset.SetOutput(a.stderr)
	var (
		plain       = fset.Bool("plain", false, "create a plain (FAT16) image instead of a deceptive one")
		excludeRoot = fset.BoolP("exclude-root", "e", a.cfg.ExcludeRoot, "place the contents of --root at the top of the image instead of the directory itself")
		label       = fset.String("label", a.cfg.VolumeLabel, "volume label")
		root        = fset.String("root", "", "directory to copy into the image")
		explicit    = fset.Bool("map", false, "treat positional arguments as <external> <internal> pairs")
		manifest    = fset.String("manifest", "", "YAML file listing external/internal pairs")
	)
	if err := fset.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	sources := 0
	for _, set := range []bool{*root != "", *explicit, *manifest != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return fmt.Errorf("%w: exactly one of --root, --map and --manifest must be specified", mkimg.ErrValidation)
	}

	imgPath := a.cfg.DeceptiveName
	if *plain {
		imgPath = a.cfg.PlainName
	}
	positional := fset.Args()
	var (
		mappings []mkimg.Mapping
		err      error
	)
	switch {
	case *explicit:
		if len(positional)%2 == 1 {
			imgPath = positional[len(positional)-1]
			positional = positional[:len(positional)-1]
		}
		mappings, err = mkimg.Pairs(positional)
	case *manifest != "":
		if imgPath, err = optionalImagePath(positional, imgPath); err != nil {
			return err
		}
		mappings, err = config.LoadManifest(a.fsys, *manifest)
	default:
		if imgPath, err = optionalImagePath(positional, imgPath); err != nil {
			return err
		}
		mappings, err = mkimg.Scan(a.fsys, *root, *excludeRoot, mkimg.ReporterFunc(func(ev mkimg.Event) {
			log.Printf("%q %q %d", ev.Internal, ev.External, ev.Size)
		}))
	}
	if err != nil {
		return err
	}

	img, err := imagefile.Create(a.fsys, imgPath)
	if err != nil {
		return err
	}
	defer img.Close()

	stop := func() {}
	if a.progress {
		var p progress.Reporter
		p.SetStatus("create " + imgPath)
		p.SetTotal(a.totalSize(mappings))
		progress.Reset()
		stop = a.startProgress(ctx, &p)
	}
	defer stop()

	opts := mkimg.WriteOptions{
		VolumeLabel: *label,
		OEMName:     a.cfg.OEMName,
		Reporter:    mkimg.ReporterFunc(a.reportCreate),
	}
	if *plain {
		if err := mkimg.Create(img, a.fsys, mappings, opts); err != nil {
			return err
		}
		stop()
		log.Printf("Plain image %s created successfully!", imgPath)
	} else {
		if _, err := mkimg.CreateDeceptive(img, a.fsys, mappings, opts); err != nil {
			return err
		}
		stop()
		log.Printf("Deceptive image %s created successfully!", imgPath)
	}
	return img.Close()
}

func optionalImagePath(positional []string, def string) (string, error) {
	switch len(positional) {
	case 0:
		return def, nil
	case 1:
		return positional[0], nil
	default:
		return "", fmt.Errorf("%w: unexpected arguments %q", mkimg.ErrValidation, positional[1:])
	}
}

func (a *app) totalSize(mappings []mkimg.Mapping) uint64 {
	var total uint64
	for _, m := range mappings {
		if fi, err := a.fsys.Stat(m.External); err == nil && fi.Mode().IsRegular() {
			total += uint64(fi.Size())
		}
	}
	return total
}

// startProgress prints status lines to stderr until the returned function is
// called. The function waits for the last line to be printed and may be called
// more than once.
func (a *app) startProgress(ctx context.Context, p *progress.Reporter) (stop func()) {
	ctx, canc := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Report(ctx, a.stderr)
	}()
	return func() {
		canc()
		<-done
	}
}

func (a *app) reportCreate(ev mkimg.Event) {
	switch ev.Kind {
	case mkimg.EventWritten:
		progress.Add(ev.Size)
		if !a.progress {
			log.Printf("wrote %s (%s)", ev.Internal, humanize.Bytes(uint64(ev.Size)))
		}
	case mkimg.EventDeceived:
		d := ev.Deception
		log.Printf("Applied size deception - image now claims %s instead of %s",
			humanize.Sectors(d.DeclaredSectors),
			humanize.Sectors(d.OriginalSectors))
	case mkimg.EventShrunk:
		log.Printf("Shrunk image to %d bytes while maintaining deception", ev.Size)
	}
}
