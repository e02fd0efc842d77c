// Command sp3czml converts SP3 orbit files, and optionally a link event file,
// into one CZML document.
//
//	sp3czml [flags] file.sp3 [file.sp3 ...]
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/star/czmlgo/internal/cache"
	"github.com/star/czmlgo/internal/config"
	"github.com/star/czmlgo/internal/czml"
	"github.com/star/czmlgo/internal/ingest"
	"github.com/star/czmlgo/internal/link"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "sp3czml:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("sp3czml", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("o", "", "output file (default stdout)")
	eventsPath := fs.String("events", "", "link event JSON file")
	appearancePath := fs.String("appearance", "", "appearance YAML file")
	keyword := fs.String("keyword", "", "position record prefix (default P)")
	ids := fs.String("ids", "", "comma-separated satellite id filter, e.g. G,C")
	mode := fs.String("mode", "", "scene mode, 2D or 3D (default from appearance)")
	name := fs.String("name", "", "document name")
	target := fs.String("target", "", "id drawn at the far end of every link line")
	workers := fs.Int("workers", runtime.NumCPU(), "parallel SP3 parsers")
	verbose := fs.Bool("v", false, "log progress to stderr")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 && *eventsPath == "" {
		fs.Usage()
		return errors.New("no SP3 files or events file given")
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	appearance, err := config.LoadAppearance(*appearancePath)
	if err != nil {
		return err
	}

	scene := cache.Scene{
		Name:       *name,
		OrbitStyle: appearance.OrbitStyle(),
		EventStyle: appearance.EventStyle(),
		Target:     appearance.Event.Target,
	}
	if scene.Name == "" {
		scene.Name = "sp3czml"
	}
	if *mode != "" {
		m := czml.Mode(strings.ToUpper(*mode))
		if m != czml.Mode2D && m != czml.Mode3D {
			return fmt.Errorf("invalid -mode %q, must be 2D or 3D", *mode)
		}
		scene.OrbitStyle.Mode, scene.EventStyle.Mode = m, m
	}
	if *ids != "" {
		scene.OrbitStyle.Keywords = strings.Split(*ids, ",")
	}
	if *target != "" {
		scene.Target = *target
	}

	if fs.NArg() > 0 {
		sources := make([]ingest.Source, 0, fs.NArg())
		for _, path := range fs.Args() {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			sources = append(sources, ingest.Source{Name: path, Data: data})
		}
		results, ok, failed := ingest.NewPool(*workers, *keyword, logger).ParseBatch(ctx, sources)
		if failed > 0 {
			for _, r := range results {
				if r.Err != nil {
					return fmt.Errorf("%s: %w", r.Name, r.Err)
				}
			}
		}
		scene.Ephemerides = ingest.Ephemerides(results)
		logger.Info("parsed SP3 files", "files", ok)
	}

	if *eventsPath != "" {
		stitched, err := readEvents(*eventsPath, appearance.Event.Keywords)
		if err != nil {
			return fmt.Errorf("%s: %w", *eventsPath, err)
		}
		scene.Events = stitched
		logger.Info("stitched events", "pairs", len(stitched.Order), "runs", stitched.RunCount())
	}

	res := cache.Build(scene)

	w := stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	if err := czml.Encode(bw, res.Packets); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	logger.Info("wrote CZML", "packets", len(res.Packets), "orbits", res.Orbits, "events", res.Events)
	return nil
}

func readEvents(path string, keywords []string) (*link.Stitched, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	links, err := link.Decode(f)
	if err != nil {
		return nil, err
	}
	return link.Stitch(*links, keywords)
}
