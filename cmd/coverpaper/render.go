package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/example/coverpaper/internal/bitmap"
	"github.com/example/coverpaper/internal/frame"
	"github.com/example/coverpaper/internal/load"
	"github.com/example/coverpaper/internal/orient"
	"github.com/example/coverpaper/internal/surface"
)

type renderCmd struct {
	*root
	fs          *flag.FlagSet
	src         string
	size        string
	orientation string
	rotation    int
	mode        string
	output      string
	timeout     time.Duration

	target image.Point
	label  orient.Label
}

func (c *renderCmd) FlagSet() *flag.FlagSet {
	return c.fs
}

func (c *renderCmd) Program() string {
	return c.subcommand("render")
}

func parseRenderCmd(args []string, r *root) (*renderCmd, error) {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	c := &renderCmd{root: r, fs: fs}
	fs.SetOutput(r.stderr)
	fs.Usage = usageFunc(c)
	fs.StringVar(&c.src, "src", r.config.Source, "image path, URL or clipboard: to render")
	fs.StringVar(&c.size, "size", "1920x1080", "surface size in device pixels as WIDTHxHEIGHT")
	fs.StringVar(&c.orientation, "orientation", "", "raw orientation label, e.g. portrait-primary")
	fs.IntVar(&c.rotation, "rotation", 0, "clockwise screen rotation in degrees, used when -orientation is empty")
	fs.StringVar(&c.mode, "mode", "fullscreen", "display mode: browser, fullscreen, standalone or window-controls-overlay")
	fs.StringVar(&c.output, "out", "wallpaper.png", "write the PNG to this path, - for stdout")
	fs.DurationVar(&c.timeout, "timeout", 30*time.Second, "give up when the frame is not ready in time")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, &UsageError{of: c}
	}
	if c.src == "" {
		return nil, fmt.Errorf("render: -src is required")
	}
	var err error
	if c.target, err = parseSize(c.size); err != nil {
		return nil, err
	}
	if c.orientation != "" {
		c.label = orient.ParseLabel(c.orientation)
		if !c.label.Valid() {
			return nil, fmt.Errorf("render: unknown orientation %q", c.orientation)
		}
	} else if c.label, err = labelForRotation(c.rotation); err != nil {
		return nil, err
	}
	return c, nil
}

// Run renders through the same pipeline and scheduler the window uses and
// writes the first finished frame.
func (c *renderCmd) Run() error {
	log := c.logger()
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	frames := make(chan *image.RGBA, 1)
	present := surface.PresenterFunc(func(raster *image.RGBA) {
		cp := image.NewRGBA(raster.Rect)
		copy(cp.Pix, raster.Pix)
		select {
		case frames <- cp:
		default:
		}
	})

	ticker := frame.NewTicker(c.fps)
	defer ticker.Stop()
	sched := frame.New(ticker, frame.WithLogger(log))
	sched.Start(ctx)

	cache := bitmap.NewCache(bitmap.WithLogger(log))
	pipeline := load.NewPipeline(cache, load.WithLogger(log))
	surf := surface.New(sched,
		surface.WithPresenter(present),
		surface.WithQuality(c.renderQuality()),
		surface.WithLogger(log),
	)
	signals := orient.Static{
		Raw:      c.label,
		Mode:     orient.ParseDisplayMode(c.mode),
		Viewport: orient.ViewportFor(c.target.X, c.target.Y),
	}
	ctrl := surface.NewController(surf, pipeline,
		surface.WithSource(sourceFor(c.src)),
		surface.WithOrientation(signals),
		surface.WithControllerLogger(log),
	)
	box := surface.Box{Client: c.target, Parent: c.target, Screen: c.target, PixelRatio: 1}
	if err := ctrl.Attach(ctx, box); err != nil {
		return fmt.Errorf("render %s: %w", c.src, err)
	}

	var img *image.RGBA
	select {
	case img = <-frames:
	case <-ctx.Done():
		return fmt.Errorf("render %s: %w", c.src, ctx.Err())
	}
	ctrl.Detach()

	n, err := c.write(img)
	if err != nil {
		return err
	}
	log.Info("rendered", "size", img.Rect.Size(), "orientation", surf.Orientation().Label(), "bytes", humanize.Bytes(uint64(n)))
	return nil
}

func (c *renderCmd) write(img image.Image) (int64, error) {
	if c.output == "-" {
		return encodePNG(c.stdout, img)
	}
	f, err := os.Create(c.output)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", c.output, err)
	}
	n, err := encodePNG(f, img)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", c.output, err)
	}
	return n, nil
}

func encodePNG(w io.Writer, img image.Image) (int64, error) {
	cw := &countingWriter{w: w}
	err := png.Encode(cw, img)
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
