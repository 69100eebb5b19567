package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/example/coverpaper/internal/appstate"
	"github.com/example/coverpaper/internal/bitmap"
	"github.com/example/coverpaper/internal/display"
	"github.com/example/coverpaper/internal/frame"
	"github.com/example/coverpaper/internal/load"
	"github.com/example/coverpaper/internal/surface"
)

const windowTitle = "Coverpaper"

type showCmd struct {
	*root
	fs     *flag.FlagSet
	src    string
	width  int
	height int
}

func (s *showCmd) FlagSet() *flag.FlagSet {
	return s.fs
}

func (s *showCmd) Program() string {
	return s.subcommand("show")
}

func parseShowCmd(args []string, r *root) (*showCmd, error) {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	s := &showCmd{root: r, fs: fs}
	fs.SetOutput(r.stderr)
	fs.Usage = usageFunc(s)
	fs.StringVar(&s.src, "src", "", "image path, URL or clipboard: to show (default: configured or last wallpaper)")
	fs.IntVar(&s.width, "width", r.config.Window.Width, "initial window width")
	fs.IntVar(&s.height, "height", r.config.Window.Height, "initial window height")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if s.src == "" && fs.NArg() == 1 {
		s.src = fs.Arg(0)
	} else if fs.NArg() > 0 {
		return nil, &UsageError{of: s}
	}
	return s, nil
}

func (s *showCmd) Run() error {
	log := s.logger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cache := bitmap.NewCache(bitmap.WithLogger(log))
	st, err := s.openStore(log)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}
	notifier := s.newNotifier(cache, log)
	pipeline := load.NewPipeline(cache,
		load.WithListener(listeners(notifier, st)),
		load.WithLogger(log),
	)

	ticker := frame.NewTicker(s.fps)
	defer ticker.Stop()
	sched := frame.New(ticker, frame.WithLogger(log))

	app := appstate.New(
		appstate.WithTitle(windowTitle),
		appstate.WithSize(s.width, s.height),
		appstate.WithNotifier(notifier),
		appstate.WithOnClose(cancel),
		appstate.WithLogger(log),
	)

	disp, err := display.Open(
		display.WithViewport(app.Viewport),
		display.WithWindowTitle(app.Title),
		display.WithLogger(log),
	)
	if err != nil {
		log.Info("display signals unavailable", "err", err)
		disp = nil
	} else {
		defer disp.Close()
	}

	surf := surface.New(sched,
		surface.WithPresenter(app.Presenter()),
		surface.WithQuality(s.renderQuality()),
		surface.WithLogger(log),
	)

	// A source given on the command line is external; the configured or
	// restored one is re-applied.
	var opts []surface.ControllerOption
	external := sourceFor(s.src)
	if src := sourceFor(s.config.Source); src != nil && external == nil {
		opts = append(opts, surface.WithSource(src))
	} else if external == nil && st != nil {
		blob, origin, err := st.Current()
		switch {
		case err != nil:
			log.Warn("restore wallpaper", "err", err)
		case blob != nil:
			log.Info("restoring wallpaper", "origin", origin)
			opts = append(opts, surface.WithSource(blob))
		}
	}
	opts = append(opts,
		surface.WithOrientation(s.orientationSource(disp, app.Viewport)),
		surface.WithControllerLogger(log),
	)
	ctrl := surface.NewController(surf, pipeline, opts...)
	app.SetController(ctrl)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Run(gctx); gctx.Err() == nil {
			return err
		}
		return nil
	})
	if disp != nil {
		g.Go(func() error {
			if err := disp.Watch(gctx, ctrl.OrientationChanged); err != nil && gctx.Err() == nil {
				log.Warn("orientation watch stopped", "err", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		win := image.Pt(s.width, s.height)
		screen := screenSize()
		if screen == (image.Point{}) {
			screen = win
		}
		box := surface.Box{Client: win, Parent: win, Screen: screen, PixelRatio: 1}
		if err := ctrl.Attach(gctx, box); err != nil {
			log.Error("initial load", "err", err)
		}
		if external != nil {
			ctrl.SetSource(gctx, external, true)
		}
		return nil
	})

	app.Run(ctx)
	cancel()
	ctrl.Detach()
	err = g.Wait()
	ctrl.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("show: %w", err)
	}
	return nil
}

// screenSize returns the size of the primary monitor, or zero when unknown.
func screenSize() image.Point {
	monitors, err := display.ListMonitors()
	if err != nil || len(monitors) == 0 {
		return image.Point{}
	}
	for _, m := range monitors {
		if m.Primary {
			return m.Rect.Size()
		}
	}
	return monitors[0].Rect.Size()
}
