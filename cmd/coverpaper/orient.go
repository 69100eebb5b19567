package main

import (
	"flag"
	"fmt"

	"github.com/example/coverpaper/internal/display"
	"github.com/example/coverpaper/internal/orient"
)

type orientCmd struct {
	*root
	fs       *flag.FlagSet
	viewport string

	// open is swapped in tests.
	open func(...display.Option) (*display.Display, error)
}

func (o *orientCmd) FlagSet() *flag.FlagSet {
	return o.fs
}

func (o *orientCmd) Program() string {
	return o.subcommand("orient")
}

func parseOrientCmd(args []string, r *root) (*orientCmd, error) {
	fs := flag.NewFlagSet("orient", flag.ContinueOnError)
	o := &orientCmd{root: r, fs: fs, open: display.Open}
	fs.SetOutput(r.stderr)
	fs.Usage = usageFunc(o)
	fs.StringVar(&o.viewport, "viewport", fmt.Sprintf("%dx%d", r.config.Window.Width, r.config.Window.Height),
		"size of the window the surface would be shown in, as WIDTHxHEIGHT")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 0 {
		return nil, &UsageError{of: o}
	}
	return o, nil
}

func (o *orientCmd) Run() error {
	size, err := parseSize(o.viewport)
	if err != nil {
		return err
	}
	viewport := orient.ViewportFor(size.X, size.Y)

	disp, err := o.open(display.WithLogger(o.logger()))
	if err != nil {
		fmt.Fprintf(o.stderr, "display signals unavailable: %v\n", err)
		disp = nil
	} else {
		defer disp.Close()
	}
	sig := o.orientationSource(disp, func() orient.Viewport { return viewport }).Signals()
	resolved := orient.Resolve(sig)

	fmt.Fprintf(o.stdout, "raw:      %s\n", sig.Raw)
	fmt.Fprintf(o.stdout, "mode:     %s\n", sig.Mode)
	fmt.Fprintf(o.stdout, "viewport: %s\n", viewportName(sig.Viewport))
	fmt.Fprintf(o.stdout, "resolved: %s (code %d)\n", resolved, resolved.Code())
	return nil
}

func viewportName(v orient.Viewport) string {
	switch v {
	case orient.ViewportPortrait:
		return "portrait"
	case orient.ViewportLandscape:
		return "landscape"
	default:
		return "unknown"
	}
}
