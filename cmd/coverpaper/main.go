package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/example/coverpaper/internal/config"
	"github.com/example/coverpaper/internal/logging"
	"github.com/example/coverpaper/internal/render"
)

var (
	version            = "dev"
	commit             = ""
	date               = ""
	configPathOverride = ""
)

type runnable interface{ Run() error }

type root struct {
	fs      *flag.FlagSet
	program string
	config  *config.Config
	stdout  io.Writer
	stderr  io.Writer

	verbose      bool
	quality      string
	fps          int
	changeAlerts bool
	copyAlerts   bool
	noStore      bool
}

func (r *root) Program() string {
	return r.program
}

func (r *root) FlagSet() *flag.FlagSet {
	return r.fs
}

func (r *root) subcommand(name string) string {
	return strings.TrimSpace(strings.Join([]string{r.program, name}, " "))
}

func newRoot() *root {
	if p := os.Getenv("COVERPAPER_CONFIG"); p != "" {
		configPathOverride = p
	}
	loader := config.NewLoader(version, configPathOverride)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load config: %v\n", err)
		cfg = config.New()
	}
	return newRootWith(cfg, os.Stdout, os.Stderr)
}

func newRootWith(cfg *config.Config, stdout, stderr io.Writer) *root {
	r := &root{
		fs:      flag.NewFlagSet("coverpaper", flag.ContinueOnError),
		program: "coverpaper",
		config:  cfg,
		stdout:  stdout,
		stderr:  stderr,
	}
	r.fs.SetOutput(stderr)
	r.fs.BoolVar(&r.verbose, "v", false, "log debug output to stderr")
	r.fs.StringVar(&r.quality, "quality", cfg.Quality, "resampling quality: nearest, approx, bilinear or catmullrom")
	r.fs.IntVar(&r.fps, "fps", cfg.FPS, "frames per second the scheduler draws at")
	r.fs.BoolVar(&r.changeAlerts, "notify-change", cfg.Notify.Change, "show a desktop notification when the wallpaper changes")
	r.fs.BoolVar(&r.copyAlerts, "notify-copy", cfg.Notify.Copy, "show a desktop notification after copying to the clipboard")
	r.fs.BoolVar(&r.noStore, "no-store", !cfg.Store.Enabled, "do not restore or record wallpapers")
	r.fs.Usage = usageFunc(r)
	return r
}

func (r *root) Run(args []string) error {
	if err := r.fs.Parse(args); err != nil {
		return err
	}
	if r.fs.NArg() < 1 {
		return &UsageError{of: r}
	}
	if _, err := render.ParseQuality(r.quality); err != nil {
		return err
	}

	cmdName := r.fs.Arg(0)
	subArgs := r.fs.Args()[1:]

	var (
		cmd runnable
		err error
	)
	switch cmdName {
	case "show":
		cmd, err = parseShowCmd(subArgs, r)
	case "render":
		cmd, err = parseRenderCmd(subArgs, r)
	case "orient":
		cmd, err = parseOrientCmd(subArgs, r)
	case "monitors":
		cmd, err = parseMonitorsCmd(subArgs, r)
	case "history":
		cmd, err = parseHistoryCmd(subArgs, r)
	case "config":
		cmd, err = parseConfigCmd(subArgs, r)
	case "version":
		cmd = &versionCmd{root: r}
	default:
		err = &UsageError{of: r}
	}
	if err != nil {
		return err
	}
	return cmd.Run()
}

func (r *root) logger() *slog.Logger {
	return logging.New(r.stderr, r.verbose)
}

func main() {
	r := newRoot()
	if err := r.Run(os.Args[1:]); err != nil {
		var uerr *UsageError
		switch {
		case errors.Is(err, flag.ErrHelp):
		case errors.As(err, &uerr):
			fmt.Fprintln(os.Stderr, uerr.Error())
			os.Exit(2)
		default:
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}
