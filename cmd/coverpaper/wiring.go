package main

import (
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"strings"

	"github.com/example/coverpaper/internal/bitmap"
	"github.com/example/coverpaper/internal/display"
	"github.com/example/coverpaper/internal/load"
	"github.com/example/coverpaper/internal/notify"
	"github.com/example/coverpaper/internal/orient"
	"github.com/example/coverpaper/internal/render"
	"github.com/example/coverpaper/internal/store"
)

// openStore opens the wallpaper database unless persistence is off. A nil
// store and nil error mean persistence is disabled.
func (r *root) openStore(log *slog.Logger) (*store.Store, error) {
	if r.noStore {
		return nil, nil
	}
	st, err := store.Open(r.config.Store.Path, store.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func (r *root) newNotifier(cache *bitmap.Cache, log *slog.Logger) *notify.Notifier {
	n := notify.New(notify.LoadPreferences(), notify.WithCache(cache), notify.WithLogger(log))
	n.Enable(notify.EventChange, r.changeAlerts)
	n.Enable(notify.EventCopy, r.copyAlerts)
	return n
}

func (r *root) renderQuality() render.Quality {
	q, err := render.ParseQuality(r.quality)
	if err != nil {
		return render.QualityBilinear
	}
	return q
}

// listeners collects the accepted-source listeners that are enabled.
func listeners(n *notify.Notifier, st *store.Store) load.Listeners {
	var ls load.Listeners
	if n != nil {
		ls = append(ls, n)
	}
	if st != nil {
		ls = append(ls, st)
	}
	return ls
}

// sourceFor turns a command line or configured location into a source. An
// empty location gives nil.
func sourceFor(location string) bitmap.Source {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil
	}
	return load.NewRef(location)
}

// orientationSource builds the signals a surface is oriented by. The
// configured fixed label and mode take precedence over what the display
// reports; without a display the surface is treated as unrotated.
func (r *root) orientationSource(disp *display.Display, viewport func() orient.Viewport) orient.Source {
	fixed := orient.ParseLabel(r.config.Orientation.Fixed)
	modeSet := strings.TrimSpace(r.config.Orientation.Mode) != ""
	mode := orient.ParseDisplayMode(r.config.Orientation.Mode)
	return orient.SourceFunc(func() orient.Signals {
		sig := orient.Signals{Raw: orient.LandscapePrimary}
		if disp != nil {
			sig = disp.Signals()
		}
		if fixed.Valid() {
			sig.Raw = fixed
		}
		if modeSet {
			sig.Mode = mode
		}
		if viewport != nil {
			sig.Viewport = viewport()
		}
		return sig
	})
}

// parseSize parses "WxH".
func parseSize(s string) (image.Point, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return image.Point{}, fmt.Errorf("invalid size %q: want WIDTHxHEIGHT", s)
	}
	x, errX := strconv.Atoi(strings.TrimSpace(w))
	y, errY := strconv.Atoi(strings.TrimSpace(h))
	if errX != nil || errY != nil || x <= 0 || y <= 0 {
		return image.Point{}, fmt.Errorf("invalid size %q: want positive WIDTHxHEIGHT", s)
	}
	return image.Pt(x, y), nil
}

// labelForRotation maps a clockwise rotation in degrees to a label.
func labelForRotation(degrees int) (orient.Label, error) {
	if degrees%90 != 0 {
		return "", fmt.Errorf("invalid rotation %d: want a multiple of 90", degrees)
	}
	return orient.Code(degrees / 90).Label(), nil
}
