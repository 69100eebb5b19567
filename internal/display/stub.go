//go:build !(linux || freebsd || openbsd || netbsd || dragonfly)

package display

import (
	"context"

	"github.com/example/coverpaper/internal/orient"
)

// Display is unavailable on this platform.
type Display struct{}

// Open always fails with ErrUnavailable.
func Open(...Option) (*Display, error) { return nil, ErrUnavailable }

// Close does nothing.
func (*Display) Close() {}

// Signals reports the default orientation.
func (*Display) Signals() orient.Signals {
	return orient.Signals{Raw: orient.LandscapePrimary}
}

// Rotation always fails with ErrUnavailable.
func (*Display) Rotation() (orient.Label, error) { return "", ErrUnavailable }

// Fullscreen always reports false.
func (*Display) Fullscreen() bool { return false }

// Watch always fails with ErrUnavailable.
func (*Display) Watch(context.Context, func()) error { return ErrUnavailable }

// ListMonitors always fails with ErrUnavailable.
func ListMonitors() ([]Monitor, error) { return nil, ErrUnavailable }
