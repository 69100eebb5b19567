//go:build !((linux || freebsd || openbsd || netbsd || dragonfly) && cgo)

package clipboard

import (
	"errors"
	"image"
)

var errUnsupported = errors.New("clipboard image operations need cgo on X11 or Wayland")

// WriteImage is not supported in this build.
func WriteImage(image.Image) error { return errUnsupported }

// ReadImageData is not supported in this build.
func ReadImageData() ([]byte, error) { return nil, errUnsupported }
