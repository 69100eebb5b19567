// Package clipboard moves PNG images to and from the system clipboard.
package clipboard

import "errors"

// ErrNoImage is returned when the clipboard holds no image.
var ErrNoImage = errors.New("clipboard does not contain image data")
