// Package orient resolves the screen orientation a surface should be drawn
// for.
//
// Platforms report a screen level orientation that can disagree with what the
// user actually sees when the surface lives inside a window with its own
// chrome. Resolve corrects the raw label with the viewport shape unless the
// surface runs chromeless (fullscreen, standalone, window controls overlay).
package orient

import (
	"math"
	"strings"
)

// Label is a canonical screen orientation name.
type Label string

const (
	LandscapePrimary   Label = "landscape-primary"
	PortraitPrimary    Label = "portrait-primary"
	LandscapeSecondary Label = "landscape-secondary"
	PortraitSecondary  Label = "portrait-secondary"
)

// Code is a rotation in quarter turns, 0..3.
type Code int

var labelCodes = map[Label]Code{
	LandscapePrimary:   0,
	PortraitPrimary:    1,
	LandscapeSecondary: 2,
	PortraitSecondary:  3,
}

var codeLabels = [4]Label{LandscapePrimary, PortraitPrimary, LandscapeSecondary, PortraitSecondary}

// Code returns the rotation code for l. Unknown labels map to 0.
func (l Label) Code() Code {
	if c, ok := labelCodes[l]; ok {
		return c
	}
	return 0
}

// Valid reports whether l is one of the four canonical labels.
func (l Label) Valid() bool {
	_, ok := labelCodes[l]
	return ok
}

// ParseLabel normalises s into a Label. The result may be invalid; callers
// that care check Valid.
func ParseLabel(s string) Label {
	return Label(strings.ToLower(strings.TrimSpace(s)))
}

// Normalize folds c into 0..3.
func (c Code) Normalize() Code {
	return ((c % 4) + 4) % 4
}

// Label returns the canonical label for c.
func (c Code) Label() Label {
	return codeLabels[c.Normalize()]
}

// Radians returns the clockwise rotation for c.
func (c Code) Radians() float64 {
	return float64(c.Normalize()) * math.Pi / 2
}

// AxisSwap reports whether c rotates the surface by an odd multiple of 90°.
func (c Code) AxisSwap() bool {
	return c.Normalize()%2 == 1
}

// DisplayMode describes how the surface's window is presented.
type DisplayMode int

const (
	ModeBrowser DisplayMode = iota
	ModeFullscreen
	ModeStandalone
	ModeWindowControlsOverlay
)

var modeNames = map[string]DisplayMode{
	"browser":                ModeBrowser,
	"fullscreen":             ModeFullscreen,
	"standalone":             ModeStandalone,
	"window-controls-overlay": ModeWindowControlsOverlay,
}

// ParseDisplayMode maps a configuration string to a DisplayMode. Unknown
// values are treated as a regular window.
func ParseDisplayMode(s string) DisplayMode {
	if m, ok := modeNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return m
	}
	return ModeBrowser
}

// Chromeless reports whether the raw platform label can be trusted as is.
func (m DisplayMode) Chromeless() bool {
	return m != ModeBrowser
}

func (m DisplayMode) String() string {
	for name, mode := range modeNames {
		if mode == m {
			return name
		}
	}
	return "browser"
}

// Viewport is the shape of the area the surface is shown in.
type Viewport int

const (
	ViewportUnknown Viewport = iota
	ViewportPortrait
	ViewportLandscape
)

// ViewportFor classifies a w×h area. Square areas count as portrait, like the
// orientation media feature.
func ViewportFor(w, h int) Viewport {
	if w <= 0 || h <= 0 {
		return ViewportUnknown
	}
	if h >= w {
		return ViewportPortrait
	}
	return ViewportLandscape
}

// Signals is a snapshot of the platform values the resolver looks at.
type Signals struct {
	Raw      Label
	Mode     DisplayMode
	Viewport Viewport
}

// Source gives synchronous access to the current platform signals.
type Source interface {
	Signals() Signals
}

// Resolve computes the orientation label the surface should be drawn for.
func Resolve(s Signals) Label {
	label := s.Raw
	if s.Mode.Chromeless() {
		return label
	}
	switch s.Viewport {
	case ViewportPortrait:
		label = Label(strings.Replace(string(label), "landscape", "portrait", 1))
	case ViewportLandscape:
		label = Label(strings.Replace(string(label), "portrait", "landscape", 1))
	}
	return label
}

// ResolveCode resolves the current signals of src into a rotation code. A nil
// source resolves to 0.
func ResolveCode(src Source) Code {
	if src == nil {
		return 0
	}
	return Resolve(src.Signals()).Code()
}

// LabelForRotation converts a screen rotation in clockwise quarter turns into
// the raw label a platform would report for it. naturalPortrait is true for
// panels whose unrotated shape is portrait (phones, some tablets).
func LabelForRotation(quarterTurns int, naturalPortrait bool) Label {
	c := Code(quarterTurns)
	if naturalPortrait {
		c++
	}
	return c.Label()
}

// Static is a Source with fixed signals.
type Static Signals

// Signals implements Source.
func (s Static) Signals() Signals { return Signals(s) }

// SourceFunc adapts a function to Source.
type SourceFunc func() Signals

// Signals implements Source.
func (f SourceFunc) Signals() Signals { return f() }
