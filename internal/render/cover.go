package render

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/example/coverpaper/internal/orient"
)

// Transform places an image on a surface so that it covers the surface
// completely, rotated for the surface orientation.
//
// Applied to a drawing context the steps are: translate to (CenterX,
// CenterY), rotate by Rotation, translate by (TranslateX, TranslateY), then
// draw the image at its natural size multiplied by Scale.
type Transform struct {
	Scale float64
	// Rotation is the total clockwise rotation in radians: the surface
	// rotation plus a -90° correction for portrait shaped images.
	Rotation float64

	CenterX, CenterY       float64
	TranslateX, TranslateY float64

	Portrait bool
	AxisSwap bool

	quarter int
}

// quarterTurns holds exact cos/sin values per clockwise quarter turn.
var quarterTurns = [4]struct{ cos, sin float64 }{
	{1, 0},
	{0, 1},
	{-1, 0},
	{0, -1},
}

// Cover computes the cover transform of an img sized image on a surface
// sized surface, rotated by code. It reports false when either size has a
// non-positive axis; nothing should be drawn then.
func Cover(surface, img image.Point, code orient.Code) (Transform, bool) {
	if surface.X <= 0 || surface.Y <= 0 || img.X <= 0 || img.Y <= 0 {
		return Transform{}, false
	}
	code = code.Normalize()
	portrait := img.X < img.Y
	swap := code.AxisSwap()

	s0, s1 := float64(surface.X), float64(surface.Y)
	if swap {
		s0, s1 = s1, s0
	}
	i0, i1 := float64(img.X), float64(img.Y)
	if portrait {
		i0, i1 = i1, i0
	}
	scale := math.Max(s0/i0, s1/i1)

	q := int(code)
	rotation := code.Radians()
	if portrait {
		q = (q + 3) % 4
		rotation -= math.Pi / 2
	}

	return Transform{
		Scale:      scale,
		Rotation:   rotation,
		CenterX:    float64(surface.X) / 2,
		CenterY:    float64(surface.Y) / 2,
		TranslateX: -float64(img.X) * scale / 2,
		TranslateY: -float64(img.Y) * scale / 2,
		Portrait:   portrait,
		AxisSwap:   swap,
		quarter:    q,
	}, true
}

// Matrix returns the affine map from image pixel coordinates to surface
// coordinates.
func (t Transform) Matrix() f64.Aff3 {
	r := quarterTurns[t.quarter]
	return f64.Aff3{
		r.cos * t.Scale, -r.sin * t.Scale, t.CenterX + r.cos*t.TranslateX - r.sin*t.TranslateY,
		r.sin * t.Scale, r.cos * t.Scale, t.CenterY + r.sin*t.TranslateX + r.cos*t.TranslateY,
	}
}

// Bounds returns the axis aligned box covered by an img sized image once t is
// applied.
func (t Transform) Bounds(img image.Point) (minX, minY, maxX, maxY float64) {
	m := t.Matrix()
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range [4][2]float64{{0, 0}, {float64(img.X), 0}, {0, float64(img.Y)}, {float64(img.X), float64(img.Y)}} {
		x := m[0]*p[0] + m[1]*p[1] + m[2]
		y := m[3]*p[0] + m[4]*p[1] + m[5]
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return minX, minY, maxX, maxY
}

// Quality selects the interpolator used when drawing.
type Quality string

const (
	QualityNearest    Quality = "nearest"
	QualityApprox     Quality = "approx"
	QualityBilinear   Quality = "bilinear"
	QualityCatmullRom Quality = "catmullrom"
)

// ParseQuality validates a quality name. The empty string selects bilinear.
func ParseQuality(s string) (Quality, error) {
	switch q := Quality(strings.ToLower(strings.TrimSpace(s))); q {
	case "":
		return QualityBilinear, nil
	case QualityNearest, QualityApprox, QualityBilinear, QualityCatmullRom:
		return q, nil
	default:
		return "", fmt.Errorf("unknown quality %q (want nearest, approx, bilinear or catmullrom)", s)
	}
}

func (q Quality) interpolator() xdraw.Interpolator {
	switch q {
	case QualityNearest:
		return xdraw.NearestNeighbor
	case QualityApprox:
		return xdraw.ApproxBiLinear
	case QualityCatmullRom:
		return xdraw.CatmullRom
	default:
		return xdraw.BiLinear
	}
}

// Draw clears dst and draws src onto it with t. src must have zero-origin
// bounds, as bitmaps do.
func Draw(dst *image.RGBA, src image.Image, t Transform, q Quality) {
	draw.Draw(dst, dst.Bounds(), image.Transparent, image.Point{}, draw.Src)
	q.interpolator().Transform(dst, t.Matrix(), src, src.Bounds(), xdraw.Over, nil)
}
