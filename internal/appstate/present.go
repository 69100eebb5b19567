package appstate

import (
	"image"
	"image/color"
	"image/draw"
	"log"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/exp/shiny/screen"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var messageFace font.Face

func init() {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		log.Fatalf("parse font: %v", err)
	}
	messageFace, err = opentype.NewFace(f, &opentype.FaceOptions{Size: 24, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		log.Fatalf("font face: %v", err)
	}
}

// presenter copies finished surface frames into shiny buffers and publishes
// them. Frames arriving before the window exists are dropped.
type presenter struct {
	mu     sync.Mutex
	screen screen.Screen
	window screen.Window
	log    *slog.Logger

	message      string
	messageUntil time.Time
}

func (p *presenter) attach(s screen.Screen, w screen.Window) {
	p.mu.Lock()
	p.screen, p.window = s, w
	p.mu.Unlock()
}

func (p *presenter) detach() {
	p.mu.Lock()
	p.screen, p.window = nil, nil
	p.mu.Unlock()
}

func (p *presenter) flash(msg string, d time.Duration) {
	p.mu.Lock()
	p.message = msg
	p.messageUntil = time.Now().Add(d)
	p.mu.Unlock()
}

// Present implements surface.Presenter.
func (p *presenter) Present(raster *image.RGBA) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.window == nil {
		return
	}
	b, err := p.screen.NewBuffer(raster.Rect.Size())
	if err != nil {
		p.log.Error("new buffer", "err", err)
		return
	}
	defer b.Release()

	draw.Draw(b.RGBA(), b.Bounds(), raster, raster.Rect.Min, draw.Src)
	if p.message != "" && time.Now().Before(p.messageUntil) {
		drawMessage(b.RGBA(), p.message)
	}
	p.window.Upload(image.Point{}, b, b.Bounds())
	p.window.Publish()
}

// drawMessage draws msg in a box centred on dst.
func drawMessage(dst *image.RGBA, msg string) {
	d := &font.Drawer{Dst: dst, Src: image.Black, Face: messageFace}
	wmsg := d.MeasureString(msg).Ceil()
	ascent := messageFace.Metrics().Ascent.Ceil()
	descent := messageFace.Metrics().Descent.Ceil()
	width, height := dst.Rect.Dx(), dst.Rect.Dy()
	px := dst.Rect.Min.X + (width-wmsg)/2
	py := dst.Rect.Min.Y + (height-ascent-descent)/2 + ascent
	rect := image.Rect(px-8, py-ascent-8, px+wmsg+8, py+descent+8)
	draw.Draw(dst, rect, &image.Uniform{color.RGBA{255, 255, 255, 230}}, image.Point{}, draw.Over)
	drawRect(dst, rect, color.Black, 2)
	d.Dot = fixed.P(px, py)
	d.DrawString(msg)
}

func drawRect(img *image.RGBA, rect image.Rectangle, col color.Color, thick int) {
	u := &image.Uniform{col}
	draw.Draw(img, image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+thick), u, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(rect.Min.X, rect.Max.Y-thick, rect.Max.X, rect.Max.Y), u, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+thick, rect.Max.Y), u, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(rect.Max.X-thick, rect.Min.Y, rect.Max.X, rect.Max.Y), u, image.Point{}, draw.Src)
}
