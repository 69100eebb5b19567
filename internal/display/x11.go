//go:build linux || freebsd || openbsd || netbsd || dragonfly

package display

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/randr"
	"github.com/jezek/xgb/xproto"

	"github.com/example/coverpaper/internal/logging"
	"github.com/example/coverpaper/internal/orient"
)

// Display is a connection to the X server used to read orientation signals.
type Display struct {
	conn     *xgb.Conn
	root     xproto.Window
	screen   *xproto.ScreenInfo
	viewport func() orient.Viewport
	title    string
	log      *slog.Logger

	mu     sync.Mutex
	window xproto.Window
}

// Open connects to the X server named by $DISPLAY.
func Open(opts ...Option) (*Display, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	conn, root, screen, err := connect()
	if err != nil {
		return nil, err
	}
	d := &Display{
		conn:     conn,
		root:     root,
		screen:   screen,
		viewport: o.viewport,
		title:    o.title,
		log:      logging.OrNop(o.log),
	}
	if RunningOnWayland() {
		d.log.Warn("wayland session, rotation is read through XWayland")
	}
	return d, nil
}

func connect() (*xgb.Conn, xproto.Window, *xproto.ScreenInfo, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, 0, nil, fmt.Errorf("connect X server: %w", err)
	}
	setup := xproto.Setup(conn)
	if setup == nil {
		conn.Close()
		return nil, 0, nil, fmt.Errorf("xproto setup unavailable")
	}
	screen := setup.DefaultScreen(conn)
	if screen == nil {
		conn.Close()
		return nil, 0, nil, fmt.Errorf("xproto screen unavailable")
	}
	if err := randr.Init(conn); err != nil {
		conn.Close()
		return nil, 0, nil, fmt.Errorf("init randr: %w", err)
	}
	return conn, screen.Root, screen, nil
}

// Close releases the connection.
func (d *Display) Close() {
	d.conn.Close()
}

// Signals implements orient.Source.
func (d *Display) Signals() orient.Signals {
	sig := orient.Signals{Raw: orient.LandscapePrimary, Mode: orient.ModeBrowser}
	if label, err := d.Rotation(); err == nil {
		sig.Raw = label
	} else {
		d.log.Debug("screen rotation unavailable", "err", err)
	}
	if d.Fullscreen() {
		sig.Mode = orient.ModeFullscreen
	}
	if d.viewport != nil {
		sig.Viewport = d.viewport()
	}
	return sig
}

// Rotation returns the raw orientation label of the root screen.
func (d *Display) Rotation() (orient.Label, error) {
	info, err := randr.GetScreenInfo(d.conn, d.root).Reply()
	if err != nil {
		return "", fmt.Errorf("randr screen info: %w", err)
	}
	turns := quarterTurns(info.Rotation)
	w, h := int(d.screen.WidthInPixels), int(d.screen.HeightInPixels)
	if int(info.SizeID) < len(info.Sizes) {
		// sizes are listed unrotated
		size := info.Sizes[info.SizeID]
		return orient.LabelForRotation(turns, size.Width < size.Height), nil
	}
	return orient.LabelForRotation(turns, naturalPortrait(w, h, turns)), nil
}

// Fullscreen reports whether our window has the fullscreen state. When the
// window cannot be found the active window is checked, unless it belongs to
// another process.
func (d *Display) Fullscreen() bool {
	win := d.ownWindow()
	if win == 0 {
		active, err := fetchActiveWindow(d.conn, d.root)
		if err != nil || active == 0 {
			return false
		}
		win = xproto.Window(active)
		if foreign(d.windowPID(win), os.Getpid()) {
			return false
		}
	}
	stateAtom, err := internAtom(d.conn, "_NET_WM_STATE")
	if err != nil {
		return false
	}
	fullscreen, err := internAtom(d.conn, "_NET_WM_STATE_FULLSCREEN")
	if err != nil || fullscreen == 0 {
		return false
	}
	reply, err := xproto.GetProperty(d.conn, false, win, stateAtom, xproto.AtomAtom, 0, 1024).Reply()
	if err != nil || reply.Format != 32 {
		return false
	}
	for i := 0; i+4 <= len(reply.Value); i += 4 {
		if xproto.Atom(xgb.Get32(reply.Value[i:])) == fullscreen {
			return true
		}
	}
	return false
}

// ownWindow finds the window titled d.title among the managed clients. The
// last match is remembered while its title is unchanged.
func (d *Display) ownWindow() xproto.Window {
	if d.title == "" {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.window != 0 && d.windowName(d.window) == d.title {
		return d.window
	}
	ids, err := fetchClients(d.conn, d.root)
	if err != nil {
		d.log.Debug("client list unavailable", "err", err)
		return 0
	}
	clients := make([]client, 0, len(ids))
	for _, id := range ids {
		clients = append(clients, client{ID: uint32(id), Name: d.windowName(id), PID: d.windowPID(id)})
	}
	d.window = xproto.Window(ownWindow(clients, d.title, os.Getpid()))
	return d.window
}

func (d *Display) windowName(win xproto.Window) string {
	if atom, err := internAtom(d.conn, "_NET_WM_NAME"); err == nil && atom != 0 {
		if utf8, err := internAtom(d.conn, "UTF8_STRING"); err == nil && utf8 != 0 {
			reply, err := xproto.GetProperty(d.conn, false, win, atom, utf8, 0, 256).Reply()
			if err == nil && reply.ValueLen > 0 {
				return string(reply.Value)
			}
		}
	}
	reply, err := xproto.GetProperty(d.conn, false, win, xproto.AtomWmName, xproto.AtomString, 0, 256).Reply()
	if err != nil {
		return ""
	}
	return string(reply.Value)
}

// windowPID returns the _NET_WM_PID of win, or zero when it is not set.
func (d *Display) windowPID(win xproto.Window) uint32 {
	atom, err := internAtom(d.conn, "_NET_WM_PID")
	if err != nil || atom == 0 {
		return 0
	}
	reply, err := xproto.GetProperty(d.conn, false, win, atom, xproto.AtomCardinal, 0, 1).Reply()
	if err != nil || reply.Format != 32 || reply.ValueLen == 0 {
		return 0
	}
	return xgb.Get32(reply.Value)
}

// Watch calls fn whenever the screen configuration or the active window
// changes. It returns when ctx ends or the connection is lost.
func (d *Display) Watch(ctx context.Context, fn func()) error {
	conn, root, _, err := connect()
	if err != nil {
		return err
	}
	if err := randr.SelectInputChecked(conn, root, randr.NotifyMaskScreenChange|randr.NotifyMaskCrtcChange).Check(); err != nil {
		conn.Close()
		return fmt.Errorf("randr select input: %w", err)
	}
	if err := xproto.ChangeWindowAttributesChecked(conn, root, xproto.CwEventMask,
		[]uint32{xproto.EventMaskPropertyChange}).Check(); err != nil {
		conn.Close()
		return fmt.Errorf("watch root properties: %w", err)
	}
	activeAtom, _ := internAtom(conn, "_NET_ACTIVE_WINDOW")

	stop := context.AfterFunc(ctx, conn.Close)
	defer func() {
		if stop() {
			conn.Close()
		}
	}()

	for {
		ev, xerr := conn.WaitForEvent()
		switch {
		case ev == nil && xerr == nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("X connection closed")
		case xerr != nil:
			d.log.Debug("x error while watching", "err", xerr)
			continue
		}
		switch e := ev.(type) {
		case randr.ScreenChangeNotifyEvent:
			d.log.Debug("screen changed", "rotation", e.Rotation, "width", e.Width, "height", e.Height)
			fn()
		case randr.NotifyEvent:
			fn()
		case xproto.PropertyNotifyEvent:
			if activeAtom != 0 && e.Atom == activeAtom {
				fn()
			}
		}
	}
}

// ListMonitors returns the connected outputs using RandR.
func ListMonitors() ([]Monitor, error) {
	conn, root, _, err := connect()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	monitors, err := fetchMonitors(conn, root)
	if err != nil {
		return nil, err
	}
	if len(monitors) == 0 {
		return nil, errNoMonitors
	}
	return monitors, nil
}

func fetchMonitors(conn *xgb.Conn, root xproto.Window) ([]Monitor, error) {
	res, err := randr.GetScreenResources(conn, root).Reply()
	if err != nil {
		return nil, fmt.Errorf("randr screen resources: %w", err)
	}
	primaryOutput := randr.Output(0)
	if primary, err := randr.GetOutputPrimary(conn, root).Reply(); err == nil {
		primaryOutput = primary.Output
	}
	monitors := make([]Monitor, 0, len(res.Outputs))
	for _, output := range res.Outputs {
		info, err := randr.GetOutputInfo(conn, output, res.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}
		if info.Connection != randr.ConnectionConnected || info.Crtc == 0 {
			continue
		}
		crtc, err := randr.GetCrtcInfo(conn, info.Crtc, res.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}
		monitors = append(monitors, Monitor{
			Index:   len(monitors),
			Name:    strings.TrimSpace(string(info.Name)),
			Rect:    image.Rect(int(crtc.X), int(crtc.Y), int(crtc.X)+int(crtc.Width), int(crtc.Y)+int(crtc.Height)),
			Primary: output == primaryOutput,
			Turns:   quarterTurns(crtc.Rotation),
		})
	}
	return monitors, nil
}

func fetchActiveWindow(conn *xgb.Conn, root xproto.Window) (uint32, error) {
	atom, err := internAtom(conn, "_NET_ACTIVE_WINDOW")
	if err != nil {
		return 0, err
	}
	reply, err := xproto.GetProperty(conn, false, root, atom, xproto.AtomWindow, 0, 1).Reply()
	if err != nil {
		return 0, err
	}
	if reply.Format != 32 || reply.ValueLen == 0 {
		return 0, fmt.Errorf("active window unavailable")
	}
	return xgb.Get32(reply.Value), nil
}

func fetchClients(conn *xgb.Conn, root xproto.Window) ([]xproto.Window, error) {
	atom, err := internAtom(conn, "_NET_CLIENT_LIST")
	if err != nil {
		return nil, err
	}
	if atom == 0 {
		return nil, fmt.Errorf("client list unsupported")
	}
	reply, err := xproto.GetProperty(conn, false, root, atom, xproto.AtomWindow, 0, 4096).Reply()
	if err != nil {
		return nil, err
	}
	if reply.Format != 32 {
		return nil, fmt.Errorf("client list unavailable")
	}
	ids := make([]xproto.Window, 0, reply.ValueLen)
	for i := 0; i+4 <= len(reply.Value); i += 4 {
		ids = append(ids, xproto.Window(xgb.Get32(reply.Value[i:])))
	}
	return ids, nil
}

func internAtom(conn *xgb.Conn, name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(conn, true, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}
