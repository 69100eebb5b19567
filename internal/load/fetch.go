package load

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/example/coverpaper/internal/bitmap"
	"github.com/example/coverpaper/internal/clipboard"
)

// ClipboardLocation refers to the image currently on the clipboard.
const ClipboardLocation = "clipboard:"

// DefaultMaxBytes bounds how much a single fetch may read.
const DefaultMaxBytes = 64 << 20

// ErrFetch is wrapped by every fetch failure.
var ErrFetch = errors.New("fetch failed")

// Ref is a reference to image data that has to be fetched first: an http or
// https URL, a file URL or path, or ClipboardLocation.
//
// Every *Ref is its own request: assigning the same *Ref twice is idempotent,
// assigning two Refs with the same location fetches twice.
type Ref struct {
	Location string
}

// NewRef returns a reference to location.
func NewRef(location string) *Ref { return &Ref{Location: strings.TrimSpace(location)} }

// Describe implements bitmap.Source.
func (r *Ref) Describe() string {
	if r == nil {
		return "nil ref"
	}
	return r.Location
}

// Fetcher turns a Ref into encoded image data.
type Fetcher interface {
	Fetch(ctx context.Context, ref *Ref) (*bitmap.Blob, error)
}

// HTTPFetcher fetches over HTTP, from disk and from the clipboard.
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
	// ReadClipboard returns PNG data from the clipboard.
	ReadClipboard func() ([]byte, error)
}

// NewFetcher returns an HTTPFetcher with default settings.
func NewFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:        &http.Client{Timeout: 30 * time.Second},
		MaxBytes:      DefaultMaxBytes,
		ReadClipboard: clipboard.ReadImageData,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, ref *Ref) (*bitmap.Blob, error) {
	loc := ref.Location
	if loc == "" {
		return nil, fmt.Errorf("%w: empty location", ErrFetch)
	}
	if loc == ClipboardLocation {
		return f.fetchClipboard()
	}
	u, err := url.Parse(loc)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			return f.fetchHTTP(ctx, u)
		case "file":
			return f.fetchFile(u.Path)
		}
	}
	return f.fetchFile(loc)
}

func (f *HTTPFetcher) limit() int64 {
	if f.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return f.MaxBytes
}

func (f *HTTPFetcher) fetchHTTP(ctx context.Context, u *url.URL) (*bitmap.Blob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrFetch, err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrFetch, u.Redacted(), resp.StatusCode)
	}
	data, err := readLimited(resp.Body, f.limit())
	if err != nil {
		return nil, err
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return &bitmap.Blob{Name: u.Redacted(), MediaType: mediaType, Data: data}, nil
}

func (f *HTTPFetcher) fetchFile(path string) (*bitmap.Blob, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer file.Close()
	data, err := readLimited(file, f.limit())
	if err != nil {
		return nil, err
	}
	return &bitmap.Blob{
		Name:      filepath.Base(path),
		MediaType: mime.TypeByExtension(filepath.Ext(path)),
		Data:      data,
	}, nil
}

func (f *HTTPFetcher) fetchClipboard() (*bitmap.Blob, error) {
	if f.ReadClipboard == nil {
		return nil, fmt.Errorf("%w: clipboard unavailable", ErrFetch)
	}
	data, err := f.ReadClipboard()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return &bitmap.Blob{Name: "clipboard", MediaType: "image/png", Data: data}, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrFetch, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: image larger than %s", ErrFetch, humanize.IBytes(uint64(limit)))
	}
	return data, nil
}
