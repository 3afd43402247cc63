// ABOUTME: Source loading for the dev backend
// ABOUTME: Reads WAV, MP3 or FLAC from files or URLs and renders test tones
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dubcast/dubcast-go/pkg/audio"
	"github.com/dubcast/dubcast-go/pkg/audio/decode"
)

// DefaultMaxSourceBytes bounds how much a remote source may download
const DefaultMaxSourceBytes = 256 << 20

// maxSourceSamples lets whole source files decode past the per-segment cap
const maxSourceSamples = 1 << 28

var (
	// ErrUnsupportedSource is returned for schemes the loader cannot read
	ErrUnsupportedSource = errors.New("unsupported source")
	// ErrSourceDenied is returned for paths outside Root and hosts not in Hosts
	ErrSourceDenied = errors.New("source not allowed")
)

// Loader resolves a source reference into decoded PCM
type Loader struct {
	Client *http.Client

	// ToneRate and ToneChannels shape generated tones.
	ToneRate     int
	ToneChannels int

	MaxBytes int64

	// Root confines local sources to one directory tree. Relative paths
	// resolve against it. Empty allows any readable file.
	Root string

	// Hosts lists the hostnames remote sources may come from. Empty allows
	// any host.
	Hosts []string
}

// Load fetches src and decodes it. src is one of:
//
//	tone:[hz][:duration]
//	http://... or https://...
//	file:///path
//	a local path
func (l *Loader) Load(ctx context.Context, src string) (audio.Buffer, error) {
	if strings.HasPrefix(src, tonePrefix) {
		return l.tone(src)
	}

	data, err := l.read(ctx, src)
	if err != nil {
		return audio.Buffer{}, err
	}

	dec := decode.NewAuto(nil).WithMaxSamples(maxSourceSamples)
	defer dec.Close()

	buf, err := dec.Decode(data)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("decode source %s: %w", src, err)
	}
	if buf.Frames() == 0 {
		return audio.Buffer{}, fmt.Errorf("source %s contains no audio", src)
	}
	return buf, nil
}

func (l *Loader) tone(src string) (audio.Buffer, error) {
	rate, channels := l.ToneRate, l.ToneChannels
	if rate <= 0 {
		rate = 48000
	}
	if channels <= 0 {
		channels = 2
	}

	frequency, d, err := parseTone(src, rate)
	if err != nil {
		return audio.Buffer{}, err
	}
	return NewToneSource(frequency, rate, channels).Buffer(d), nil
}

func (l *Loader) read(ctx context.Context, src string) ([]byte, error) {
	u, err := url.Parse(src)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain paths, including Windows drive letters
		return l.readFile(src)
	}

	switch u.Scheme {
	case "http", "https":
		if !l.hostAllowed(u) {
			return nil, fmt.Errorf("%w: host %q", ErrSourceDenied, u.Hostname())
		}
		return l.fetch(ctx, src)
	case "file":
		return l.readFile(u.Path)
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedSource, u.Scheme)
	}
}

func (l *Loader) readFile(path string) ([]byte, error) {
	if l.Root != "" {
		return l.readRooted(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file: %w", err)
	}
	return data, nil
}

// readRooted reads path through an os.Root, which also refuses symlinks
// and ".." components that lead out of the tree.
func (l *Loader) readRooted(path string) ([]byte, error) {
	rel := path
	if filepath.IsAbs(path) {
		root, err := filepath.Abs(l.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve source root: %w", err)
		}
		if rel, err = filepath.Rel(root, filepath.Clean(path)); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrSourceDenied, path)
		}
	}
	if !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("%w: %s", ErrSourceDenied, path)
	}

	root, err := os.OpenRoot(l.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to open source root: %w", err)
	}
	defer root.Close()

	f, err := root.Open(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read source file: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceDenied, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file: %w", err)
	}
	return data, nil
}

func (l *Loader) hostAllowed(u *url.URL) bool {
	if len(l.Hosts) == 0 {
		return true
	}
	host := u.Hostname()
	for _, h := range l.Hosts {
		if strings.EqualFold(h, host) {
			return true
		}
	}
	return false
}

func (l *Loader) fetch(ctx context.Context, src string) ([]byte, error) {
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	limit := l.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxSourceBytes
	}
	if len(l.Hosts) > 0 {
		// Redirects must stay on allowed hosts too
		restricted := *client
		restricted.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if !l.hostAllowed(req.URL) {
				return fmt.Errorf("%w: redirect to %q", ErrSourceDenied, req.URL.Hostname())
			}
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			return nil
		}
		client = &restricted
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create source request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch source: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read source body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("source exceeds %d bytes", limit)
	}
	return data, nil
}
