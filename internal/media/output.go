// Package media defines the media output the supervisor plays into and
// its implementations.
package media

import (
	"context"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
)

const (
	MimeHLS      = "application/vnd.apple.mpegurl"
	MimeMPEG     = "audio/mpeg"
	MimeAAC      = "audio/aac"
	MimeMP4      = "video/mp4"
	MimeTS       = "video/mp2t"
	MimeDASH     = "application/dash+xml"
	MimeFallback = "application/octet-stream"
)

var extensionTypes = map[string]string{
	".m3u8": MimeHLS,
	".m3u":  MimeHLS,
	".mp3":  MimeMPEG,
	".aac":  MimeAAC,
	".mp4":  MimeMP4,
	".m4v":  MimeMP4,
	".ts":   MimeTS,
	".mpd":  MimeDASH,
}

// Output is the single media output owned by the playback supervisor.
// It plays either a direct URL (SetSource) or a stream fed by the adaptive
// engine (AttachStream), and reports its progress through listeners.
type Output interface {
	// CanPlayType reports whether the output plays mimeType without the
	// adaptive engine.
	CanPlayType(mimeType string) bool

	// SetSource switches to direct-URL mode. An empty locator clears the source.
	SetSource(locator string)

	AttachStream(r io.Reader)
	DetachStream()

	// Play starts output. It blocks until output has started or failed.
	Play(ctx context.Context) error

	Pause()

	AddListener(kind EventKind, fn Listener, opts ...ListenerOption) ListenerID
	RemoveListener(id ListenerID)
	ListenerCount() int
}

// MimeType guesses the media type of a stream locator from its path.
func MimeType(locator string) string {
	p := locator
	if u, err := url.Parse(locator); err == nil && u.Path != "" {
		p = u.Path
	}

	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return MimeFallback
	}
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return MimeFallback
}

// typeSet is a case-insensitive set of MIME types.
type typeSet map[string]bool

func newTypeSet(types []string) typeSet {
	set := make(typeSet, len(types))
	for _, t := range types {
		set[strings.ToLower(strings.TrimSpace(t))] = true
	}
	return set
}

func (s typeSet) has(mimeType string) bool {
	return s[strings.ToLower(mimeType)]
}
