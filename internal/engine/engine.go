// Package engine implements the adaptive streaming engine used when the
// media output cannot play a stream type natively.
package engine

import (
	"sync"
	"time"

	"github.com/glebovdev/livetv-cli/internal/config"
	"github.com/glebovdev/livetv-cli/internal/media"
)

type EventKind int

const (
	EventManifestParsed EventKind = iota
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventManifestParsed:
		return "manifest-parsed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Error details reported with EventError.
const (
	DetailManifestLoad  = "manifest-load"
	DetailManifestParse = "manifest-parse"
	DetailLevelLoad     = "level-load"
	DetailSegmentLoad   = "segment-load"
	DetailMediaWrite    = "media-write"
)

// Event is delivered to engine handlers. Levels is set for
// EventManifestParsed; Fatal, Details and Err for EventError.
type Event struct {
	Kind    EventKind
	Levels  int
	Fatal   bool
	Details string
	Err     error
}

type Handler func(Event)

type HandlerID uint64

// BufferConfig tunes live loading.
type BufferConfig struct {
	LowLatencyMode        bool
	BackBufferLength      time.Duration
	MaxBufferLength       time.Duration
	MaxMaxBufferLength    time.Duration
	LiveSyncDurationCount int
	// StartLevel indexes variants ordered by bandwidth. Negative picks the lowest.
	StartLevel        int
	AutoStartLoad     bool
	RequestsPerSecond int
}

// NewBufferConfig converts the buffer section of the config file.
func NewBufferConfig(b config.Buffer) BufferConfig {
	return BufferConfig{
		LowLatencyMode:        b.LowLatencyMode,
		BackBufferLength:      b.BackBufferLength,
		MaxBufferLength:       b.MaxBufferLength,
		MaxMaxBufferLength:    b.MaxMaxBufferLength,
		LiveSyncDurationCount: b.LiveSyncDurationCount,
		StartLevel:            b.StartLevel,
		AutoStartLoad:         b.AutoStartLoad,
		RequestsPerSecond:     b.RequestsPerSecond,
	}
}

// DefaultBufferConfig returns the tuning used when the config file sets none.
func DefaultBufferConfig() BufferConfig {
	return NewBufferConfig(config.DefaultConfig().Buffer)
}

// Engine loads an adaptive stream and feeds it to an attached output.
type Engine interface {
	LoadSource(url string)
	AttachMedia(out media.Output)
	StartLoad()
	On(kind EventKind, h Handler) HandlerID
	Off(id HandlerID)
	// Destroy stops loading and detaches the output. It is idempotent.
	Destroy()
}

// Factory creates engines. Supported reports whether adaptive playback
// is available at all in this environment.
type Factory interface {
	Supported() bool
	New(cfg BufferConfig) Engine
}

type handlerEntry struct {
	id   HandlerID
	kind EventKind
	fn   Handler
}

// handlers is an ordered handler list shared by engine implementations.
type handlers struct {
	mu      sync.Mutex
	nextID  HandlerID
	entries []handlerEntry
}

func (h *handlers) add(kind EventKind, fn Handler) HandlerID {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	h.entries = append(h.entries, handlerEntry{id: h.nextID, kind: kind, fn: fn})
	return h.nextID
}

func (h *handlers) remove(id HandlerID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, e := range h.entries {
		if e.id == id {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			return
		}
	}
}

func (h *handlers) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}

func (h *handlers) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func (h *handlers) emit(ev Event) {
	h.mu.Lock()
	var matched []Handler
	for _, e := range h.entries {
		if e.kind == ev.Kind {
			matched = append(matched, e.fn)
		}
	}
	h.mu.Unlock()

	for _, fn := range matched {
		fn(ev)
	}
}
