package media

import (
	"slices"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

type EventKind int

const (
	EventLoadedMetadata EventKind = iota
	EventWaiting
	EventPlaying
	EventEnded
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventLoadedMetadata:
		return "loadedmetadata"
	case EventWaiting:
		return "waiting"
	case EventPlaying:
		return "playing"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered to listeners. Err is set for EventError and for an
// EventEnded caused by an abnormal exit.
type Event struct {
	Kind EventKind
	Err  error
}

type Listener func(Event)

type ListenerID uint64

type listenerEntry struct {
	kind EventKind
	fn   Listener
	once bool
}

type ListenerOption func(*listenerEntry)

// Once removes the listener before its first invocation.
func Once() ListenerOption {
	return func(e *listenerEntry) {
		e.once = true
	}
}

// Listeners is a concurrent listener registry shared by output implementations.
type Listeners struct {
	nextID  atomic.Uint64
	entries *xsync.MapOf[ListenerID, *listenerEntry]
}

func NewListeners() *Listeners {
	return &Listeners{
		entries: xsync.NewMapOf[ListenerID, *listenerEntry](),
	}
}

func (l *Listeners) Add(kind EventKind, fn Listener, opts ...ListenerOption) ListenerID {
	entry := &listenerEntry{kind: kind, fn: fn}
	for _, opt := range opts {
		opt(entry)
	}

	id := ListenerID(l.nextID.Add(1))
	l.entries.Store(id, entry)
	return id
}

// Remove is a no-op for unknown or already fired once-listeners.
func (l *Listeners) Remove(id ListenerID) {
	l.entries.Delete(id)
}

func (l *Listeners) Len() int {
	return l.entries.Size()
}

func (l *Listeners) Clear() {
	l.entries.Clear()
}

// Emit invokes the listeners registered for ev.Kind in registration order.
func (l *Listeners) Emit(ev Event) {
	var ids []ListenerID
	l.entries.Range(func(id ListenerID, entry *listenerEntry) bool {
		if entry.kind == ev.Kind {
			ids = append(ids, id)
		}
		return true
	})
	slices.Sort(ids)

	for _, id := range ids {
		entry, ok := l.entries.Load(id)
		if !ok {
			continue
		}
		if entry.once {
			// Only the caller that deletes the entry may fire it.
			if _, deleted := l.entries.LoadAndDelete(id); !deleted {
				continue
			}
		}
		entry.fn(ev)
	}
}
