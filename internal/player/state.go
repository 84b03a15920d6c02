package player

import "time"

type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StateBuffering
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateLoading:
		return "LOADING"
	case StatePlaying:
		return "LIVE"
	case StateBuffering:
		return "BUFFERING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// OverlayKind is the overlay projection of a State.
type OverlayKind int

const (
	OverlayHidden OverlayKind = iota
	OverlayLoading
	OverlayError
)

func (k OverlayKind) String() string {
	switch k {
	case OverlayHidden:
		return "hidden"
	case OverlayLoading:
		return "loading"
	case OverlayError:
		return "error"
	default:
		return "unknown"
	}
}

// Overlay returns the overlay kind shown for s.
func (s State) Overlay() OverlayKind {
	switch s {
	case StateLoading, StateBuffering:
		return OverlayLoading
	case StateError:
		return OverlayError
	default:
		return OverlayHidden
	}
}

// Status is an immutable snapshot of the supervisor.
type Status struct {
	State          State
	Overlay        OverlayKind
	ChannelID      string
	ChannelName    string
	StreamURL      string
	SessionID      string
	Err            error
	Message        string
	WatchdogArmed  bool
	HasSession     bool
	HandlerCount   int
	Adaptive       bool
	SessionStarted time.Time
}

// Selected reports whether a channel is marked active.
func (s Status) Selected() bool {
	return s.ChannelID != "" || s.ChannelName != ""
}
