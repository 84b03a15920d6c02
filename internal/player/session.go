package player

import (
	"context"
	"time"

	"github.com/glebovdev/livetv-cli/internal/engine"
	"github.com/glebovdev/livetv-cli/internal/media"
	"github.com/google/uuid"
)

type target int

const (
	targetOutput target = iota
	targetEngine
)

// registration records one handler the session attached to the output or
// the engine.
type registration struct {
	target   target
	kind     string
	outputID media.ListenerID
	engineID engine.HandlerID
}

// session owns every resource of one playback attempt.
type session struct {
	id        string
	channelID string
	name      string
	url       string
	entry     Entry
	engine    engine.Engine
	adaptive  bool
	regs      []registration
	ctx       context.Context
	cancel    context.CancelFunc
	started   time.Time
	playing   bool
	requested bool
}

func newSession(streamURL string, entry Entry, now time.Time) *session {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:      uuid.NewString(),
		url:     streamURL,
		entry:   entry,
		ctx:     ctx,
		cancel:  cancel,
		started: now,
	}
	if entry != nil {
		sess.channelID = entry.ID()
		sess.name = entry.DisplayName()
	}
	return sess
}

func (s *session) onOutput(out media.Output, kind media.EventKind, fn media.Listener, opts ...media.ListenerOption) {
	id := out.AddListener(kind, fn, opts...)
	s.regs = append(s.regs, registration{target: targetOutput, kind: kind.String(), outputID: id})
}

func (s *session) onEngine(kind engine.EventKind, fn engine.Handler) {
	id := s.engine.On(kind, fn)
	s.regs = append(s.regs, registration{target: targetEngine, kind: kind.String(), engineID: id})
}

// release removes every registration, destroys the engine and resets the
// output. Calling it twice is harmless.
func (s *session) release(out media.Output) {
	for _, reg := range s.regs {
		switch reg.target {
		case targetOutput:
			out.RemoveListener(reg.outputID)
		case targetEngine:
			if s.engine != nil {
				s.engine.Off(reg.engineID)
			}
		}
	}
	s.regs = nil

	if s.engine != nil {
		s.engine.Destroy()
		s.engine = nil
	}

	out.SetSource("")
	out.DetachStream()
	out.Pause()
	s.cancel()
}
