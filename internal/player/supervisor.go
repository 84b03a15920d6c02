// Package player supervises playback sessions: it owns the media output,
// the streaming engine instance and the load watchdog, and projects the
// session state onto the overlay.
package player

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/glebovdev/livetv-cli/internal/channel"
	"github.com/glebovdev/livetv-cli/internal/config"
	"github.com/glebovdev/livetv-cli/internal/engine"
	"github.com/glebovdev/livetv-cli/internal/media"
	"github.com/glebovdev/livetv-cli/internal/metrics"
	"github.com/rs/zerolog/log"
)

const detailOutput = "output"

// Entry is a display handle for the selected channel. It owns nothing.
type Entry interface {
	ID() string
	DisplayName() string
}

// Highlighter marks an entry as the active selection.
type Highlighter interface {
	Highlight(entry Entry)
}

// Overlay renders the loading and error indicator. Redundant calls must be
// harmless.
type Overlay interface {
	Show(kind OverlayKind, message string)
	Hide()
}

// Resolver maps a selection back to a current catalog record, by stable id
// first and display name second.
type Resolver interface {
	Resolve(id, name string) (channel.Channel, bool)
}

type Options struct {
	Output      media.Output
	Engines     engine.Factory
	Buffer      engine.BufferConfig
	Overlay     Overlay
	Highlighter Highlighter
	Resolver    Resolver
	Clock       clock.Clock
	LoadTimeout time.Duration
	// OnChange receives every published status on the supervisor goroutine.
	OnChange func(Status)
}

type signal int

const (
	sigStart signal = iota
	sigBuffering
	sigPlaying
	sigFailed
	sigTeardown
)

// transitions lists every legal state change. A signal missing for a state
// is ignored, so a buffering signal can never leave StateError.
var transitions = map[State]map[signal]State{
	StateIdle: {
		sigStart: StateLoading,
	},
	StateLoading: {
		sigStart:    StateLoading,
		sigPlaying:  StatePlaying,
		sigFailed:   StateError,
		sigTeardown: StateIdle,
	},
	StatePlaying: {
		sigStart:     StateLoading,
		sigBuffering: StateBuffering,
		sigPlaying:   StatePlaying,
		sigFailed:    StateError,
		sigTeardown:  StateIdle,
	},
	StateBuffering: {
		sigStart:     StateLoading,
		sigBuffering: StateBuffering,
		sigPlaying:   StatePlaying,
		sigFailed:    StateError,
		sigTeardown:  StateIdle,
	},
	StateError: {
		sigStart:    StateLoading,
		sigTeardown: StateIdle,
	},
}

// mailbox is an unbounded queue drained by the supervisor loop. Posting
// never blocks.
type mailbox struct {
	mu     sync.Mutex
	items  []func()
	notify chan struct{}
}

func (m *mailbox) post(fn func()) {
	m.mu.Lock()
	m.items = append(m.items, fn)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox) next() (func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return nil, false
	}
	fn := m.items[0]
	m.items[0] = nil
	m.items = m.items[1:]
	return fn, true
}

// Supervisor runs every playback transition on a single goroutine. Public
// methods enqueue work and return immediately.
type Supervisor struct {
	output      media.Output
	engines     engine.Factory
	buffer      engine.BufferConfig
	overlay     Overlay
	highlighter Highlighter
	resolver    Resolver
	clock       clock.Clock
	onChange    func(Status)

	mbox     mailbox
	quit     chan struct{}
	done     chan struct{}
	plays    sync.WaitGroup
	disposed sync.Once
	status   atomic.Pointer[Status]

	// Owned by the loop goroutine.
	state       State
	lastErr     error
	session     *session
	selected    Entry
	watchdog    *watchdog
	shown       OverlayKind
	shownMsg    string
	overlayInit bool
}

func New(opts Options) *Supervisor {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	timeout := opts.LoadTimeout
	if timeout <= 0 {
		timeout = config.DefaultLoadTimeout
	}

	s := &Supervisor{
		output:      opts.Output,
		engines:     opts.Engines,
		buffer:      opts.Buffer,
		overlay:     opts.Overlay,
		highlighter: opts.Highlighter,
		resolver:    opts.Resolver,
		clock:       clk,
		onChange:    opts.OnChange,
		mbox:        mailbox{notify: make(chan struct{}, 1)},
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		watchdog:    newWatchdog(clk, timeout),
	}
	s.status.Store(&Status{State: StateIdle, Overlay: OverlayHidden})

	go s.run()
	return s
}

func (s *Supervisor) run() {
	defer close(s.done)

	for {
		select {
		case <-s.quit:
			s.release()
			s.lastErr = nil
			s.apply(sigTeardown)
			s.publish()
			return
		case <-s.mbox.notify:
			for {
				fn, ok := s.mbox.next()
				if !ok {
					break
				}
				fn()
				s.publish()
			}
		case <-s.watchdog.C():
			s.onTimeout()
			s.publish()
		}
	}
}

func (s *Supervisor) post(fn func()) {
	select {
	case <-s.quit:
		return
	default:
	}
	s.mbox.post(fn)
}

// StartPlayback replaces any current session with a new one for streamURL
// and marks entry as active.
func (s *Supervisor) StartPlayback(streamURL string, entry Entry) {
	s.post(func() {
		s.startPlayback(streamURL, entry)
	})
}

// RetryCurrentSelection restarts the active selection with its current
// catalog URL. It does nothing when nothing is selected or the selection
// is no longer in the catalog.
func (s *Supervisor) RetryCurrentSelection() {
	s.post(func() {
		if s.selected == nil || s.resolver == nil {
			return
		}

		ch, ok := s.resolver.Resolve(s.selected.ID(), s.selected.DisplayName())
		if !ok {
			log.Debug().Str("channel", s.selected.DisplayName()).Msg("Retry skipped, channel no longer in catalog")
			return
		}
		s.startPlayback(ch.URL, ch)
	})
}

// Stop tears down the current session and hides the overlay.
func (s *Supervisor) Stop() {
	s.post(func() {
		s.release()
		s.lastErr = nil
		s.apply(sigTeardown)
	})
}

// Dispose stops the supervisor. It blocks until every session resource and
// pending play attempt has been released.
func (s *Supervisor) Dispose() {
	s.disposed.Do(func() {
		close(s.quit)
		<-s.done
		s.plays.Wait()
		log.Debug().Msg("Playback supervisor disposed")
	})
}

func (s *Supervisor) Status() Status {
	return *s.status.Load()
}

func (s *Supervisor) startPlayback(streamURL string, entry Entry) {
	streamURL = strings.TrimSpace(streamURL)
	if streamURL == "" {
		log.Warn().Msg("Ignoring playback request without a stream URL")
		return
	}

	s.release()

	s.selected = entry
	if s.highlighter != nil && entry != nil {
		s.highlighter.Highlight(entry)
	}

	sess := newSession(streamURL, entry, s.clock.Now())
	s.session = sess
	s.lastErr = nil
	s.apply(sigStart)
	s.watchdog.arm(sess.id)

	log.Debug().Str("session", sess.id).Str("channel", sess.name).Str("url", streamURL).Msg("Starting playback")

	sess.onOutput(s.output, media.EventWaiting, s.outputHandler(sess, s.onWaiting))
	sess.onOutput(s.output, media.EventPlaying, s.outputHandler(sess, s.onPlaying))
	sess.onOutput(s.output, media.EventEnded, s.outputHandler(sess, s.onEnded))
	sess.onOutput(s.output, media.EventError, s.outputHandler(sess, s.onOutputError))

	mimeType := media.MimeType(streamURL)
	switch {
	case s.output.CanPlayType(mimeType):
		log.Debug().Str("type", mimeType).Msg("Using native playback")
		sess.onOutput(s.output, media.EventLoadedMetadata, s.outputHandler(sess, func(*session, media.Event) {
			s.play(sess)
		}), media.Once())
		s.output.SetSource(streamURL)

	case s.engines != nil && s.engines.Supported():
		log.Debug().Str("type", mimeType).Msg("Using adaptive engine")
		eng := s.engines.New(s.buffer)
		sess.engine = eng
		sess.adaptive = true
		sess.onEngine(engine.EventManifestParsed, s.engineHandler(sess, func(sess *session, _ engine.Event) {
			if sess.engine != nil {
				sess.engine.StartLoad()
			}
			s.play(sess)
		}))
		sess.onEngine(engine.EventError, s.engineHandler(sess, s.onEngineError))
		eng.AttachMedia(s.output)
		eng.LoadSource(streamURL)

	default:
		s.fail(ErrUnsupportedFormat)
		return
	}

	metrics.SessionsStarted.Inc()
	metrics.ActiveSessions.Set(1)
}

// outputHandler wraps fn so that it runs on the loop and only while sess
// is current.
func (s *Supervisor) outputHandler(sess *session, fn func(*session, media.Event)) media.Listener {
	return func(ev media.Event) {
		s.post(func() {
			if s.session != sess {
				return
			}
			fn(sess, ev)
		})
	}
}

func (s *Supervisor) engineHandler(sess *session, fn func(*session, engine.Event)) engine.Handler {
	return func(ev engine.Event) {
		s.post(func() {
			if s.session != sess {
				return
			}
			fn(sess, ev)
		})
	}
}

// play starts output in a tracked goroutine. Its result is delivered back
// to the loop and dropped if the session has been replaced meanwhile.
func (s *Supervisor) play(sess *session) {
	if sess.requested {
		return
	}
	sess.requested = true

	ctx := sess.ctx
	s.plays.Add(1)
	go func() {
		defer s.plays.Done()

		err := s.output.Play(ctx)
		s.post(func() {
			s.onPlayResult(sess, err)
		})
	}()
}

func (s *Supervisor) onPlayResult(sess *session, err error) {
	if s.session != sess {
		return
	}

	if err != nil {
		s.fail(&StartRejectedError{Err: err})
		return
	}
	s.markPlaying(sess)
}

func (s *Supervisor) markPlaying(sess *session) {
	s.watchdog.disarm()
	s.apply(sigPlaying)

	if !sess.playing {
		sess.playing = true
		metrics.ObserveStartupLatency(s.clock.Since(sess.started))
		log.Debug().Str("session", sess.id).Msg("Playback started")
	}
}

func (s *Supervisor) onWaiting(*session, media.Event) {
	s.apply(sigBuffering)
}

func (s *Supervisor) onPlaying(sess *session, _ media.Event) {
	s.markPlaying(sess)
}

func (s *Supervisor) onEnded(_ *session, ev media.Event) {
	if ev.Err != nil {
		s.fail(&FatalEngineError{Details: detailOutput, Err: ev.Err})
		return
	}

	log.Info().Msg("Stream ended")
	s.release()
	s.apply(sigTeardown)
}

func (s *Supervisor) onOutputError(_ *session, ev media.Event) {
	s.fail(&FatalEngineError{Details: detailOutput, Err: ev.Err})
}

func (s *Supervisor) onEngineError(_ *session, ev engine.Event) {
	if !ev.Fatal {
		log.Warn().Err(ev.Err).Str("details", ev.Details).Msg("Streaming engine warning")
		metrics.EngineWarnings.Inc()
		return
	}
	s.fail(&FatalEngineError{Details: ev.Details, Err: ev.Err})
}

func (s *Supervisor) onTimeout() {
	if s.session == nil || s.watchdog.session != s.session.id {
		s.watchdog.disarm()
		return
	}
	s.fail(ErrPlaybackTimeout)
}

// fail releases the session and enters StateError.
func (s *Supervisor) fail(err error) {
	log.Error().Err(err).Msg("Playback failed")
	metrics.RecordPlaybackFailure(failureReason(err))

	s.release()
	s.lastErr = err
	s.apply(sigFailed)
}

// release frees every resource of the current session. It is a no-op
// without a session.
func (s *Supervisor) release() {
	s.watchdog.disarm()

	if s.session == nil {
		return
	}

	s.session.release(s.output)
	log.Debug().Str("session", s.session.id).Msg("Session released")
	s.session = nil
	metrics.ActiveSessions.Set(0)
}

func (s *Supervisor) apply(sig signal) {
	next, ok := transitions[s.state][sig]
	if !ok {
		return
	}
	if next != s.state {
		log.Debug().Msgf("Player state: %s -> %s", s.state, next)
		s.state = next
	}
	s.render()
}

// render pushes the overlay projection of the current state to the presenter.
func (s *Supervisor) render() {
	if s.overlay == nil {
		return
	}

	kind := s.state.Overlay()
	msg := ""
	if kind == OverlayError {
		msg = Message(s.lastErr)
	}

	if s.overlayInit && kind == s.shown && msg == s.shownMsg {
		return
	}
	s.overlayInit = true
	s.shown = kind
	s.shownMsg = msg

	if kind == OverlayHidden {
		s.overlay.Hide()
		return
	}
	s.overlay.Show(kind, msg)
}

func (s *Supervisor) publish() {
	st := &Status{
		State:         s.state,
		Overlay:       s.state.Overlay(),
		Err:           s.lastErr,
		WatchdogArmed: s.watchdog.armed(),
	}
	if st.Overlay == OverlayError {
		st.Message = Message(s.lastErr)
	}
	if s.selected != nil {
		st.ChannelID = s.selected.ID()
		st.ChannelName = s.selected.DisplayName()
	}
	if sess := s.session; sess != nil {
		st.HasSession = true
		st.SessionID = sess.id
		st.StreamURL = sess.url
		st.HandlerCount = len(sess.regs)
		st.Adaptive = sess.adaptive
		st.SessionStarted = sess.started
	}

	s.status.Store(st)
	if s.onChange != nil {
		s.onChange(*st)
	}
}
