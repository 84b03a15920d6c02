package player

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/glebovdev/livetv-cli/internal/channel"
	"github.com/glebovdev/livetv-cli/internal/engine"
	"github.com/glebovdev/livetv-cli/internal/media"
)

// fakeOutput is a media output whose events are driven by the test.
type fakeOutput struct {
	native    map[string]bool
	listeners *media.Listeners

	mu        sync.Mutex
	sources   []string
	attached  int
	detached  int
	paused    int
	playCalls int
	playFn    func(ctx context.Context) error
}

func newFakeOutput(native ...string) *fakeOutput {
	o := &fakeOutput{
		native:    make(map[string]bool),
		listeners: media.NewListeners(),
	}
	for _, t := range native {
		o.native[t] = true
	}
	return o
}

func (o *fakeOutput) CanPlayType(mimeType string) bool {
	return o.native[mimeType]
}

func (o *fakeOutput) SetSource(locator string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sources = append(o.sources, locator)
}

func (o *fakeOutput) AttachStream(io.Reader) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attached++
}

func (o *fakeOutput) DetachStream() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.detached++
}

func (o *fakeOutput) Play(ctx context.Context) error {
	o.mu.Lock()
	o.playCalls++
	fn := o.playFn
	o.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return nil
}

func (o *fakeOutput) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused++
}

func (o *fakeOutput) AddListener(kind media.EventKind, fn media.Listener, opts ...media.ListenerOption) media.ListenerID {
	return o.listeners.Add(kind, fn, opts...)
}

func (o *fakeOutput) RemoveListener(id media.ListenerID) {
	o.listeners.Remove(id)
}

func (o *fakeOutput) ListenerCount() int {
	return o.listeners.Len()
}

func (o *fakeOutput) emit(kind media.EventKind, err error) {
	o.listeners.Emit(media.Event{Kind: kind, Err: err})
}

func (o *fakeOutput) setPlay(fn func(ctx context.Context) error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.playFn = fn
}

func (o *fakeOutput) plays() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.playCalls
}

func (o *fakeOutput) lastSource() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sources) == 0 {
		return ""
	}
	return o.sources[len(o.sources)-1]
}

// fakeEngine keeps its handlers after Destroy so tests can prove the
// supervisor removed them itself.
type fakeEngine struct {
	cfg engine.BufferConfig

	mu         sync.Mutex
	nextID     engine.HandlerID
	handlers   map[engine.HandlerID]handlerReg
	source     string
	output     media.Output
	startLoads int
	destroyed  bool
}

type handlerReg struct {
	kind engine.EventKind
	fn   engine.Handler
}

func (e *fakeEngine) LoadSource(url string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.source = url
}

func (e *fakeEngine) AttachMedia(out media.Output) {
	e.mu.Lock()
	e.output = out
	e.mu.Unlock()
	out.AttachStream(strings.NewReader(""))
}

func (e *fakeEngine) StartLoad() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startLoads++
}

func (e *fakeEngine) On(kind engine.EventKind, h engine.Handler) engine.HandlerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.handlers[e.nextID] = handlerReg{kind: kind, fn: h}
	return e.nextID
}

func (e *fakeEngine) Off(id engine.HandlerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, id)
}

func (e *fakeEngine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroyed = true
}

func (e *fakeEngine) emit(ev engine.Event) {
	e.mu.Lock()
	var fns []engine.Handler
	for _, h := range e.handlers {
		if h.kind == ev.Kind {
			fns = append(fns, h.fn)
		}
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (e *fakeEngine) handlerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}

func (e *fakeEngine) isDestroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}

func (e *fakeEngine) startLoadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startLoads
}

func (e *fakeEngine) loaded() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source
}

type fakeFactory struct {
	supported bool

	mu      sync.Mutex
	engines []*fakeEngine
}

func (f *fakeFactory) Supported() bool {
	return f.supported
}

func (f *fakeFactory) New(cfg engine.BufferConfig) engine.Engine {
	f.mu.Lock()
	defer f.mu.Unlock()

	e := &fakeEngine{cfg: cfg, handlers: make(map[engine.HandlerID]handlerReg)}
	f.engines = append(f.engines, e)
	return e
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

func (f *fakeFactory) engine(i int) *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engines[i]
}

func (f *fakeFactory) last() *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engines[len(f.engines)-1]
}

type overlayCall struct {
	kind    OverlayKind
	message string
}

type fakeOverlay struct {
	mu    sync.Mutex
	calls []overlayCall
}

func (o *fakeOverlay) Show(kind OverlayKind, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, overlayCall{kind: kind, message: message})
}

func (o *fakeOverlay) Hide() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, overlayCall{kind: OverlayHidden})
}

func (o *fakeOverlay) last() overlayCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.calls) == 0 {
		return overlayCall{kind: OverlayHidden}
	}
	return o.calls[len(o.calls)-1]
}

func (o *fakeOverlay) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.calls)
}

type fakeHighlighter struct {
	mu     sync.Mutex
	active Entry
}

func (h *fakeHighlighter) Highlight(entry Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = entry
}

func (h *fakeHighlighter) current() Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// catalogResolver resolves against a swappable catalog.
type catalogResolver struct {
	mu      sync.Mutex
	catalog *channel.Catalog
}

func (r *catalogResolver) set(channels ...channel.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalog = channel.NewCatalog(channels)
}

func (r *catalogResolver) Resolve(id, name string) (channel.Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.catalog.Lookup(id); ok {
		return ch, true
	}
	return r.catalog.FindByName(name)
}
