package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebovdev/livetv-cli/internal/config"
	"github.com/glebovdev/livetv-cli/internal/media"
	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// streamOutput records the stream an engine attaches.
type streamOutput struct {
	attached chan io.Reader
	detached atomic.Int32
}

func newStreamOutput() *streamOutput {
	return &streamOutput{attached: make(chan io.Reader, 1)}
}

func (o *streamOutput) CanPlayType(string) bool    { return false }
func (o *streamOutput) SetSource(string)           {}
func (o *streamOutput) AttachStream(r io.Reader)   { o.attached <- r }
func (o *streamOutput) DetachStream()              { o.detached.Add(1) }
func (o *streamOutput) Play(context.Context) error { return nil }
func (o *streamOutput) Pause()                     {}
func (o *streamOutput) AddListener(media.EventKind, media.Listener, ...media.ListenerOption) media.ListenerID {
	return 0
}
func (o *streamOutput) RemoveListener(media.ListenerID) {}
func (o *streamOutput) ListenerCount() int              { return 0 }

func (o *streamOutput) reader(t *testing.T) io.Reader {
	t.Helper()
	select {
	case r := <-o.attached:
		return r
	case <-time.After(time.Second):
		t.Fatal("engine did not attach a stream")
		return nil
	}
}

func mediaPlaylist(first, count int, ended bool) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:1\n")
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", first)
	for i := first; i < first+count; i++ {
		fmt.Fprintf(&b, "#EXTINF:1.000,\nseg%d.ts\n", i)
	}
	if ended {
		b.WriteString("#EXT-X-ENDLIST\n")
	}
	return b.String()
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) find(kind EventKind) (Event, bool) {
	for _, ev := range r.snapshot() {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return Event{}, false
}

func testConfig() BufferConfig {
	cfg := DefaultBufferConfig()
	cfg.RequestsPerSecond = 0
	return cfg
}

func newTestEngine(cfg BufferConfig) (*HLSEngine, *recorder) {
	e := NewHLSEngine(resty.New().SetTimeout(2*time.Second), cfg)
	rec := &recorder{}
	e.On(EventManifestParsed, rec.handle)
	e.On(EventError, rec.handle)
	return e, rec
}

func TestHLSEngineLiveEdge(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mux := http.NewServeMux()
	mux.HandleFunc("/live/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, mediaPlaylist(10, 5, false))
	})
	mux.HandleFunc("/live/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "[%s]", strings.TrimPrefix(r.URL.Path, "/live/"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	e, rec := newTestEngine(testConfig())
	out := newStreamOutput()

	e.AttachMedia(out)
	e.LoadSource(server.URL + "/live/index.m3u8")

	r := out.reader(t)
	want := "[seg12.ts][seg13.ts][seg14.ts]"
	got := make([]byte, len(want))
	_, err := io.ReadFull(r, got)
	require.NoError(t, err)
	assert.Equal(t, want, string(got))

	ev, ok := rec.find(EventManifestParsed)
	require.True(t, ok, "manifest parsed event")
	assert.Equal(t, 1, ev.Levels)

	e.Destroy()
	assert.Equal(t, int32(1), out.detached.Load())
}

func TestHLSEngineMasterPlaylistStartLevel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var requested sync.Map
	mux := http.NewServeMux()
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n"+
			"#EXT-X-STREAM-INF:BANDWIDTH=2000000\nhigh/index.m3u8\n"+
			"#EXT-X-STREAM-INF:BANDWIDTH=500000\nlow/index.m3u8\n")
	})
	for _, level := range []string{"high", "low"} {
		mux.HandleFunc("/"+level+"/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
			requested.Store(level, true)
			fmt.Fprint(w, mediaPlaylist(0, 2, true))
		})
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "x")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	e, rec := newTestEngine(testConfig())
	out := newStreamOutput()
	e.AttachMedia(out)
	e.LoadSource(server.URL + "/master.m3u8")

	data, err := io.ReadAll(out.reader(t))
	require.NoError(t, err)
	assert.Equal(t, "xx", string(data))

	ev, ok := rec.find(EventManifestParsed)
	require.True(t, ok)
	assert.Equal(t, 2, ev.Levels)

	_, low := requested.Load("low")
	_, high := requested.Load("high")
	assert.True(t, low, "lowest bandwidth variant should be loaded at start level 0")
	assert.False(t, high)

	e.Destroy()
}

func TestHLSEngineEndedPlaylistClosesStream(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mux := http.NewServeMux()
	mux.HandleFunc("/vod.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, mediaPlaylist(0, 4, true))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/seg"), ".ts"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	e, _ := newTestEngine(testConfig())
	out := newStreamOutput()
	e.AttachMedia(out)
	e.LoadSource(server.URL + "/vod.m3u8")

	data, err := io.ReadAll(out.reader(t))
	require.NoError(t, err)
	assert.Equal(t, "0123", string(data))

	e.Destroy()
}

func TestHLSEngineManifestFailureIsFatal(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	e, rec := newTestEngine(testConfig())
	out := newStreamOutput()
	e.AttachMedia(out)
	e.LoadSource(server.URL + "/missing.m3u8")

	assert.Eventually(t, func() bool {
		_, ok := rec.find(EventError)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	ev, _ := rec.find(EventError)
	assert.True(t, ev.Fatal)
	assert.Equal(t, DetailManifestLoad, ev.Details)
	assert.Error(t, ev.Err)

	_, parsed := rec.find(EventManifestParsed)
	assert.False(t, parsed)

	e.Destroy()
}

func TestHLSEngineSegmentFailuresEscalate(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mux := http.NewServeMux()
	mux.HandleFunc("/live.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, mediaPlaylist(0, 3, false))
	})
	mux.Handle("/", http.NotFoundHandler())
	server := httptest.NewServer(mux)
	defer server.Close()

	e, rec := newTestEngine(testConfig())
	out := newStreamOutput()
	e.AttachMedia(out)
	e.LoadSource(server.URL + "/live.m3u8")

	assert.Eventually(t, func() bool {
		for _, ev := range rec.snapshot() {
			if ev.Kind == EventError && ev.Fatal {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	var warnings int
	for _, ev := range rec.snapshot() {
		if ev.Kind == EventError && !ev.Fatal {
			warnings++
			assert.Equal(t, DetailSegmentLoad, ev.Details)
		}
	}
	assert.Equal(t, MaxConsecutiveFailures-1, warnings)

	e.Destroy()
}

func TestHLSEngineIntermittentReloadFailuresRecover(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var requests atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/live.m3u8", func(w http.ResponseWriter, r *http.Request) {
		// The manifest and first playlist fetch succeed, then every other
		// reload fails.
		if n := requests.Add(1); n > 2 && n%2 == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, mediaPlaylist(0, 3, false))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	e, rec := newTestEngine(testConfig())
	out := newStreamOutput()
	e.AttachMedia(out)
	e.LoadSource(server.URL + "/live.m3u8")

	require.Eventually(t, func() bool {
		return requests.Load() >= 2*MaxConsecutiveFailures+2
	}, 10*time.Second, 20*time.Millisecond)

	var warnings int
	for _, ev := range rec.snapshot() {
		if ev.Kind != EventError {
			continue
		}
		assert.False(t, ev.Fatal, "reload failures separated by successful reloads must stay non-fatal")
		assert.Equal(t, DetailLevelLoad, ev.Details)
		warnings++
	}
	assert.GreaterOrEqual(t, warnings, MaxConsecutiveFailures)

	e.Destroy()
}

func TestHLSEngineDestroy(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mux := http.NewServeMux()
	mux.HandleFunc("/live.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, mediaPlaylist(0, 3, false))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	e, rec := newTestEngine(testConfig())
	out := newStreamOutput()
	e.AttachMedia(out)
	e.LoadSource(server.URL + "/live.m3u8")

	assert.Eventually(t, func() bool {
		_, ok := rec.find(EventManifestParsed)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	// Nobody reads the stream, so the writer is blocked on the pipe.
	e.Destroy()
	e.Destroy()

	assert.Equal(t, int32(1), out.detached.Load())
	assert.Equal(t, 0, e.HandlerCount())

	before := len(rec.snapshot())
	e.StartLoad()
	e.LoadSource(server.URL + "/live.m3u8")
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rec.snapshot(), before)
}

func TestHLSEngineHandlersOff(t *testing.T) {
	e := NewHLSEngine(resty.New(), testConfig())

	calls := 0
	id := e.On(EventError, func(Event) { calls++ })
	e.On(EventManifestParsed, func(Event) {})
	assert.Equal(t, 2, e.HandlerCount())

	e.Off(id)
	e.emit(Event{Kind: EventError})
	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, e.HandlerCount())

	e.Destroy()
}

func TestStartIndex(t *testing.T) {
	tests := []struct {
		name      string
		playlist  string
		syncCount int
		want      uint64
	}{
		{"live edge", mediaPlaylist(0, 6, false), 3, 3},
		{"short live playlist", mediaPlaylist(0, 2, false), 3, 0},
		{"ended playlist", mediaPlaylist(0, 6, true), 3, 0},
		{"sync disabled", mediaPlaylist(0, 6, false), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewHLSEngine(resty.New(), testConfig())
			defer e.Destroy()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.playlist)
			}))
			defer server.Close()

			pl, err := e.fetchMediaPlaylist(context.Background(), server.URL)
			require.NoError(t, err)
			assert.Equal(t, tt.want, startIndex(pl, tt.syncCount))
		})
	}
}

func TestResolveURL(t *testing.T) {
	got, err := resolveURL("https://cdn.example.com/live/index.m3u8?token=1", "seg1.ts")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/live/seg1.ts", got)

	got, err = resolveURL("https://cdn.example.com/live/index.m3u8", "https://other.example.com/seg.ts")
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com/seg.ts", got)
}

func TestBackBuffer(t *testing.T) {
	b := newBackBuffer(3 * time.Second)
	for seq := uint64(0); seq < 5; seq++ {
		b.add(seq, time.Second)
	}

	assert.False(t, b.has(0))
	assert.False(t, b.has(1))
	assert.True(t, b.has(2))
	assert.True(t, b.has(4))
}

func TestReloadInterval(t *testing.T) {
	cfg := testConfig()
	cfg.LowLatencyMode = false
	e := NewHLSEngine(resty.New(), cfg)
	defer e.Destroy()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Replace(mediaPlaylist(0, 1, false), "TARGETDURATION:1", "TARGETDURATION:4", 1))
	}))
	defer server.Close()

	mp, err := e.fetchMediaPlaylist(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, e.reloadInterval(mp))

	e.cfg.LowLatencyMode = true
	assert.Equal(t, 2*time.Second, e.reloadInterval(mp))
}

func TestNewBufferConfig(t *testing.T) {
	cfg := DefaultBufferConfig()
	assert.True(t, cfg.LowLatencyMode)
	assert.Equal(t, 60*time.Second, cfg.MaxBufferLength)
	assert.Equal(t, 120*time.Second, cfg.MaxMaxBufferLength)
	assert.Equal(t, 90*time.Second, cfg.BackBufferLength)
	assert.Equal(t, 3, cfg.LiveSyncDurationCount)
	assert.Equal(t, 0, cfg.StartLevel)

	buffer := config.DefaultConfig().Buffer
	buffer.MaxBufferLength = 10 * time.Second
	buffer.StartLevel = 2
	buffer.LowLatencyMode = false

	custom := NewBufferConfig(buffer)
	assert.Equal(t, 10*time.Second, custom.MaxBufferLength)
	assert.Equal(t, 2, custom.StartLevel)
	assert.False(t, custom.LowLatencyMode)
	assert.Equal(t, cfg.RequestsPerSecond, custom.RequestsPerSecond)
}
