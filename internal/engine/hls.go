package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebovdev/livetv-cli/internal/config"
	"github.com/glebovdev/livetv-cli/internal/media"
	"github.com/go-resty/resty/v2"
	"github.com/grafov/m3u8"
	"github.com/rs/zerolog/log"
	"go.uber.org/ratelimit"
)

const (
	RequestTimeout         = 10 * time.Second
	MaxConsecutiveFailures = 3
	SegmentQueueSize       = 64
	MinReloadInterval      = 500 * time.Millisecond
	DefaultTargetDuration  = 6 * time.Second
)

// HLSFactory creates HLS engines sharing one HTTP client.
type HLSFactory struct {
	client *resty.Client
}

func NewHLSFactory() *HLSFactory {
	client := resty.New().
		SetTimeout(RequestTimeout).
		SetHeader("User-Agent", fmt.Sprintf("LiveTV-CLI/%s", config.AppVersion))

	return &HLSFactory{client: client}
}

func (f *HLSFactory) Supported() bool {
	return true
}

func (f *HLSFactory) New(cfg BufferConfig) Engine {
	return NewHLSEngine(f.client, cfg)
}

type segment struct {
	seq      uint64
	duration time.Duration
	data     []byte
}

// HLSEngine follows a live HLS media playlist and writes its segments, in
// order, to the attached output's stream.
type HLSEngine struct {
	cfg      BufferConfig
	client   *resty.Client
	limiter  ratelimit.Limiter
	handlers handlers

	mu        sync.Mutex
	source    string
	output    media.Output
	pr        *io.PipeReader
	pw        *io.PipeWriter
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
	destroyed bool
	wg        sync.WaitGroup

	queued atomic.Int64
}

func NewHLSEngine(client *resty.Client, cfg BufferConfig) *HLSEngine {
	limiter := ratelimit.NewUnlimited()
	if cfg.RequestsPerSecond > 0 {
		limiter = ratelimit.New(cfg.RequestsPerSecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &HLSEngine{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (e *HLSEngine) On(kind EventKind, h Handler) HandlerID {
	return e.handlers.add(kind, h)
}

func (e *HLSEngine) Off(id HandlerID) {
	e.handlers.remove(id)
}

// HandlerCount reports registered handlers.
func (e *HLSEngine) HandlerCount() int {
	return e.handlers.len()
}

func (e *HLSEngine) emit(ev Event) {
	e.mu.Lock()
	destroyed := e.destroyed
	e.mu.Unlock()

	if !destroyed {
		e.handlers.emit(ev)
	}
}

func (e *HLSEngine) LoadSource(url string) {
	e.mu.Lock()
	e.source = url
	auto := e.cfg.AutoStartLoad && e.output != nil
	e.mu.Unlock()

	if auto {
		e.StartLoad()
	}
}

func (e *HLSEngine) AttachMedia(out media.Output) {
	e.mu.Lock()
	if e.destroyed || e.output != nil {
		e.mu.Unlock()
		return
	}

	e.pr, e.pw = io.Pipe()
	e.output = out
	auto := e.cfg.AutoStartLoad && e.source != ""
	e.mu.Unlock()

	out.AttachStream(e.pr)

	if auto {
		e.StartLoad()
	}
}

func (e *HLSEngine) StartLoad() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started || e.destroyed || e.source == "" || e.output == nil {
		return
	}
	e.started = true

	e.wg.Add(1)
	go e.run(e.ctx, e.source, e.pw)
}

func (e *HLSEngine) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	e.cancel()

	out := e.output
	e.output = nil
	if e.pw != nil {
		e.pw.Close()
	}
	if e.pr != nil {
		e.pr.Close()
	}
	e.mu.Unlock()

	e.handlers.clear()
	if out != nil {
		out.DetachStream()
	}

	e.wg.Wait()
	log.Debug().Msg("HLS engine destroyed")
}

func (e *HLSEngine) run(ctx context.Context, source string, pw *io.PipeWriter) {
	defer e.wg.Done()

	playlistURL, levels, err := e.loadManifest(ctx, source)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Str("url", source).Msg("Failed to load manifest")
			e.emit(Event{Kind: EventError, Fatal: true, Details: DetailManifestLoad, Err: err})
		}
		return
	}

	mediaPl, err := e.fetchMediaPlaylist(ctx, playlistURL)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Str("url", playlistURL).Msg("Failed to load media playlist")
			e.emit(Event{Kind: EventError, Fatal: true, Details: DetailLevelLoad, Err: err})
		}
		return
	}

	log.Debug().Int("levels", levels).Str("playlist", playlistURL).Msg("Manifest parsed")
	e.emit(Event{Kind: EventManifestParsed, Levels: levels})

	queue := make(chan segment, SegmentQueueSize)

	e.wg.Add(1)
	go e.writeSegments(ctx, queue, pw)

	e.follow(ctx, playlistURL, mediaPl, queue)
}

// loadManifest resolves source to a media playlist URL. For a master
// playlist it picks the configured start level.
func (e *HLSEngine) loadManifest(ctx context.Context, source string) (string, int, error) {
	playlist, listType, err := e.fetchPlaylist(ctx, source)
	if err != nil {
		return "", 0, err
	}

	if listType == m3u8.MEDIA {
		return source, 1, nil
	}

	master, ok := playlist.(*m3u8.MasterPlaylist)
	if !ok {
		return "", 0, errors.New("unexpected playlist type")
	}

	variants := make([]*m3u8.Variant, 0, len(master.Variants))
	for _, v := range master.Variants {
		if v != nil && v.URI != "" {
			variants = append(variants, v)
		}
	}
	if len(variants) == 0 {
		return "", 0, errors.New("master playlist has no variants")
	}

	sort.SliceStable(variants, func(i, j int) bool {
		return variants[i].Bandwidth < variants[j].Bandwidth
	})

	level := e.cfg.StartLevel
	if level < 0 {
		level = 0
	}
	if level >= len(variants) {
		level = len(variants) - 1
	}

	variantURL, err := resolveURL(source, variants[level].URI)
	if err != nil {
		return "", 0, err
	}

	log.Debug().Int("level", level).Uint32("bandwidth", variants[level].Bandwidth).Msg("Selected variant")
	return variantURL, len(variants), nil
}

func (e *HLSEngine) fetchPlaylist(ctx context.Context, playlistURL string) (m3u8.Playlist, m3u8.ListType, error) {
	body, err := e.get(ctx, playlistURL)
	if err != nil {
		return nil, 0, err
	}

	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), true)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse playlist: %w", err)
	}
	return playlist, listType, nil
}

func (e *HLSEngine) fetchMediaPlaylist(ctx context.Context, playlistURL string) (*m3u8.MediaPlaylist, error) {
	playlist, listType, err := e.fetchPlaylist(ctx, playlistURL)
	if err != nil {
		return nil, err
	}
	if listType != m3u8.MEDIA {
		return nil, fmt.Errorf("playlist is not a media playlist: %s", playlistURL)
	}
	return playlist.(*m3u8.MediaPlaylist), nil
}

func (e *HLSEngine) get(ctx context.Context, target string) ([]byte, error) {
	e.limiter.Take()

	resp, err := e.client.R().
		SetContext(ctx).
		Get(target)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

// follow loads segments from the live edge and reloads the playlist every
// target duration until the playlist ends or the context is cancelled.
func (e *HLSEngine) follow(ctx context.Context, playlistURL string, pl *m3u8.MediaPlaylist, queue chan<- segment) {
	defer close(queue)

	next := pl.SeqNo + startIndex(pl, e.cfg.LiveSyncDurationCount)
	recent := newBackBuffer(e.cfg.BackBufferLength)
	failures := 0

	fail := func(details string, err error) bool {
		failures++
		fatal := failures >= MaxConsecutiveFailures
		log.Warn().Err(err).Int("failures", failures).Str("details", details).Msg("HLS load error")
		e.emit(Event{Kind: EventError, Fatal: fatal, Details: details, Err: err})
		return fatal
	}

	for {
		segments := playlistSegments(pl)
		if len(segments) > 0 && next < pl.SeqNo {
			log.Warn().Uint64("next", next).Uint64("first", pl.SeqNo).Msg("Fell behind live window, jumping to edge")
			next = pl.SeqNo + startIndex(pl, e.cfg.LiveSyncDurationCount)
		}

		for i, seg := range segments {
			seq := pl.SeqNo + uint64(i)
			if seq < next || recent.has(seq) {
				continue
			}

			duration := time.Duration(seg.Duration * float64(time.Second))
			queued := time.Duration(e.queued.Load())
			if queued >= e.cfg.MaxBufferLength || queued+duration > e.cfg.MaxMaxBufferLength {
				break
			}

			segURL, err := resolveURL(playlistURL, seg.URI)
			if err != nil {
				if fail(DetailSegmentLoad, err) {
					return
				}
				next = seq + 1
				continue
			}

			data, err := e.get(ctx, segURL)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				if fail(DetailSegmentLoad, err) {
					return
				}
				break
			}
			failures = 0

			e.queued.Add(int64(duration))
			select {
			case queue <- segment{seq: seq, duration: duration, data: data}:
			case <-ctx.Done():
				return
			}
			recent.add(seq, duration)
			next = seq + 1
		}

		if pl.Closed && next >= pl.SeqNo+uint64(len(segments)) {
			log.Debug().Msg("Playlist ended")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(e.reloadInterval(pl)):
		}

		reloaded, err := e.fetchMediaPlaylist(ctx, playlistURL)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if fail(DetailLevelLoad, err) {
				return
			}
			continue
		}
		failures = 0
		pl = reloaded
	}
}

func (e *HLSEngine) reloadInterval(pl *m3u8.MediaPlaylist) time.Duration {
	interval := DefaultTargetDuration
	if pl.TargetDuration > 0 {
		interval = time.Duration(pl.TargetDuration * float64(time.Second))
	}
	if e.cfg.LowLatencyMode {
		interval /= 2
	}
	return max(interval, MinReloadInterval)
}

func (e *HLSEngine) writeSegments(ctx context.Context, queue <-chan segment, pw *io.PipeWriter) {
	defer e.wg.Done()

	for seg := range queue {
		_, err := pw.Write(seg.data)
		e.queued.Add(-int64(seg.duration))
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.ErrClosedPipe) {
				e.emit(Event{Kind: EventError, Fatal: true, Details: DetailMediaWrite, Err: err})
			}
			return
		}
	}

	if ctx.Err() == nil {
		pw.Close()
	}
}

// startIndex is the first segment to load: LiveSyncDurationCount segments
// from the live edge, or the start of a finished playlist.
func startIndex(pl *m3u8.MediaPlaylist, syncCount int) uint64 {
	count := len(playlistSegments(pl))
	if pl.Closed || syncCount <= 0 || count <= syncCount {
		return 0
	}
	return uint64(count - syncCount)
}

func playlistSegments(pl *m3u8.MediaPlaylist) []*m3u8.MediaSegment {
	segments := pl.Segments
	for i, seg := range segments {
		if seg == nil {
			return segments[:i]
		}
	}
	return segments
}

func resolveURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid segment URL: %w", err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// backBuffer remembers recently loaded sequence numbers so reloads never
// queue a segment twice.
type backBuffer struct {
	window  time.Duration
	entries []backEntry
	total   time.Duration
}

type backEntry struct {
	seq      uint64
	duration time.Duration
}

func newBackBuffer(window time.Duration) *backBuffer {
	return &backBuffer{window: window}
}

func (b *backBuffer) add(seq uint64, d time.Duration) {
	b.entries = append(b.entries, backEntry{seq: seq, duration: d})
	b.total += d
	for len(b.entries) > 1 && b.total > b.window {
		b.total -= b.entries[0].duration
		b.entries = b.entries[1:]
	}
}

func (b *backBuffer) has(seq uint64) bool {
	for _, e := range b.entries {
		if e.seq == seq {
			return true
		}
	}
	return false
}
