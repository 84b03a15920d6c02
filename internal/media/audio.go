package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/glebovdev/livetv-cli/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSampleRate   = beep.SampleRate(44100)
	SpeakerBufferSize   = time.Millisecond * 250
	SampleChannelSize   = 8192
	VolumeCurveExponent = 0.5
	MinVolumeDB         = -10.0
	ReadTimeout         = 5 * time.Second
	ConnectTimeout      = 15 * time.Second

	fadeInDuration = 50 * time.Millisecond
)

// Relies on context cancellation to clean up the spawned read goroutine.
type contextReader struct {
	reader  io.Reader
	ctx     context.Context
	timeout time.Duration
}

func (cr *contextReader) Read(p []byte) (n int, err error) {
	select {
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	default:
	}

	timer := time.NewTimer(cr.timeout)
	defer timer.Stop()

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)

	go func() {
		n, err := cr.reader.Read(p)
		select {
		case done <- result{n, err}:
		case <-cr.ctx.Done():
		}
	}()

	select {
	case res := <-done:
		return res.n, res.err
	case <-timer.C:
		return 0, fmt.Errorf("read timeout: no data received for %v", cr.timeout)
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	}
}

// decoded is an opened MP3 stream waiting to be played.
type decoded struct {
	streamer beep.StreamSeekCloser
	format   beep.Format
	body     io.Closer
	cancel   context.CancelFunc
}

func (d *decoded) close() {
	d.cancel()
	d.streamer.Close()
	if d.body != nil {
		d.body.Close()
	}
}

// AudioOutput decodes MP3 in-process and plays it through the system speaker.
type AudioOutput struct {
	listeners *Listeners
	client    *resty.Client

	mu            sync.Mutex
	gen           uint64
	source        string
	stream        io.Reader
	pending       *decoded
	openCancel    context.CancelFunc
	stop          context.CancelFunc
	format        beep.Format
	speakerInit   bool
	volumePercent int
	volume        *effects.Volume
	ctrl          *beep.Ctrl
	wg            sync.WaitGroup
}

func NewAudioOutput(volumePercent int) *AudioOutput {
	client := resty.New().
		SetTimeout(0). // streams are long-lived
		SetTransport(&http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: ConnectTimeout,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			DisableCompression:    true,
		}).
		SetHeader("User-Agent", fmt.Sprintf("LiveTV-CLI/%s", config.AppVersion))

	return &AudioOutput{
		listeners: NewListeners(),
		client:    client,
		format: beep.Format{
			SampleRate:  DefaultSampleRate,
			NumChannels: 2,
			Precision:   2,
		},
		volumePercent: volumePercent,
	}
}

func (a *AudioOutput) CanPlayType(mimeType string) bool {
	return mimeType == MimeMPEG
}

func (a *AudioOutput) AddListener(kind EventKind, fn Listener, opts ...ListenerOption) ListenerID {
	return a.listeners.Add(kind, fn, opts...)
}

func (a *AudioOutput) RemoveListener(id ListenerID) {
	a.listeners.Remove(id)
}

func (a *AudioOutput) ListenerCount() int {
	return a.listeners.Len()
}

func (a *AudioOutput) emit(gen uint64, ev Event) {
	a.mu.Lock()
	current := a.gen == gen
	a.mu.Unlock()

	if current {
		a.listeners.Emit(ev)
	}
}

func (a *AudioOutput) SetSource(locator string) {
	a.mu.Lock()
	a.resetLocked()
	a.source = locator
	gen := a.gen
	if locator == "" {
		a.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.openCancel = cancel
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()

		d, err := a.open(ctx, locator)
		if err != nil {
			cancel()
			if ctx.Err() == nil {
				a.emit(gen, Event{Kind: EventError, Err: err})
			}
			return
		}

		a.mu.Lock()
		if a.gen != gen {
			a.mu.Unlock()
			d.close()
			return
		}
		a.pending = d
		a.mu.Unlock()

		a.emit(gen, Event{Kind: EventLoadedMetadata})
	}()
}

// open connects to locator and decodes the stream header.
func (a *AudioOutput) open(ctx context.Context, locator string) (*decoded, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	connectCtx, connectCancel := context.WithTimeout(streamCtx, ConnectTimeout)
	defer connectCancel()

	// The request context must outlive the connect timeout.
	resp, err := a.client.R().
		SetContext(streamCtx).
		SetDoNotParseResponse(true).
		Get(locator)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to fetch audio stream: %w", err)
	}

	body := resp.RawBody()
	if !resp.IsSuccess() {
		body.Close()
		cancel()
		return nil, fmt.Errorf("stream returned status %d", resp.StatusCode())
	}

	d, err := decodeHeader(connectCtx, streamCtx, body)
	if err != nil {
		body.Close()
		cancel()
		return nil, err
	}
	d.body = body
	d.cancel = cancel
	return d, nil
}

// decodeHeader reads until the first MP3 frame header is decoded or
// connectCtx expires. Later reads are bounded by ReadTimeout under streamCtx.
func decodeHeader(connectCtx, streamCtx context.Context, r io.Reader) (*decoded, error) {
	type result struct {
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	}
	done := make(chan result, 1)

	go func() {
		streamer, format, err := mp3.Decode(io.NopCloser(&contextReader{
			reader:  r,
			ctx:     streamCtx,
			timeout: ReadTimeout,
		}))
		done <- result{streamer, format, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("failed to decode MP3 stream: %w", res.err)
		}
		return &decoded{streamer: res.streamer, format: res.format, cancel: func() {}}, nil
	case <-connectCtx.Done():
		return nil, fmt.Errorf("failed to decode MP3 stream: %w", connectCtx.Err())
	}
}

func (a *AudioOutput) AttachStream(r io.Reader) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.resetLocked()
	a.stream = r
}

func (a *AudioOutput) DetachStream() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stream == nil {
		return
	}
	a.resetLocked()
}

func (a *AudioOutput) resetLocked() {
	a.gen++
	if a.openCancel != nil {
		a.openCancel()
		a.openCancel = nil
	}
	if a.pending != nil {
		a.pending.close()
		a.pending = nil
	}
	a.stopLocked()
	a.source = ""
	a.stream = nil
}

func (a *AudioOutput) stopLocked() {
	if a.stop == nil {
		return
	}
	a.stop()
	a.stop = nil
	speaker.Clear()
	a.volume = nil
	a.ctrl = nil
}

func (a *AudioOutput) Play(ctx context.Context) error {
	a.mu.Lock()
	if a.stop != nil {
		a.mu.Unlock()
		return nil
	}
	gen := a.gen
	d := a.pending
	a.pending = nil
	source, stream := a.source, a.stream
	a.mu.Unlock()

	if d == nil {
		var err error
		switch {
		case stream != nil:
			streamCtx, cancel := context.WithCancel(context.Background())
			d, err = decodeHeader(ctx, streamCtx, stream)
			if err != nil {
				cancel()
				return err
			}
			d.cancel = cancel
		case source != "":
			d, err = a.open(ctx, source)
			if err != nil {
				return err
			}
		default:
			return ErrNoSource
		}
	}

	if err := a.initSpeaker(d.format.SampleRate); err != nil {
		d.close()
		return fmt.Errorf("failed to initialize audio output: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.gen != gen {
		d.close()
		return context.Canceled
	}

	playCtx, stop := context.WithCancel(context.Background())
	a.stop = func() {
		stop()
		d.close()
	}
	a.format = d.format

	sampleCh := make(chan [2]float64, SampleChannelSize)
	signals := make(chan EventKind, 4)

	a.wg.Add(2)
	go a.decodeAndBuffer(playCtx, gen, d.streamer, sampleCh)
	go a.forwardSignals(playCtx, gen, signals)

	fadeInSamples := d.format.SampleRate.N(fadeInDuration)
	wrapper := &bufferedStreamerWrapper{
		samples:         sampleCh,
		signals:         signals,
		fadeInRemaining: fadeInSamples,
		fadeInTotal:     fadeInSamples,
	}

	a.volume = &effects.Volume{
		Streamer: wrapper,
		Base:     2,
		Volume:   percentToExponent(float64(a.volumePercent)),
		Silent:   a.volumePercent == 0,
	}
	a.ctrl = &beep.Ctrl{Streamer: a.volume}

	speaker.Play(a.ctrl)
	log.Debug().Msgf("Audio output started (sample rate: %d Hz)", d.format.SampleRate)

	return nil
}

func (a *AudioOutput) initSpeaker(sampleRate beep.SampleRate) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.speakerInit || sampleRate != a.format.SampleRate {
		err := speaker.Init(sampleRate, sampleRate.N(SpeakerBufferSize))
		if err != nil {
			return fmt.Errorf("failed to initialize speaker: %w", err)
		}
		a.format.SampleRate = sampleRate
		a.speakerInit = true
		log.Debug().Msgf("Speaker initialized with sample rate: %d Hz, buffer: %v", sampleRate, SpeakerBufferSize)
	}
	return nil
}

func (a *AudioOutput) decodeAndBuffer(ctx context.Context, gen uint64, streamer beep.Streamer, sampleCh chan<- [2]float64) {
	defer a.wg.Done()
	defer close(sampleCh)

	decodedSamples := make([][2]float64, 4096)
	for {
		if ctx.Err() != nil {
			return
		}

		n, ok := streamer.Stream(decodedSamples)
		if !ok {
			if ctx.Err() != nil {
				return
			}
			if err := streamer.Err(); err != nil && !errors.Is(err, io.EOF) {
				log.Error().Err(err).Msg("Stream decoding error")
				a.emit(gen, Event{Kind: EventError, Err: fmt.Errorf("decode: %w", err)})
				return
			}
			a.emit(gen, Event{Kind: EventEnded})
			return
		}

		for i := 0; i < n; i++ {
			select {
			case <-ctx.Done():
				return
			case sampleCh <- decodedSamples[i]:
			}
		}
	}
}

// forwardSignals moves underrun notifications out of the speaker callback.
func (a *AudioOutput) forwardSignals(ctx context.Context, gen uint64, signals <-chan EventKind) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case kind := <-signals:
			a.emit(gen, Event{Kind: kind})
		}
	}
}

// Pause stops the speaker. Live audio restarts from the source on the next Play.
func (a *AudioOutput) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stop != nil {
		a.gen++
		a.stopLocked()
	}
}

// Close stops playback and waits for background goroutines.
func (a *AudioOutput) Close() {
	a.mu.Lock()
	a.resetLocked()
	a.mu.Unlock()

	a.wg.Wait()
	a.listeners.Clear()
}

func (a *AudioOutput) SetVolume(volumePercent int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.volumePercent = volumePercent

	if a.volume == nil {
		log.Debug().Msgf("Volume stored as %d%% (will be applied when playback starts)", volumePercent)
		return
	}

	volumeLevel := percentToExponent(float64(volumePercent))

	speaker.Lock()
	a.volume.Volume = volumeLevel
	a.volume.Silent = volumePercent == 0
	speaker.Unlock()

	log.Debug().Msgf("Volume set to %d%% (%.2f dB)", volumePercent, volumeLevel)
}

func (a *AudioOutput) Volume() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.volumePercent
}

func percentToExponent(p float64) float64 {
	if p <= 0 {
		return MinVolumeDB
	}
	if p >= 100 {
		return 0
	}

	normalized := p / 100.0
	adjusted := math.Pow(normalized, VolumeCurveExponent)
	return (1.0 - adjusted) * MinVolumeDB
}

type bufferedStreamerWrapper struct {
	samples         <-chan [2]float64
	signals         chan<- EventKind
	fadeInRemaining int
	fadeInTotal     int
	flowing         bool
	underrun        bool
	done            bool
}

// Stream never blocks: an empty channel yields silence so the speaker
// keeps running through network interruptions.
func (b *bufferedStreamerWrapper) Stream(samples [][2]float64) (n int, ok bool) {
	audioEnd := 0

	if !b.done {
	fill:
		for i := range samples {
			select {
			case sample, more := <-b.samples:
				if !more {
					b.done = true
					break fill
				}
				samples[i] = sample
				audioEnd = i + 1
			default:
				break fill
			}
		}
	}

	if b.done {
		audioEnd = 0
	}

	switch {
	case audioEnd > 0 && !b.flowing:
		b.flowing = true
	case audioEnd > 0 && b.underrun:
		b.underrun = false
		b.signal(EventPlaying)
	case audioEnd == 0 && b.flowing && !b.underrun && !b.done:
		b.underrun = true
		b.signal(EventWaiting)
	}

	for i := audioEnd; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}

	if b.fadeInRemaining > 0 {
		for i := 0; i < audioEnd; i++ {
			pos := b.fadeInTotal - b.fadeInRemaining
			scale := float64(pos) / float64(b.fadeInTotal)
			samples[i][0] *= scale
			samples[i][1] *= scale
			b.fadeInRemaining--
			if b.fadeInRemaining <= 0 {
				break
			}
		}
	}

	return len(samples), true
}

func (b *bufferedStreamerWrapper) signal(kind EventKind) {
	select {
	case b.signals <- kind:
	default:
	}
}

func (b *bufferedStreamerWrapper) Err() error {
	return nil
}
