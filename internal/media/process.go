package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	ProbeTimeout  = 10 * time.Second
	FeedChunkSize = 32 * 1024
)

var ErrNoSource = errors.New("no media source")

// ProcessOptions configures an external player process.
type ProcessOptions struct {
	Command        string
	Args           []string
	NativeTypes    []string
	StallThreshold time.Duration
}

// ProcessOutput plays through an external player such as mpv. Direct
// sources are passed as the last argument; attached streams are piped to
// the player's stdin.
type ProcessOutput struct {
	opts        ProcessOptions
	nativeTypes typeSet
	listeners   *Listeners
	probe       *resty.Client

	mu          sync.Mutex
	gen         uint64
	source      string
	stream      io.Reader
	cmd         *exec.Cmd
	stop        context.CancelFunc
	probeCancel context.CancelFunc
	wg          sync.WaitGroup
}

func NewProcessOutput(opts ProcessOptions) *ProcessOutput {
	if opts.StallThreshold <= 0 {
		opts.StallThreshold = 2 * time.Second
	}

	return &ProcessOutput{
		opts:        opts,
		nativeTypes: newTypeSet(opts.NativeTypes),
		listeners:   NewListeners(),
		probe:       resty.New().SetTimeout(ProbeTimeout),
	}
}

// Available reports whether the player binary is on PATH.
func (o *ProcessOutput) Available() bool {
	_, err := exec.LookPath(o.opts.Command)
	return err == nil
}

func (o *ProcessOutput) CanPlayType(mimeType string) bool {
	return o.nativeTypes.has(mimeType)
}

func (o *ProcessOutput) AddListener(kind EventKind, fn Listener, opts ...ListenerOption) ListenerID {
	return o.listeners.Add(kind, fn, opts...)
}

func (o *ProcessOutput) RemoveListener(id ListenerID) {
	o.listeners.Remove(id)
}

func (o *ProcessOutput) ListenerCount() int {
	return o.listeners.Len()
}

// emit drops events from a superseded source.
func (o *ProcessOutput) emit(gen uint64, ev Event) {
	o.mu.Lock()
	current := o.gen == gen
	o.mu.Unlock()

	if current {
		o.listeners.Emit(ev)
	}
}

func (o *ProcessOutput) SetSource(locator string) {
	o.mu.Lock()
	o.resetLocked()
	o.source = locator
	gen := o.gen
	if locator == "" {
		o.mu.Unlock()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ProbeTimeout)
	o.probeCancel = cancel
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		defer cancel()

		if err := o.probeSource(ctx, locator); err != nil {
			log.Debug().Err(err).Str("url", locator).Msg("Source probe failed")
			o.emit(gen, Event{Kind: EventError, Err: err})
			return
		}
		o.emit(gen, Event{Kind: EventLoadedMetadata})
	}()
}

func (o *ProcessOutput) probeSource(ctx context.Context, locator string) error {
	u, err := url.Parse(locator)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		// Non-HTTP locators are handed to the player as-is.
		return nil
	}

	resp, err := o.probe.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(locator)
	if err != nil {
		return fmt.Errorf("failed to probe source: %w", err)
	}
	if body := resp.RawBody(); body != nil {
		body.Close()
	}

	if !resp.IsSuccess() {
		return fmt.Errorf("source returned status %d", resp.StatusCode())
	}
	return nil
}

func (o *ProcessOutput) AttachStream(r io.Reader) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.resetLocked()
	o.stream = r
}

func (o *ProcessOutput) DetachStream() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stream == nil {
		return
	}
	o.resetLocked()
}

// resetLocked stops the process and any probe and invalidates pending events.
func (o *ProcessOutput) resetLocked() {
	o.gen++
	if o.probeCancel != nil {
		o.probeCancel()
		o.probeCancel = nil
	}
	if o.stop != nil {
		o.stop()
		o.stop = nil
	}
	o.cmd = nil
	o.source = ""
	o.stream = nil
}

func (o *ProcessOutput) Play(ctx context.Context) error {
	o.mu.Lock()
	if o.cmd != nil {
		o.mu.Unlock()
		return nil
	}

	if o.source == "" && o.stream == nil {
		o.mu.Unlock()
		return ErrNoSource
	}

	args := append([]string{}, o.opts.Args...)
	if o.stream != nil {
		args = append(args, "-")
	} else {
		args = append(args, o.source)
	}

	procCtx, stop := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, o.opts.Command, args...)

	var stdin io.WriteCloser
	if o.stream != nil {
		var err error
		stdin, err = cmd.StdinPipe()
		if err != nil {
			o.mu.Unlock()
			stop()
			return fmt.Errorf("failed to open player stdin: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		o.mu.Unlock()
		stop()
		return fmt.Errorf("failed to start %s: %w", o.opts.Command, err)
	}

	log.Debug().Str("command", o.opts.Command).Strs("args", args).Msg("Player process started")

	o.cmd = cmd
	o.stop = stop
	gen := o.gen
	stream := o.stream

	exited := make(chan struct{})
	o.wg.Add(1)
	go o.waitProcess(gen, cmd, procCtx, exited)

	if stream == nil {
		o.mu.Unlock()
		o.emit(gen, Event{Kind: EventPlaying})
		return nil
	}

	started := make(chan struct{})
	f := &feeder{output: o, gen: gen, started: started}
	o.wg.Add(2)
	go f.copy(procCtx, stream, stdin)
	go f.monitor(procCtx, o.opts.StallThreshold)
	o.mu.Unlock()

	select {
	case <-started:
		return nil
	case <-exited:
		return errors.New("player exited before playback started")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *ProcessOutput) waitProcess(gen uint64, cmd *exec.Cmd, procCtx context.Context, exited chan struct{}) {
	defer o.wg.Done()

	err := cmd.Wait()
	close(exited)

	if procCtx.Err() != nil {
		// Stopped on purpose.
		return
	}

	o.mu.Lock()
	if o.gen == gen {
		o.cmd = nil
		if o.stop != nil {
			o.stop()
			o.stop = nil
		}
	}
	o.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Msg("Player process exited with error")
		o.emit(gen, Event{Kind: EventError, Err: fmt.Errorf("player exited: %w", err)})
		return
	}
	log.Debug().Msg("Player process exited")
	o.emit(gen, Event{Kind: EventEnded})
}

// Pause stops the player process. Live output cannot be resumed in place,
// so a later Play restarts it from the current source.
func (o *ProcessOutput) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stop != nil {
		o.gen++
		o.stop()
		o.stop = nil
	}
	o.cmd = nil
}

// Close stops everything and waits for background goroutines.
func (o *ProcessOutput) Close() {
	o.mu.Lock()
	o.resetLocked()
	o.mu.Unlock()

	o.wg.Wait()
	o.listeners.Clear()
}

// feeder copies an attached stream into the player and reports stalls.
type feeder struct {
	output  *ProcessOutput
	gen     uint64
	started chan struct{}

	mu        sync.Mutex
	lastData  time.Time
	hasData   bool
	stalled   bool
	startOnce sync.Once
}

func (f *feeder) copy(ctx context.Context, r io.Reader, w io.WriteCloser) {
	defer f.output.wg.Done()
	defer w.Close()

	buf := make([]byte, FeedChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				if ctx.Err() == nil {
					log.Debug().Err(werr).Msg("Player stdin closed")
				}
				return
			}
			f.markData()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) && ctx.Err() == nil {
				log.Debug().Err(err).Msg("Stream feed ended")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (f *feeder) markData() {
	f.mu.Lock()
	f.lastData = time.Now()
	f.hasData = true
	resumed := f.stalled
	f.stalled = false
	f.mu.Unlock()

	f.startOnce.Do(func() {
		close(f.started)
		f.output.emit(f.gen, Event{Kind: EventPlaying})
	})

	if resumed {
		f.output.emit(f.gen, Event{Kind: EventPlaying})
	}
}

func (f *feeder) monitor(ctx context.Context, threshold time.Duration) {
	defer f.output.wg.Done()

	ticker := time.NewTicker(threshold / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			f.mu.Lock()
			stall := f.hasData && !f.stalled && now.Sub(f.lastData) > threshold
			if stall {
				f.stalled = true
			}
			f.mu.Unlock()

			if stall {
				log.Debug().Dur("threshold", threshold).Msg("Stream feed stalled")
				f.output.emit(f.gen, Event{Kind: EventWaiting})
			}
		}
	}
}
