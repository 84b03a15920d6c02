package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

const helperEnv = "LIVETV_HELPER_PROCESS"

// TestHelperProcess stands in for the external player.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}

	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) == 0 {
		os.Exit(2)
	}

	switch args[0] {
	case "exit0":
		os.Exit(0)
	case "exit1":
		os.Exit(1)
	case "sleep":
		time.Sleep(time.Minute)
		os.Exit(0)
	case "cat":
		_, _ = io.Copy(io.Discard, os.Stdin)
		os.Exit(0)
	}
	os.Exit(2)
}

func newHelperOutput(t *testing.T, mode string) *ProcessOutput {
	t.Helper()
	t.Setenv(helperEnv, "1")

	o := NewProcessOutput(ProcessOptions{
		Command:        os.Args[0],
		Args:           []string{"-test.run=TestHelperProcess", "--", mode},
		NativeTypes:    []string{MimeMPEG},
		StallThreshold: 100 * time.Millisecond,
	})
	t.Cleanup(o.Close)
	return o
}

func recordEvents(o Output, kinds ...EventKind) <-chan Event {
	ch := make(chan Event, 32)
	for _, kind := range kinds {
		o.AddListener(kind, func(ev Event) {
			select {
			case ch <- ev:
			default:
			}
		})
	}
	return ch
}

func waitEvent(t *testing.T, ch <-chan Event, want EventKind) Event {
	t.Helper()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Kind == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", want)
			return Event{}
		}
	}
}

// waitEvents waits for every kind in any order.
func waitEvents(t *testing.T, ch <-chan Event, kinds ...EventKind) {
	t.Helper()

	pending := make(map[EventKind]bool, len(kinds))
	for _, kind := range kinds {
		pending[kind] = true
	}

	timeout := time.After(5 * time.Second)
	for len(pending) > 0 {
		select {
		case ev := <-ch:
			delete(pending, ev.Kind)
		case <-timeout:
			t.Fatalf("timed out waiting for events %v", pending)
		}
	}
}

func TestProcessOutputCanPlayType(t *testing.T) {
	o := NewProcessOutput(ProcessOptions{Command: "mpv", NativeTypes: []string{"audio/mpeg", "video/mp4"}})

	if !o.CanPlayType("audio/mpeg") {
		t.Error("CanPlayType(audio/mpeg) = false, want true")
	}
	if o.CanPlayType(MimeHLS) {
		t.Error("CanPlayType(hls) = true, want false")
	}
}

func TestProcessOutputPlayWithoutSource(t *testing.T) {
	o := newHelperOutput(t, "exit0")

	if err := o.Play(context.Background()); !errors.Is(err, ErrNoSource) {
		t.Errorf("Play() error = %v, want ErrNoSource", err)
	}
}

func TestProcessOutputDirectSourceLifecycle(t *testing.T) {
	o := newHelperOutput(t, "exit0")
	events := recordEvents(o, EventLoadedMetadata, EventPlaying, EventEnded, EventError)

	o.SetSource("/srv/media/clip.mp3")
	waitEvent(t, events, EventLoadedMetadata)

	if err := o.Play(context.Background()); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	waitEvents(t, events, EventPlaying, EventEnded)
}

func TestProcessOutputAbnormalExit(t *testing.T) {
	o := newHelperOutput(t, "exit1")
	events := recordEvents(o, EventEnded, EventError)

	o.SetSource("/srv/media/clip.mp3")
	if err := o.Play(context.Background()); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	ev := waitEvent(t, events, EventError)
	if ev.Err == nil {
		t.Error("error event should carry the exit error")
	}
}

func TestProcessOutputPauseSuppressesEvents(t *testing.T) {
	o := newHelperOutput(t, "sleep")
	events := recordEvents(o, EventEnded, EventError)

	o.SetSource("/srv/media/clip.mp3")
	if err := o.Play(context.Background()); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	o.Pause()

	select {
	case ev := <-events:
		t.Errorf("unexpected %s event after Pause()", ev.Kind)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestProcessOutputProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.mp3" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		fmt.Fprint(w, "ID3")
	}))
	defer server.Close()

	t.Run("reachable", func(t *testing.T) {
		o := newHelperOutput(t, "exit0")
		events := recordEvents(o, EventLoadedMetadata, EventError)

		o.SetSource(server.URL + "/live.mp3")
		waitEvent(t, events, EventLoadedMetadata)
	})

	t.Run("not found", func(t *testing.T) {
		o := newHelperOutput(t, "exit0")
		events := recordEvents(o, EventLoadedMetadata, EventError)

		o.SetSource(server.URL + "/missing.mp3")
		ev := waitEvent(t, events, EventError)
		if ev.Err == nil {
			t.Error("error event should carry the probe error")
		}
	})
}

func TestProcessOutputStreamFeed(t *testing.T) {
	o := newHelperOutput(t, "cat")
	events := recordEvents(o, EventPlaying, EventWaiting, EventEnded, EventError)

	pr, pw := io.Pipe()
	o.AttachStream(pr)

	played := make(chan error, 1)
	go func() {
		played <- o.Play(context.Background())
	}()

	if _, err := pw.Write([]byte("segment-1")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	select {
	case err := <-played:
		if err != nil {
			t.Fatalf("Play() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Play() did not return after first data")
	}
	waitEvent(t, events, EventPlaying)

	// No data for longer than the stall threshold.
	waitEvent(t, events, EventWaiting)

	if _, err := pw.Write([]byte("segment-2")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	waitEvent(t, events, EventPlaying)

	pw.Close()
	waitEvent(t, events, EventEnded)
}

func TestProcessOutputPlayHonorsContext(t *testing.T) {
	o := newHelperOutput(t, "cat")

	pr, pw := io.Pipe()
	defer pw.Close()
	o.AttachStream(pr)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := o.Play(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Play() error = %v, want deadline exceeded", err)
	}
}

func TestProcessOutputDetachStream(t *testing.T) {
	o := newHelperOutput(t, "cat")

	pr, pw := io.Pipe()
	defer pw.Close()
	o.AttachStream(pr)
	o.DetachStream()

	if err := o.Play(context.Background()); !errors.Is(err, ErrNoSource) {
		t.Errorf("Play() after DetachStream() error = %v, want ErrNoSource", err)
	}
}
