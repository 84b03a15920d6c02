package media

import (
	"errors"
	"sync"
	"testing"
)

func TestListenersEmitInOrder(t *testing.T) {
	l := NewListeners()

	var got []int
	l.Add(EventPlaying, func(Event) { got = append(got, 1) })
	l.Add(EventWaiting, func(Event) { got = append(got, 99) })
	l.Add(EventPlaying, func(Event) { got = append(got, 2) })

	l.Emit(Event{Kind: EventPlaying})

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Emit() invoked %v, want [1 2]", got)
	}
}

func TestListenersOnce(t *testing.T) {
	l := NewListeners()

	calls := 0
	l.Add(EventLoadedMetadata, func(Event) { calls++ }, Once())

	l.Emit(Event{Kind: EventLoadedMetadata})
	l.Emit(Event{Kind: EventLoadedMetadata})

	if calls != 1 {
		t.Errorf("once listener called %d times, want 1", calls)
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d after once listener fired, want 0", l.Len())
	}
}

func TestListenersRemove(t *testing.T) {
	l := NewListeners()

	called := false
	id := l.Add(EventError, func(Event) { called = true })
	l.Remove(id)
	l.Remove(id)

	l.Emit(Event{Kind: EventError, Err: errors.New("boom")})

	if called {
		t.Error("removed listener should not be called")
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d, want 0", l.Len())
	}
}

func TestListenersEventPayload(t *testing.T) {
	l := NewListeners()
	want := errors.New("decode failed")

	var got error
	l.Add(EventError, func(ev Event) { got = ev.Err })
	l.Emit(Event{Kind: EventError, Err: want})

	if !errors.Is(got, want) {
		t.Errorf("listener got err %v, want %v", got, want)
	}
}

func TestListenersOnceConcurrentEmit(t *testing.T) {
	l := NewListeners()

	var mu sync.Mutex
	calls := 0
	l.Add(EventPlaying, func(Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, Once())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Emit(Event{Kind: EventPlaying})
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Errorf("once listener called %d times under concurrent emit, want 1", calls)
	}
}

func TestListenersClear(t *testing.T) {
	l := NewListeners()
	l.Add(EventPlaying, func(Event) {})
	l.Add(EventWaiting, func(Event) {})

	l.Clear()

	if l.Len() != 0 {
		t.Errorf("Len() after Clear() = %d, want 0", l.Len())
	}
}

func TestEventKindString(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{EventLoadedMetadata, "loadedmetadata"},
		{EventWaiting, "waiting"},
		{EventPlaying, "playing"},
		{EventEnded, "ended"},
		{EventError, "error"},
		{EventKind(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("EventKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
