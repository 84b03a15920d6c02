package ui

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// SearchDebounce is the quiet period after the last keystroke before the
// channel list is filtered.
const SearchDebounce = 300 * time.Millisecond

// debouncer runs only the last function passed to Trigger, once the delay
// has passed without another call.
type debouncer struct {
	clock clock.Clock
	delay time.Duration

	mu    sync.Mutex
	seq   uint64
	timer *clock.Timer
}

func newDebouncer(clk clock.Clock, delay time.Duration) *debouncer {
	return &debouncer{clock: clk, delay: delay}
}

func (d *debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.mu.Lock()
		current := d.seq == seq
		if current {
			d.timer = nil
		}
		d.mu.Unlock()

		if current {
			fn()
		}
	})
}

func (d *debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
