package player

import (
	"time"

	"github.com/benbjohnson/clock"
)

// watchdog is a single-shot load deadline. It is only touched from the
// supervisor loop.
type watchdog struct {
	clock   clock.Clock
	timeout time.Duration
	timer   *clock.Timer
	session string
}

func newWatchdog(clk clock.Clock, timeout time.Duration) *watchdog {
	return &watchdog{clock: clk, timeout: timeout}
}

// arm starts the deadline for session, cancelling any pending one.
func (w *watchdog) arm(session string) {
	w.disarm()
	w.timer = w.clock.Timer(w.timeout)
	w.session = session
}

func (w *watchdog) disarm() {
	if w.timer == nil {
		return
	}
	w.timer.Stop()
	w.timer = nil
	w.session = ""
}

func (w *watchdog) armed() bool {
	return w.timer != nil
}

// C fires when the armed deadline expires. It is nil while disarmed, so a
// select on it blocks.
func (w *watchdog) C() <-chan time.Time {
	if w.timer == nil {
		return nil
	}
	return w.timer.C
}
