package ui

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/glebovdev/livetv-cli/internal/player"
)

// OverlayFadeDelay is how long the overlay lingers after Hide.
const OverlayFadeDelay = 300 * time.Millisecond

// overlayView is what the presenter draws into.
type overlayView interface {
	showLoading()
	showError(message string)
	hide()
}

// OverlayPresenter turns supervisor overlay calls into draws on the UI
// goroutine. Show and Hide never block, so they are safe to call from the
// supervisor loop.
type OverlayPresenter struct {
	clock    clock.Clock
	dispatch func(func())
	view     overlayView

	mu        sync.Mutex
	kind      player.OverlayKind
	message   string
	gen       uint64
	hideSeq   uint64
	hideTimer *clock.Timer
}

func newOverlayPresenter(clk clock.Clock, dispatch func(func()), view overlayView) *OverlayPresenter {
	return &OverlayPresenter{clock: clk, dispatch: dispatch, view: view}
}

func (p *OverlayPresenter) Show(kind player.OverlayKind, message string) {
	if kind == player.OverlayHidden {
		p.Hide()
		return
	}

	p.mu.Lock()
	p.stopHideLocked()
	if p.kind == kind && p.message == message {
		p.mu.Unlock()
		return
	}
	p.kind = kind
	p.message = message
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	p.dispatch(func() { p.draw(gen) })
}

// Hide removes the overlay after OverlayFadeDelay unless Show is called
// again first.
func (p *OverlayPresenter) Hide() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.kind == player.OverlayHidden || p.hideTimer != nil {
		return
	}

	p.hideSeq++
	seq := p.hideSeq
	p.hideTimer = p.clock.AfterFunc(OverlayFadeDelay, func() {
		p.mu.Lock()
		if p.hideSeq != seq {
			p.mu.Unlock()
			return
		}
		p.kind = player.OverlayHidden
		p.message = ""
		p.hideTimer = nil
		p.gen++
		gen := p.gen
		p.mu.Unlock()

		p.dispatch(func() { p.draw(gen) })
	})
}

func (p *OverlayPresenter) stopHideLocked() {
	p.hideSeq++
	if p.hideTimer != nil {
		p.hideTimer.Stop()
		p.hideTimer = nil
	}
}

// Kind returns the overlay currently requested.
func (p *OverlayPresenter) Kind() player.OverlayKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kind
}

// draw renders the latest state. Stale draws are dropped.
func (p *OverlayPresenter) draw(gen uint64) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	kind, message := p.kind, p.message
	p.mu.Unlock()

	switch kind {
	case player.OverlayLoading:
		p.view.showLoading()
	case player.OverlayError:
		p.view.showError(message)
	default:
		p.view.hide()
	}
}

// Stop cancels a pending fade.
func (p *OverlayPresenter) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopHideLocked()
}
