package ui

import (
	"fmt"
	"strings"

	"github.com/glebovdev/livetv-cli/internal/config"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const volumeBarHeight = 10

// VolumeControl is implemented by outputs whose level the UI can set. The
// output owns the current level; the UI only remembers the level to
// restore after a mute.
type VolumeControl interface {
	SetVolume(volumePercent int)
	Volume() int
}

// displayVolume is the level the bar shows: the live level, or the saved
// one while muted.
func (ui *UI) displayVolume() (int, bool) {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	if ui.isMuted {
		return ui.config.Volume, true
	}
	return ui.volume.Volume(), false
}

func (ui *UI) renderVolumeBar() string {
	level, muted := ui.displayVolume()
	filled := (level * volumeBarHeight) / 100

	barColor := ui.colors.highlight
	percentStyle := ui.colors.highlight.String()
	if muted {
		barColor = ui.colors.errorForeground
		percentStyle = ui.colors.errorForeground.String() + "::s"
	}

	var b strings.Builder
	b.WriteString("   max\n")
	for line := 0; line < volumeBarHeight; line++ {
		if line < volumeBarHeight-filled {
			fmt.Fprintf(&b, "    [%s] ░░[-]\n", ui.colors.foreground)
			continue
		}

		label := "    "
		if line == volumeBarHeight-filled {
			label = fmt.Sprintf("[%s]%4s[-:-:-]", percentStyle, fmt.Sprintf("%d%%", level))
		}
		fmt.Fprintf(&b, "%s[%s] ██[-]\n", label, barColor)
	}
	b.WriteString("   min")
	return b.String()
}

func (ui *UI) createGraphicalVolumeBar() *tview.TextView {
	view := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	view.SetTextColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background)
	view.SetText(ui.renderVolumeBar())
	return view
}

func (ui *UI) updateVolumeDisplay() {
	if ui.volumeView != nil {
		ui.volumeView.SetText(ui.renderVolumeBar())
	}
}

func (ui *UI) adjustVolume(delta int) {
	if ui.volume == nil {
		return
	}

	ui.mu.Lock()
	if ui.isMuted {
		ui.isMuted = false
		restored := ui.config.Volume
		ui.mu.Unlock()

		ui.statusRenderer.SetMuted(false)
		ui.volume.SetVolume(restored)
		ui.updateVolumeDisplay()
		log.Debug().Msgf("Auto-unmuted, restored volume to %d%%", restored)
		return
	}
	ui.mu.Unlock()

	level := config.ClampVolume(ui.volume.Volume() + delta)
	ui.volume.SetVolume(level)
	ui.updateVolumeDisplay()
	ui.SaveConfig()
	log.Debug().Msgf("Volume adjusted to %d%%", level)
}

func (ui *UI) toggleMute() {
	if ui.volume == nil {
		return
	}

	ui.mu.Lock()
	muted := !ui.isMuted
	ui.isMuted = muted
	if muted {
		saved := ui.volume.Volume()
		if saved == 0 {
			saved = config.DefaultVolume
		}
		ui.config.Volume = saved
	}
	restored := ui.config.Volume
	ui.mu.Unlock()

	ui.statusRenderer.SetMuted(muted)
	if muted {
		ui.volume.SetVolume(0)
		log.Debug().Msgf("Muted, saved volume %d%%", restored)
	} else {
		ui.volume.SetVolume(restored)
		log.Debug().Msgf("Unmuted, restored volume to %d%%", restored)
	}

	ui.updateVolumeDisplay()
	ui.SaveConfig()
}
