package ui

import (
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/livetv-cli/internal/player"
	"github.com/rivo/tview"
)

// StatusRenderer formats the supervisor status for the footer.
type StatusRenderer struct {
	mu            sync.Mutex
	status        player.Status
	isMuted       bool
	animFrame     int
	maxAnimFrame  int
	tickCount     int
	ticksPerFrame int

	primaryColor string
}

func NewStatusRenderer() *StatusRenderer {
	return &StatusRenderer{
		status:        player.Status{State: player.StateIdle},
		maxAnimFrame:  4,
		ticksPerFrame: 3, // 3 ticks of 100ms per frame
	}
}

// SetStatus stores the latest supervisor snapshot. Safe from any goroutine.
func (s *StatusRenderer) SetStatus(st player.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

func (s *StatusRenderer) Status() player.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *StatusRenderer) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isMuted = muted
}

func (s *StatusRenderer) SetPrimaryColor(color string) {
	s.primaryColor = color
}

func (s *StatusRenderer) AdvanceAnimation() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tickCount++
	if s.tickCount >= s.ticksPerFrame {
		s.tickCount = 0
		s.animFrame = (s.animFrame + 1) % s.maxAnimFrame
	}
}

func (s *StatusRenderer) Render() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status.State {
	case player.StateLoading:
		return s.renderLoading()
	case player.StateBuffering:
		return s.renderBuffering()
	case player.StatePlaying:
		return s.renderPlaying()
	case player.StateError:
		return s.renderError()
	default:
		return s.renderIdle()
	}
}

func (s *StatusRenderer) renderIdle() string {
	if s.isMuted {
		return "○ IDLE │ [red]MUTED[-] │ Select a channel"
	}
	return "○ IDLE │ Select a channel"
}

func (s *StatusRenderer) renderLoading() string {
	circles := []string{"◐", "◓", "◑", "◒"}
	return joinParts([]string{circles[s.animFrame] + " LOADING", tview.Escape(s.status.ChannelName)})
}

func (s *StatusRenderer) renderBuffering() string {
	circles := []string{"◐", "◓", "◑", "◒"}
	return fmt.Sprintf("%s BUFFERING", circles[s.animFrame])
}

func (s *StatusRenderer) renderPlaying() string {
	dots := []string{"●", "◉", "○", "◉"}
	dot := dots[s.animFrame]

	if s.primaryColor != "" {
		dot = fmt.Sprintf("[%s]%s[-]", s.primaryColor, dot)
	}

	parts := []string{dot + " " + s.status.State.String()}

	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}

	parts = append(parts, streamMode(s.status.Adaptive))

	return joinParts(parts)
}

func (s *StatusRenderer) renderError() string {
	errMsg := s.status.Message
	if errMsg == "" {
		errMsg = "ERROR"
	}
	return fmt.Sprintf("✗ %s", tview.Escape(errMsg))
}

func streamMode(adaptive bool) string {
	if adaptive {
		return "HLS"
	}
	return "DIRECT"
}

func joinParts(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	result := parts[0]
	for i := 1; i < len(parts); i++ {
		result += " │ " + parts[i]
	}
	return result
}

func (ui *UI) getPlaybackHint(keyColor string) string {
	switch ui.statusRenderer.Status().State {
	case player.StateError:
		return fmt.Sprintf("[%s]Enter[-] play  [%s]r[-] retry", keyColor, keyColor)
	case player.StatePlaying, player.StateBuffering, player.StateLoading:
		return fmt.Sprintf("[%s]Enter[-] play  [%s]s[-] stop", keyColor, keyColor)
	default:
		return fmt.Sprintf("[%s]Enter[-] play", keyColor)
	}
}

func (ui *UI) getHelpText() string {
	keyColor := ui.colors.helpHotkey.String()
	playbackHint := ui.getPlaybackHint(keyColor)

	volumeHint := ""
	if ui.volume != nil {
		muteText := "mute"
		if ui.isMuted {
			muteText = "unmute"
		}
		volumeHint = fmt.Sprintf("[%s]+/-[-] vol  [%s]m[-] %s  ", keyColor, keyColor, muteText)
	}

	return fmt.Sprintf(" %s  [%s]/[-] search  [%s]Tab[-] category  %s[%s]?[-] help  [%s]q[-] quit ",
		playbackHint, keyColor, keyColor, volumeHint, keyColor, keyColor)
}

func (ui *UI) handleFooterResize(width int) {
	isWide := width >= FooterBreakpoint
	wasWide := ui.lastFooterWidth >= FooterBreakpoint

	if ui.lastFooterWidth > 0 && isWide != wasWide && ui.contentLayout != nil {
		newHeight := FooterHeightWide
		if !isWide {
			newHeight = FooterHeightNarrow
		}
		ui.contentLayout.ResizeItem(ui.helpPanel, newHeight, 0)
	}
	ui.lastFooterWidth = width
}

func (ui *UI) drawWideFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpWidth := width / 2
	statusWidth := width - helpWidth

	for row := y; row < y+height; row++ {
		for col := x; col < x+helpWidth; col++ {
			screen.SetContent(col, row, ' ', nil, tcell.StyleDefault.Background(ui.colors.helpBackground))
		}
	}

	for row := y; row < y+height; row++ {
		for col := x + helpWidth; col < x+width; col++ {
			screen.SetContent(col, row, ' ', nil, tcell.StyleDefault.Background(ui.colors.background))
		}
	}

	centerY := y + height/2
	tview.Print(screen, helpText, x, centerY, helpWidth, tview.AlignCenter, ui.colors.helpForeground)
	tview.Print(screen, statusText, x+helpWidth, centerY, statusWidth-2, tview.AlignRight, ui.colors.foreground)
}

func (ui *UI) drawNarrowFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpHeight := height / 2
	if helpHeight < 1 {
		helpHeight = 1
	}
	statusHeight := height - helpHeight
	helpBoxEnd := y + helpHeight

	for row := y; row < helpBoxEnd; row++ {
		for col := x; col < x+width; col++ {
			screen.SetContent(col, row, ' ', nil, tcell.StyleDefault.Background(ui.colors.helpBackground))
		}
	}

	for row := helpBoxEnd; row < y+height; row++ {
		for col := x; col < x+width; col++ {
			screen.SetContent(col, row, ' ', nil, tcell.StyleDefault.Background(ui.colors.background))
		}
	}

	helpTextY := y + helpHeight/2
	tview.Print(screen, helpText, x, helpTextY, width, tview.AlignCenter, ui.colors.helpForeground)

	if statusHeight > 0 {
		statusTextY := helpBoxEnd + statusHeight/2
		tview.Print(screen, statusText, x, statusTextY, width-2, tview.AlignRight, ui.colors.foreground)
	}
}

func (ui *UI) createFooter() *tview.Box {
	box := tview.NewBox().SetBackgroundColor(ui.colors.background)

	box.SetDrawFunc(func(screen tcell.Screen, x, y, width, height int) (int, int, int, int) {
		ui.handleFooterResize(width)

		helpText := ui.getHelpText()
		statusText := " " + ui.statusRenderer.Render() + " "

		isWide := width >= FooterBreakpoint
		usedHeight := height
		if isWide && height > FooterHeightWide {
			usedHeight = FooterHeightWide
		}

		if isWide {
			ui.drawWideFooter(screen, x, y, width, usedHeight, helpText, statusText)
		} else {
			ui.drawNarrowFooter(screen, x, y, width, height, helpText, statusText)
		}

		return x, y, width, height
	})

	return box
}
