package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/livetv-cli/internal/config"
	"github.com/glebovdev/livetv-cli/internal/player"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

func friendlyErrorMessage(errStr string) string {
	if strings.Contains(errStr, "no such host") {
		return "Unable to connect to server.\nPlease check your internet connection."
	}
	if strings.Contains(errStr, "connection refused") {
		return "Connection refused by server.\nThe service may be temporarily unavailable."
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Connection timed out.\nPlease check your internet connection."
	}
	if strings.Contains(errStr, "network is unreachable") || strings.Contains(errStr, "network read error") {
		return "Network is unreachable.\nPlease check your internet connection."
	}
	if strings.Contains(errStr, "status 401") {
		return "Access denied (401)."
	}
	if strings.Contains(errStr, "status 403") {
		return "Access forbidden (403)."
	}
	if strings.Contains(errStr, "status 404") {
		return "Not found (404)."
	}

	if idx := strings.Index(errStr, ": dial"); idx > 0 {
		return errStr[:idx]
	}
	if len(errStr) > 100 {
		return errStr[:100] + "..."
	}
	return errStr
}

func (ui *UI) createOverlayPanel() tview.Primitive {
	ui.overlayText = tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true)
	ui.overlayText.SetTextColor(ui.colors.foreground)
	ui.overlayText.SetBackgroundColor(ui.colors.modalBackground)

	frame := tview.NewFrame(ui.overlayText).
		SetBorders(0, 0, 1, 1, 1, 1)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.highlight).
		SetBackgroundColor(ui.colors.modalBackground)

	const (
		overlayWidth  = 50
		overlayHeight = 8
	)

	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(frame, overlayHeight, 0, false).
			AddItem(nil, 0, 1, false),
			overlayWidth, 0, false).
		AddItem(nil, 0, 1, false)
}

func (ui *UI) showOverlayPage() {
	if ui.pages == nil {
		return
	}
	ui.pages.ShowPage(overlayPage)
	if !ui.pages.HasPage("modal") {
		ui.app.SetFocus(ui.channelList)
	}
}

func (ui *UI) showLoading() {
	if ui.overlayText == nil {
		return
	}
	ui.overlayText.SetText(ui.loadingOverlayText())
	ui.showOverlayPage()
}

func (ui *UI) loadingOverlayText() string {
	name := ""
	if ui.currentChannel != nil {
		name = tview.Escape(ui.currentChannel.Name)
	}
	return fmt.Sprintf("\n[%s]%s[-] Loading stream...\n\n[::b]%s[::-]",
		ui.colors.highlight, ui.getPlayingIndicator(), name)
}

func (ui *UI) showError(message string) {
	if ui.overlayText == nil {
		return
	}
	ui.overlayText.SetText(fmt.Sprintf("\n[%s::b]Playback Error[-::-]\n\n%s\n\n[::d]Press [::b]R[::d] to retry[::-]",
		ui.colors.errorForeground, tview.Escape(message)))
	ui.showOverlayPage()
}

func (ui *UI) hide() {
	if ui.pages == nil {
		return
	}
	ui.pages.HidePage(overlayPage)
	if !ui.pages.HasPage("modal") && ui.app.GetFocus() != ui.searchInput {
		ui.app.SetFocus(ui.channelList)
	}
}

// updateOverlaySpinner advances the loading animation while it is shown.
func (ui *UI) updateOverlaySpinner() {
	if ui.overlayText == nil || ui.overlay.Kind() != player.OverlayLoading {
		return
	}
	ui.overlayText.SetText(ui.loadingOverlayText())
}

func (ui *UI) showHelpModal() {
	keyColor := ui.colors.helpHotkey.String()

	configPath, _ := config.GetConfigPath()

	helpText := fmt.Sprintf(`[::b]KEYBOARD SHORTCUTS[::-]

[%[1]s]PLAYBACK[-]
  [%[1]s]Enter[-]      Play selected channel
  [%[1]s]r[-]          Retry current channel
  [%[1]s]s[-]          Stop playback

[%[1]s]VOLUME[-]
  [%[1]s]+[-] / [%[1]s]-[-]      Volume up / down
  [%[1]s]m[-]          Mute / Unmute

[%[1]s]CHANNELS[-]
  [%[1]s]↑[-] / [%[1]s]↓[-]      Navigate list
  [%[1]s]/[-]          Search by name
  [%[1]s]Tab[-]        Next category
  [%[1]s]1[-]-[%[1]s]9[-]        Select category

[%[1]s]APPLICATION[-]
  [%[1]s]?[-]          Show this help
  [%[1]s]a[-]          About %[2]s
  [%[1]s]q[-] / [%[1]s]Esc[-]    Quit

[%[1]s]CONFIG[-]: %[3]s`,
		keyColor, config.AppName, configPath)

	ui.showInfoModal("Help", helpText)
}

func (ui *UI) showAboutModal() {
	doDismiss := func() {
		ui.pages.RemovePage("modal")
		ui.app.SetFocus(ui.channelList)
	}

	linkColor := "skyblue"
	dimColor := "gray"

	aboutText := fmt.Sprintf(`[::b]%s[::-]
[%s]%s[-]

Version: %s
Project: [%s:::%s]%s[-:::-]
License: MIT

───────────────────────────────────────────

[%s]Catalog:[-] %s`,
		config.AppName,
		dimColor, config.AppTagline,
		config.AppVersion,
		linkColor, config.AppProjectURL, config.AppProjectShort,
		dimColor, tview.Escape(ui.service.Source()))

	messageView := tview.NewTextView().
		SetTextAlign(tview.AlignLeft).
		SetDynamicColors(true).
		SetText("\n" + aboutText)
	messageView.SetTextColor(ui.colors.foreground)
	messageView.SetBackgroundColor(ui.colors.modalBackground)

	hintView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText("[::d]Press any key to close[::-]")
	hintView.SetTextColor(tcell.ColorDarkGray)
	hintView.SetBackgroundColor(ui.colors.modalBackground)

	content := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(messageView, 0, 1, false).
		AddItem(nil, 2, 0, false).
		AddItem(hintView, 1, 0, false).
		AddItem(nil, 1, 0, false)
	content.SetBackgroundColor(ui.colors.modalBackground)

	frame := tview.NewFrame(content).
		SetBorders(1, 0, 1, 1, 2, 2)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.borders).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" About ").
		SetTitleColor(ui.colors.highlight).
		SetTitleAlign(tview.AlignCenter)

	modalWidth := 50
	modalHeight := 16

	modal := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(frame, modalHeight, 0, true).
			AddItem(nil, 0, 1, false),
			modalWidth, 0, true).
		AddItem(nil, 0, 1, false)
	modal.SetBackgroundColor(ui.colors.background)

	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		doDismiss()
		return nil
	})

	ui.pages.AddPage("modal", modal, true, true)
	ui.app.SetFocus(modal)
}

func (ui *UI) showInfoModal(title, message string) {
	doDismiss := func() {
		ui.pages.RemovePage("modal")
		ui.app.SetFocus(ui.channelList)
	}

	messageView := tview.NewTextView().
		SetTextAlign(tview.AlignLeft).
		SetDynamicColors(true).
		SetWordWrap(true).
		SetText("\n" + message)
	messageView.SetTextColor(ui.colors.foreground)
	messageView.SetBackgroundColor(ui.colors.modalBackground)

	hintView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText("[::d]Press any key to close[::-]")
	hintView.SetTextColor(tcell.ColorDarkGray)
	hintView.SetBackgroundColor(ui.colors.modalBackground)

	content := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(messageView, 0, 1, false).
		AddItem(nil, 2, 0, false).
		AddItem(hintView, 1, 0, false).
		AddItem(nil, 1, 0, false)
	content.SetBackgroundColor(ui.colors.modalBackground)

	frame := tview.NewFrame(content).
		SetBorders(1, 0, 1, 1, 2, 2)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.borders).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" " + title + " ").
		SetTitleColor(ui.colors.highlight).
		SetTitleAlign(tview.AlignCenter)

	lines := strings.Count(message, "\n") + 1
	modalWidth := 45
	modalHeight := lines + 10
	if modalHeight > 38 {
		modalHeight = 38
	}

	modal := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(frame, modalHeight, 0, true).
			AddItem(nil, 0, 1, false),
			modalWidth, 0, true).
		AddItem(nil, 0, 1, false)
	modal.SetBackgroundColor(ui.colors.background)

	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		doDismiss()
		return nil
	})

	ui.pages.AddPage("modal", modal, true, true)
	ui.app.SetFocus(modal)
}

func (ui *UI) showInitialErrorScreen(title, message string, onRetry, onQuit func()) {
	content := fmt.Sprintf("[::b]%s[::-]\n\n%s", title, message)

	textView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText(content)
	textView.SetTextColor(ui.colors.foreground)
	textView.SetBackgroundColor(ui.colors.modalBackground)

	helpText := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText("[::d]Press [::b]R[::d] to retry  •  Press [::b]Q[::d] to quit[::-]")
	helpText.SetTextColor(ui.colors.foreground)
	helpText.SetBackgroundColor(ui.colors.background)

	frame := tview.NewFrame(textView).
		SetBorders(2, 2, 2, 2, 2, 2)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.highlight).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" Catalog Error ").
		SetTitleColor(ui.colors.highlight)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(frame, 60, 1, true).
			AddItem(nil, 0, 1, false), 10, 1, true).
		AddItem(helpText, 2, 0, false).
		AddItem(nil, 0, 1, false)
	layout.SetBackgroundColor(ui.colors.background)

	layout.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyRune:
			switch event.Rune() {
			case 'r', 'R':
				if onRetry != nil {
					onRetry()
				}
				return nil
			case 'q', 'Q':
				if onQuit != nil {
					onQuit()
				}
				return nil
			}
		case tcell.KeyEscape:
			if onQuit != nil {
				onQuit()
			}
			return nil
		}
		return event
	})

	ui.app.SetRoot(layout, true)
	ui.app.SetFocus(layout)
}

func (ui *UI) handleInitialError(err error) {
	log.Error().Err(err).Msg("Failed to load channel catalog")

	message := CatalogErrorMessage
	if detail := catalogErrorDetail(err); detail != "" {
		message += fmt.Sprintf("\n\n[::d]%s[::-]", tview.Escape(detail))
	}

	ui.showInitialErrorScreen(
		"Unable to Load Channels",
		message,
		func() { // onRetry
			ui.app.SetRoot(ui.loadingScreen, true)
			go ui.initAsync()
		},
		func() { // onQuit
			ui.app.Stop()
		},
	)
}
