package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/livetv-cli/internal/channel"
	"github.com/glebovdev/livetv-cli/internal/player"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const maxNameWidth = 40

func (ui *UI) createChannelListTable() *tview.Table {
	table := tview.NewTable().
		SetBorders(false).
		SetSeparator(' ').
		SetSelectable(true, false).
		SetFixed(1, 0)

	table.SetBorder(true).
		SetBorderColor(ui.colors.borders).
		SetTitleColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background).
		SetBorderPadding(1, 0, 1, 1)

	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(ui.colors.background).
		Background(ui.colors.highlight))

	ui.setChannelHeader(table)

	// Track the selected channel so it survives filtering and reloads.
	table.SetSelectionChangedFunc(func(row, column int) {
		if ch, ok := ui.channelAt(row); ok {
			ui.selectedID = ch.ID()
		}
	})

	table.SetSelectedFunc(func(row, column int) {
		ui.playRow(row)
	})

	return table
}

func (ui *UI) setChannelHeader(table *tview.Table) {
	table.SetCell(0, 0, tview.NewTableCell(" ").
		SetTextColor(ui.colors.channelListHeaderForeground).
		SetBackgroundColor(ui.colors.channelListHeaderBackground).
		SetMaxWidth(2).
		SetSelectable(false))

	table.SetCell(0, 1, tview.NewTableCell("Name").
		SetTextColor(ui.colors.channelListHeaderForeground).
		SetBackgroundColor(ui.colors.channelListHeaderBackground).
		SetExpansion(1).
		SetSelectable(false))

	table.SetCell(0, 2, tview.NewTableCell("Category").
		SetTextColor(ui.colors.channelListHeaderForeground).
		SetBackgroundColor(ui.colors.channelListHeaderBackground).
		SetAlign(tview.AlignRight).
		SetSelectable(false))
}

func (ui *UI) setChannelRow(table *tview.Table, row int, ch channel.Channel) {
	marker := " "
	if ch.ID() == ui.activeChannelID() {
		marker = "➤"
	}
	table.SetCell(row, 0, tview.NewTableCell(marker).
		SetTextColor(ui.colors.highlight).
		SetMaxWidth(2))

	table.SetCell(row, 1, tview.NewTableCell(tview.Escape(ch.Name)).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(maxNameWidth).
		SetExpansion(2))

	table.SetCell(row, 2, tview.NewTableCell(ch.Category).
		SetTextColor(ui.colors.foreground).
		SetAlign(tview.AlignRight))
}

// channelAt maps a table row to the visible channel it shows.
func (ui *UI) channelAt(row int) (channel.Channel, bool) {
	if row <= 0 || row > len(ui.visible) {
		return channel.Channel{}, false
	}
	return ui.visible[row-1], true
}

// applyFilter recomputes the visible channels from the current query and
// category and redraws the table. Must run on the UI goroutine.
func (ui *UI) applyFilter() {
	ui.visible = ui.service.Filter(ui.query, ui.category)
	ui.refreshChannelTable()
}

func (ui *UI) refreshChannelTable() {
	table := ui.channelList
	table.Clear()
	ui.setChannelHeader(table)

	selectedRow := 0
	for i, ch := range ui.visible {
		ui.setChannelRow(table, i+1, ch)
		if ch.ID() == ui.selectedID {
			selectedRow = i + 1
		}
	}

	switch {
	case selectedRow > 0:
		table.Select(selectedRow, 0)
	case len(ui.visible) > 0:
		table.Select(1, 0)
	}

	title := fmt.Sprintf("Channels (%d)", len(ui.visible))
	if ui.query != "" {
		title = fmt.Sprintf("Channels (%d) matching %q", len(ui.visible), ui.query)
	}
	table.SetTitle(title)

	log.Debug().Int("count", len(ui.visible)).Str("category", ui.category).Str("query", ui.query).Msg("Channel table refreshed")
}

// updateActiveMarker moves the play marker to the active channel and
// animates it while a session is running.
func (ui *UI) updateActiveMarker() {
	if ui.channelList == nil {
		return
	}

	activeID := ui.activeChannelID()
	state := ui.statusRenderer.Status().State
	running := state == player.StatePlaying || state == player.StateBuffering || state == player.StateLoading

	for i, ch := range ui.visible {
		row := i + 1
		active := ch.ID() == activeID

		if cell := ui.channelList.GetCell(row, 0); cell != nil {
			if active {
				cell.SetText("➤")
			} else {
				cell.SetText(" ")
			}
		}

		nameCell := ui.channelList.GetCell(row, 1)
		if nameCell == nil {
			continue
		}

		name := tview.Escape(ch.Name)
		if active && running {
			indicator := ui.getPlayingIndicator()
			maxLen := maxNameWidth - len(indicator) - 1
			if len(name) > maxLen {
				name = name[:maxLen-3] + "..."
			}
			name = name + " " + indicator
		}
		nameCell.SetText(name)
	}
}

func (ui *UI) createCategoryBar() *tview.TextView {
	bar := tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetWrap(false)
	bar.SetTextColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background)

	bar.SetHighlightedFunc(func(added, removed, remaining []string) {
		if len(added) == 0 {
			return
		}
		var index int
		if _, err := fmt.Sscanf(added[0], "cat-%d", &index); err == nil {
			ui.selectCategory(index)
		}
	})

	return bar
}

func (ui *UI) renderCategoryBar() {
	if ui.categoryBar == nil {
		return
	}

	var b strings.Builder
	b.WriteString(" ")
	for i, category := range ui.categories {
		label := category
		if i < 9 {
			label = fmt.Sprintf("%d %s", i+1, category)
		}

		if category == ui.category {
			fmt.Fprintf(&b, `["cat-%d"][%s:%s:b] %s [-:-:-][""]`, i, ui.colors.background, ui.colors.highlight, tview.Escape(label))
		} else {
			fmt.Fprintf(&b, `["cat-%d"][%s:%s] %s [-:-:-][""]`, i, ui.colors.foreground, ui.colors.categoryTagBackground, tview.Escape(label))
		}
		b.WriteString(" ")
	}

	ui.categoryBar.SetText(b.String())
}

// selectCategory switches the filter to the category at index.
func (ui *UI) selectCategory(index int) {
	if index < 0 || index >= len(ui.categories) {
		return
	}
	if ui.categories[index] == ui.category {
		return
	}

	ui.category = ui.categories[index]
	log.Debug().Str("category", ui.category).Msg("Category selected")
	ui.renderCategoryBar()
	ui.applyFilter()
}

func (ui *UI) nextCategory() {
	if len(ui.categories) == 0 {
		return
	}
	current := 0
	for i, category := range ui.categories {
		if category == ui.category {
			current = i
			break
		}
	}
	ui.selectCategory((current + 1) % len(ui.categories))
}

func (ui *UI) createSearchInput() *tview.InputField {
	input := tview.NewInputField().
		SetLabel(" / ").
		SetPlaceholder("Search channels").
		SetFieldWidth(0)
	input.SetLabelColor(ui.colors.highlight).
		SetFieldBackgroundColor(ui.colors.background).
		SetFieldTextColor(ui.colors.foreground).
		SetPlaceholderTextColor(ui.colors.borders).
		SetBackgroundColor(ui.colors.background)

	input.SetChangedFunc(func(text string) {
		ui.search.Trigger(func() {
			ui.dispatch(func() {
				ui.query = text
				ui.applyFilter()
			})
		})
	})

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEscape {
			input.SetText("")
		}
		ui.app.SetFocus(ui.channelList)
	})

	return input
}

func (ui *UI) focusSearch() {
	if ui.searchInput != nil {
		ui.app.SetFocus(ui.searchInput)
	}
}

// playRow starts playback of the channel shown at row.
func (ui *UI) playRow(row int) {
	ch, ok := ui.channelAt(row)
	if !ok {
		return
	}
	ui.playChannel(ch)
}

func (ui *UI) playChannel(ch channel.Channel) {
	log.Info().Str("channel", ch.Name).Msg("Channel selected")

	ui.currentChannel = &ch
	ui.selectedID = ch.ID()
	ui.supervisor.StartPlayback(ch.URL, ch)

	ui.showChannelInfo(ch)
	ui.startPlayingAnimation()
	ui.SaveConfig()
}

// showChannelInfo fills the player panel without starting playback.
func (ui *UI) showChannelInfo(ch channel.Channel) {
	ui.playerPanel.Clear()
	ui.playerPanel.AddItem(ui.createContentPanel(ch), 0, 1, false)
	ui.updateLogoPanel(ch)
}

// Highlight marks entry as the active channel. It is called from the
// playback supervisor and never blocks.
func (ui *UI) Highlight(entry player.Entry) {
	ui.mu.Lock()
	ui.activeID = entry.ID()
	ui.mu.Unlock()

	ui.dispatch(ui.updateActiveMarker)
}

func (ui *UI) activeChannelID() string {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	return ui.activeID
}

// onCatalogReloaded swaps in a new catalog from a refresh or file change.
func (ui *UI) onCatalogReloaded(catalog *channel.Catalog) {
	ui.dispatch(func() {
		if ui.channelList == nil {
			return
		}
		ui.categories = ui.config.CategoryList(catalog.Categories())
		ui.renderCategoryBar()
		ui.applyFilter()
	})
}
