package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/livetv-cli/internal/api"
	"github.com/glebovdev/livetv-cli/internal/channel"
	"github.com/glebovdev/livetv-cli/internal/config"
	"github.com/glebovdev/livetv-cli/internal/player"
	"github.com/glebovdev/livetv-cli/internal/service"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	VolumeStep             = 5
	HeaderHeight           = 3
	FooterHeightWide       = 3 // Wide: 1 row with padding (top + text + bottom)
	FooterHeightNarrow     = 6 // Narrow: 2 rows × 3 lines each
	CoverWidth             = 26
	CoverHeight            = 10
	PlayerPanelHeight      = 10
	FooterBreakpoint       = 130 // Width threshold for responsive footer
	MinLoadingDisplayTime  = 900 * time.Millisecond
	MinStatusDisplayTime   = 300 * time.Millisecond
	CatalogRefreshInterval = 10 * time.Minute

	// CatalogErrorMessage is shown when the channel list cannot be loaded.
	CatalogErrorMessage = "Failed to load channel list. Please try again later."

	overlayPage = "overlay"
)

type UI struct {
	app        *tview.Application
	service    *service.ChannelService
	supervisor *player.Supervisor
	volume     VolumeControl
	config     *config.Config
	overlay    *OverlayPresenter
	updates    *updateQueue
	search     *debouncer

	currentChannel *channel.Channel
	channelList    *tview.Table
	categoryBar    *tview.TextView
	searchInput    *tview.InputField
	helpPanel      *tview.Box
	contentLayout  *tview.Flex
	playerPanel    *tview.Flex
	logoPanel      *tview.Image
	volumeView     *tview.TextView
	mainLayout     *tview.Flex
	loadingScreen  *tview.Flex
	loadingText    *tview.TextView
	progressBar    *tview.TextView
	overlayText    *tview.TextView
	pages          *tview.Pages

	visible    []channel.Channel
	categories []string
	category   string
	query      string
	selectedID string

	stopUpdates     chan struct{}
	watchCancel     context.CancelFunc
	isMuted         bool
	lastFooterWidth int // Track width to detect layout changes
	mu              sync.Mutex
	activeID        string
	animationFrame  int
	playingSpinner  *PlayingSpinner
	statusRenderer  *StatusRenderer
	colors          struct {
		background                  tcell.Color
		foreground                  tcell.Color
		borders                     tcell.Color
		highlight                   tcell.Color
		headerBackground            tcell.Color
		channelListHeaderBackground tcell.Color
		channelListHeaderForeground tcell.Color
		helpBackground              tcell.Color
		helpForeground              tcell.Color
		helpHotkey                  tcell.Color
		categoryTagBackground       tcell.Color
		modalBackground             tcell.Color
		errorForeground             tcell.Color
	}
}

// NewUI builds the interface and the playback supervisor it drives. opts
// carries the output, engine factory and tuning; the UI supplies the
// overlay, highlighter, resolver and status hook. volume may be nil when
// the output has no volume control.
func NewUI(cfg *config.Config, channelService *service.ChannelService, opts player.Options, volume VolumeControl) *UI {
	ui := &UI{
		app:         tview.NewApplication(),
		service:     channelService,
		volume:      volume,
		config:      cfg,
		stopUpdates: make(chan struct{}),
		category:    cfg.DefaultCategory,
	}

	ui.colors.background = config.GetColor(cfg.Theme.Background)
	ui.colors.foreground = config.GetColor(cfg.Theme.Foreground)
	ui.colors.borders = config.GetColor(cfg.Theme.Borders)
	ui.colors.highlight = config.GetColor(cfg.Theme.Highlight)
	ui.colors.headerBackground = config.GetColor(cfg.Theme.HeaderBackground)
	ui.colors.channelListHeaderBackground = config.GetColor(cfg.Theme.ChannelListHeaderBackground)
	ui.colors.channelListHeaderForeground = config.GetColor(cfg.Theme.ChannelListHeaderForeground)
	ui.colors.helpBackground = config.GetColor(cfg.Theme.HelpBackground)
	ui.colors.helpForeground = config.GetColor(cfg.Theme.HelpForeground)
	ui.colors.helpHotkey = config.GetColor(cfg.Theme.HelpHotkey)
	ui.colors.categoryTagBackground = config.GetColor(cfg.Theme.CategoryTagBackground)
	ui.colors.modalBackground = config.GetColor(cfg.Theme.ModalBackground)
	ui.colors.errorForeground = config.GetColor(cfg.Theme.ErrorForeground)

	if volume != nil {
		volume.SetVolume(cfg.Volume)
		log.Debug().Msgf("Loaded volume from config: %d%%", cfg.Volume)
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	ui.updates = newUpdateQueue(func(fn func()) { ui.app.QueueUpdateDraw(fn) })
	ui.statusRenderer = NewStatusRenderer()
	ui.statusRenderer.SetPrimaryColor(ui.colors.highlight.String())
	ui.search = newDebouncer(clk, SearchDebounce)
	ui.overlay = newOverlayPresenter(clk, ui.dispatch, ui)

	opts.Overlay = ui.overlay
	opts.Highlighter = ui
	opts.Resolver = channelService
	opts.OnChange = ui.statusRenderer.SetStatus
	ui.supervisor = player.New(opts)

	return ui
}

// dispatch queues fn on the UI goroutine without blocking the caller. Work
// dispatched after the application has stopped is dropped.
func (ui *UI) dispatch(fn func()) {
	ui.updates.Post(fn)
}

func (ui *UI) SaveConfig() {
	ui.mu.Lock()
	if ui.volume != nil && !ui.isMuted {
		ui.config.Volume = ui.volume.Volume()
	}
	if ui.currentChannel != nil {
		ui.config.LastChannel = ui.currentChannel.ID()
	}
	ui.mu.Unlock()

	if err := ui.config.Save(); err != nil {
		log.Error().Err(err).Msg("Failed to save config")
	}
}

func (ui *UI) safeCloseChannel() {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	if ui.stopUpdates != nil {
		select {
		case <-ui.stopUpdates:
			// Already closed
		default:
			close(ui.stopUpdates)
		}
		ui.stopUpdates = nil
	}
}

func (ui *UI) recreateStopChannel() {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	ui.stopUpdates = make(chan struct{})
}

func (ui *UI) stop() {
	ui.service.StopPeriodicRefresh()
	if ui.watchCancel != nil {
		ui.watchCancel()
	}
	ui.search.Cancel()
	ui.overlay.Stop()
	ui.supervisor.Stop()
	ui.safeCloseChannel()
	ui.app.Stop()
}

// Shutdown stops the UI gracefully from external callers (e.g., signal handlers).
func (ui *UI) Shutdown() {
	ui.dispatch(func() {
		ui.stop()
	})
}

// Close disposes the playback supervisor and background services. Call it
// after Run has returned.
func (ui *UI) Close() {
	ui.updates.Close()
	ui.supervisor.Dispose()
	ui.service.Close()
}

func (ui *UI) Run() error {
	ui.setupLoadingScreen()
	ui.app.SetRoot(ui.loadingScreen, true)
	ui.configureScreen()

	go ui.initAsync()

	err := ui.app.Run()
	ui.updates.Close()
	return err
}

func (ui *UI) configureScreen() {
	bgStyle := tcell.StyleDefault.Background(ui.colors.background)
	ui.app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		screen.SetStyle(bgStyle)
		screen.Clear()
		return false
	})

	var titleSet sync.Once
	ui.app.SetAfterDrawFunc(func(screen tcell.Screen) {
		titleSet.Do(func() { screen.SetTitle(config.AppName) })
	})
}

func (ui *UI) initAsync() {
	if err := ui.loadCatalogAndInitUI(); err != nil {
		ui.dispatch(func() {
			ui.handleInitialError(err)
		})
	}
}

func (ui *UI) setupLoadingScreen() {
	ui.loadingText = tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText("Loading channel list... (1/3)")
	ui.loadingText.SetTextColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background)

	ui.progressBar = tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText(ui.renderProgressBar(0))
	ui.progressBar.SetTextColor(ui.colors.highlight).
		SetBackgroundColor(ui.colors.background)

	content := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.loadingText, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.progressBar, 1, 0, false)
	content.SetBackgroundColor(ui.colors.background)

	ui.loadingScreen = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(content, 3, 0, false).
		AddItem(nil, 0, 1, false)

	ui.loadingScreen.SetBackgroundColor(ui.colors.background)
}

func (ui *UI) renderProgressBar(percent int) string {
	const width = 30
	filled := (percent * width) / 100
	empty := width - filled
	return strings.Repeat("█", filled) + strings.Repeat("░", empty)
}

func (ui *UI) animateProgress(fromPercent, toPercent int, duration time.Duration) {
	steps := toPercent - fromPercent
	if steps <= 0 {
		return
	}
	stepDuration := duration / time.Duration(steps)
	lastBar := ui.renderProgressBar(fromPercent)

	for p := fromPercent + 1; p <= toPercent; p++ {
		time.Sleep(stepDuration)
		if bar := ui.renderProgressBar(p); bar != lastBar {
			ui.dispatch(func() {
				ui.progressBar.SetText(bar)
			})
			lastBar = bar
		}
	}
}

func (ui *UI) loadCatalogAndInitUI() error {
	const totalStages = 3
	stagePercent := func(stage int) int { return (stage * 100) / totalStages }

	startTime := time.Now()

	animDone := make(chan struct{})
	go func() {
		ui.animateProgress(stagePercent(0), stagePercent(1), MinStatusDisplayTime)
		close(animDone)
	}()

	catalog, err := ui.service.Load(context.Background())
	<-animDone
	if err != nil {
		return fmt.Errorf("failed to load channels: %w", err)
	}
	log.Debug().Msgf("Loaded %d channels in %v", catalog.Len(), time.Since(startTime))

	ui.dispatch(func() {
		ui.loadingText.SetText("Preparing categories... (2/3)")
	})

	categories := ui.config.CategoryList(catalog.Categories())

	ui.animateProgress(stagePercent(1), stagePercent(2), MinStatusDisplayTime)

	ui.dispatch(func() {
		ui.loadingText.SetText("Building interface... (3/3)")
	})

	ui.startBackgroundRefresh()

	ui.animateProgress(stagePercent(2), stagePercent(3), MinStatusDisplayTime)

	// Floor, not ceiling: wait only if real work finished early.
	if elapsed := time.Since(startTime); elapsed < MinLoadingDisplayTime {
		time.Sleep(MinLoadingDisplayTime - elapsed)
	}
	log.Debug().Msgf("Total loading time: %v", time.Since(startTime))

	ui.dispatch(func() {
		ui.setupUI()
		ui.categories = categories
		ui.renderCategoryBar()
		ui.applyFilter()

		ui.app.SetRoot(ui.pages, true).EnableMouse(true)
		ui.app.SetFocus(ui.channelList)

		ui.restoreLastChannel(catalog)
	})

	go ui.prefetchArtwork(catalog)

	return nil
}

func (ui *UI) restoreLastChannel(catalog *channel.Catalog) {
	if ui.config.LastChannel == "" {
		return
	}

	ch, ok := catalog.Lookup(ui.config.LastChannel)
	if !ok {
		log.Debug().Msgf("Last channel '%s' not found", ui.config.LastChannel)
		return
	}

	ui.selectedID = ch.ID()
	ui.refreshChannelTable()

	if ui.config.Autostart {
		log.Debug().Msgf("Autostart enabled, playing last channel: %s", ch.Name)
		ui.playChannel(ch)
		return
	}
	ui.currentChannel = &ch
	ui.showChannelInfo(ch)
}

func (ui *UI) startBackgroundRefresh() {
	ctx, cancel := context.WithCancel(context.Background())
	err := ui.service.Watch(ctx, ui.onCatalogReloaded)
	if err == nil {
		ui.watchCancel = cancel
		return
	}
	cancel()

	if !errors.Is(err, service.ErrRemoteCatalog) {
		log.Warn().Err(err).Msg("Failed to watch catalog file")
		return
	}
	ui.service.StartPeriodicRefresh(CatalogRefreshInterval, ui.onCatalogReloaded)
}

func (ui *UI) prefetchArtwork(catalog *channel.Catalog) {
	urls := make([]string, 0, catalog.Len())
	for _, ch := range catalog.All() {
		urls = append(urls, ch.Image)
	}
	ui.service.PrefetchArtwork(context.Background(), urls)
}

func (ui *UI) setupUI() {
	header := ui.createHeader()

	ui.playerPanel = tview.NewFlex().SetDirection(tview.FlexRow)
	ui.playerPanel.SetBackgroundColor(ui.colors.background)

	ui.categoryBar = ui.createCategoryBar()
	ui.searchInput = ui.createSearchInput()
	ui.channelList = ui.createChannelListTable()

	ui.helpPanel = ui.createFooter()

	ui.contentLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, HeaderHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.playerPanel, PlayerPanelHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.categoryBar, 1, 0, false).
		AddItem(ui.searchInput, 1, 0, false).
		AddItem(ui.channelList, 0, 1, true).
		AddItem(ui.helpPanel, FooterHeightWide, 0, false)
	ui.contentLayout.SetBackgroundColor(ui.colors.background)

	wrapper := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 3, 0, false).
		AddItem(ui.contentLayout, 0, 1, true).
		AddItem(nil, 3, 0, false)
	wrapper.SetBackgroundColor(ui.colors.background)

	ui.mainLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 1, 0, false).
		AddItem(wrapper, 0, 1, true).
		AddItem(nil, 1, 0, false)
	ui.mainLayout.SetBackgroundColor(ui.colors.background)

	ui.pages = tview.NewPages().
		AddPage("main", ui.mainLayout, true, true).
		AddPage(overlayPage, ui.createOverlayPanel(), false, false)
	ui.pages.SetBackgroundColor(ui.colors.background)

	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if ui.pages.HasPage("modal") {
			return event
		}
		if ui.app.GetFocus() == ui.searchInput {
			return event
		}
		return ui.globalInputHandler(event)
	})
}

func (ui *UI) createHeader() tview.Primitive {
	titleView := tview.NewTextView()
	titleView.SetText(" " + config.AppName)
	titleView.SetTextAlign(tview.AlignLeft)
	titleView.SetTextColor(ui.colors.foreground)
	titleView.SetBackgroundColor(ui.colors.headerBackground)

	versionView := tview.NewTextView()
	versionView.SetText("v" + config.AppVersion + " ")
	versionView.SetTextAlign(tview.AlignRight)
	versionView.SetTextColor(ui.colors.foreground)
	versionView.SetBackgroundColor(ui.colors.headerBackground)

	textFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(titleView, 0, 1, false).
		AddItem(versionView, 10, 0, false)
	textFlex.SetBackgroundColor(ui.colors.headerBackground)

	textWithPadding := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false).
		AddItem(textFlex, 0, 1, false).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false)
	textWithPadding.SetBackgroundColor(ui.colors.headerBackground)

	headerFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false).
		AddItem(textWithPadding, 1, 0, false).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false)
	headerFlex.SetBackgroundColor(ui.colors.headerBackground)

	return headerFlex
}

func (ui *UI) updateLogoPanel(ch channel.Channel) {
	logo := ui.logoPanel
	if ch.Image == "" {
		return
	}

	go func() {
		img, err := ui.service.LoadImage(ch.Image)
		if err != nil {
			log.Debug().Err(err).Str("channel", ch.Name).Msg("Failed to load artwork")
			ui.dispatch(func() {
				logo.SetDrawFunc(func(screen tcell.Screen, x, y, width, height int) (int, int, int, int) {
					tview.Print(screen, "No artwork", x, y+height/2, width, tview.AlignCenter, ui.colors.borders)
					return x, y, width, height
				})
			})
			return
		}

		ui.dispatch(func() {
			logo.SetImage(img)
		})
	}()
}

func (ui *UI) createContentPanel(ch channel.Channel) *tview.Flex {
	ui.logoPanel = tview.NewImage()
	ui.logoPanel.SetBackgroundColor(ui.colors.background)
	ui.logoPanel.SetAlign(tview.AlignLeft, tview.AlignTop)

	label := func(text string) *tview.TextView {
		tv := tview.NewTextView()
		tv.SetText(text)
		tv.SetTextColor(ui.colors.foreground)
		tv.SetBackgroundColor(ui.colors.background)
		tv.SetWrap(false)
		return tv
	}

	channelNameView := tview.NewTextView()
	channelNameView.SetDynamicColors(true)
	channelNameView.SetText(fmt.Sprintf(" [%s]%s[-]",
		ui.colors.highlight.String(),
		tview.Escape(ch.Name)))
	channelNameView.SetBackgroundColor(ui.colors.background)
	channelNameView.SetWrap(false)
	channelNameView.SetTextStyle(tcell.StyleDefault.Background(ui.colors.background).Attributes(tcell.AttrBold))

	categoryView := ui.createCategoryTag(ch.Category)

	streamView := tview.NewTextView()
	streamView.SetText(" " + ch.URL)
	streamView.SetTextColor(ui.colors.borders)
	streamView.SetBackgroundColor(ui.colors.background)
	streamView.SetWrap(false)

	infoContent := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(label(" Channel:"), 1, 0, false).
		AddItem(channelNameView, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(label(" Category:"), 1, 0, false).
		AddItem(categoryView, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(label(" Stream:"), 1, 0, false).
		AddItem(streamView, 1, 0, false).
		AddItem(nil, 0, 1, false)
	infoContent.SetBackgroundColor(ui.colors.background)

	logoWrapper := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.logoPanel, CoverHeight, 0, false).
		AddItem(nil, 0, 1, false)
	logoWrapper.SetBackgroundColor(ui.colors.background)

	contentFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(logoWrapper, CoverWidth, 0, false).
		AddItem(infoContent, 0, 1, false)
	contentFlex.SetBackgroundColor(ui.colors.background)

	if ui.volume != nil {
		ui.volumeView = ui.createGraphicalVolumeBar()
		contentFlex.AddItem(ui.volumeView, 7, 0, false)
	}

	contentWithPadding := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 4, 0, false).
		AddItem(contentFlex, 0, 1, false).
		AddItem(nil, 4, 0, false)
	contentWithPadding.SetBackgroundColor(ui.colors.background)

	return contentWithPadding
}

func (ui *UI) createCategoryTag(category string) *tview.Flex {
	container := tview.NewFlex().SetDirection(tview.FlexColumn)
	container.SetBackgroundColor(ui.colors.background)
	container.AddItem(tview.NewBox().SetBackgroundColor(ui.colors.background), 1, 0, false)

	if category == "" {
		category = "N/A"
	}

	tag := tview.NewTextView()
	tag.SetText(" " + category + " ")
	tag.SetTextColor(ui.colors.foreground)
	tag.SetBackgroundColor(ui.colors.categoryTagBackground)
	tag.SetTextAlign(tview.AlignCenter)

	container.AddItem(tag, len(category)+2, 0, false)
	container.AddItem(tview.NewBox().SetBackgroundColor(ui.colors.background), 0, 1, false)

	return container
}

type PlayingSpinner struct {
	Frames []string
	FPS    time.Duration
}

func NewPlayingSpinner() *PlayingSpinner {
	return &PlayingSpinner{
		Frames: []string{"⣾ ", "⣽ ", "⣻ ", "⢿ ", "⡿ ", "⣟ ", "⣯ ", "⣷ "},
		FPS:    time.Second / 10,
	}
}

func (ui *UI) getPlayingIndicator() string {
	if ui.playingSpinner == nil {
		ui.playingSpinner = NewPlayingSpinner()
	}

	ui.mu.Lock()
	frame := ui.animationFrame
	ui.mu.Unlock()

	return ui.playingSpinner.Frames[frame%len(ui.playingSpinner.Frames)]
}

// startPlayingAnimation (re)starts the ticker that animates the active
// marker, the footer and the loading overlay.
func (ui *UI) startPlayingAnimation() {
	if ui.playingSpinner == nil {
		ui.playingSpinner = NewPlayingSpinner()
	}

	ui.safeCloseChannel()
	ui.recreateStopChannel()

	ui.mu.Lock()
	stop := ui.stopUpdates
	ui.mu.Unlock()

	go func() {
		animationTicker := time.NewTicker(ui.playingSpinner.FPS)
		defer animationTicker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-animationTicker.C:
				ui.mu.Lock()
				ui.animationFrame++
				ui.mu.Unlock()

				ui.statusRenderer.AdvanceAnimation()

				ui.dispatch(func() {
					ui.updateActiveMarker()
					ui.updateOverlaySpinner()
				})
			}
		}
	}()
}

func (ui *UI) globalInputHandler(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyRune:
		r := event.Rune()
		if r >= '1' && r <= '9' {
			ui.selectCategory(int(r - '1'))
			return nil
		}

		switch r {
		case 'q', 'Q':
			ui.stop()
			return nil
		case '/':
			ui.focusSearch()
			return nil
		case 'r', 'R':
			ui.supervisor.RetryCurrentSelection()
			return nil
		case 's', 'S':
			ui.supervisor.Stop()
			return nil
		case '+', '=':
			ui.adjustVolume(VolumeStep)
			return nil
		case '-', '_':
			ui.adjustVolume(-VolumeStep)
			return nil
		case 'm', 'M':
			ui.toggleMute()
			return nil
		case '?':
			ui.showHelpModal()
			return nil
		case 'a', 'A':
			ui.showAboutModal()
			return nil
		}
	case tcell.KeyEnter:
		row, _ := ui.channelList.GetSelection()
		ui.playRow(row)
		return nil
	case tcell.KeyTab:
		ui.nextCategory()
		return nil
	case tcell.KeyEscape:
		ui.stop()
		return nil
	case tcell.KeyRight:
		// Right arrow - volume up (hidden shortcut)
		ui.adjustVolume(VolumeStep)
		return nil
	case tcell.KeyLeft:
		// Left arrow - volume down (hidden shortcut)
		ui.adjustVolume(-VolumeStep)
		return nil
	}
	return event
}

// catalogErrorDetail gives a short reason for a failed catalog load.
func catalogErrorDetail(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = strings.TrimPrefix(msg, "failed to load channels: ")
	msg = strings.TrimPrefix(msg, api.ErrCatalogLoad.Error()+": ")
	return friendlyErrorMessage(msg)
}
