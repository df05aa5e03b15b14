package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/vadimtrunov/moviefinder/internal/config"
	"github.com/vadimtrunov/moviefinder/internal/core"
	"github.com/vadimtrunov/moviefinder/internal/movies"
	"github.com/vadimtrunov/moviefinder/internal/voice"
)

// newBrowseCmd returns the "browse" subcommand for the interactive list.
func newBrowseCmd() *cobra.Command {
	var logFile string
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse popular movies interactively",
		Long: "Scroll through popular movies; more pages load as you reach the end.\n" +
			"enter opens a movie, v starts voice search (type the title), esc goes back, q quits.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBrowse(cmd, logFile)
		},
	}
	cmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file (default: discard)")
	return cmd
}

// runBrowse initializes the store and starts the Bubble Tea browser.
func runBrowse(cmd *cobra.Command, logFile string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	var logOut io.Writer = io.Discard
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer func() { _ = f.Close() }()
		logOut = f
	}
	logger := config.SetupLoggerTo(logOut, cfg.App.LogLevel)

	vcfg, err := voiceConfig(cfg)
	if err != nil {
		return err
	}

	catalog := initCatalog(cfg, logger)
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	store, events, closeStore := openStore(catalog, logger)
	defer closeStore()

	mic := voice.NewTyped()
	search := voice.NewSearch(mic, voice.TextRecognizer{}, store, vcfg, logger)
	defer search.Cancel()

	p := tea.NewProgram(newBrowseModel(ctx, store, events, search, mic), tea.WithAltScreen())

	// Bridge OS signal cancellation into the Bubble Tea event loop.
	go func() {
		<-ctx.Done()
		p.Send(tea.Quit())
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run browser: %w", err)
	}
	return nil
}

// storeEventMsg carries one Store event into the TUI.
type storeEventMsg movies.Event

// eventsClosedMsg is sent once the Store subscription has ended.
type eventsClosedMsg struct{}

// voiceStartedMsg reports the result of starting a voice session.
type voiceStartedMsg struct{ err error }

type browseView int

const (
	viewList browseView = iota
	viewDetail
)

// voiceSearch is the part of *voice.Search the browser drives.
type voiceSearch interface {
	Toggle(ctx context.Context) error
	Cancel()
	State() voice.State
}

// voiceInput is the microphone the browser types into.
type voiceInput interface {
	Say(text string) error
}

// browseModel is the Bubble Tea model for the movie browser.
type browseModel struct {
	ctx    context.Context
	store  *movies.Store
	events <-chan movies.Event
	search voiceSearch
	mic    voiceInput

	view     browseView
	cursor   int
	offset   int
	loading  bool
	alert    string
	voiceOn  bool
	input    textinput.Model
	spinner  spinner.Model
	detail   viewport.Model
	width    int
	height   int
	ready    bool
	closed   bool
	selected core.Movie
}

// newBrowseModel creates a browseModel waiting for the first page.
func newBrowseModel(
	ctx context.Context, store *movies.Store, events <-chan movies.Event,
	search voiceSearch, mic voiceInput,
) browseModel {
	ti := textinput.New()
	ti.Placeholder = "Say a title..."
	ti.CharLimit = 200
	ti.Prompt = "🎤 "

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styleInfo

	return browseModel{
		ctx:     ctx,
		store:   store,
		events:  events,
		search:  search,
		mic:     mic,
		input:   ti,
		spinner: s,
		loading: true,
	}
}

// Init requests genres (and with them the first page) and starts listening
// for Store events.
func (m browseModel) Init() tea.Cmd {
	return tea.Batch(m.retrieveGenres(), waitForEvent(m.events), m.spinner.Tick)
}

func (m browseModel) retrieveGenres() tea.Cmd {
	return func() tea.Msg {
		m.store.RetrieveGenres(m.ctx)
		return nil
	}
}

// waitForEvent returns a command that blocks until the next Store event.
func waitForEvent(events <-chan movies.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return storeEventMsg(e)
	}
}

// Update handles Store events and user input.
func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.handleResize(msg)
		return m, nil

	case storeEventMsg:
		cmd := m.handleEvent(movies.Event(msg))
		return m, tea.Batch(cmd, waitForEvent(m.events))

	case eventsClosedMsg:
		m.closed = true
		m.loading = false
		return m, nil

	case voiceStartedMsg:
		if msg.err != nil {
			m.voiceOn = false
			m.input.Blur()
			m.alert = describeError(msg.err)
		}
		return m, nil

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.view == viewDetail && m.ready {
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleResize sizes the list window and the detail viewport.
func (m *browseModel) handleResize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height
	vpHeight := max(m.height-4, 1)
	if !m.ready {
		m.detail = viewport.New(m.width, vpHeight)
		m.ready = true
	} else {
		m.detail.Width = m.width
		m.detail.Height = vpHeight
	}
	m.input.Width = max(m.width-6, 10)
	m.clampOffset()
}

// handleEvent applies one Store event to the view.
func (m *browseModel) handleEvent(e movies.Event) tea.Cmd {
	switch e.Op {
	case movies.OpGenres:
		if e.Failed() {
			m.loading = false
			m.alert = describeError(e.Err)
		}
	case movies.OpMovies:
		m.loading = false
		if e.Failed() {
			m.alert = describeError(e.Err)
		}
	case movies.OpCast:
		m.loading = false
		if e.Failed() {
			m.alert = describeError(e.Err)
		}
		m.refreshDetail()
	case movies.OpVoice:
		m.voiceOn = false
		m.input.Blur()
		m.input.SetValue("")
		if e.Failed() {
			m.alert = describeError(e.Err)
			return nil
		}
		return m.openSelected()
	}
	return nil
}

// handleKey dispatches key events; an open alert swallows the next key.
func (m browseModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.alert != "" {
		m.alert = ""
		return m, nil
	}
	if m.voiceOn {
		return m.handleVoiceKey(msg)
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "v":
		return m.toggleVoice()
	}

	if m.view == viewDetail {
		switch msg.String() {
		case "esc", "backspace", "left", "h":
			m.view = viewList
			return m, nil
		}
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		m.clampOffset()
	case "down", "j":
		if m.cursor < m.store.Len()-1 {
			m.cursor++
		}
		m.clampOffset()
		return m, m.maybeLoadNext()
	case "enter", "right", "l":
		if err := m.store.SelectMovie(m.cursor); err != nil {
			return m, nil
		}
		return m, m.openSelected()
	}
	return m, nil
}

// handleVoiceKey edits the voice transcript; enter speaks it, esc cancels.
func (m browseModel) handleVoiceKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.search.Cancel()
		m.voiceOn = false
		m.input.Blur()
		m.input.SetValue("")
		return m, nil
	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		if err := m.mic.Say(text); err != nil {
			m.voiceOn = false
			m.input.Blur()
			m.alert = describeError(err)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// toggleVoice starts a voice session, or cancels a listening one.
func (m browseModel) toggleVoice() (tea.Model, tea.Cmd) {
	if m.search.State() == voice.Listening {
		m.search.Cancel()
		m.voiceOn = false
		m.input.Blur()
		return m, nil
	}
	m.voiceOn = true
	m.input.SetValue("")
	focus := m.input.Focus()
	search, ctx := m.search, m.ctx
	return m, tea.Batch(focus, func() tea.Msg {
		return voiceStartedMsg{err: search.Toggle(ctx)}
	})
}

// maybeLoadNext requests the next page once the cursor reaches the last row.
func (m *browseModel) maybeLoadNext() tea.Cmd {
	if m.loading || m.cursor < m.store.Len()-1 {
		return nil
	}
	if _, ok := m.store.LoadNextPage(m.ctx); !ok {
		return nil
	}
	m.loading = true
	return m.spinner.Tick
}

// openSelected switches to the detail view of the selected movie and
// requests its cast.
func (m *browseModel) openSelected() tea.Cmd {
	sel, ok := m.store.Selected()
	if !ok {
		return nil
	}
	m.selected = sel
	m.view = viewDetail
	m.loading = true
	m.refreshDetail()
	m.detail.GotoTop()
	m.store.RetrieveCast(m.ctx)
	return m.spinner.Tick
}

// refreshDetail re-renders the detail viewport content.
func (m *browseModel) refreshDetail() {
	if m.selected.ID == 0 {
		return
	}
	cast, castFor := m.store.Cast()
	if castFor != m.selected.ID {
		cast = nil
	}
	row := m.store.ConfigureRow(m.selected, m.store.Genres())
	m.detail.SetContent(renderDetail(m.selected, row, m.store.BackdropURL(), cast))
}

// listHeight is the number of rows visible in the list view.
func (m browseModel) listHeight() int {
	if m.height == 0 {
		return 20
	}
	// Each row takes two lines; header and footer take four.
	return max((m.height-4)/2, 1)
}

func (m *browseModel) clampOffset() {
	h := m.listHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+h {
		m.offset = m.cursor - h + 1
	}
}

// View renders the list or detail view with the voice bar and any alert.
func (m browseModel) View() string {
	var body string
	if m.view == viewDetail && m.ready {
		body = m.detail.View()
	} else {
		body = m.renderList()
	}

	var sb strings.Builder
	sb.WriteString(m.renderHeader())
	sb.WriteString("\n")
	sb.WriteString(body)
	sb.WriteString("\n")
	if m.voiceOn {
		sb.WriteString(m.input.View())
		sb.WriteString("\n")
	}
	if m.alert != "" {
		sb.WriteString(styleAlert.Render(styleError.Render("Error") + "\n" + m.alert))
		sb.WriteString("\n")
	}
	sb.WriteString(m.renderFooter())
	return sb.String()
}

func (m browseModel) renderHeader() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5")).Render("MovieFinder")
	if m.view == viewDetail {
		title += styleDim.Render(" › ") + styleTitle.Render(m.selected.Title)
	} else if pageMax := m.store.PageMax(); pageMax > 0 {
		title += styleDim.Render(fmt.Sprintf("  page %d of %d", m.store.Page(), pageMax))
	}
	if m.loading {
		title += "  " + m.spinner.View()
	}
	return title
}

func (m browseModel) renderList() string {
	list := m.store.Movies()
	if len(list) == 0 {
		switch {
		case m.loading:
			return styleDim.Render("Loading movies...")
		case m.closed:
			return styleDim.Render("Disconnected.")
		default:
			return styleDim.Render("No movies.")
		}
	}

	genres := m.store.Genres()
	end := min(m.offset+m.listHeight(), len(list))
	var sb strings.Builder
	for i := m.offset; i < end; i++ {
		marker := "  "
		if i == m.cursor {
			marker = styleSelected.Render("›") + " "
		}
		sb.WriteString(marker)
		sb.WriteString(renderRow(i+1, list[i], m.store.ConfigureRow(list[i], genres)))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m browseModel) renderFooter() string {
	switch {
	case m.voiceOn:
		return styleDim.Render("enter: speak  esc: cancel")
	case m.view == viewDetail:
		return styleDim.Render("↑/↓: scroll  esc: back  v: voice  q: quit")
	}
	return styleDim.Render("↑/↓: move  enter: open  v: voice  q: quit")
}

// describeError turns a Store error into a short alert message.
func describeError(err error) string {
	var nf *core.NotFoundError
	var se *core.SpeechError
	var te *core.TransportError
	switch {
	case errors.As(err, &nf):
		if nf.Phrase != "" {
			return fmt.Sprintf("No movie title contains %q.", nf.Phrase)
		}
		return "No movie selected."
	case errors.As(err, &se):
		return "Voice search failed: " + se.Err.Error()
	case errors.Is(err, core.ErrLoadMovies):
		return core.ErrLoadMovies.Error()
	case errors.As(err, &te):
		return "Network error: " + te.Error()
	case errors.Is(err, voice.ErrBusy):
		return "Voice search is already listening."
	}
	return err.Error()
}
