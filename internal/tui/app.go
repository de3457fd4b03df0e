package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/tessro/elixir/internal/backend"
	"github.com/tessro/elixir/internal/core"
	elixirerrors "github.com/tessro/elixir/internal/errors"
	"github.com/tessro/elixir/internal/session"
	"github.com/tessro/elixir/internal/tui/components"
	"github.com/tessro/elixir/internal/tui/styles"
	"github.com/tessro/elixir/internal/wizard"
)

// Panel represents which panel is focused
type Panel int

const (
	PanelServers Panel = iota
	PanelLibrary
	PanelNowPlaying
	panelCount
)

const (
	requestTimeout = 10 * time.Second
	errorLifetime  = 5 * time.Second
)

// Servers lists candidates and switches the active server.
type Servers interface {
	Candidates(ctx context.Context) ([]core.ServerCandidate, error)
	Use(ctx context.Context, url string) error
	Current() string
}

// Library reads the active server's library.
type Library interface {
	ListItems(ctx context.Context) ([]core.LibraryItem, error)
	GetItem(ctx context.Context, id string) (*core.LibraryDetail, error)
	Scan(ctx context.Context, forceMetadata bool) error
}

// Player is the playback session controller.
type Player interface {
	Start(ctx context.Context, req session.StartRequest) error
	SeekBy(delta float64)
	End(ctx context.Context)
	Close() <-chan struct{}
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
}

// Backends is the backend arbiter.
type Backends interface {
	Select(ctx context.Context, kind backend.Kind) error
	Active() backend.Kind
	SetOverlay(ctx context.Context, on bool) error
	Overlay() bool
	TogglePause(ctx context.Context) (bool, error)
	Paused() bool
	CycleTrack(ctx context.Context, typ string) (backend.Track, error)
	Transfer() (backend.Transfer, bool)
	Status() string
}

// App holds the services the dashboard drives.
type App struct {
	Servers     Servers
	Library     Library
	Player      Player
	Backends    Backends
	RefreshRate time.Duration
	SeekStep    float64
}

// Model is the main TUI model
type Model struct {
	app          *App
	width        int
	height       int
	focusedPanel Panel

	// State
	servers     []core.ServerCandidate
	current     string
	items       []core.LibraryItem
	detail      *core.LibraryDetail
	loading     bool
	snap        session.Snapshot
	overlay     bool
	track       string
	snapshots   <-chan session.Snapshot
	unsubscribe func()

	// Generations; results tagged with an older value are dropped.
	libraryGen uint64
	detailGen  uint64

	// Components
	serversView *components.Servers
	libraryView *components.Library
	nowPlaying  *components.NowPlaying
	detailView  *components.Detail

	showHelp bool

	// Library filter
	filtering   bool
	filter      string
	filterInput textinput.Model

	// Error handling
	lastError   string
	errorExpiry time.Time

	quitting bool
}

// NewModel creates a new TUI model
func NewModel(app *App) Model {
	if app.RefreshRate <= 0 {
		app.RefreshRate = time.Second
	}
	if app.SeekStep <= 0 {
		app.SeekStep = 10
	}

	ti := textinput.New()
	ti.Placeholder = "Filter by title..."
	ti.CharLimit = 100
	ti.Width = 40

	snapshots, unsubscribe := app.Player.Subscribe()

	return Model{
		app:         app,
		current:     app.Servers.Current(),
		snap:        app.Player.Snapshot(),
		overlay:     app.Backends.Overlay(),
		snapshots:   snapshots,
		unsubscribe: unsubscribe,
		serversView: components.NewServers(),
		libraryView: components.NewLibrary(),
		nowPlaying:  components.NewNowPlaying(),
		detailView:  components.NewDetail(),
		filterInput: ti,
	}
}

// Messages
type tickMsg time.Time
type snapshotMsg session.Snapshot
type serversMsg []core.ServerCandidate
type errMsg string

type serverUsedMsg struct {
	url string
	err error
}

type libraryMsg struct {
	gen   uint64
	items []core.LibraryItem
	err   error
}

type detailMsg struct {
	gen    uint64
	detail *core.LibraryDetail
	err    error
}

// actionMsg reports the outcome of a fire-once command.
type actionMsg struct {
	action string
	err    error
	reload bool
}

// Commands
func (m Model) tick() tea.Cmd {
	return tea.Tick(m.app.RefreshRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForSnapshot(ch <-chan session.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

func (m Model) fetchServers() tea.Cmd {
	servers := m.app.Servers
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		list, err := servers.Candidates(ctx)
		if err != nil && len(list) == 0 {
			status, _ := elixirerrors.Status("refresh servers", err)
			return errMsg(status)
		}
		return serversMsg(list)
	}
}

func (m Model) fetchLibrary(gen uint64) tea.Cmd {
	library := m.app.Library
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		items, err := library.ListItems(ctx)
		return libraryMsg{gen: gen, items: items, err: err}
	}
}

func (m Model) fetchDetail(gen uint64, id string) tea.Cmd {
	library := m.app.Library
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		detail, err := library.GetItem(ctx, id)
		return detailMsg{gen: gen, detail: detail, err: err}
	}
}

func (m Model) useServer(url string) tea.Cmd {
	servers := m.app.Servers
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return serverUsedMsg{url: url, err: servers.Use(ctx, url)}
	}
}

func (m Model) play(item core.LibraryItem) tea.Cmd {
	player := m.app.Player
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		// Failures surface through the controller's snapshot status.
		_ = player.Start(ctx, session.StartRequest{Item: item})
		return nil
	}
}

func (m Model) endSession() tea.Cmd {
	player := m.app.Player
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		player.End(ctx)
		return nil
	}
}

func (m Model) scan() tea.Cmd {
	library := m.app.Library
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return actionMsg{action: "scan", err: library.Scan(ctx, false), reload: true}
	}
}

func (m Model) selectBackend(kind backend.Kind) tea.Cmd {
	backends := m.app.Backends
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return actionMsg{action: "select backend", err: backends.Select(ctx, kind)}
	}
}

// transferLine summarizes the stream backend's copy, or "".
func (m Model) transferLine() string {
	t, ok := m.app.Backends.Transfer()
	if !ok || t.Bytes == 0 {
		return ""
	}
	line := humanize.IBytes(uint64(t.Bytes)) + " copied"
	if t.Buffered > 0 {
		line += ", " + t.Buffered.Round(time.Second).String() + " listed"
	}
	return line
}

func (m Model) togglePause() tea.Cmd {
	backends := m.app.Backends
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, err := backends.TogglePause(ctx)
		return actionMsg{action: "pause", err: err}
	}
}

type trackMsg struct {
	typ   string
	track backend.Track
	err   error
}

func (m Model) cycleTrack(typ string) tea.Cmd {
	backends := m.app.Backends
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		track, err := backends.CycleTrack(ctx, typ)
		return trackMsg{typ: typ, track: track, err: err}
	}
}

func (m Model) setOverlay(on bool) tea.Cmd {
	backends := m.app.Backends
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return actionMsg{action: "overlay", err: backends.SetOverlay(ctx, on)}
	}
}

// reloadLibrary starts a library fetch that supersedes any in flight.
func (m *Model) reloadLibrary() tea.Cmd {
	m.libraryGen++
	m.detailGen++
	m.detail = nil
	if m.current == "" {
		m.items = nil
		return nil
	}
	return m.fetchLibrary(m.libraryGen)
}

// reloadDetail fetches the highlighted item, superseding earlier fetches.
func (m *Model) reloadDetail() tea.Cmd {
	m.detailGen++
	items := m.visibleItems()
	if len(items) == 0 {
		m.detail = nil
		m.loading = false
		return nil
	}
	item := items[m.libraryView.Selected(len(items))]
	if m.detail != nil && m.detail.ID == item.ID {
		return nil
	}
	m.detail = nil
	m.loading = true
	return m.fetchDetail(m.detailGen, item.ID)
}

func (m Model) visibleItems() []core.LibraryItem {
	return wizard.FilterItems(m.items, m.filter)
}

func (m *Model) setError(status string) {
	if status == "" {
		return
	}
	m.lastError = status
	m.errorExpiry = time.Now().Add(errorLifetime)
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.tick(), waitForSnapshot(m.snapshots), m.fetchServers()}
	if m.current != "" {
		cmds = append(cmds, m.fetchLibrary(m.libraryGen))
	}
	return tea.Batch(cmds...)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		// Subscribers can miss intermediate snapshots; resync on every tick.
		m.snap = m.app.Player.Snapshot()
		if time.Now().After(m.errorExpiry) {
			m.lastError = ""
		}
		return m, m.tick()

	case snapshotMsg:
		if msg.Generation >= m.snap.Generation {
			m.snap = session.Snapshot(msg)
		}
		return m, waitForSnapshot(m.snapshots)

	case serversMsg:
		m.servers = msg
		return m, nil

	case serverUsedMsg:
		if msg.err != nil {
			status, _ := elixirerrors.Status("use server", msg.err)
			m.setError(status)
			return m, nil
		}
		m.current = msg.url
		m.libraryView.Reset()
		return m, m.reloadLibrary()

	case libraryMsg:
		if msg.gen != m.libraryGen {
			return m, nil
		}
		if msg.err != nil {
			status, _ := elixirerrors.Status("load library", msg.err)
			m.setError(status)
			return m, nil
		}
		m.items = msg.items
		return m, m.reloadDetail()

	case detailMsg:
		if msg.gen != m.detailGen {
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			status, _ := elixirerrors.Status("load item", msg.err)
			m.setError(status)
			return m, nil
		}
		m.detail = msg.detail
		return m, nil

	case actionMsg:
		if msg.err != nil {
			status, _ := elixirerrors.Status(msg.action, msg.err)
			m.setError(status)
		}
		if msg.reload && msg.err == nil {
			return m, m.reloadLibrary()
		}
		return m, nil

	case trackMsg:
		if msg.err != nil {
			status, _ := elixirerrors.Status("switch track", msg.err)
			m.setError(status)
			return m, nil
		}
		name := "audio"
		if msg.typ == backend.TrackSubtitle {
			name = "subtitles"
		}
		m.track = name + " " + msg.track.Label()
		return m, nil

	case errMsg:
		m.setError(string(msg))
		return m, nil
	}

	if m.filtering {
		var cmd tea.Cmd
		m.filterInput, cmd = m.filterInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m.quit()
	}

	if m.showHelp {
		switch msg.String() {
		case "?", "esc":
			m.showHelp = false
		}
		return m, nil
	}

	if m.filtering {
		return m.handleFilterKeyPress(msg)
	}

	switch msg.String() {
	case "q":
		return m.quit()

	case "?":
		m.showHelp = true
		return m, nil

	case "/":
		m.filtering = true
		m.focusedPanel = PanelLibrary
		m.filterInput.SetValue(m.filter)
		m.filterInput.Focus()
		return m, textinput.Blink

	case "tab":
		m.focusedPanel = (m.focusedPanel + 1) % panelCount
		return m, nil

	case "shift+tab":
		m.focusedPanel = (m.focusedPanel + panelCount - 1) % panelCount
		return m, nil

	case "left", "h":
		m.app.Player.SeekBy(-m.app.SeekStep)
		return m, nil

	case "right", "l":
		m.app.Player.SeekBy(m.app.SeekStep)
		return m, nil

	case "0", "1", "2", "3":
		kind, err := backend.ParseKind(msg.String())
		if err != nil {
			return m, nil
		}
		return m, m.selectBackend(kind)

	case "o":
		m.overlay = !m.overlay
		return m, m.setOverlay(m.overlay)

	case "p":
		return m, m.togglePause()

	case "a":
		return m, m.cycleTrack(backend.TrackAudio)

	case "t":
		return m, m.cycleTrack(backend.TrackSubtitle)

	case "e":
		m.track = ""
		return m, m.endSession()

	case "r":
		return m, tea.Batch(m.fetchServers(), m.reloadLibrary())

	case "s":
		if m.current == "" {
			return m, nil
		}
		return m, m.scan()
	}

	switch m.focusedPanel {
	case PanelServers:
		switch msg.String() {
		case "j", "down":
			m.serversView.SelectNext(len(m.servers))
		case "k", "up":
			m.serversView.SelectPrev()
		case "enter":
			if len(m.servers) == 0 {
				return m, nil
			}
			c := m.servers[m.serversView.Selected(len(m.servers))]
			return m, m.useServer(c.URL)
		}

	case PanelLibrary:
		items := m.visibleItems()
		switch msg.String() {
		case "j", "down":
			m.libraryView.SelectNext(len(items))
			return m, m.reloadDetail()
		case "k", "up":
			m.libraryView.SelectPrev()
			return m, m.reloadDetail()
		case "enter":
			if len(items) == 0 {
				return m, nil
			}
			return m, m.play(items[m.libraryView.Selected(len(items))])
		}
	}

	return m, nil
}

func (m Model) handleFilterKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.filtering = false
		m.filter = ""
		m.filterInput.Blur()
		m.libraryView.Reset()
		return m, m.reloadDetail()

	case "enter":
		m.filtering = false
		m.filterInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	if v := m.filterInput.Value(); v != m.filter {
		m.filter = v
		m.libraryView.Reset()
		return m, tea.Batch(cmd, m.reloadDetail())
	}
	return m, cmd
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.app.Player.Close()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return m, tea.Quit
}

// View renders the UI
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.width == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	// Left: servers (top), library (bottom). Right: now playing (top), details (bottom).
	leftWidth := m.width * 50 / 100
	rightWidth := m.width - leftWidth - 2
	topHeight := m.height * 35 / 100
	bottomHeight := m.height - topHeight - 4

	servers := m.serversView.Render(m.servers, m.current, leftWidth-2, topHeight-2, m.focusedPanel == PanelServers)
	library := m.libraryView.Render(m.visibleItems(), m.filter, leftWidth-2, bottomHeight-2, m.focusedPanel == PanelLibrary)
	nowPlaying := m.nowPlaying.Render(components.NowPlayingState{
		Session: m.snap.Session,
		Status:  m.snap.Status,
		Backend: string(m.app.Backends.Active()),
		Overlay: m.overlay,
		Paused:  m.app.Backends.Paused(),
		Track:   m.track,
		Stream:  m.transferLine(),
	}, rightWidth-2, topHeight-2, m.focusedPanel == PanelNowPlaying)
	detail := m.detailView.Render(m.detail, m.loading, rightWidth-2, bottomHeight-2)

	leftCol := lipgloss.JoinVertical(lipgloss.Left, servers, library)
	rightCol := lipgloss.JoinVertical(lipgloss.Left, nowPlaying, detail)
	main := lipgloss.JoinHorizontal(lipgloss.Top, leftCol, rightCol)

	if m.overlay {
		main = styles.Dimmed.Render(main)
	}

	return lipgloss.JoinVertical(lipgloss.Left, main, m.renderStatusBar())
}

func (m Model) renderStatusBar() string {
	status := styles.Dim.Render("q:quit  ?:help  /:filter  enter:select/play  ←/→:seek  0-3:backend  p:pause  o:overlay  e:end  tab:switch panel")

	switch {
	case m.filtering:
		status = m.filterInput.View()
	case m.lastError != "":
		status = styles.Failed.Render("Error: " + m.lastError)
	case m.app.Backends.Status() != "":
		status = styles.Paused.Render(m.app.Backends.Status())
	}

	return lipgloss.NewStyle().
		Width(m.width).
		Padding(0, 1).
		Render(status)
}

func (m Model) renderHelp() string {
	title := "Elixir UI - Keyboard Shortcuts"
	divider := strings.Repeat("═", len(title))

	help := `
  ` + title + `
  ` + divider + `

  Global
  ──────
  q, Ctrl+C    Quit
  ?            Toggle help
  /            Filter library
  Tab          Next panel
  Shift+Tab    Previous panel
  r            Refresh servers and library
  s            Scan library

  Playback
  ────────
  ←/→          Seek back/forward
  e            End session
  0-3          Backend: none, stream, external, embedded
  o            Toggle player overlay
  p            Pause/resume (embedded)
  a            Next audio track (embedded)
  t            Next subtitle track (embedded)

  Servers Panel
  ─────────────
  j/↓ k/↑      Move
  Enter        Use server

  Library Panel
  ─────────────
  j/↓ k/↑      Move
  Enter        Play

  Press ? or Esc to close
`

	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(styles.BorderStyle.Render(help))
}

// Run starts the TUI application
func Run(app *App) error {
	model := NewModel(app)
	p := tea.NewProgram(model, tea.WithAltScreen())

	_, err := p.Run()
	return err
}
