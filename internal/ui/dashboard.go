package ui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/lifxlan/internal/events"
	"github.com/muurk/lifxlan/internal/field"
	"github.com/muurk/lifxlan/internal/hub"
)

// DefaultFeedSize is the event buffer between the bus and the dashboard.
const DefaultFeedSize = 256

// Feed adapts the synchronous event bus to a Bubble Tea program. Publish
// never blocks; events are dropped when the program falls behind.
type Feed struct {
	ch      chan events.Event
	dropped atomic.Int64
}

// NewFeed creates a Feed with the given buffer size.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{ch: make(chan events.Event, size)}
}

// Publish implements events.Publisher.
func (f *Feed) Publish(e events.Event) {
	select {
	case f.ch <- e:
	default:
		f.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded because the buffer was full.
func (f *Feed) Dropped() int64 { return f.dropped.Load() }

var _ events.Publisher = (*Feed)(nil)

// Controller runs the commands the dashboard offers.
type Controller interface {
	SetPower(ctx context.Context, hubAddr string, addr field.Address, on bool) error
	Refresh(ctx context.Context) error
}

// HubSource lists the hubs known to the program.
type HubSource interface {
	All() []*hub.Conn
}

// HubController is a Controller over live hub connections.
type HubController struct {
	Hubs HubSource
}

// SetPower switches a device on the named hub.
func (c HubController) SetPower(ctx context.Context, hubAddr string, addr field.Address, on bool) error {
	for _, h := range c.Hubs.All() {
		if h.Addr() != hubAddr {
			continue
		}
		if on {
			return h.Bulb(addr).TurnOn(ctx)
		}
		return h.Bulb(addr).TurnOff(ctx)
	}
	return fmt.Errorf("unknown hub %s", hubAddr)
}

// Refresh asks every connected hub for the state of its devices.
func (c HubController) Refresh(ctx context.Context) error {
	var sent int
	for _, h := range c.Hubs.All() {
		if h.State() != hub.StateConnected {
			continue
		}
		if err := h.RequestStatus(); err != nil {
			return fmt.Errorf("refresh %s: %w", h.Addr(), err)
		}
		sent++
	}
	if sent == 0 {
		return hub.ErrNotConnected
	}
	return nil
}

// Messages
type (
	eventMsg   struct{ event events.Event }
	commandMsg struct {
		action string
		err    error
	}
)

// waitForEvent blocks on the feed and hands the next event to Update.
func waitForEvent(f *Feed) tea.Cmd {
	return func() tea.Msg {
		return eventMsg{event: <-f.ch}
	}
}

type dashboardKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Toggle  key.Binding
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k dashboardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Refresh, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k dashboardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Toggle},
		{k.Refresh, k.Help, k.Quit},
	}
}

func defaultKeys() dashboardKeyMap {
	return dashboardKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "move down"),
		),
		Toggle: key.NewBinding(
			key.WithKeys("t", "enter", " "),
			key.WithHelp("t", "toggle power"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

type deviceKey struct {
	hub  string
	addr field.Address
}

type hubStatus struct {
	state hub.State
	err   error
}

// DashboardConfig configures a Dashboard.
type DashboardConfig struct {
	Feed       *Feed
	Controller Controller
	Timeout    time.Duration              // Per command; default 3s
	Nickname   func(field.Address) string // Optional
	Now        func() time.Time           // For tests
}

// Dashboard is a live view of hubs and devices.
type Dashboard struct {
	cfg DashboardConfig

	hubs    map[string]hubStatus
	devices map[deviceKey]events.DeviceState
	order   []deviceKey

	sent     int
	received int
	status   string
	lastErr  error
	busy     bool

	Width  int
	Height int

	table    table.Model
	spinner  spinner.Model
	progress progress.Model
	help     help.Model
	keys     dashboardKeyMap
}

// NewDashboard creates the dashboard model.
func NewDashboard(cfg DashboardConfig) Dashboard {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 30

	t := table.New(
		table.WithColumns(columns(MinTerminalWidth)),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	return Dashboard{
		cfg:      cfg,
		hubs:     make(map[string]hubStatus),
		devices:  make(map[deviceKey]events.DeviceState),
		table:    t,
		spinner:  s,
		progress: bar,
		help:     help.New(),
		keys:     defaultKeys(),
	}
}

func columns(width int) []table.Column {
	label := width - 2 - 20 - 18 - 8 - 10
	if label < 12 {
		label = 12
	}
	return []table.Column{
		{Title: "", Width: 2},
		{Title: "Device", Width: 20},
		{Title: "Label", Width: label},
		{Title: "Hub", Width: 18},
		{Title: "Dim", Width: 8},
	}
}

// Init starts the spinner and the event pump.
func (m Dashboard) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	if m.cfg.Feed != nil {
		cmds = append(cmds, waitForEvent(m.cfg.Feed))
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the model
func (m Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKeys(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		w := msg.Width
		if w > MaxContentWidth {
			w = MaxContentWidth
		}
		m.table.SetColumns(columns(w))
		m.table.SetWidth(w)
		if h := msg.Height - 12; h > 3 {
			m.table.SetHeight(h)
		}
		m.help.Width = w

	case eventMsg:
		m.apply(msg.event)
		if m.cfg.Feed == nil {
			return m, nil
		}
		return m, waitForEvent(m.cfg.Feed)

	case commandMsg:
		m.busy = false
		m.lastErr = msg.err
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed", msg.action)
		} else {
			m.status = msg.action
		}

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Dashboard) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Toggle):
		d, k, ok := m.Selected()
		if !ok || m.busy || m.cfg.Controller == nil {
			return m, nil
		}
		m.busy = true
		want := !d.On
		m.status = fmt.Sprintf("Turning %s %s", d.Address, onOff(want))
		return m, m.setPower(k, want)

	case key.Matches(msg, m.keys.Refresh):
		if m.busy || m.cfg.Controller == nil {
			return m, nil
		}
		m.busy = true
		m.status = "Refreshing"
		return m, m.refresh()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Dashboard) setPower(k deviceKey, on bool) tea.Cmd {
	ctrl, timeout := m.cfg.Controller, m.cfg.Timeout
	action := fmt.Sprintf("Turned %s %s", k.addr, onOff(on))
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return commandMsg{action: action, err: ctrl.SetPower(ctx, k.hub, k.addr, on)}
	}
}

func (m Dashboard) refresh() tea.Cmd {
	ctrl, timeout := m.cfg.Controller, m.cfg.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return commandMsg{action: "Refresh requested", err: ctrl.Refresh(ctx)}
	}
}

// apply folds one event into the model.
func (m *Dashboard) apply(e events.Event) {
	switch e := e.(type) {
	case events.HubDiscovered:
		if _, ok := m.hubs[e.Hub]; !ok {
			m.hubs[e.Hub] = hubStatus{state: hub.StateConnecting}
		}
	case events.HubConnected:
		m.hubs[e.Hub] = hubStatus{state: hub.StateConnected}
	case events.HubDisconnected:
		m.hubs[e.Hub] = hubStatus{state: hub.StateDisconnected, err: e.Err}
	case events.PacketSent:
		m.sent++
	case events.PacketReceived:
		m.received++
	case events.DeviceDiscovered:
		m.upsert(e.Hub, e.Device)
	case events.DeviceUpdated:
		m.upsert(e.Hub, e.Device)
	}
}

func (m *Dashboard) upsert(hubAddr string, d events.DeviceState) {
	k := deviceKey{hub: hubAddr, addr: d.Address}
	if _, ok := m.devices[k]; !ok {
		m.order = append(m.order, k)
		sort.Slice(m.order, func(i, j int) bool {
			if m.order[i].hub != m.order[j].hub {
				return m.order[i].hub < m.order[j].hub
			}
			return m.order[i].addr.String() < m.order[j].addr.String()
		})
	}
	m.devices[k] = d
	if _, ok := m.hubs[hubAddr]; !ok {
		m.hubs[hubAddr] = hubStatus{state: hub.StateConnected}
	}
	m.table.SetRows(m.rows())
}

func (m *Dashboard) rows() []table.Row {
	rows := make([]table.Row, 0, len(m.order))
	for _, k := range m.order {
		d := m.devices[k]
		marker := OffMarker
		if d.On {
			marker = OnMarker
		}
		label := d.Label
		if m.cfg.Nickname != nil {
			if nick := m.cfg.Nickname(d.Address); nick != "" {
				label = fmt.Sprintf("%s (%s)", nick, d.Label)
			}
		}
		rows = append(rows, table.Row{
			marker,
			d.Address.String(),
			label,
			k.hub,
			fmt.Sprintf("%d%%", percent(d.Color.Brightness)),
		})
	}
	return rows
}

// Selected returns the device under the cursor.
func (m Dashboard) Selected() (events.DeviceState, deviceKey, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.order) {
		return events.DeviceState{}, deviceKey{}, false
	}
	k := m.order[i]
	return m.devices[k], k, true
}

// Devices returns the number of devices shown.
func (m Dashboard) Devices() int { return len(m.order) }

// Status returns the last status line.
func (m Dashboard) Status() string { return m.status }

// View renders the dashboard
func (m Dashboard) View() string {
	var b strings.Builder

	b.WriteString(HeaderTitleStyle.Render("LIFX LAN"))
	b.WriteString("\n")
	b.WriteString(m.hubLine())
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString("  " + m.spinner.View() + " Waiting for devices...\n")
	} else {
		b.WriteString(m.table.View())
		b.WriteString("\n")
		if d, _, ok := m.Selected(); ok {
			b.WriteString("\n  ")
			b.WriteString(ResultKeyStyle.Render("Brightness"))
			b.WriteString(m.progress.ViewAs(float64(d.Color.Brightness) / 0xFFFF))
			b.WriteString("\n  ")
			b.WriteString(ResultKeyStyle.Render("Color"))
			b.WriteString(ResultValueStyle.Render(d.Color.String()))
			b.WriteString("\n  ")
			b.WriteString(ResultKeyStyle.Render("Last seen"))
			b.WriteString(ResultValueStyle.Render(age(m.cfg.Now(), d.LastSeen)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	status := fmt.Sprintf("sent %d  received %d", m.sent, m.received)
	if m.cfg.Feed != nil {
		if n := m.cfg.Feed.Dropped(); n > 0 {
			status += fmt.Sprintf("  dropped %d", n)
		}
	}
	if m.busy {
		status = m.spinner.View() + " " + m.status + "  " + status
	} else if m.status != "" {
		status = m.status + "  " + status
	}
	b.WriteString(StatusStyle.Render(status))
	if m.lastErr != nil {
		b.WriteString("\n  " + ErrorMessageStyle.Render(m.lastErr.Error()))
	}
	b.WriteString("\n\n  ")
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")
	return b.String()
}

func (m Dashboard) hubLine() string {
	if len(m.hubs) == 0 {
		return StatusStyle.Render("no hubs yet")
	}
	addrs := make([]string, 0, len(m.hubs))
	for a := range m.hubs {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)

	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		st := m.hubs[a]
		style := HubDisconnectedStyle
		switch st.state {
		case hub.StateConnected:
			style = HubConnectedStyle
		case hub.StateConnecting:
			style = HubConnectingStyle
		}
		parts = append(parts, style.Render(OnMarker)+" "+a)
	}
	return "  " + strings.Join(parts, "   ")
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func percent(v uint16) int {
	return int(uint32(v) * 100 / 0xFFFF)
}

func age(now, t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t).Truncate(time.Second)
	if d < time.Second {
		return "just now"
	}
	return d.String() + " ago"
}

// RunDashboard runs the dashboard until the user quits or ctx ends.
func RunDashboard(ctx context.Context, cfg DashboardConfig) error {
	m := NewDashboard(cfg)
	if w, h := GetTerminalSize(); w > 0 && h > 0 {
		model, _ := m.Update(tea.WindowSizeMsg{Width: w, Height: h})
		m = model.(Dashboard)
	}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
