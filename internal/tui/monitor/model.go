// Package monitor is the live message monitor TUI. It tails
// agent_messages.log and renders each record as it lands, optionally
// filtered by message type or agent.
package monitor

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/claudeswarm/claudeswarm/internal/messaging"
	"github.com/claudeswarm/claudeswarm/internal/style"
)

// maxHistory bounds the in-memory record buffer.
const maxHistory = 1000

// KeyMap defines the monitor key bindings.
type KeyMap struct {
	Up    key.Binding
	Down  key.Binding
	Pause key.Binding
	Clear key.Binding
	Help  key.Binding
	Quit  key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:    key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "scroll up")),
		Down:  key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "scroll down")),
		Pause: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause/resume")),
		Clear: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear")),
		Help:  key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Clear, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Pause, k.Clear},
		{k.Help, k.Quit},
	}
}

// Filter restricts which records the monitor shows. Empty fields match
// everything. Agent matches the sender or any recipient.
type Filter struct {
	Type  string
	Agent string
}

func (f Filter) matches(rec messaging.LogRecord) bool {
	if f.Type != "" && string(rec.Type) != f.Type {
		return false
	}
	if f.Agent != "" {
		if rec.Sender == f.Agent {
			return true
		}
		for _, r := range rec.Recipients {
			if r == f.Agent {
				return true
			}
		}
		return false
	}
	return true
}

// Model is the bubbletea model for the monitor.
type Model struct {
	width  int
	height int

	viewport viewport.Model
	records  []messaging.LogRecord
	filter   Filter
	paused   bool

	keys     KeyMap
	help     help.Model
	showHelp bool

	recordChan <-chan messaging.LogRecord
	done       chan struct{}
	closeOnce  sync.Once

	// mu protects fields read by View against Update mutations.
	mu sync.RWMutex
}

// NewModel creates a monitor model reading from recordChan.
func NewModel(recordChan <-chan messaging.LogRecord, filter Filter) *Model {
	h := help.New()
	h.ShowAll = false
	return &Model{
		viewport:   viewport.New(0, 0),
		filter:     filter,
		keys:       DefaultKeyMap(),
		help:       h,
		recordChan: recordChan,
		done:       make(chan struct{}),
	}
}

// Close releases the model's event loop resources.
func (m *Model) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

type recordMsg messaging.LogRecord

// listen re-arms the channel read after each delivered record.
func (m *Model) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case rec, ok := <-m.recordChan:
			if !ok {
				return nil
			}
			return recordMsg(rec)
		case <-m.done:
			return nil
		}
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.listen(), tea.SetWindowTitle("Swarm Monitor"))
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.Close()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			m.mu.Lock()
			m.paused = !m.paused
			m.mu.Unlock()
		case key.Matches(msg, m.keys.Clear):
			m.mu.Lock()
			m.records = nil
			m.refreshLocked()
			m.mu.Unlock()
		case key.Matches(msg, m.keys.Help):
			m.mu.Lock()
			m.showHelp = !m.showHelp
			m.help.ShowAll = m.showHelp
			m.mu.Unlock()
		}

	case tea.WindowSizeMsg:
		m.mu.Lock()
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 3
		m.refreshLocked()
		m.mu.Unlock()

	case recordMsg:
		m.mu.Lock()
		if !m.paused {
			m.records = append(m.records, messaging.LogRecord(msg))
			if len(m.records) > maxHistory {
				m.records = m.records[len(m.records)-maxHistory:]
			}
			m.refreshLocked()
		}
		m.mu.Unlock()
		cmds = append(cmds, m.listen())
	}

	m.mu.Lock()
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	m.mu.Unlock()
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// refreshLocked rebuilds the viewport content. Callers hold mu.
func (m *Model) refreshLocked() {
	atBottom := m.viewport.AtBottom()
	var lines []string
	for _, rec := range m.records {
		if m.filter.matches(rec) {
			lines = append(lines, renderRecord(rec))
		}
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// renderRecord formats one log record for display.
func renderRecord(rec messaging.LogRecord) string {
	ts := style.Dim.Render(rec.Timestamp.Format("15:04:05"))
	typ := style.MessageType(string(rec.Type))
	delivery := ""
	if rec.FailureCount > 0 {
		delivery = " " + style.Bad.Render(fmt.Sprintf("(%d/%d delivered)",
			rec.SuccessCount, rec.SuccessCount+rec.FailureCount))
	}
	return fmt.Sprintf("%s [%s][%s] → %s: %s%s",
		ts, style.Bold.Render(rec.Sender), typ,
		strings.Join(rec.Recipients, ","), rec.Content, delivery)
}

// View implements tea.Model.
func (m *Model) View() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	title := style.Title.Render("Swarm Monitor")
	state := ""
	if m.paused {
		state = " " + style.Warn.Render("[paused]")
	}
	if m.filter.Type != "" {
		state += " " + style.Dim.Render("type="+m.filter.Type)
	}
	if m.filter.Agent != "" {
		state += " " + style.Dim.Render("agent="+m.filter.Agent)
	}
	return title + state + "\n" + m.viewport.View() + "\n" + m.help.View(m.keys)
}
