package tui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	jsoniter "github.com/json-iterator/go"

	"github.com/drover-io/drover/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// pollInterval is how often the watch view re-reads the log file.
const pollInterval = 500 * time.Millisecond

// recentItems caps the rolling list of latest items shown.
const recentItems = 8

type watchKeyMap struct {
	Quit key.Binding
}

var watchKeys = watchKeyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

type tickMsg time.Time

// tailMsg carries records appended since the last poll.
type tailMsg struct {
	records []storage.Record
	offset  int64
	err     error
}

// WatchModel is a Bubble Tea model tailing one result log.
type WatchModel struct {
	path string
	spin spinner.Model

	offset   int64
	items    int
	errors   int
	last     string
	lastErr  string
	summary  map[string]any
	recent   []string
	readErr  error
	width    int
	height   int
	quitting bool
}

// NewWatchModel creates a watch model for the log at path.
func NewWatchModel(path string) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)
	return WatchModel{path: path, spin: s}
}

// Init implements tea.Model.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, tailCmd(m.path, 0))
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, watchKeys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tickMsg:
		return m, tailCmd(m.path, m.offset)

	case tailMsg:
		m.readErr = msg.err
		if msg.err == nil {
			m.offset = msg.offset
			for _, rec := range msg.records {
				m.apply(rec)
			}
		}
		return m, tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
	}

	return m, nil
}

// apply folds one log record into the view state.
func (m *WatchModel) apply(rec storage.Record) {
	switch rec.Status {
	case storage.RecordItem:
		m.items++
		if title := itemTitle(rec.Data); title != "" {
			m.recent = append(m.recent, title)
			if len(m.recent) > recentItems {
				m.recent = m.recent[len(m.recent)-recentItems:]
			}
		}
	case storage.RecordProgress:
		if event, ok := rec.Data["event_type"].(string); ok {
			m.last = event
		}
	case storage.RecordError:
		m.errors++
		if rec.Error != nil {
			m.lastErr = fmt.Sprintf("%s: %s", rec.Error.Code, rec.Error.Message)
		}
	case storage.RecordSummary:
		m.summary = rec.Data
	}
}

// View implements tea.Model.
func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Watching " + filepath.Base(m.path)))
	b.WriteString("\n\n")

	boxes := []string{
		statBox("Items", m.items, highlightColor),
		statBox("Errors", m.errors, errorColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n\n")

	if m.summary != nil {
		b.WriteString(SuccessStyle.Render("run complete"))
		b.WriteString("\n")
		for _, field := range []string{"query", "total_items", "pages_processed", "duration_ms"} {
			if value, ok := m.summary[field]; ok {
				b.WriteString(fmt.Sprintf("%s %s\n",
					LabelStyle.Render(field+":"),
					ValueStyle.Render(fmt.Sprintf("%v", value))))
			}
		}
	} else {
		b.WriteString(m.spin.View())
		if m.last != "" {
			b.WriteString(" " + ValueStyle.Render(m.last))
		} else {
			b.WriteString(" waiting for records")
		}
		b.WriteString("\n")
	}

	if m.lastErr != "" {
		b.WriteString(ErrorStyle.Render(m.lastErr))
		b.WriteString("\n")
	}

	if len(m.recent) > 0 {
		b.WriteString("\n")
		b.WriteString(LabelStyle.Render("latest:"))
		b.WriteString("\n")
		for _, title := range m.recent {
			b.WriteString("  " + ValueStyle.Render(title) + "\n")
		}
	}

	if m.readErr != nil {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render("read: " + m.readErr.Error()))
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("Press q or Ctrl+C to quit"))
	return b.String()
}

func statBox(label string, value int, color lipgloss.Color) string {
	box := StatBoxStyle.BorderForeground(color)
	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)
	return box.Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}

// tailCmd reads records appended after offset. Only complete lines are
// consumed; a partially written trailing line is left for the next poll.
func tailCmd(path string, offset int64) tea.Cmd {
	return func() tea.Msg {
		file, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				// The run may not have created the log yet.
				return tailMsg{offset: offset}
			}
			return tailMsg{offset: offset, err: err}
		}
		defer func() { _ = file.Close() }()

		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return tailMsg{offset: offset, err: err}
		}

		var records []storage.Record
		reader := bufio.NewReader(file)
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				// Incomplete trailing line stays unconsumed.
				break
			}
			offset += int64(len(line))

			var rec storage.Record
			if err := json.Unmarshal(line, &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}

		return tailMsg{records: records, offset: offset}
	}
}

// itemTitle picks a display string for an item record.
func itemTitle(data map[string]any) string {
	for _, field := range []string{"title", "name", "text", "url"} {
		if value, ok := data[field].(string); ok && value != "" {
			return truncate(value, 72)
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// RunWatch runs the watch TUI over the result log at path.
func RunWatch(path string) error {
	p := tea.NewProgram(NewWatchModel(path), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
