// Package viewer is the full-screen view of a run's output. It shows the
// output as it streams in and stays open after the run finishes until the
// user exits.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Banner is the first header line.
const Banner = "You are currently viewing a run. Press Ctrl+C to exit."

// chunkMsg carries newly streamed output.
type chunkMsg []byte

// doneMsg reports that streaming stopped.
type doneMsg struct{ err error }

// Model is the bubbletea model of the viewer.
type Model struct {
	id       string
	keys     KeyMap
	help     help.Model
	viewport viewport.Model
	content  strings.Builder

	width, height int
	ready         bool

	// follow keeps the view pinned to the newest output.
	follow   bool
	finished bool
	err      error
}

// New returns a viewer for run id.
func New(id string) *Model {
	return &Model{
		id:       id,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		viewport: viewport.New(0, 0),
		follow:   true,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resize()
		return m, nil

	case chunkMsg:
		m.content.Write(msg)
		m.viewport.SetContent(m.content.String())
		if m.follow {
			m.viewport.GotoBottom()
		}
		return m, nil

	case doneMsg:
		m.finished = true
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Top):
			m.viewport.GotoTop()
			m.follow = false
			return m, nil
		case key.Matches(msg, m.keys.Bottom):
			m.viewport.GotoBottom()
			m.follow = true
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	m.follow = m.viewport.AtBottom()
	return m, cmd
}

func (m *Model) resize() {
	headerHeight := 2
	footerHeight := 1
	h := m.height - headerHeight - footerHeight
	if h < 1 {
		h = 1
	}
	m.viewport.Width = m.width
	m.viewport.Height = h
	m.help.Width = m.width
	if m.follow {
		m.viewport.GotoBottom()
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(Banner))
	sb.WriteString("\n")
	sb.WriteString(idStyle.Render(m.id))
	sb.WriteString("\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(m.statusLine())
	return sb.String()
}

func (m *Model) statusLine() string {
	var status string
	switch {
	case m.err != nil:
		status = errorStyle.Render("error: " + m.err.Error())
	case m.finished:
		status = finishedStyle.Render("run finished")
	case m.follow:
		status = followingStyle.Render("following")
	default:
		status = fmt.Sprintf("%3.f%%", m.viewport.ScrollPercent()*100)
	}
	return status + "  " + m.help.View(m.keys)
}

// Err returns the error that stopped streaming, if any.
func (m *Model) Err() error { return m.err }

// StreamFunc writes a run's output to w until the run finishes or ctx is
// cancelled.
type StreamFunc func(ctx context.Context, w io.Writer) error

// Run shows run id full-screen while stream feeds it, until the user exits
// or ctx is cancelled. Exiting the viewer stops the stream.
func Run(ctx context.Context, id string, stream StreamFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := New(id)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		err := stream(ctx, &programWriter{p: p})
		p.Send(doneMsg{err: err})
	}()

	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return fmt.Errorf("running viewer: %w", err)
	}
	if fm, ok := final.(*Model); ok {
		return fm.Err()
	}
	return nil
}

// programWriter turns writes into messages for the program.
type programWriter struct {
	p *tea.Program
}

func (w *programWriter) Write(b []byte) (int, error) {
	w.p.Send(chunkMsg(append([]byte(nil), b...)))
	return len(b), nil
}
