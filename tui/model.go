/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package tui hosts the client in a terminal: it draws the three render
// layers as styled text and feeds key presses to the command dispatcher.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Seednode/golmi/control"
	"github.com/Seednode/golmi/link"
	"github.com/Seednode/golmi/session"
	"github.com/Seednode/golmi/view"
)

const sendTimeout = 10 * time.Second

// RunMsg carries work that must run on the program's event loop.
type RunMsg func()

type savedMsg struct{ err error }

// Dispatch schedules link handlers on p's event loop.
func Dispatch(p *tea.Program) link.Dispatch {
	return func(f func()) { p.Send(RunMsg(f)) }
}

// Layers are the three canvases the renderer draws on.
type Layers struct {
	Bg, Objs, Gr *Canvas
}

func NewLayers(cols, rows int) Layers {
	return Layers{
		Bg:   NewCanvas(cols, rows),
		Objs: NewCanvas(cols, rows),
		Gr:   NewCanvas(cols, rows),
	}
}

// View builds a renderer drawing on l.
func (l Layers) View(logger *slog.Logger) *view.LayerView {
	return view.NewLayerView(l.Bg, l.Objs, l.Gr, logger)
}

type Model struct {
	dispatcher *control.Dispatcher
	layers     Layers
	session    *session.Logger
	endpoint   string
	startup    func()

	renderer *lipgloss.Renderer
	status   *lipgloss.Style

	message  string
	segments int
}

type Option func(*Model)

// WithSession enables ctrl+s (upload the log to endpoint) and ctrl+n (cut a
// segment).
func WithSession(s *session.Logger, endpoint string) Option {
	return func(m *Model) {
		m.session = s
		m.endpoint = endpoint
	}
}

// WithStartup runs f on the event loop before the first key is handled.
func WithStartup(f func()) Option {
	return func(m *Model) { m.startup = f }
}

func WithRenderer(r *lipgloss.Renderer) Option {
	return func(m *Model) { m.renderer = r }
}

func New(d *control.Dispatcher, layers Layers, opts ...Option) Model {
	m := Model{dispatcher: d, layers: layers}
	for _, opt := range opts {
		opt(&m)
	}
	if m.renderer == nil {
		m.renderer = lipgloss.NewRenderer(os.Stdout)
	}
	status := m.renderer.NewStyle().Foreground(lipgloss.Color("245"))
	m.status = &status
	return m
}

func (m Model) Init() tea.Cmd {
	if m.startup == nil {
		return nil
	}
	startup := m.startup
	return func() tea.Msg { return RunMsg(startup) }
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case RunMsg:
		msg()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.BlurMsg:
		m.dispatcher.ResetKeys()

	case savedMsg:
		if msg.err != nil {
			m.message = "error saving log: " + msg.err.Error()
		} else {
			m.message = "saved log"
		}
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "ctrl+s":
		if m.session == nil {
			return m, nil
		}
		m.message = "saving log..."
		send := m.session.PrepareSend(m.endpoint)
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()
			return savedMsg{err: send(ctx)}
		}

	case "ctrl+n":
		if m.session == nil {
			return m, nil
		}
		m.segments++
		title := fmt.Sprintf("segment%d", m.segments)
		if err := m.session.AddSegment(title, nil); err != nil {
			m.message = err.Error()
		} else {
			m.message = "started " + title
		}
		return m, nil
	}

	code, ok := KeyCode(msg)
	if !ok {
		return m, nil
	}
	// terminals only report presses
	m.dispatcher.KeyDown(code)
	m.dispatcher.KeyUp(code)
	return m, nil
}

func (m Model) View() string {
	board := Compose(m.renderer, m.layers.Bg, m.layers.Objs, m.layers.Gr)

	help := "arrows move · a/d rotate · s/w flip · enter/space grip · q quit"
	if m.session != nil {
		help += " · ctrl+s save · ctrl+n segment"
	}
	lines := []string{board, m.status.Render(help)}
	if m.message != "" {
		lines = append(lines, m.status.Render(m.message))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// KeyCode translates a terminal key to the browser key code the
// dispatcher's key map uses.
func KeyCode(msg tea.KeyMsg) (control.KeyCode, bool) {
	switch msg.Type {
	case tea.KeyEnter:
		return control.KeyEnter, true
	case tea.KeySpace:
		return control.KeySpace, true
	case tea.KeyLeft:
		return control.KeyLeft, true
	case tea.KeyUp:
		return control.KeyUp, true
	case tea.KeyRight:
		return control.KeyRight, true
	case tea.KeyDown:
		return control.KeyDown, true
	case tea.KeyRunes:
		if len(msg.Runes) != 1 {
			return 0, false
		}
		switch msg.Runes[0] {
		case ' ':
			return control.KeySpace, true
		case 'a', 'A':
			return control.KeyA, true
		case 'd', 'D':
			return control.KeyD, true
		case 's', 'S':
			return control.KeyS, true
		case 'w', 'W':
			return control.KeyW, true
		}
	}
	return 0, false
}
