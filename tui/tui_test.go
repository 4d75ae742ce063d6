/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package tui

import (
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/Seednode/golmi/control"
	"github.com/Seednode/golmi/link"
	"github.com/Seednode/golmi/session"
	"github.com/Seednode/golmi/view"
)

// withProfile pins the color profile; renderers on a non-terminal writer
// otherwise detect their own.
func withProfile(p termenv.Profile) *lipgloss.Renderer {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(p)
	return r
}

func plain() *lipgloss.Renderer {
	return withProfile(termenv.Ascii)
}

func TestCanvas_Lines(t *testing.T) {
	c := NewCanvas(10, 5)
	if c.Width() != 10 || c.Height() != 10 {
		t.Fatalf("canvas is %dx%d pixels", c.Width(), c.Height())
	}

	red := view.Stroke{Color: "red", Width: 1}
	c.Line(0, 4, 10, 4, red)
	c.Line(5, 0, 5, 10, red)

	for col := 0; col < 10; col++ {
		want := runeHorizontal
		if col == 5 {
			want = runeCross
		}
		if got := c.At(col, 2).Rune; got != want {
			t.Fatalf("col %d: got %q, want %q", col, got, want)
		}
	}
	for row := 0; row < 5; row++ {
		if got := c.At(5, row).Rune; got != runeVertical && got != runeCross {
			t.Fatalf("row %d: vertical line missing, got %q", row, got)
		}
	}
	if c.At(5, 2).FG != "red" {
		t.Fatalf("stroke color not kept")
	}

	c.Clear()
	if c.At(5, 2) != (Cell{}) {
		t.Fatalf("clear left %+v", c.At(5, 2))
	}
}

func TestCanvas_DiagonalsAndGlow(t *testing.T) {
	c := NewCanvas(4, 2)
	glow := view.Stroke{Color: "black", Glow: "grey"}
	c.Line(0, 0, 3, 3, glow)
	c.Line(0, 3, 3, 0, view.Stroke{Color: "red"})

	if r := c.At(0, 0).Rune; r != runeFalling {
		t.Fatalf("got %q at origin", r)
	}
	if !c.At(0, 0).Bold {
		t.Fatalf("glow should render bold")
	}
	if r := c.At(0, 1).Rune; r != runeRising {
		t.Fatalf("got %q at rising start", r)
	}
}

func TestCanvas_FillRectClips(t *testing.T) {
	c := NewCanvas(4, 2)
	c.FillRect(2, 0, 10, 10, "blue", view.Stroke{})

	if c.At(1, 0).BG != "" || c.At(2, 0).BG != "blue" || c.At(3, 1).BG != "blue" {
		t.Fatalf("unexpected fill %+v", c.cells)
	}
	c.Line(-5, -5, -1, -1, view.Stroke{Color: "red"})
}

func TestFlatten(t *testing.T) {
	bg, objs, gr := NewCanvas(3, 1), NewCanvas(3, 1), NewCanvas(3, 1)
	bg.FillRect(0, 0, 3, 2, "white", view.Stroke{})
	bg.Line(0, 0, 3, 0, view.Stroke{Color: "black"})
	objs.FillRect(1, 0, 1, 2, "red", view.Stroke{})
	gr.Line(2, 0, 2, 1, view.Stroke{Color: "red"})

	cells := Flatten(bg, objs, gr)
	if cells[0].Rune != runeHorizontal || cells[0].BG != "white" {
		t.Fatalf("background cell %+v", cells[0])
	}
	if cells[1].Rune != 0 || cells[1].BG != "red" {
		t.Fatalf("object fill should hide the grid: %+v", cells[1])
	}
	if cells[2].Rune != runeVertical || cells[2].BG != "white" {
		t.Fatalf("gripper stroke should sit on the background: %+v", cells[2])
	}
}

func TestCompose(t *testing.T) {
	bg := NewCanvas(4, 2)
	bg.Line(0, 0, 4, 0, view.Stroke{Color: "black"})

	out := Compose(plain(), bg)
	if out != "────\n    " {
		t.Fatalf("unexpected plain output %q", out)
	}

	colored := Compose(withProfile(termenv.TrueColor), bg)
	if colored == out || ansi.Strip(colored) != out {
		t.Fatalf("colored output should differ only by escapes: %q", colored)
	}
}

func TestKeyCode(t *testing.T) {
	cases := []struct {
		msg  tea.KeyMsg
		want control.KeyCode
		ok   bool
	}{
		{tea.KeyMsg{Type: tea.KeyEnter}, control.KeyEnter, true},
		{tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}, control.KeySpace, true},
		{tea.KeyMsg{Type: tea.KeyLeft}, control.KeyLeft, true},
		{tea.KeyMsg{Type: tea.KeyDown}, control.KeyDown, true},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}}, control.KeyA, true},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'W'}}, control.KeyW, true},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}}, 0, false},
		{tea.KeyMsg{Type: tea.KeyTab}, 0, false},
	}
	for _, c := range cases {
		got, ok := KeyCode(c.msg)
		if got != c.want || ok != c.ok {
			t.Errorf("%v: got %d %v, want %d %v", c.msg, got, ok, c.want, c.ok)
		}
	}
}

func newModel(t *testing.T, opts ...Option) (Model, *control.Dispatcher, *link.Mock) {
	t.Helper()
	d := control.New(control.WithKeyMap(control.HeldMoveKeyMap()))
	l := link.NewMock("model")
	layers := NewLayers(20, 10)
	layers.View(nil).Subscribe(l)

	opts = append([]Option{
		WithRenderer(plain()),
		WithStartup(func() { d.AttachModel(l, "g1") }),
	}, opts...)
	m := New(d, layers, opts...)

	start := m.Init()
	if start == nil {
		t.Fatalf("startup command missing")
	}
	updated, _ := m.Update(start())
	l.Deliver(link.AttachGripper, "g1")
	return updated.(Model), d, l
}

func TestModel_KeyPressIsPressAndRelease(t *testing.T) {
	m, d, l := newModel(t)
	if len(d.Bindings()) != 1 {
		t.Fatalf("startup should attach a gripper")
	}
	l.Reset()

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRight})
	updated, _ = updated.Update(tea.KeyMsg{Type: tea.KeyRight})

	if n := len(l.SentEvents(link.Move)); n != 2 {
		t.Fatalf("every press should move, got %d", n)
	}
	if n := len(l.SentEvents(link.StopMove)); n != 2 {
		t.Fatalf("every press should be released, got %d", n)
	}
	if d.IsDown(control.KeyRight) {
		t.Fatalf("key stuck down")
	}
}

func TestModel_Quit(t *testing.T) {
	m, _, _ := newModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatalf("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestModel_RunMsgAndView(t *testing.T) {
	m, _, l := newModel(t)

	ran := false
	updated, _ := m.Update(RunMsg(func() { ran = true }))
	if !ran {
		t.Fatalf("RunMsg should run on update")
	}

	l.Deliver(link.UpdateConfig, []byte(`{"width":10,"height":5}`))
	out := updated.View()
	if !strings.Contains(out, string(runeCross)) {
		t.Fatalf("grid not drawn:\n%s", out)
	}
	if strings.Contains(out, "ctrl+s") {
		t.Fatalf("save help shown without a session")
	}
}

func TestModel_Segment(t *testing.T) {
	s := session.New()
	m, _, _ := newModel(t, WithSession(s, "/save_log"))

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	updated, _ = updated.Update(tea.KeyMsg{Type: tea.KeyCtrlN})

	data := s.Data()
	if _, ok := data["segment1"]; !ok {
		t.Fatalf("first segment missing: %v", data)
	}
	if _, ok := data["segment2"]; !ok {
		t.Fatalf("second segment missing: %v", data)
	}
	if !strings.Contains(updated.View(), "started segment2") {
		t.Fatalf("status not shown")
	}
}

func TestModel_BlurResetsKeys(t *testing.T) {
	m, d, l := newModel(t)
	d.KeyDown(control.KeyLeft)
	l.Reset()

	_, _ = m.Update(tea.BlurMsg{})
	d.KeyUp(control.KeyLeft)

	if len(l.Sent()) != 0 {
		t.Fatalf("release after blur should send nothing")
	}
}
