/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package view

import "fmt"

// Color is a CSS color name or "#rrggbb".
type Color string

// Stroke describes a line. A non-empty Glow draws a blurred halo of that
// color around the line.
type Stroke struct {
	Color Color
	Width float64
	Glow  Color
}

// Surface is one independently clearable drawing layer, measured in pixels.
type Surface interface {
	Width() int
	Height() int
	Clear()
	FillRect(x, y, w, h float64, fill Color, outline Stroke)
	Line(x1, y1, x2, y2 float64, stroke Stroke)
}

type OpKind int

const (
	OpClear OpKind = iota
	OpFill
	OpLine
)

// Op is one recorded drawing call.
type Op struct {
	Kind           OpKind
	X1, Y1, X2, Y2 float64
	Fill           Color
	Stroke         Stroke
}

func (o Op) String() string {
	switch o.Kind {
	case OpClear:
		return "clear"
	case OpFill:
		return fmt.Sprintf("fill %s (%g,%g %gx%g)", o.Fill, o.X1, o.Y1, o.X2, o.Y2)
	default:
		return fmt.Sprintf("line %s (%g,%g)-(%g,%g)", o.Stroke.Color, o.X1, o.Y1, o.X2, o.Y2)
	}
}

// Recorder is a Surface that keeps every call since the last Clear.
type Recorder struct {
	W, H   int
	Ops    []Op
	Clears int
}

func NewRecorder(w, h int) *Recorder {
	return &Recorder{W: w, H: h}
}

func (r *Recorder) Width() int  { return r.W }
func (r *Recorder) Height() int { return r.H }

func (r *Recorder) Clear() {
	r.Ops = r.Ops[:0]
	r.Clears++
}

func (r *Recorder) FillRect(x, y, w, h float64, fill Color, outline Stroke) {
	r.Ops = append(r.Ops, Op{Kind: OpFill, X1: x, Y1: y, X2: w, Y2: h, Fill: fill, Stroke: outline})
}

func (r *Recorder) Line(x1, y1, x2, y2 float64, stroke Stroke) {
	r.Ops = append(r.Ops, Op{Kind: OpLine, X1: x1, Y1: y1, X2: x2, Y2: y2, Stroke: stroke})
}

// Lines returns the recorded lines drawn with the given color.
func (r *Recorder) Lines(c Color) []Op {
	var out []Op
	for _, op := range r.Ops {
		if op.Kind == OpLine && op.Stroke.Color == c {
			out = append(out, op)
		}
	}
	return out
}

// Fills returns the recorded fills.
func (r *Recorder) Fills() []Op {
	var out []Op
	for _, op := range r.Ops {
		if op.Kind == OpFill {
			out = append(out, op)
		}
	}
	return out
}
