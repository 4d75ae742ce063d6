/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package view

import (
	"log/slog"

	"github.com/Seednode/golmi/link"
	"github.com/Seednode/golmi/model"
)

const (
	bgColor      Color = "white"
	gridColor    Color = "black"
	blockOutline Color = "grey"
	borderColor  Color = "black"
	gripperColor Color = "red"
	gripGlow     Color = "grey"

	gripperSizeEmpty   = 0.5
	gripperSizeHolding = 0.2
)

// LayerView draws the background grid, static objects, and grippers (with
// whatever they hold) on three separate surfaces of equal size, so each
// layer can be redrawn alone.
type LayerView struct {
	*Mirror

	bgLayer  Surface
	objLayer Surface
	grLayer  Surface
}

var _ Renderable = (*LayerView)(nil)

// NewLayerView clears all three surfaces. Call Subscribe to start
// mirroring a link.
func NewLayerView(bg, objs, gr Surface, logger *slog.Logger) *LayerView {
	v := &LayerView{
		bgLayer:  bg,
		objLayer: objs,
		grLayer:  gr,
	}
	v.Mirror = NewMirror(v, logger)
	v.Clear()
	return v
}

// Attach is shorthand for NewLayerView followed by Subscribe.
func Attach(l link.Link, bg, objs, gr Surface, logger *slog.Logger) *LayerView {
	v := NewLayerView(bg, objs, gr, logger)
	v.Subscribe(l)
	return v
}

// BlockSize is the pixel edge of one block, or 0 before a config arrived.
func (v *LayerView) BlockSize() float64 {
	config, ok := v.Config()
	if !ok || config.Width <= 0 {
		return 0
	}
	return float64(v.bgLayer.Width()) / float64(config.Width)
}

func (v *LayerView) Clear() {
	v.ClearBg()
	v.ClearObjs()
	v.ClearGr()
}

func (v *LayerView) Draw() {
	v.DrawBg()
	v.DrawGr()
	v.DrawObjs()
}

func (v *LayerView) Redraw() {
	v.Clear()
	v.Draw()
}

func (v *LayerView) ClearBg()   { v.bgLayer.Clear() }
func (v *LayerView) ClearObjs() { v.objLayer.Clear() }
func (v *LayerView) ClearGr()   { v.grLayer.Clear() }

func (v *LayerView) RedrawBg() {
	v.ClearBg()
	v.DrawBg()
}

func (v *LayerView) RedrawObjs() {
	v.ClearObjs()
	v.DrawObjs()
}

func (v *LayerView) RedrawGr() {
	v.ClearGr()
	v.DrawGr()
}

// DrawBg paints a white board with black grid lines between blocks.
func (v *LayerView) DrawBg() {
	size := v.BlockSize()
	if size == 0 {
		return
	}
	config, _ := v.Config()
	w := float64(v.bgLayer.Width())
	h := float64(v.bgLayer.Height())
	line := Stroke{Color: gridColor, Width: 1}

	v.bgLayer.FillRect(0, 0, w, h, bgColor, Stroke{})
	for row := 0; row <= config.Height; row++ {
		y := float64(row) * size
		v.bgLayer.Line(0, y, w, y, line)
	}
	for col := 0; col <= config.Width; col++ {
		x := float64(col) * size
		v.bgLayer.Line(x, 0, x, h, line)
	}
}

// DrawObjs draws every object not currently held by a gripper.
func (v *LayerView) DrawObjs() {
	size := v.BlockSize()
	if size == 0 {
		return
	}
	objs := v.Objs()
	for _, id := range model.SortedKeys(objs) {
		obj := objs[id]
		if obj.Gripped {
			continue
		}
		v.drawBlockObj(v.objLayer, size, obj, "")
	}
}

// DrawGr draws each gripper as a cross, after the object it holds so the
// cross stays on top.
func (v *LayerView) DrawGr() {
	size := v.BlockSize()
	if size == 0 {
		return
	}
	grippers := v.Grippers()
	for _, id := range model.SortedKeys(grippers) {
		gripper := grippers[id]
		for _, heldID := range model.SortedKeys(gripper.Gripped) {
			v.drawBlockObj(v.grLayer, size, gripper.Gripped[heldID], gripGlow)
		}

		r := gripperSizeEmpty
		if len(gripper.Gripped) > 0 {
			r = gripperSizeHolding
		}
		stroke := Stroke{Color: gripperColor, Width: 2}
		x, y := gripper.X, gripper.Y
		v.grLayer.Line(px(x-r, size), px(y-r, size), px(x+r, size), px(y+r, size), stroke)
		v.grLayer.Line(px(x-r, size), px(y+r, size), px(x+r, size), px(y-r, size), stroke)
	}
}

// drawBlockObj fills each occupied cell and outlines the silhouette: a
// cell side gets a border only where the neighbor in that direction is
// empty or outside the matrix.
func (v *LayerView) drawBlockObj(s Surface, size float64, obj model.Obj, highlight Color) {
	m := obj.BlockMatrix
	border := Stroke{Color: borderColor, Width: 2, Glow: highlight}

	for r, row := range m {
		for c, occupied := range row {
			if !occupied {
				continue
			}
			x := obj.X + float64(c)
			y := obj.Y + float64(r)

			s.FillRect(px(x, size), px(y, size), size, size, Color(obj.Color), Stroke{Color: blockOutline, Width: 1})

			if !m.At(r-1, c) {
				s.Line(px(x, size), px(y, size), px(x+1, size), px(y, size), border)
			}
			if !m.At(r, c+1) {
				s.Line(px(x+1, size), px(y, size), px(x+1, size), px(y+1, size), border)
			}
			if !m.At(r+1, c) {
				s.Line(px(x, size), px(y+1, size), px(x+1, size), px(y+1, size), border)
			}
			if !m.At(r, c-1) {
				s.Line(px(x, size), px(y, size), px(x, size), px(y+1, size), border)
			}
		}
	}
}

func px(coord, size float64) float64 { return coord * size }
