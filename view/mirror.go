/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package view mirrors the state a model server publishes and renders it
// onto three stacked surfaces: background, static objects, and grippers
// with the objects they hold.
package view

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/Seednode/golmi/link"
	"github.com/Seednode/golmi/model"
)

// Layer is a set of drawing layers.
type Layer uint8

const (
	LayerBg Layer = 1 << iota
	LayerObjs
	LayerGr

	LayerAll = LayerBg | LayerObjs | LayerGr
)

// Renderable is anything that can draw the mirrored state, whole or one
// layer at a time. Redraw variants clear before drawing.
type Renderable interface {
	Clear()
	Draw()
	Redraw()

	ClearBg()
	DrawBg()
	RedrawBg()

	ClearObjs()
	DrawObjs()
	RedrawObjs()

	ClearGr()
	DrawGr()
	RedrawGr()
}

// Mirror keeps the last objects, grippers and config received from a model
// server and asks its target to redraw the layers each event touches.
type Mirror struct {
	objs      map[string]model.Obj
	grippers  map[string]model.Gripper
	config    model.Config
	hasConfig bool

	target Renderable
	logger *slog.Logger

	onChange func(Layer)
}

func NewMirror(target Renderable, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Mirror{
		objs:     map[string]model.Obj{},
		grippers: map[string]model.Gripper{},
		target:   target,
		logger:   logger,
	}
}

// Subscribe registers the mirror's handlers on l.
func (m *Mirror) Subscribe(l link.Link) {
	l.On(link.UpdateState, m.HandleState)
	l.On(link.UpdateGrippers, m.HandleGrippers)
	l.On(link.UpdateObjs, m.HandleObjs)
	l.On(link.UpdateConfig, m.HandleConfig)
}

// OnChange registers f to run after every accepted update with the layers
// that were redrawn.
func (m *Mirror) OnChange(f func(Layer)) { m.onChange = f }

func (m *Mirror) Objs() map[string]model.Obj         { return m.objs }
func (m *Mirror) Grippers() map[string]model.Gripper { return m.grippers }

// Config returns the current config and whether one was received yet.
func (m *Mirror) Config() (model.Config, bool) { return m.config, m.hasConfig }

func (m *Mirror) HandleState(raw json.RawMessage) {
	state, err := model.DecodeState(raw)
	if err != nil {
		m.logger.Warn("dropping malformed state", "err", err)
		return
	}

	m.grippers = state.Grippers
	m.objs = state.Objs
	dirty := LayerObjs | LayerGr
	if state.Config != nil {
		m.config = *state.Config
		m.hasConfig = true
		dirty = LayerAll
	}
	m.refresh(dirty)
}

func (m *Mirror) HandleGrippers(raw json.RawMessage) {
	grippers, err := model.DecodeGrippers(raw)
	if err != nil {
		m.logger.Warn("dropping malformed gripper update", "err", err)
		return
	}
	m.grippers = grippers
	m.refresh(LayerGr)
}

func (m *Mirror) HandleObjs(raw json.RawMessage) {
	objs, err := model.DecodeObjs(raw)
	if err != nil {
		m.logger.Warn("dropping malformed object update", "err", err)
		return
	}
	m.objs = objs
	m.refresh(LayerObjs)
}

func (m *Mirror) HandleConfig(raw json.RawMessage) {
	config, err := model.DecodeConfig(raw)
	if err != nil {
		m.logger.Warn("dropping malformed config", "err", err)
		return
	}
	m.config = config
	m.hasConfig = true
	m.refresh(LayerAll)
}

func (m *Mirror) refresh(dirty Layer) {
	if m.target != nil {
		switch {
		case dirty == LayerAll:
			m.target.Redraw()
		default:
			if dirty&LayerBg != 0 {
				m.target.RedrawBg()
			}
			if dirty&LayerGr != 0 {
				m.target.RedrawGr()
			}
			if dirty&LayerObjs != 0 {
				m.target.RedrawObjs()
			}
		}
	}
	if m.onChange != nil {
		m.onChange(dirty)
	}
}
