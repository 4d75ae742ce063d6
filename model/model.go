/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package model holds the client-side copies of the objects, grippers and
// board configuration a model server publishes. The client never mutates
// them; every value is replaced wholesale by the next server event.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrMissingObjs     = errors.New("state has no objs")
	ErrMissingGrippers = errors.New("state has no grippers")
	ErrInvalidConfig   = errors.New("config width and height must be positive")
)

// Config is the board configuration. Width and Height are counted in blocks.
type Config struct {
	Width        int                    `json:"width"`
	Height       int                    `json:"height"`
	Actions      []string               `json:"actions,omitempty"`
	RotationStep float64                `json:"rotation_step,omitempty"`
	TypeConfig   map[string]BlockMatrix `json:"type_config,omitempty"`
	Colors       []string               `json:"colors,omitempty"`
}

func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: got %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	return nil
}

// Obj is a block-based object. Gripped is true while some gripper holds it.
type Obj struct {
	Type        string      `json:"type"`
	X           float64     `json:"x"`
	Y           float64     `json:"y"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	Rotation    float64     `json:"rotation"`
	Mirrored    bool        `json:"mirrored"`
	Color       string      `json:"color"`
	BlockMatrix BlockMatrix `json:"block_matrix"`
	Gripped     bool        `json:"gripped"`
}

func (o Obj) CenterX() float64 { return o.X + float64(o.Width)/2 }
func (o Obj) CenterY() float64 { return o.Y + float64(o.Height)/2 }

// Gripper is a controllable claw. Gripped maps the held object's id to a
// full copy of that object, or is empty when nothing is held.
type Gripper struct {
	X       float64        `json:"x"`
	Y       float64        `json:"y"`
	Color   string         `json:"color,omitempty"`
	Gripped map[string]Obj `json:"gripped"`
}

// Holding reports the id of the held object, if any. A gripper holds at
// most one object; if a server sends more, the smallest id wins.
func (g Gripper) Holding() (string, bool) {
	if len(g.Gripped) == 0 {
		return "", false
	}
	return SortedKeys(g.Gripped)[0], true
}

// State is a full snapshot as carried by update_state.
type State struct {
	Objs     map[string]Obj     `json:"objs"`
	Grippers map[string]Gripper `json:"grippers"`
	Config   *Config            `json:"config,omitempty"`
}

// DecodeState parses an update_state payload. Both maps must be present;
// an explicit empty map is fine, a missing or null one is not.
func DecodeState(raw []byte) (State, error) {
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}
	if s.Objs == nil {
		return State{}, ErrMissingObjs
	}
	if s.Grippers == nil {
		return State{}, ErrMissingGrippers
	}
	if s.Config != nil {
		if err := s.Config.Validate(); err != nil {
			return State{}, err
		}
	}
	return s, nil
}

func (s State) Empty() bool {
	return len(s.Objs) == 0 && len(s.Grippers) == 0
}

func DecodeObjs(raw []byte) (map[string]Obj, error) {
	objs := map[string]Obj{}
	if err := json.Unmarshal(raw, &objs); err != nil {
		return nil, fmt.Errorf("decode objs: %w", err)
	}
	if objs == nil {
		return nil, ErrMissingObjs
	}
	return objs, nil
}

func DecodeGrippers(raw []byte) (map[string]Gripper, error) {
	grippers := map[string]Gripper{}
	if err := json.Unmarshal(raw, &grippers); err != nil {
		return nil, fmt.Errorf("decode grippers: %w", err)
	}
	if grippers == nil {
		return nil, ErrMissingGrippers
	}
	return grippers, nil
}

func DecodeConfig(raw []byte) (Config, error) {
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
