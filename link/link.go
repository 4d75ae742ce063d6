/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package link is the client side of the named-event channel to a model
// server. A Link carries JSON payloads under event names; handlers run on
// whatever event loop the link was given as its dispatcher.
package link

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// Event names understood by model servers.
const (
	AddGripper    = "add_gripper"
	AttachGripper = "attach_gripper"
	RemoveGripper = "remove_gripper"

	Grip       = "grip"
	StopGrip   = "stop_grip"
	Move       = "move"
	StopMove   = "stop_move"
	Rotate     = "rotate"
	StopRotate = "stop_rotate"
	Flip       = "flip"
	StopFlip   = "stop_flip"

	UpdateState    = "update_state"
	UpdateGrippers = "update_grippers"
	UpdateObjs     = "update_objs"
	UpdateConfig   = "update_config"
)

var ErrClosed = errors.New("link closed")

// Handler receives the raw payload of one event.
type Handler func(payload json.RawMessage)

// Link is a bidirectional named-event channel to one model server.
type Link interface {
	// ID identifies the underlying connection. Two Links with the same
	// ID talk to the same server session.
	ID() string
	Emit(event string, payload any) error
	// On adds a handler. Handlers of one event run in registration order.
	On(event string, h Handler)
}

// Envelope is the wire framing of every event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// Dispatch schedules f on the link owner's event loop.
type Dispatch func(f func())

// Inline runs f immediately on the calling goroutine.
func Inline(f func()) { f() }

// handlers is the per-link listener table shared by every implementation.
type handlers struct {
	mu    sync.Mutex
	table map[string][]Handler
}

func (h *handlers) on(event string, fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.table == nil {
		h.table = make(map[string][]Handler)
	}
	h.table[event] = append(h.table[event], fn)
}

// fire hands every handler of env.Event to dispatch as one unit of work, so
// all listeners of one event see it before the next event is processed.
func (h *handlers) fire(dispatch Dispatch, env Envelope) {
	h.mu.Lock()
	list := append([]Handler(nil), h.table[env.Event]...)
	h.mu.Unlock()

	if len(list) == 0 {
		return
	}

	data := env.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}

	dispatch(func() {
		for _, fn := range list {
			fn(data)
		}
	})
}

// ID is an entity id as the model server sent it. Text is its comparable
// form; Wire is the original JSON (a string or a number), which is what
// commands must carry back.
type ID struct {
	Text string
	Wire json.RawMessage
}

// ParseID reads an entity id sent as either a JSON string or number.
func ParseID(raw json.RawMessage) (ID, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return ID{}, errors.New("empty id")
		}
		return ID{Text: s, Wire: StringID(s)}, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return ID{}, fmt.Errorf("id must be a string or number, got %s", raw)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return ID{}, fmt.Errorf("id must be a string or number, got %s", raw)
	}
	return ID{Text: n.String(), Wire: json.RawMessage(n.String())}, nil
}

// DecodeID is ParseID without the wire form.
func DecodeID(raw json.RawMessage) (string, error) {
	id, err := ParseID(raw)
	return id.Text, err
}

// StringID is the wire form of a string id.
func StringID(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// OptionalID encodes an entity id, with "" meaning "let the server choose".
func OptionalID(id string) any {
	if id == "" {
		return nil
	}
	return id
}
