/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package control turns local key presses into gripper commands and sends
// each command to every model connection the client currently controls.
package control

import (
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/Seednode/golmi/link"
)

// Binding is one controlled gripper on one link.
type Binding struct {
	Link      link.Link
	GripperID string

	// wire is the id as the model sent it, echoed in every command
	wire json.RawMessage
}

// Scheduler runs f after d and returns a function that cancels it. f must
// be run on the same event loop as the Dispatcher.
type Scheduler func(d time.Duration, f func()) (stop func() bool)

type keyState struct {
	action Action
	down   bool
}

type attachRequest struct {
	requested string
	stop      func() bool
}

// Dispatcher owns the registry of controlled grippers and the key-state
// table. It is not safe for concurrent use; run it on one event loop.
type Dispatcher struct {
	models  []Binding
	keys    map[KeyCode]*keyState
	pending map[string][]*attachRequest
	links   map[string]bool

	attachTimeout time.Duration
	schedule      Scheduler

	logger *slog.Logger
}

type Option func(*Dispatcher)

// WithKeyMap replaces DefaultKeyMap.
func WithKeyMap(km KeyMap) Option {
	return func(d *Dispatcher) {
		d.keys = make(map[KeyCode]*keyState, len(km))
		for code, action := range km {
			d.keys[code] = &keyState{action: action}
		}
	}
}

// WithAttachTimeout gives up on an attach whose acknowledgement has not
// arrived after timeout. A zero timeout waits forever.
func WithAttachTimeout(timeout time.Duration, schedule Scheduler) Option {
	return func(d *Dispatcher) {
		d.attachTimeout = timeout
		d.schedule = schedule
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		pending: make(map[string][]*attachRequest),
		links:   make(map[string]bool),
	}
	WithKeyMap(DefaultKeyMap())(d)
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return d
}

// Bindings returns a copy of the registered (link, gripper) pairs in
// registration order.
func (d *Dispatcher) Bindings() []Binding {
	return append([]Binding(nil), d.models...)
}

// Pending reports how many attach requests on l await acknowledgement.
func (d *Dispatcher) Pending(l link.Link) int {
	return len(d.pending[l.ID()])
}

// AttachModel asks the model behind l for a gripper and starts controlling
// it once the model acknowledges with the id it actually assigned. An empty
// gripperID lets the model choose.
//
// A repeated call is suppressed only if (l, gripperID) is already
// registered. The check uses the requested id while the registry stores the
// acknowledged one, so a request the model answers with a different id is
// never recognized as a duplicate.
func (d *Dispatcher) AttachModel(l link.Link, gripperID string) {
	if d.registered(l, gripperID) {
		d.logger.Debug("already attached", "link", l.ID(), "gripper", gripperID)
		return
	}

	d.listen(l)

	req := &attachRequest{requested: gripperID}
	d.pending[l.ID()] = append(d.pending[l.ID()], req)

	if err := l.Emit(link.AddGripper, link.OptionalID(gripperID)); err != nil {
		d.logger.Error("attach request failed", "link", l.ID(), "gripper", gripperID, "err", err)
		d.dropPending(l, req)
		return
	}

	if d.attachTimeout > 0 && d.schedule != nil {
		req.stop = d.schedule(d.attachTimeout, func() {
			if d.dropPending(l, req) {
				d.logger.Warn("attach timed out", "link", l.ID(), "gripper", gripperID, "after", d.attachTimeout)
			}
		})
	}
}

// DetachModel stops controlling gripperID on l and tells the model to
// remove it. An empty gripperID detaches every gripper on l and forgets
// unanswered attach requests for it.
func (d *Dispatcher) DetachModel(l link.Link, gripperID string) {
	kept := d.models[:0]
	var removed []Binding
	for _, b := range d.models {
		if b.Link.ID() == l.ID() && (gripperID == "" || b.GripperID == gripperID) {
			removed = append(removed, b)
			continue
		}
		kept = append(kept, b)
	}
	d.models = kept

	if gripperID == "" {
		for _, req := range d.pending[l.ID()] {
			if req.stop != nil {
				req.stop()
			}
		}
		delete(d.pending, l.ID())
	}

	for _, b := range removed {
		if err := b.Link.Emit(link.RemoveGripper, b.wire); err != nil {
			d.logger.Error("remove request failed", "link", l.ID(), "gripper", b.GripperID, "err", err)
		}
	}
}

func (d *Dispatcher) registered(l link.Link, gripperID string) bool {
	for _, b := range d.models {
		if b.Link.ID() == l.ID() && b.GripperID == gripperID {
			return true
		}
	}
	return false
}

// listen subscribes to acknowledgements once per link.
func (d *Dispatcher) listen(l link.Link) {
	if d.links[l.ID()] {
		return
	}
	d.links[l.ID()] = true
	l.On(link.AttachGripper, func(raw json.RawMessage) { d.acknowledge(l, raw) })
}

// acknowledge resolves the oldest pending attach on l.
func (d *Dispatcher) acknowledge(l link.Link, raw json.RawMessage) {
	ack, err := link.ParseID(raw)
	if err != nil {
		d.logger.Warn("dropping malformed attach acknowledgement", "link", l.ID(), "err", err)
		return
	}

	id := ack.Text
	queue := d.pending[l.ID()]
	if len(queue) == 0 {
		d.logger.Debug("attach acknowledgement without request", "link", l.ID(), "gripper", id)
		return
	}
	req := queue[0]
	d.pending[l.ID()] = queue[1:]
	if req.stop != nil {
		req.stop()
	}

	if d.registered(l, id) {
		d.logger.Warn("model assigned an already controlled gripper", "link", l.ID(), "gripper", id, "requested", req.requested)
		return
	}
	d.models = append(d.models, Binding{Link: l, GripperID: id, wire: ack.Wire})
	d.logger.Info("attached", "link", l.ID(), "gripper", id, "requested", req.requested)
}

func (d *Dispatcher) dropPending(l link.Link, req *attachRequest) bool {
	queue := d.pending[l.ID()]
	for i, r := range queue {
		if r == req {
			d.pending[l.ID()] = append(queue[:i:i], queue[i+1:]...)
			return true
		}
	}
	return false
}

// KeyDown handles a host key press. One-shot keys fire on every press;
// keys with a release action fire once until released.
func (d *Dispatcher) KeyDown(code KeyCode) {
	k, ok := d.keys[code]
	if !ok || k.action.Down == None || k.down {
		return
	}
	if k.action.Up != None {
		k.down = true
	}
	d.Dispatch(k.action.Down)
}

// KeyUp handles a host key release.
func (d *Dispatcher) KeyUp(code KeyCode) {
	k, ok := d.keys[code]
	if !ok || k.action.Up == None || !k.down {
		return
	}
	d.Dispatch(k.action.Up)
	k.down = false
}

// ResetKeys forgets every pressed key without firing anything.
func (d *Dispatcher) ResetKeys() {
	for _, k := range d.keys {
		k.down = false
	}
}

// IsDown reports whether code is currently held.
func (d *Dispatcher) IsDown(code KeyCode) bool {
	k, ok := d.keys[code]
	return ok && k.down
}

// Dispatch sends cmd to every registered gripper. Commands issued before
// any attach was acknowledged reach nobody.
func (d *Dispatcher) Dispatch(cmd Command) {
	switch cmd {
	case Grip:
		d.emit(link.Grip, func(id json.RawMessage) any { return link.GripPayload{ID: id} })
	case StopGrip:
		d.emit(link.StopGrip, stop)
	case MoveLeft:
		d.move(-1, 0)
	case MoveUp:
		d.move(0, -1)
	case MoveRight:
		d.move(1, 0)
	case MoveDown:
		d.move(0, 1)
	case StopMove:
		d.emit(link.StopMove, stop)
	case RotateLeft:
		d.rotate(-1)
	case RotateRight:
		d.rotate(1)
	case StopRotate:
		d.emit(link.StopRotate, stop)
	case Flip:
		d.emit(link.Flip, func(id json.RawMessage) any { return link.FlipPayload{ID: id} })
	case StopFlip:
		d.emit(link.StopFlip, stop)
	case None:
	default:
		d.logger.Warn("unknown command", "command", int(cmd))
	}
}

func (d *Dispatcher) move(dx, dy int) {
	d.emit(link.Move, func(id json.RawMessage) any { return link.MovePayload{ID: id, DX: dx, DY: dy} })
}

func (d *Dispatcher) rotate(direction int) {
	d.emit(link.Rotate, func(id json.RawMessage) any { return link.RotatePayload{ID: id, Direction: direction} })
}

func stop(id json.RawMessage) any { return link.StopPayload{ID: id} }

func (d *Dispatcher) emit(event string, payload func(id json.RawMessage) any) {
	for _, b := range d.models {
		if err := b.Link.Emit(event, payload(b.wire)); err != nil {
			d.logger.Error("command failed", "event", event, "link", b.Link.ID(), "gripper", b.GripperID, "err", err)
		}
	}
}
