/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package link

import (
	"encoding/json"
	"sync"
)

// Mock is an in-memory Link. Emitted events are recorded; Deliver plays an
// inbound event into the registered handlers synchronously.
type Mock struct {
	id       string
	handlers handlers

	mu   sync.Mutex
	sent []Envelope
	err  error
}

func NewMock(id string) *Mock {
	return &Mock{id: id}
}

func (m *Mock) ID() string { return m.id }

func (m *Mock) On(event string, h Handler) { m.handlers.on(event, h) }

func (m *Mock) Emit(event string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	m.sent = append(m.sent, env)
	return nil
}

// FailWith makes every later Emit return err. Pass nil to recover.
func (m *Mock) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Deliver runs the handlers of event with payload encoded as JSON. A
// json.RawMessage or []byte payload is passed through untouched.
func (m *Mock) Deliver(event string, payload any) {
	var data json.RawMessage
	switch p := payload.(type) {
	case json.RawMessage:
		data = p
	case []byte:
		data = p
	default:
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			panic("link.Mock: " + err.Error())
		}
	}
	m.handlers.fire(Inline, Envelope{Event: event, Data: data})
}

// Sent returns a copy of every envelope emitted so far.
func (m *Mock) Sent() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Envelope(nil), m.sent...)
}

// SentEvents returns only the envelopes named event.
func (m *Mock) SentEvents(event string) []Envelope {
	var out []Envelope
	for _, env := range m.Sent() {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
