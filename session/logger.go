/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package session records the traffic between a client and a model server
// as a timestamped log that can be split into segments and uploaded.
package session

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Seednode/golmi/link"
	"github.com/Seednode/golmi/model"
)

// LogKey holds the live event log at the top of the data tree and inside
// every segment. Callers cannot write to it.
const LogKey = "log"

// NotStarted is the offset of records made before logging started.
const NotStarted int64 = -1

var emptyObject = json.RawMessage(`{}`)

// Record is one log entry. It marshals as [offset, payload].
type Record struct {
	Offset  int64
	Payload any
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{r.Offset, r.Payload})
}

// Logger mirrors the model traffic into a data tree of the form
// {"log": [[offset, payload], ...], "<segment>": {"log": [...], ...}, ...}.
// It is not safe for concurrent use; run it on the link's event loop.
type Logger struct {
	id string

	data map[string]any
	log  []Record

	fullState bool
	gripperID string

	started bool
	start   time.Time

	objs     json.RawMessage
	grippers json.RawMessage
	config   json.RawMessage

	now        func() time.Time
	client     *http.Client
	baseURL    string
	compressed bool
	logger     *slog.Logger
}

type Option func(*Logger)

// WithFullState selects full snapshots (true, the default) or reduced
// per-event records (false).
func WithFullState(full bool) Option {
	return func(l *Logger) { l.fullState = full }
}

// WithGripper tracks one gripper in reduced mode. An attach_gripper
// acknowledgement on the link replaces it.
func WithGripper(id string) Option {
	return func(l *Logger) { l.gripperID = id }
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

func WithHTTPClient(c *http.Client) Option {
	return func(l *Logger) { l.client = c }
}

// WithBaseURL is the server relative endpoints given to SendData resolve
// against.
func WithBaseURL(u string) Option {
	return func(l *Logger) { l.baseURL = u }
}

// WithCompression uploads zstd-compressed logs.
func WithCompression(on bool) Option {
	return func(l *Logger) { l.compressed = on }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Logger) { l.logger = logger }
}

func New(opts ...Option) *Logger {
	l := &Logger{
		id:        uuid.NewString(),
		data:      map[string]any{},
		fullState: true,
		config:    emptyObject,
		now:       time.Now,
		client:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	l.logger = l.logger.With("session", l.id)
	l.resetState()
	return l
}

// Attach is shorthand for New followed by Subscribe.
func Attach(ln link.Link, opts ...Option) *Logger {
	l := New(opts...)
	l.Subscribe(ln)
	return l
}

// ID identifies this logger in diagnostics.
func (l *Logger) ID() string { return l.id }

// Subscribe starts recording events from ln.
func (l *Logger) Subscribe(ln link.Link) {
	ln.On(link.AttachGripper, l.HandleAttach)
	ln.On(link.UpdateState, l.HandleState)
	ln.On(link.UpdateGrippers, l.HandleGrippers)
	ln.On(link.UpdateObjs, l.HandleObjs)
	ln.On(link.UpdateConfig, l.HandleConfig)
}

// Started reports whether the first non-empty state has been seen.
func (l *Logger) Started() bool { return l.started }

// Gripper is the tracked gripper id, or "".
func (l *Logger) Gripper() string { return l.gripperID }

// Log returns a copy of the live log.
func (l *Logger) Log() []Record {
	return append([]Record(nil), l.log...)
}

func (l *Logger) HandleAttach(raw json.RawMessage) {
	id, err := link.DecodeID(raw)
	if err != nil {
		l.logger.Warn("dropping malformed attach acknowledgement", "err", err)
		return
	}
	l.gripperID = id
}

// HandleState starts the clock on the first non-empty state. Reduced mode
// records nothing for full states. Only the two maps are checked; an
// embedded config is cached as sent.
func (l *Logger) HandleState(raw json.RawMessage) {
	var parts struct {
		Objs     json.RawMessage `json:"objs"`
		Grippers json.RawMessage `json:"grippers"`
		Config   json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		l.logger.Warn("dropping malformed state", "err", err)
		return
	}
	objs, ok := members(parts.Objs)
	if !ok {
		l.logger.Warn("dropping malformed state", "err", model.ErrMissingObjs)
		return
	}
	grippers, ok := members(parts.Grippers)
	if !ok {
		l.logger.Warn("dropping malformed state", "err", model.ErrMissingGrippers)
		return
	}

	var offset int64
	if !l.started {
		if objs == 0 && grippers == 0 {
			return
		}
		l.started = true
		l.start = l.now()
	} else {
		offset = l.elapsed()
	}

	if !l.fullState {
		return
	}

	l.objs = clone(parts.Objs)
	l.grippers = clone(parts.Grippers)
	if len(parts.Config) > 0 && string(parts.Config) != "null" {
		l.config = clone(parts.Config)
	}
	l.snapshot(offset)
}

// members counts the entries of a JSON object; missing, null or non-object
// values are not ok.
func members(raw json.RawMessage) (int, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return 0, false
	}
	return len(m), true
}

// HandleGrippers records a gripper update. In reduced mode the tracked
// gripper is logged by what it holds, or by position when empty.
func (l *Logger) HandleGrippers(raw json.RawMessage) {
	grippers, err := model.DecodeGrippers(raw)
	if err != nil {
		l.logger.Warn("dropping malformed gripper update", "err", err)
		return
	}
	if !l.started {
		return
	}
	offset := l.elapsed()

	if l.fullState {
		l.grippers = clone(raw)
		l.snapshot(offset)
		return
	}

	g, ok := grippers[l.gripperID]
	switch {
	case l.gripperID == "" || !ok:
		l.add(offset, map[string]any{"gripper": clone(raw)})
	default:
		if held, holding := g.Holding(); holding {
			l.add(offset, map[string]any{"gripper": map[string]any{"gripped": held}})
		} else {
			l.add(offset, map[string]any{"gripper": map[string]any{"x": g.X, "y": g.Y}})
		}
	}
}

// HandleObjs records an object update in full mode only.
func (l *Logger) HandleObjs(raw json.RawMessage) {
	if _, err := model.DecodeObjs(raw); err != nil {
		l.logger.Warn("dropping malformed object update", "err", err)
		return
	}
	if !l.started || !l.fullState {
		return
	}
	l.objs = clone(raw)
	l.snapshot(l.elapsed())
}

// HandleConfig records a config update. Before the start, full mode keeps
// the config for the first snapshot and reduced mode records it once at
// NotStarted.
func (l *Logger) HandleConfig(raw json.RawMessage) {
	if _, err := model.DecodeConfig(raw); err != nil {
		l.logger.Warn("dropping malformed config", "err", err)
		return
	}

	switch {
	case l.fullState:
		l.config = clone(raw)
		if l.started {
			l.snapshot(l.elapsed())
		}
	case l.started:
		l.add(l.elapsed(), map[string]any{"config": clone(raw)})
	default:
		l.add(NotStarted, map[string]any{"config": clone(raw)})
	}
}

// HandleMessage appends an application message verbatim.
func (l *Logger) HandleMessage(payload any) {
	offset := NotStarted
	if l.started {
		offset = l.elapsed()
	}
	l.add(offset, payload)
}

func (l *Logger) elapsed() int64 {
	return l.now().Sub(l.start).Milliseconds()
}

func (l *Logger) snapshot(offset int64) {
	l.add(offset, map[string]json.RawMessage{
		"objs":     l.objs,
		"grippers": l.grippers,
		"config":   l.config,
	})
}

func (l *Logger) add(offset int64, payload any) {
	l.log = append(l.log, Record{Offset: offset, Payload: payload})
}

// resetState forgets the clock and cached state but keeps the config.
func (l *Logger) resetState() {
	l.log = []Record{}
	l.started = false
	l.start = time.Time{}
	l.objs = emptyObject
	l.grippers = emptyObject
}

func clone(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return emptyObject
	}
	return bytes.Clone(raw)
}
