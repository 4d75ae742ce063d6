/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Seednode/golmi/link"
)

type clock struct{ t time.Time }

func newClock() *clock                   { return &clock{t: time.Unix(1700000000, 0)} }
func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func rec(t *testing.T, r Record) []any {
	t.Helper()
	return decode[[]any](t, r)
}

func obj(t *testing.T, v any) map[string]any {
	t.Helper()
	return decode[map[string]any](t, v)
}

func decode[T any](t *testing.T, v any) T {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	return out
}

const (
	config   = `{"width":10,"height":10}`
	gripper  = `{"g1":{"x":3,"y":4,"gripped":null}}`
	holding  = `{"g1":{"x":3,"y":4,"gripped":{"o7":{"x":3,"y":4,"block_matrix":[[1]],"gripped":true}}}}`
	nonEmpty = `{"objs":{"o1":{"x":1,"y":1,"block_matrix":[[1]]}},"grippers":` + gripper + `}`
)

func newLogger(opts ...Option) (*Logger, *link.Mock, *clock) {
	c := newClock()
	m := link.NewMock("model")
	l := Attach(m, append([]Option{WithClock(c.now)}, opts...)...)
	return l, m, c
}

func TestLogger_FullStateTimestamps(t *testing.T) {
	l, m, c := newLogger()

	m.Deliver(link.UpdateConfig, []byte(config))
	m.Deliver(link.UpdateState, []byte(nonEmpty))
	c.advance(250 * time.Millisecond)
	m.Deliver(link.UpdateGrippers, []byte(`{"g1":{"x":5,"y":4,"gripped":null}}`))

	log := l.Log()
	if len(log) != 2 {
		t.Fatalf("got %d records, want 2", len(log))
	}
	if log[0].Offset != 0 {
		t.Fatalf("first record at %d, want 0", log[0].Offset)
	}
	if log[1].Offset != 250 {
		t.Fatalf("second record at %d, want 250", log[1].Offset)
	}

	second := rec(t, log[1])
	payload := second[1].(map[string]any)
	for _, key := range []string{"objs", "grippers", "config"} {
		if _, ok := payload[key]; !ok {
			t.Fatalf("snapshot lacks %q: %v", key, payload)
		}
	}
	if payload["config"].(map[string]any)["width"] != 10.0 {
		t.Fatalf("config cached before start should be in the snapshot: %v", payload)
	}
	g1 := payload["grippers"].(map[string]any)["g1"].(map[string]any)
	if g1["x"] != 5.0 {
		t.Fatalf("snapshot should hold the latest grippers: %v", g1)
	}
	if _, ok := payload["objs"].(map[string]any)["o1"]; !ok {
		t.Fatalf("snapshot should keep the objects from the state: %v", payload)
	}
}

func TestLogger_EmptyStateDoesNotStart(t *testing.T) {
	l, m, c := newLogger()

	m.Deliver(link.UpdateState, []byte(`{"objs":{},"grippers":{}}`))
	m.Deliver(link.UpdateGrippers, []byte(gripper))
	if l.Started() || len(l.Log()) != 0 {
		t.Fatalf("empty state must not start the log")
	}

	c.advance(time.Second)
	m.Deliver(link.UpdateState, []byte(nonEmpty))
	if !l.Started() || l.Log()[0].Offset != 0 {
		t.Fatalf("first non-empty state should be offset 0")
	}

	c.advance(10 * time.Millisecond)
	m.Deliver(link.UpdateState, []byte(`{"objs":{},"grippers":{}}`))
	if log := l.Log(); len(log) != 2 || log[1].Offset != 10 {
		t.Fatalf("empty state after start is a normal record: %v", log)
	}
}

func TestLogger_MalformedStateIgnored(t *testing.T) {
	l, m, _ := newLogger()

	m.Deliver(link.UpdateState, []byte(`{"grippers":{"g":{"x":1,"y":1}}}`))
	m.Deliver(link.UpdateGrippers, []byte(`[1]`))
	if l.Started() {
		t.Fatalf("state without objs must not start the log")
	}
}

func TestLogger_StateWithUnusableConfigStillStarts(t *testing.T) {
	l, m, _ := newLogger()

	m.Deliver(link.UpdateState, []byte(`{"objs":{"o1":{"x":1,"y":1,"block_matrix":[[1]]}},"grippers":`+gripper+`,"config":{"width":0,"height":0}}`))
	if !l.Started() || len(l.Log()) != 1 {
		t.Fatalf("a non-empty state should start the log whatever its config")
	}

	payload := rec(t, l.Log()[0])[1].(map[string]any)
	if payload["config"].(map[string]any)["width"] != 0.0 {
		t.Fatalf("embedded config should be recorded as sent: %v", payload)
	}
}

func TestLogger_DiffModeTrackedGripper(t *testing.T) {
	l, m, c := newLogger(WithFullState(false))

	m.Deliver(link.AttachGripper, "g1")
	m.Deliver(link.UpdateState, []byte(nonEmpty))
	if n := len(l.Log()); n != 0 {
		t.Fatalf("reduced mode should not record full states, got %d", n)
	}

	c.advance(100 * time.Millisecond)
	m.Deliver(link.UpdateGrippers, []byte(holding))
	c.advance(100 * time.Millisecond)
	m.Deliver(link.UpdateGrippers, []byte(gripper))
	m.Deliver(link.UpdateObjs, []byte(`{}`))

	log := l.Log()
	if len(log) != 2 {
		t.Fatalf("got %d records, want 2", len(log))
	}
	held, _ := json.Marshal(log[0].Payload)
	if string(held) != `{"gripper":{"gripped":"o7"}}` {
		t.Fatalf("unexpected held payload %s", held)
	}
	pos, _ := json.Marshal(log[1].Payload)
	if string(pos) != `{"gripper":{"x":3,"y":4}}` {
		t.Fatalf("unexpected position payload %s", pos)
	}
	if log[0].Offset != 100 || log[1].Offset != 200 {
		t.Fatalf("unexpected offsets %d %d", log[0].Offset, log[1].Offset)
	}
}

func TestLogger_DiffModeUntracked(t *testing.T) {
	l, m, _ := newLogger(WithFullState(false))

	m.Deliver(link.UpdateState, []byte(nonEmpty))
	m.Deliver(link.UpdateGrippers, []byte(gripper))

	payload := obj(t, l.Log()[0].Payload)
	if _, ok := payload["gripper"].(map[string]any)["g1"]; !ok {
		t.Fatalf("untracked reduced mode should log the gripper map: %v", payload)
	}
}

func TestLogger_DiffModeConfig(t *testing.T) {
	l, m, c := newLogger(WithFullState(false))

	m.Deliver(link.UpdateConfig, []byte(config))
	m.Deliver(link.UpdateState, []byte(nonEmpty))
	c.advance(30 * time.Millisecond)
	m.Deliver(link.UpdateConfig, []byte(`{"width":5,"height":5}`))

	log := l.Log()
	if len(log) != 2 || log[0].Offset != NotStarted || log[1].Offset != 30 {
		t.Fatalf("unexpected config records %v", log)
	}
	b, _ := json.Marshal(log[0])
	if string(b) != `[-1,{"config":{"width":10,"height":10}}]` {
		t.Fatalf("unexpected pre-start record %s", b)
	}
}

func TestLogger_MessageBeforeAndAfterStart(t *testing.T) {
	l, m, c := newLogger()

	l.HandleMessage(map[string]any{"event": "intro"})
	m.Deliver(link.UpdateState, []byte(nonEmpty))
	c.advance(42 * time.Millisecond)
	l.HandleMessage("done")

	log := l.Log()
	if log[0].Offset != NotStarted || log[2].Offset != 42 || log[2].Payload != "done" {
		t.Fatalf("unexpected message records %v", log)
	}
}

func TestSegments(t *testing.T) {
	l, m, c := newLogger()
	m.Deliver(link.UpdateConfig, []byte(config))
	m.Deliver(link.UpdateState, []byte(nonEmpty))
	c.advance(time.Second)

	if err := l.AddSegment("phase1", map[string]any{"score": 3, "log": "nope"}); err != nil {
		t.Fatalf("add segment: %v", err)
	}

	data := obj(t, l.Data())
	if log := data["log"].([]any); len(log) != 0 {
		t.Fatalf("live log should be empty after a segment: %v", log)
	}
	phase := data["phase1"].(map[string]any)
	if len(phase["log"].([]any)) != 1 || phase["score"] != 3.0 {
		t.Fatalf("unexpected segment %v", phase)
	}
	if l.Started() {
		t.Fatalf("segment should reset the clock")
	}

	before, _ := l.Encode()
	err := l.AddSegment("log", nil)
	if !errors.Is(err, ErrReservedKey) {
		t.Fatalf("expected ErrReservedKey, got %v", err)
	}
	if err := l.AddSegment("phase1", nil); !errors.Is(err, ErrSegmentExists) {
		t.Fatalf("expected ErrSegmentExists, got %v", err)
	}
	after, _ := l.Encode()
	if string(before) != string(after) {
		t.Fatalf("rejected segment changed the data:\n%s\n%s", before, after)
	}

	// config survives the cut
	m.Deliver(link.UpdateState, []byte(nonEmpty))
	payload := obj(t, l.Log()[0].Payload)
	if payload["config"].(map[string]any)["width"] != 10.0 {
		t.Fatalf("config lost across segment: %v", payload)
	}
}

func TestSegmentSignal(t *testing.T) {
	l, _, _ := newLogger()

	if err := l.HandleSegment(SegmentSignal{}); !errors.Is(err, ErrNoSegmentTitle) {
		t.Fatalf("expected ErrNoSegmentTitle, got %v", err)
	}
	if err := l.HandleSegment(SegmentSignal{SegmentTitle: 2}); err != nil {
		t.Fatalf("numeric title: %v", err)
	}
	if _, ok := l.Data()["2"]; !ok {
		t.Fatalf("numeric title should be used as a string")
	}
}

func TestAddData(t *testing.T) {
	l, _, _ := newLogger()

	if err := l.AddData("log", 1); !errors.Is(err, ErrReservedKey) {
		t.Fatalf("expected ErrReservedKey, got %v", err)
	}
	if err := l.AddData("worker", "w-12"); err != nil {
		t.Fatalf("add data: %v", err)
	}
	if err := l.AddDataToSegment("missing", "k", 1); !errors.Is(err, ErrNoSegment) {
		t.Fatalf("expected ErrNoSegment, got %v", err)
	}
	if err := l.AddDataToSegment("worker", "k", 1); !errors.Is(err, ErrNoSegment) {
		t.Fatalf("scalar entries are not segments, got %v", err)
	}

	_ = l.AddSegment("s", nil)
	if err := l.AddDataToSegment("s", "log", 1); !errors.Is(err, ErrReservedKey) {
		t.Fatalf("expected ErrReservedKey, got %v", err)
	}
	if err := l.AddDataToSegment("s", "answer", 42); err != nil {
		t.Fatalf("add to segment: %v", err)
	}

	data := obj(t, l.Data())
	if data["worker"] != "w-12" || data["s"].(map[string]any)["answer"] != 42.0 {
		t.Fatalf("unexpected data %v", data)
	}
}

func TestSendData(t *testing.T) {
	var (
		got      map[string]any
		path     string
		encoding string
		ctype    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		encoding = r.Header.Get("Content-Encoding")
		ctype = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		if encoding == "zstd" {
			dec, _ := zstd.NewReader(nil)
			defer dec.Close()
			body, _ = dec.DecodeAll(body, nil)
		}
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte("0"))
	}))
	defer srv.Close()

	for _, compressed := range []bool{false, true} {
		got = nil
		l, m, _ := newLogger(WithBaseURL(srv.URL), WithCompression(compressed))
		m.Deliver(link.UpdateState, []byte(nonEmpty))

		if err := l.SendData(context.Background(), ""); err != nil {
			t.Fatalf("send (compressed=%v): %v", compressed, err)
		}
		if path != DefaultEndpoint || ctype != "application/json;charset=utf-8" {
			t.Fatalf("posted to %s as %s", path, ctype)
		}
		if compressed != (encoding == "zstd") {
			t.Fatalf("compressed=%v sent encoding %q", compressed, encoding)
		}
		if log, ok := got["log"].([]any); !ok || len(log) != 1 {
			t.Fatalf("server got %v", got)
		}
	}
}

func TestSendData_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	l := New(WithBaseURL(srv.URL))
	if err := l.SendData(context.Background(), "/save_log"); !errors.Is(err, ErrSaveFailed) {
		t.Fatalf("expected ErrSaveFailed, got %v", err)
	}
	if err := New().SendData(context.Background(), ""); !errors.Is(err, ErrNoBaseURL) {
		t.Fatalf("expected ErrNoBaseURL, got %v", err)
	}
	if err := New().SendData(context.Background(), srv.URL+"/x"); !errors.Is(err, ErrSaveFailed) {
		t.Fatalf("absolute endpoint should not need a base url, got %v", err)
	}
}
