/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package control

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Seednode/golmi/link"
)

func attached(t *testing.T, d *Dispatcher, l *link.Mock, requested, assigned string) {
	t.Helper()
	d.AttachModel(l, requested)
	l.Deliver(link.AttachGripper, assigned)
}

func payload(t *testing.T, env link.Envelope) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(env.Data, &m); err != nil {
		t.Fatalf("decode %s payload: %v", env.Event, err)
	}
	return m
}

func TestAttach_RegistersOnlyAfterAcknowledgement(t *testing.T) {
	d := New()
	l := link.NewMock("sock-1")

	d.AttachModel(l, "")

	adds := l.SentEvents(link.AddGripper)
	if len(adds) != 1 || string(adds[0].Data) != "null" {
		t.Fatalf("expected one add_gripper with null id, got %v", adds)
	}
	if len(d.Bindings()) != 0 || d.Pending(l) != 1 {
		t.Fatalf("binding recorded before acknowledgement")
	}

	// commands before the acknowledgement address nobody
	d.Dispatch(Grip)
	if len(l.SentEvents(link.Grip)) != 0 {
		t.Fatalf("command sent before attach completed")
	}

	l.Deliver(link.AttachGripper, "srv-7")

	b := d.Bindings()
	if len(b) != 1 || b[0].GripperID != "srv-7" || b[0].Link != l {
		t.Fatalf("unexpected bindings %+v", b)
	}
	if d.Pending(l) != 0 {
		t.Fatalf("pending attach not resolved")
	}
}

func TestAttach_DuplicateSuppressionUsesRequestedID(t *testing.T) {
	d := New()
	l := link.NewMock("sock-1")

	attached(t, d, l, "g1", "g1")
	d.AttachModel(l, "g1")
	if n := len(l.SentEvents(link.AddGripper)); n != 1 {
		t.Fatalf("registered pair should suppress the request, got %d add_gripper", n)
	}

	// two requests in flight: both are sent, the registry holds one entry
	d.AttachModel(l, "g2")
	d.AttachModel(l, "g2")
	if n := len(l.SentEvents(link.AddGripper)); n != 3 {
		t.Fatalf("unacknowledged duplicate should still be sent, got %d add_gripper", n)
	}
	l.Deliver(link.AttachGripper, "g2")
	l.Deliver(link.AttachGripper, "g2")

	count := 0
	for _, b := range d.Bindings() {
		if b.GripperID == "g2" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("registry holds %d copies of (sock-1, g2)", count)
	}
}

func TestAttach_ServerAssignedIDIsNotSeenAsDuplicate(t *testing.T) {
	d := New()
	l := link.NewMock("sock-1")

	attached(t, d, l, "wanted", "given")
	d.AttachModel(l, "wanted")

	if n := len(l.SentEvents(link.AddGripper)); n != 2 {
		t.Fatalf("requested id differs from registered id, so the request repeats; got %d", n)
	}
}

func TestAttach_SameGripperOnDifferentLinks(t *testing.T) {
	d := New()
	a := link.NewMock("sock-a")
	b := link.NewMock("sock-b")

	attached(t, d, a, "g", "g")
	attached(t, d, b, "g", "g")

	if len(d.Bindings()) != 2 {
		t.Fatalf("bindings on distinct links must coexist: %+v", d.Bindings())
	}

	d.Dispatch(Flip)
	if len(a.SentEvents(link.Flip)) != 1 || len(b.SentEvents(link.Flip)) != 1 {
		t.Fatalf("flip should reach both links")
	}
}

func TestAttach_MalformedOrUnsolicitedAcknowledgement(t *testing.T) {
	d := New()
	l := link.NewMock("sock-1")

	d.AttachModel(l, "")
	l.Deliver(link.AttachGripper, map[string]any{"id": 3})
	if len(d.Bindings()) != 0 || d.Pending(l) != 1 {
		t.Fatalf("malformed acknowledgement must not resolve the request")
	}

	l.Deliver(link.AttachGripper, 12)
	l.Deliver(link.AttachGripper, "late")
	b := d.Bindings()
	if len(b) != 1 || b[0].GripperID != "12" {
		t.Fatalf("numeric id should register once, got %+v", b)
	}
}

func TestAttach_EmitFailureLeavesNothingPending(t *testing.T) {
	d := New()
	l := link.NewMock("sock-1")
	l.FailWith(errors.New("down"))

	d.AttachModel(l, "g")
	if d.Pending(l) != 0 {
		t.Fatalf("failed request should not stay pending")
	}
}

type fakeTimers struct {
	fns []func()
}

func (f *fakeTimers) schedule(d time.Duration, fn func()) func() bool {
	i := len(f.fns)
	f.fns = append(f.fns, fn)
	return func() bool {
		stopped := f.fns[i] != nil
		f.fns[i] = nil
		return stopped
	}
}

func (f *fakeTimers) fire() {
	for i, fn := range f.fns {
		if fn != nil {
			f.fns[i] = nil
			fn()
		}
	}
}

func TestAttach_Timeout(t *testing.T) {
	timers := &fakeTimers{}
	d := New(WithAttachTimeout(time.Second, timers.schedule))
	l := link.NewMock("sock-1")

	d.AttachModel(l, "slow")
	d.AttachModel(l, "fast")
	if d.Pending(l) != 2 {
		t.Fatalf("expected 2 pending")
	}

	// first acknowledgement resolves "slow" and cancels its timer
	l.Deliver(link.AttachGripper, "slow")
	timers.fire()

	if d.Pending(l) != 0 {
		t.Fatalf("timed out request still pending")
	}
	l.Deliver(link.AttachGripper, "fast")
	if b := d.Bindings(); len(b) != 1 || b[0].GripperID != "slow" {
		t.Fatalf("acknowledgement after timeout should be ignored, got %+v", b)
	}
}

func TestDetach_ExplicitID(t *testing.T) {
	d := New()
	l := link.NewMock("sock-1")
	attached(t, d, l, "g1", "g1")
	attached(t, d, l, "g2", "g2")
	l.Reset()

	d.DetachModel(l, "g1")

	removes := l.SentEvents(link.RemoveGripper)
	if len(removes) != 1 || string(removes[0].Data) != `"g1"` {
		t.Fatalf("unexpected remove notices %v", removes)
	}
	if b := d.Bindings(); len(b) != 1 || b[0].GripperID != "g2" {
		t.Fatalf("unexpected bindings %+v", b)
	}
}

func TestDetach_AllOfLink(t *testing.T) {
	d := New()
	a := link.NewMock("sock-a")
	b := link.NewMock("sock-b")
	attached(t, d, a, "g1", "g1")
	attached(t, d, a, "g2", "g2")
	attached(t, d, a, "g3", "g3")
	attached(t, d, b, "g1", "g1")
	d.AttachModel(a, "g4")
	a.Reset()

	d.DetachModel(a, "")

	removes := a.SentEvents(link.RemoveGripper)
	if len(removes) != 3 {
		t.Fatalf("expected one remove_gripper per binding, got %d", len(removes))
	}
	for i, want := range []string{`"g1"`, `"g2"`, `"g3"`} {
		if string(removes[i].Data) != want {
			t.Fatalf("remove %d carried %s, want %s", i, removes[i].Data, want)
		}
	}
	if bs := d.Bindings(); len(bs) != 1 || bs[0].Link != b {
		t.Fatalf("other link's binding should survive: %+v", bs)
	}
	if d.Pending(a) != 0 {
		t.Fatalf("pending attach should be forgotten")
	}
	a.Deliver(link.AttachGripper, "g4")
	if len(d.Bindings()) != 1 {
		t.Fatalf("late acknowledgement after detach registered a binding")
	}
}

func TestDispatch_PayloadsFanOut(t *testing.T) {
	d := New()
	l := link.NewMock("sock-1")
	attached(t, d, l, "g1", "g1")
	attached(t, d, l, "g2", "g2")
	l.Reset()

	d.KeyDown(KeyLeft)
	d.KeyDown(KeyA)
	d.KeyDown(KeySpace)
	d.KeyDown(KeyW)

	sent := l.Sent()
	if len(sent) != 8 {
		t.Fatalf("expected 4 commands x 2 grippers, got %d", len(sent))
	}

	move := payload(t, sent[0])
	if sent[0].Event != link.Move || move["id"] != "g1" || move["dx"] != -1.0 || move["dy"] != 0.0 || move["loop"] != false {
		t.Fatalf("unexpected move %v", move)
	}
	if sent[1].Event != link.Move || payload(t, sent[1])["id"] != "g2" {
		t.Fatalf("second gripper missed the move")
	}
	rotate := payload(t, sent[2])
	if sent[2].Event != link.Rotate || rotate["direction"] != -1.0 || rotate["loop"] != false {
		t.Fatalf("unexpected rotate %v", rotate)
	}
	if sent[4].Event != link.Grip || payload(t, sent[4])["loop"] != false {
		t.Fatalf("unexpected grip %v", sent[4])
	}
	if sent[6].Event != link.Flip {
		t.Fatalf("unexpected flip %v", sent[6])
	}
}

func TestDispatch_NumericIDsStayNumeric(t *testing.T) {
	d := New()
	l := link.NewMock("sock-1")
	d.AttachModel(l, "")
	l.Deliver(link.AttachGripper, 7)

	if b := d.Bindings(); len(b) != 1 || b[0].GripperID != "7" {
		t.Fatalf("unexpected bindings %+v", b)
	}
	l.Reset()

	d.KeyDown(KeySpace)
	grips := l.SentEvents(link.Grip)
	if len(grips) != 1 || string(grips[0].Data) != `{"id":7,"loop":false}` {
		t.Fatalf("grip should echo the numeric id, got %v", grips)
	}

	d.DetachModel(l, "7")
	removes := l.SentEvents(link.RemoveGripper)
	if len(removes) != 1 || string(removes[0].Data) != "7" {
		t.Fatalf("remove_gripper should carry 7, got %v", removes)
	}
}

func TestDispatch_EveryDirection(t *testing.T) {
	d := New()
	l := link.NewMock("sock-1")
	attached(t, d, l, "g", "g")
	l.Reset()

	want := map[KeyCode][2]float64{
		KeyLeft:  {-1, 0},
		KeyUp:    {0, -1},
		KeyRight: {1, 0},
		KeyDown:  {0, 1},
	}
	for code, delta := range want {
		l.Reset()
		d.KeyDown(code)
		p := payload(t, l.Sent()[0])
		if p["dx"] != delta[0] || p["dy"] != delta[1] {
			t.Errorf("key %d moved by (%v,%v), want %v", code, p["dx"], p["dy"], delta)
		}
	}

	l.Reset()
	d.KeyDown(KeyD)
	if p := payload(t, l.Sent()[0]); p["direction"] != 1.0 {
		t.Fatalf("d should rotate right, got %v", p)
	}
}

func TestKeys_OneShotRefiresOnEveryPress(t *testing.T) {
	d := New()
	l := link.NewMock("sock-1")
	attached(t, d, l, "g", "g")
	l.Reset()

	d.KeyDown(KeyEnter)
	d.KeyDown(KeyEnter)
	d.KeyDown(KeyEnter)

	if n := len(l.SentEvents(link.Grip)); n != 3 {
		t.Fatalf("one-shot key fired %d times, want 3", n)
	}
	if d.IsDown(KeyEnter) {
		t.Fatalf("key without release action must never be down")
	}

	d.KeyUp(KeyEnter)
	if n := len(l.Sent()); n != 3 {
		t.Fatalf("release of a one-shot key should do nothing")
	}
}

func TestKeys_HeldKeyFiresOncePerCycle(t *testing.T) {
	d := New(WithKeyMap(HeldMoveKeyMap()))
	l := link.NewMock("sock-1")
	attached(t, d, l, "g", "g")
	l.Reset()

	for cycle := 0; cycle < 2; cycle++ {
		d.KeyDown(KeyRight)
		d.KeyDown(KeyRight) // key repeat
		d.KeyDown(KeyRight)
		if !d.IsDown(KeyRight) {
			t.Fatalf("key with release action should be down")
		}
		d.KeyUp(KeyRight)
		d.KeyUp(KeyRight)
	}

	if n := len(l.SentEvents(link.Move)); n != 2 {
		t.Fatalf("move fired %d times, want 2", n)
	}
	stops := l.SentEvents(link.StopMove)
	if len(stops) != 2 || string(stops[0].Data) != `{"id":"g"}` {
		t.Fatalf("unexpected stop_move %v", stops)
	}
}

func TestKeys_IndependentKeys(t *testing.T) {
	d := New(WithKeyMap(KeyMap{
		KeyLeft: {Down: MoveLeft, Up: StopMove},
		KeyA:    {Down: RotateLeft, Up: StopRotate},
	}))
	l := link.NewMock("sock-1")
	attached(t, d, l, "g", "g")
	l.Reset()

	d.KeyDown(KeyLeft)
	d.KeyDown(KeyA)
	if !d.IsDown(KeyLeft) || !d.IsDown(KeyA) {
		t.Fatalf("both keys should be down")
	}
	d.KeyUp(KeyLeft)
	if d.IsDown(KeyLeft) || !d.IsDown(KeyA) {
		t.Fatalf("keys must be tracked independently")
	}
}

func TestKeys_ResetThenReleaseFiresNothing(t *testing.T) {
	d := New(WithKeyMap(HeldMoveKeyMap()))
	l := link.NewMock("sock-1")
	attached(t, d, l, "g", "g")

	d.KeyDown(KeyUp)
	d.KeyDown(KeyDown)
	l.Reset()

	d.ResetKeys()
	d.KeyUp(KeyUp)
	d.KeyUp(KeyDown)

	if n := len(l.Sent()); n != 0 {
		t.Fatalf("release after reset sent %d commands", n)
	}
	if d.IsDown(KeyUp) {
		t.Fatalf("reset should leave keys up")
	}
}

func TestKeys_UnmappedIgnored(t *testing.T) {
	d := New()
	l := link.NewMock("sock-1")
	attached(t, d, l, "g", "g")
	l.Reset()

	d.KeyDown(KeyCode(999))
	d.KeyUp(KeyCode(999))

	if len(l.Sent()) != 0 {
		t.Fatalf("unmapped key produced commands")
	}
}

func TestCommand_String(t *testing.T) {
	if Grip.String() != "grip" || StopFlip.String() != "stop_flip" || Command(99).String() != "unknown" {
		t.Fatalf("unexpected names")
	}
}
