package relay

import (
	"context"
	"errors"
	"testing"

	"pronunciation-practice-service/internal/service/transcript"
)

type testCallback struct {
	fragments   []transcript.Fragment
	sessionEnds int
	errors      []error
}

func (c *testCallback) OnFragments(frags []transcript.Fragment) {
	c.fragments = append(c.fragments, frags...)
}

func (c *testCallback) OnSessionEnd() { c.sessionEnds++ }

func (c *testCallback) OnError(err error) { c.errors = append(c.errors, err) }

func TestAdapter_RelaysEvents(t *testing.T) {
	a := New()
	cb := &testCallback{}
	if err := a.Start(context.Background(), cb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := a.Push([]transcript.Fragment{{Text: "hola", IsFinal: true}}); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if err := a.EndSession(); err != nil {
		t.Fatalf("end session failed: %v", err)
	}
	cause := errors.New("not-allowed")
	if err := a.Fail(cause); err != nil {
		t.Fatalf("fail failed: %v", err)
	}

	if len(cb.fragments) != 1 || cb.fragments[0].Text != "hola" {
		t.Errorf("unexpected fragments %+v", cb.fragments)
	}
	if cb.sessionEnds != 1 {
		t.Errorf("expected 1 session end, got %d", cb.sessionEnds)
	}
	if len(cb.errors) != 1 || cb.errors[0] != cause {
		t.Errorf("unexpected errors %v", cb.errors)
	}
}

func TestAdapter_PushBeforeStart(t *testing.T) {
	a := New()
	if err := a.Push(nil); err != ErrNotStarted {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}

func TestAdapter_PushAfterClose(t *testing.T) {
	a := New()
	a.Start(context.Background(), &testCallback{})
	a.Close()

	if err := a.Push(nil); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := a.Start(context.Background(), &testCallback{}); err != ErrClosed {
		t.Errorf("expected ErrClosed on restart after close, got %v", err)
	}
}

func TestAdapter_CountsSessions(t *testing.T) {
	a := New()
	cb := &testCallback{}
	a.Start(context.Background(), cb)
	a.Start(context.Background(), cb)

	if a.Sessions() != 2 {
		t.Errorf("expected 2 sessions, got %d", a.Sessions())
	}
	if err := a.SendAudio(context.Background(), []byte("ignored")); err != nil {
		t.Errorf("expected SendAudio to be a no-op, got %v", err)
	}
}
