// Package relay provides an adapter for recognizers that run on the client,
// such as the browser Web Speech API. The client forwards its recognition
// results, and reports when its recognizer session ends, through Push and
// EndSession.
package relay

import (
	"context"
	"errors"
	"sync"

	"pronunciation-practice-service/internal/service/stt"
	"pronunciation-practice-service/internal/service/transcript"
)

var (
	ErrNotStarted = errors.New("relay: adapter not started")
	ErrClosed     = errors.New("relay: adapter closed")
)

// Adapter implements stt.Adapter by relaying client-side recognition output.
type Adapter struct {
	mu       sync.Mutex
	cb       stt.Callback
	sessions int
	closed   bool
}

func New() *Adapter {
	return &Adapter{}
}

// Start registers the callback. Repeated calls mark a new client recognizer session.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.cb = cb
	a.sessions++
	return nil
}

// SendAudio is a no-op: recognition already happened on the client.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	return nil
}

// Push forwards client fragments to the callback.
func (a *Adapter) Push(fragments []transcript.Fragment) error {
	cb, err := a.callback()
	if err != nil {
		return err
	}
	cb.OnFragments(fragments)
	return nil
}

// EndSession reports that the client's recognizer session ended.
func (a *Adapter) EndSession() error {
	cb, err := a.callback()
	if err != nil {
		return err
	}
	cb.OnSessionEnd()
	return nil
}

// Fail reports a client-side recognizer failure.
func (a *Adapter) Fail(cause error) error {
	cb, err := a.callback()
	if err != nil {
		return err
	}
	cb.OnError(cause)
	return nil
}

// Sessions returns how many recognizer sessions were opened.
func (a *Adapter) Sessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions
}

// Close ends the relay. Later pushes fail with ErrClosed.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *Adapter) callback() (stt.Callback, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	if a.cb == nil {
		return nil, ErrNotStarted
	}
	return a.cb, nil
}
