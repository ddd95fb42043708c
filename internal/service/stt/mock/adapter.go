// Package mock provides a scripted recognizer adapter for testing without cloud credentials.
// It simulates the behavior of mobile recognizers: each recognizer session emits
// progressive interim fragments, commits one final fragment, and then ends on its
// own, so the caller has to restart recognition to hear the rest of the attempt.
package mock

import (
	"context"
	"sync"
	"time"

	"pronunciation-practice-service/internal/service/stt"
	"pronunciation-practice-service/internal/service/transcript"
)

// SimulatedSession is the output of one recognizer session.
type SimulatedSession struct {
	Interims []string // Progressive interim guesses
	Final    string   // Committed text for this session
}

// DefaultScripts provides sample attempts, each split over several recognizer sessions.
var DefaultScripts = [][]SimulatedSession{
	{
		{Interims: []string{"the", "the cat"}, Final: "the cat"},
		{Interims: []string{"sat", "sat on"}, Final: "sat on the mat"},
	},
	{
		{Interims: []string{"good", "good morning"}, Final: "good morning"},
	},
	{
		{Interims: []string{"I would", "I would like"}, Final: "I would like"},
		{Interims: []string{"a cup"}, Final: "a cup of"},
		{Interims: []string{"tea"}, Final: "tea please"},
	},
	{
		{Interims: []string{"where is", "where is the"}, Final: "where is the station"},
	},
}

// Adapter implements stt.Adapter with scripted responses.
// One step of the script is played per audio frame received:
// - interim fragments, one per frame
// - the session's final fragment
// - the end of the session (every session but the last ends early)
type Adapter struct {
	mu       sync.Mutex
	cb       stt.Callback
	sessions []SimulatedSession
	delay    time.Duration
	session  int  // current recognizer session
	step     int  // next step within the session
	seq      int  // fragment index within the session
	started  bool
	closed   bool
	starts   int // number of Start calls, restarts included
	pending  []*scheduled
	inflight sync.WaitGroup // delayed callbacks past the pending queue
}

// drainTimeout bounds how long Close waits for delayed callbacks already
// being delivered. A callback that itself closes the adapter cannot be waited on.
const drainTimeout = 500 * time.Millisecond

// scheduled is a callback waiting out the processing delay.
type scheduled struct {
	cb    stt.Callback
	frags []transcript.Fragment // nil for a session end
}

func (s *scheduled) deliver() {
	if s.frags == nil {
		s.cb.OnSessionEnd()
		return
	}
	s.cb.OnFragments(s.frags)
}

// scriptCounter tracks which default script to use next.
var (
	scriptCounter int
	counterMu     sync.Mutex
)

// New creates a mock adapter playing the next default script with a small
// processing delay, like a remote recognizer.
func New() *Adapter {
	counterMu.Lock()
	idx := scriptCounter % len(DefaultScripts)
	scriptCounter++
	counterMu.Unlock()

	return NewWithScript(DefaultScripts[idx], 50*time.Millisecond)
}

// NewWithScript creates a mock adapter for the given sessions. With a zero
// delay, callbacks run synchronously inside SendAudio and Close.
func NewWithScript(sessions []SimulatedSession, delay time.Duration) *Adapter {
	return &Adapter{
		sessions: sessions,
		delay:    delay,
	}
}

// Start opens a recognizer session. A second Start moves on to the next
// scripted session, the way a restarted recognizer would.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.cb = cb
	a.starts++
	if a.started {
		a.session++
		a.step = 0
		a.seq = 0
	}
	a.started = true
	return nil
}

// Starts returns how many times Start was called.
func (a *Adapter) Starts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.starts
}

// SendAudio plays the next scripted step.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	if a.closed || a.cb == nil || a.session >= len(a.sessions) {
		a.mu.Unlock()
		return nil
	}

	s := a.sessions[a.session]
	var next *scheduled

	switch {
	case a.step < len(s.Interims):
		next = &scheduled{cb: a.cb, frags: []transcript.Fragment{{Text: s.Interims[a.step], SequenceIndex: a.seq}}}
		a.seq++
	case a.step == len(s.Interims):
		next = &scheduled{cb: a.cb, frags: []transcript.Fragment{{Text: s.Final, IsFinal: true, SequenceIndex: a.seq}}}
		a.seq++
	case a.step == len(s.Interims)+1 && a.session < len(a.sessions)-1:
		next = &scheduled{cb: a.cb}
	}
	a.step++
	if next != nil && a.delay > 0 {
		a.pending = append(a.pending, next)
	}
	a.mu.Unlock()

	if next != nil {
		a.dispatch(next)
	}
	return nil
}

// Close ends the mock session. Fragments still waiting out the processing
// delay are delivered before Close returns, and a session that already
// produced interim output but no final commits its final now, as
// recognizers do when stopped. Pending session ends are discarded.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true

	var flush []*scheduled
	for _, p := range a.pending {
		if p.frags != nil {
			flush = append(flush, p)
		}
	}
	a.pending = nil

	if a.cb != nil && a.session < len(a.sessions) {
		s := a.sessions[a.session]
		if a.step > 0 && a.step <= len(s.Interims) {
			flush = append(flush, &scheduled{
				cb:    a.cb,
				frags: []transcript.Fragment{{Text: s.Final, IsFinal: true, SequenceIndex: a.seq}},
			})
		}
	}
	a.mu.Unlock()

	// Flush synchronously so the final lands before the caller reads the transcript.
	for _, p := range flush {
		p.deliver()
	}
	a.waitInflight(drainTimeout)
	return nil
}

func (a *Adapter) dispatch(next *scheduled) {
	if a.delay <= 0 {
		next.deliver()
		return
	}
	go func() {
		time.Sleep(a.delay)
		if a.take(next) {
			next.deliver()
			a.inflight.Done()
		}
	}()
}

// take removes next from the pending queue. It reports false when Close
// already flushed or discarded it.
func (a *Adapter) take(next *scheduled) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, p := range a.pending {
		if p == next {
			a.pending = append(a.pending[:i], a.pending[i+1:]...)
			a.inflight.Add(1)
			return true
		}
	}
	return false
}

func (a *Adapter) waitInflight(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
