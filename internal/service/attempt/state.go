// Package attempt provides attempt ID generation and the recording attempt lifecycle.
package attempt

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a recording attempt.
type State int

const (
	// StateRecording - Attempt is live, recognizer fragments are accepted.
	StateRecording State = iota
	// StateStopped - Recording ended, transcript is frozen and awaiting scoring.
	StateStopped
	// StateScored - Attempt was scored. Terminal.
	StateScored
	// StateDropped - Attempt was abandoned without a score. Terminal.
	StateDropped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateRecording:
		return "RECORDING"
	case StateStopped:
		return "STOPPED"
	case StateScored:
		return "SCORED"
	case StateDropped:
		return "DROPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal (SCORED or DROPPED).
func (s State) IsTerminal() bool {
	return s == StateScored || s == StateDropped
}

// Errors for invalid state transitions.
var (
	ErrAttemptClosed  = errors.New("attempt is closed")
	ErrNotRecording   = errors.New("attempt is not recording")
	ErrAlreadyStopped = errors.New("attempt already stopped")
	ErrNotStopped     = errors.New("attempt must be stopped before scoring")
)

// Lifecycle manages the state machine for a single recording attempt.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	RECORDING → STOPPED → SCORED
//	    │          │
//	    └──────────┴── Drop() ──→ DROPPED
//
// Rules:
//   - RECORDING: fragments accepted, Stop() moves to STOPPED
//   - STOPPED: fragments rejected, Complete() moves to SCORED
//   - SCORED / DROPPED: everything is rejected until Reset()
type Lifecycle struct {
	mu        sync.RWMutex
	attemptId string
	state     State
}

// NewLifecycle creates a new attempt lifecycle in RECORDING state.
func NewLifecycle(attemptId string) *Lifecycle {
	return &Lifecycle{
		attemptId: attemptId,
		state:     StateRecording,
	}
}

// AttemptId returns the attempt ID.
func (l *Lifecycle) AttemptId() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.attemptId
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsRecording returns true while fragments are accepted.
func (l *Lifecycle) IsRecording() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateRecording
}

// IsClosed returns true if the attempt is in a terminal state.
func (l *Lifecycle) IsClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.IsTerminal()
}

// IsDropped returns true if the attempt was dropped.
func (l *Lifecycle) IsDropped() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateDropped
}

// AcceptFragment reports whether recognizer output may still change the transcript.
func (l *Lifecycle) AcceptFragment() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	switch l.state {
	case StateRecording:
		return nil
	case StateStopped:
		return ErrNotRecording
	case StateScored, StateDropped:
		return ErrAttemptClosed
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// Stop transitions RECORDING → STOPPED.
func (l *Lifecycle) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateRecording:
		l.state = StateStopped
		return nil
	case StateStopped:
		return ErrAlreadyStopped
	case StateScored, StateDropped:
		return ErrAttemptClosed
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// Complete transitions STOPPED → SCORED.
func (l *Lifecycle) Complete() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateStopped:
		l.state = StateScored
		return nil
	case StateRecording:
		return ErrNotStopped
	case StateScored, StateDropped:
		return ErrAttemptClosed
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// Drop abandons the attempt without a score.
//
// Scenarios:
//   - recognizer error mid-attempt
//   - restart budget exhausted
//   - attempt ended with no speech at all
//   - client disconnect
//
// Returns true if the attempt was dropped, false if already terminal.
func (l *Lifecycle) Drop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateDropped
	return true
}

// Reset starts a new attempt in RECORDING state.
func (l *Lifecycle) Reset(newAttemptId string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attemptId = newAttemptId
	l.state = StateRecording
}
