// Package transcript accumulates incremental speech recognition output into a
// single stable transcript per recording attempt.
//
// Recognizers emit interim guesses that are later replaced, and final
// fragments that are committed. Mobile recognizers also end their sessions
// early and have to be restarted. The Accumulator keeps committed text
// append-only for the lifetime of an attempt so that a restarted recognizer
// never loses what was already finalized.
package transcript

import (
	"strings"
	"sync"
)

// Fragment is one unit of incremental recognition output.
type Fragment struct {
	Text          string `json:"text"`
	IsFinal       bool   `json:"isFinal"`
	SequenceIndex int    `json:"sequenceIndex"`
}

// Accumulator holds the transcript state for one recording attempt.
// Safe for concurrent use, but attempts must not overlap: call Reset once at
// the start of each attempt and never in the middle of one.
type Accumulator struct {
	mu        sync.RWMutex
	finalized string
	interim   string
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// OnFragment consumes the fragments that are new since the previous call.
// Final fragments are appended to the committed text; an interim fragment
// replaces the interim text for this call only.
func (a *Accumulator) OnFragment(fragments []Fragment) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.interim = ""
	for _, f := range fragments {
		if f.IsFinal {
			a.finalized = joinSpace(a.finalized, f.Text)
			continue
		}
		a.interim = f.Text
	}
}

// DisplayText returns the committed text followed by the current interim
// text, for live display while the learner is speaking.
func (a *Accumulator) DisplayText() string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.interim == "" {
		return a.finalized
	}
	return joinSpace(a.finalized, a.interim)
}

// FinalText returns the trimmed committed text. It never includes interim
// output, so it is empty when nothing was finalized.
func (a *Accumulator) FinalText() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return strings.TrimSpace(a.finalized)
}

// Reset clears all state for a new recording attempt.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalized = ""
	a.interim = ""
}

func joinSpace(head, tail string) string {
	if head == "" {
		return tail
	}
	return head + " " + tail
}
