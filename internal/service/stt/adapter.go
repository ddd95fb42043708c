// Package stt defines the interface for speech recognizer adapters.
//
// Adapters hide the platform recognizer (Google streaming, a browser relay, a
// mock) behind two events: new fragments arrived, and the recognizer session
// ended. Scoring and accumulation never see provider types.
package stt

import (
	"context"

	"pronunciation-practice-service/internal/service/transcript"
)

// Callback receives recognizer output.
type Callback interface {
	// OnFragments is called with the fragments new since the previous call.
	OnFragments(fragments []transcript.Fragment)

	// OnSessionEnd is called when the recognizer session ends on its own.
	// The receiver may call Start again to open a fresh session.
	OnSessionEnd()

	// OnError is called when the recognizer fails.
	OnError(err error)
}

// Adapter defines the interface for recognizer providers.
type Adapter interface {
	// Start opens a recognizer session. It may be called again after
	// OnSessionEnd to restart recognition within the same attempt.
	Start(ctx context.Context, cb Callback) error

	// SendAudio sends audio bytes to the recognizer. Adapters fed by
	// client-side recognizers ignore audio.
	SendAudio(ctx context.Context, audio []byte) error

	// Close ends the session and releases resources.
	Close() error
}
