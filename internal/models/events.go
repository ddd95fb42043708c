// Package models defines the data structures for practice events.
package models

const (
	EventTranscriptPartial = "practice.transcript.partial"
	EventAttemptScored     = "practice.attempt.scored"
	EventAttemptDropped    = "practice.attempt.dropped"
)

// TranscriptPartial carries the live display text of a recording attempt.
type TranscriptPartial struct {
	EventType  string `json:"eventType"`
	LearnerID  string `json:"learnerId"`
	ExerciseID string `json:"exerciseId"`
	AttemptID  string `json:"attemptId"`
	Timestamp  int64  `json:"timestamp"`
	Text       string `json:"text"`
}

// WordResult is the alignment outcome for one reference word.
type WordResult struct {
	Reference  string  `json:"reference"`
	Spoken     string  `json:"spoken,omitempty"`
	Confidence float64 `json:"confidence"`
	Matched    bool    `json:"matched"`
	SoundsLike string  `json:"soundsLike,omitempty"`
}

// AttemptScored is emitted once per scored attempt.
type AttemptScored struct {
	EventType       string       `json:"eventType"`
	LearnerID       string       `json:"learnerId"`
	ExerciseID      string       `json:"exerciseId"`
	AttemptID       string       `json:"attemptId"`
	Timestamp       int64        `json:"timestamp"`
	Transcript      string       `json:"transcript"`
	Reference       string       `json:"reference"`
	AccuracyPercent int          `json:"accuracyPercent"`
	Penalty         int          `json:"penalty"`
	UsedInterim     bool         `json:"usedInterim"`
	Restarts        int          `json:"restarts"`
	Words           []WordResult `json:"words"`
}

// AttemptDropped is emitted when an attempt ends without a score.
type AttemptDropped struct {
	EventType  string `json:"eventType"`
	LearnerID  string `json:"learnerId"`
	ExerciseID string `json:"exerciseId"`
	AttemptID  string `json:"attemptId"`
	Timestamp  int64  `json:"timestamp"`
	Reason     string `json:"reason"`
}
