package grpcapi

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"pronunciation-practice-service/internal/service/scoring"
	"pronunciation-practice-service/internal/service/transcript"
)

// ScoreRequest is the Score request.
type ScoreRequest struct {
	Spoken    string `json:"spoken"`
	Reference string `json:"reference"`
}

// ScoreResponse is the Score response.
type ScoreResponse struct {
	Result scoring.Result `json:"result"`
}

// PracticeHeader opens a practice stream.
type PracticeHeader struct {
	LearnerID  string `json:"learnerId"`
	ExerciseID string `json:"exerciseId"`
	Reference  string `json:"reference"`
}

// PracticeMessage is one client message on the Practice stream. The first
// message carries Header; later ones carry audio for server-side recognizers,
// or fragments and session ends relayed from a client-side recognizer.
type PracticeMessage struct {
	Header     *PracticeHeader       `json:"header,omitempty"`
	Audio      []byte                `json:"audio,omitempty"`
	Fragments  []transcript.Fragment `json:"fragments,omitempty"`
	SessionEnd bool                  `json:"sessionEnd,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// PracticeOutcome is the response that closes a Practice stream.
type PracticeOutcome struct {
	AttemptID   string         `json:"attemptId"`
	Transcript  string         `json:"transcript"`
	UsedInterim bool           `json:"usedInterim"`
	Restarts    int            `json:"restarts"`
	Result      scoring.Result `json:"result"`
}

// toStruct converts a JSON-tagged value into a google.protobuf.Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return s, nil
}

// fromStruct decodes a google.protobuf.Struct into a JSON-tagged value.
func fromStruct(s *structpb.Struct, v any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
