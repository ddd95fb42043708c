package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	grpcapi "pronunciation-practice-service/internal/api/grpc"
	"pronunciation-practice-service/internal/observability"
	"pronunciation-practice-service/internal/service/transcript"
)

// Script is a recorded practice attempt as a client-side recognizer saw it.
//
//	learnerId: learner-1
//	exerciseId: greetings-01
//	reference: "Good morning!"
//	sessions:
//	  - interims: ["good", "good mor"]
//	    final: "good morning"
type Script struct {
	LearnerID  string          `yaml:"learnerId"`
	ExerciseID string          `yaml:"exerciseId"`
	Reference  string          `yaml:"reference"`
	Sessions   []ScriptSession `yaml:"sessions"`
}

// ScriptSession is one recognizer session. Every session but the last ends
// on its own, forcing a restart.
type ScriptSession struct {
	Interims []string `yaml:"interims"`
	Final    string   `yaml:"final"`
}

func loadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script %s: %w", path, err)
	}
	if s.LearnerID == "" || s.Reference == "" {
		return nil, errors.New("script needs learnerId and reference")
	}
	return &s, nil
}

// messages turns the script into the Practice stream it replays.
func (s *Script) messages() []grpcapi.PracticeMessage {
	msgs := []grpcapi.PracticeMessage{{Header: &grpcapi.PracticeHeader{
		LearnerID:  s.LearnerID,
		ExerciseID: s.ExerciseID,
		Reference:  s.Reference,
	}}}

	for i, session := range s.Sessions {
		seq := 0
		for _, interim := range session.Interims {
			msgs = append(msgs, grpcapi.PracticeMessage{
				Fragments: []transcript.Fragment{{Text: interim, SequenceIndex: seq}},
			})
			seq++
		}
		last := i == len(s.Sessions)-1
		if session.Final != "" {
			msgs = append(msgs, grpcapi.PracticeMessage{
				Fragments:  []transcript.Fragment{{Text: session.Final, IsFinal: true, SequenceIndex: seq}},
				SessionEnd: !last,
			})
		} else if !last {
			msgs = append(msgs, grpcapi.PracticeMessage{SessionEnd: true})
		}
	}
	return msgs
}

func newReplayCommand(serverAddr *string) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "replay <script.yaml>",
		Short: "Replay a recorded recognizer script through the Practice stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := loadScript(args[0])
			if err != nil {
				return err
			}

			return withClient(*serverAddr, func(client *grpcapi.Client) error {
				ctx := observability.WithLearner(cmd.Context(), script.LearnerID, script.ExerciseID)
				stream, err := client.Practice(ctx)
				if err != nil {
					return fmt.Errorf("open practice stream: %w", err)
				}
				for _, msg := range script.messages() {
					if err := stream.Send(msg); err != nil {
						break // the server ended the stream; CloseAndRecv has the status
					}
					if interval > 0 {
						time.Sleep(interval)
					}
				}

				out, err := stream.CloseAndRecv()
				if err != nil {
					return fmt.Errorf("practice attempt: %w", err)
				}
				printOutcome(cmd, out)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 100*time.Millisecond, "Delay between replayed messages")

	return cmd
}

func printOutcome(cmd *cobra.Command, out grpcapi.PracticeOutcome) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Attempt:    %s\n", out.AttemptID)
	fmt.Fprintf(w, "Transcript: %s\n", out.Transcript)
	if out.UsedInterim {
		fmt.Fprintln(w, "            (scored from interim text)")
	}
	fmt.Fprintf(w, "Restarts:   %d\n", out.Restarts)
	printResult(w, out.Result)
}
