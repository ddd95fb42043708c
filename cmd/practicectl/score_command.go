package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	grpcapi "pronunciation-practice-service/internal/api/grpc"
	"pronunciation-practice-service/internal/service/scoring"
)

func newScoreCommand(serverAddr *string) *cobra.Command {
	var reference string
	var remote bool

	cmd := &cobra.Command{
		Use:   "score <spoken text>",
		Short: "Score a spoken transcript against a reference sentence",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(reference) == "" {
				return errors.New("--reference is required")
			}
			spoken := strings.Join(args, " ")

			if !remote {
				printResult(cmd.OutOrStdout(), scoring.Score(spoken, reference))
				return nil
			}
			return withClient(*serverAddr, func(client *grpcapi.Client) error {
				resp, err := client.Score(cmd.Context(), grpcapi.ScoreRequest{Spoken: spoken, Reference: reference})
				if err != nil {
					return fmt.Errorf("score: %w", err)
				}
				printResult(cmd.OutOrStdout(), resp.Result)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&reference, "reference", "r", "", "Reference sentence (inline markup allowed)")
	cmd.Flags().BoolVar(&remote, "remote", false, "Score on the server instead of locally")

	return cmd
}

// printResult writes the per-word alignment table and the overall score.
func printResult(w io.Writer, result scoring.Result) {
	rows := make([][]string, 0, len(result.Words))
	for _, word := range result.Words {
		matched := "no"
		if word.Matched {
			matched = "yes"
		}
		rows = append(rows, []string{
			strconv.Itoa(word.ReferenceIndex + 1),
			word.Reference,
			word.Spoken,
			strconv.FormatFloat(word.Confidence, 'f', 2, 64),
			matched,
			word.SoundsLike,
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(w, renderTable(
			[]string{"#", "Reference", "Spoken", "Confidence", "Matched", "Sounds like"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
		))
	}

	fmt.Fprintf(w, "Accuracy: %d%%", result.AccuracyPercent)
	if result.Penalty > 0 {
		fmt.Fprintf(w, " (extra words penalty: -%d)", result.Penalty)
	}
	fmt.Fprintln(w)
}
