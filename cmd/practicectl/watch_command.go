package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"pronunciation-practice-service/internal/events"
	"pronunciation-practice-service/internal/models"
)

func newWatchCommand() *cobra.Command {
	var brokers string
	var topicPartial, topicScored string
	var since time.Duration
	var partials bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow practice events published to Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			topics := []string{topicScored}
			if partials {
				topics = append(topics, topicPartial)
			}

			var mu sync.Mutex
			emit := func(event any) {
				mu.Lock()
				defer mu.Unlock()
				printEvent(cmd.OutOrStdout(), event)
			}

			var wg sync.WaitGroup
			errs := make(chan error, len(topics))
			for _, topic := range topics {
				wg.Add(1)
				go func(topic string) {
					defer wg.Done()
					errs <- events.Consume(ctx, events.ConsumerConfig{
						Brokers: strings.Split(brokers, ","),
						Topic:   topic,
						Since:   since,
					}, emit)
				}(topic)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				if err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&brokers, "brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	cmd.Flags().StringVar(&topicPartial, "topic-partial", "practice.transcript.partial", "Live transcript topic")
	cmd.Flags().StringVar(&topicScored, "topic-scored", "practice.attempt.outcome", "Attempt outcome topic")
	cmd.Flags().DurationVar(&since, "since", time.Hour, "Replay events this far back")
	cmd.Flags().BoolVar(&partials, "partials", false, "Also show live transcripts")

	return cmd
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func printEvent(w io.Writer, event any) {
	switch ev := event.(type) {
	case *models.AttemptScored:
		fmt.Fprintf(w, "SCORED   %-24s %3d%%  %q (restarts=%d)\n",
			ev.AttemptID, ev.AccuracyPercent, truncate(ev.Transcript, 60), ev.Restarts)
	case *models.AttemptDropped:
		fmt.Fprintf(w, "DROPPED  %-24s reason=%s\n", ev.AttemptID, ev.Reason)
	case *models.TranscriptPartial:
		fmt.Fprintf(w, "PARTIAL  %-24s %q\n", ev.AttemptID, truncate(ev.Text, 60))
	}
}
