// Command practicectl scores transcripts and drives practice attempts against
// a running pronunciation practice service.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcapi "pronunciation-practice-service/internal/api/grpc"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var serverAddr string

	rootCmd := &cobra.Command{
		Use:           "practicectl",
		Short:         "Pronunciation practice CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "localhost:50051", "gRPC server address")

	rootCmd.AddCommand(newScoreCommand(&serverAddr))
	rootCmd.AddCommand(newReplayCommand(&serverAddr))
	rootCmd.AddCommand(newAudioCommand(&serverAddr))
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}

// withClient dials the service and runs fn with a client.
func withClient(addr string, fn func(*grpcapi.Client) error) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Close()
	return fn(grpcapi.NewClient(conn))
}
