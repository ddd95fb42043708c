package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	grpcapi "pronunciation-practice-service/internal/api/grpc"
	"pronunciation-practice-service/internal/observability"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// At 8kHz 16-bit mono = 16000 bytes/second, so 100ms chunks are 1600 bytes.
const (
	chunkSize     = 1600
	chunkInterval = 100 * time.Millisecond
)

type wavFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// readWAVHeader reads and checks a canonical 44-byte PCM WAV header.
func readWAVHeader(r io.Reader) (wavFormat, error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return wavFormat{}, fmt.Errorf("read WAV header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return wavFormat{}, errors.New("not a valid WAV file")
	}

	f := wavFormat{
		AudioFormat:   binary.LittleEndian.Uint16(header[20:22]),
		Channels:      binary.LittleEndian.Uint16(header[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(header[24:28]),
		BitsPerSample: binary.LittleEndian.Uint16(header[34:36]),
	}
	if f.AudioFormat != 1 {
		return f, errors.New("only PCM format supported")
	}
	return f, nil
}

func newAudioCommand(serverAddr *string) *cobra.Command {
	var learnerID, exerciseID, reference string
	var realtime bool

	cmd := &cobra.Command{
		Use:   "audio <file.wav>",
		Short: "Stream a WAV recording (8kHz 16-bit mono) as a practice attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reference == "" {
				return errors.New("--reference is required")
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open audio file: %w", err)
			}
			defer f.Close()

			format, err := readWAVHeader(f)
			if err != nil {
				return err
			}
			if format.SampleRate != 8000 {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: sample rate is %d Hz, expected 8000 Hz\n", format.SampleRate)
			}

			return withClient(*serverAddr, func(client *grpcapi.Client) error {
				stream, err := client.Practice(observability.WithLearner(cmd.Context(), learnerID, exerciseID))
				if err != nil {
					return fmt.Errorf("open practice stream: %w", err)
				}
				if err := stream.Send(grpcapi.PracticeMessage{Header: &grpcapi.PracticeHeader{
					LearnerID:  learnerID,
					ExerciseID: exerciseID,
					Reference:  reference,
				}}); err != nil {
					return fmt.Errorf("send header: %w", err)
				}

				chunk := make([]byte, chunkSize)
				var total int64
				for {
					n, err := f.Read(chunk)
					if err == io.EOF {
						break
					}
					if err != nil {
						return fmt.Errorf("read audio: %w", err)
					}
					total += int64(n)
					if err := stream.Send(grpcapi.PracticeMessage{Audio: append([]byte(nil), chunk[:n]...)}); err != nil {
						break
					}
					if realtime {
						time.Sleep(chunkInterval)
					}
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Streamed %d bytes, waiting for score...\n", total)

				out, err := stream.CloseAndRecv()
				if err != nil {
					return fmt.Errorf("practice attempt: %w", err)
				}
				printOutcome(cmd, out)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&learnerID, "learner", "learner-cli", "Learner ID")
	cmd.Flags().StringVar(&exerciseID, "exercise", "", "Exercise ID")
	cmd.Flags().StringVarP(&reference, "reference", "r", "", "Reference sentence")
	cmd.Flags().BoolVar(&realtime, "realtime", true, "Pace chunks like a live microphone")

	return cmd
}
