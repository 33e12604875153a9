package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"meetingMinutes/processors"
	"meetingMinutes/storage"
)

var (
	expectedSpeakers int
	noDiarization    bool
	gapThreshold     float64
	maxSpeakers      int
	outputDir        string
	archive          bool
)

var processCmd = &cobra.Command{
	Use:   "process <audio-file>",
	Short: "Transcribe one recording and generate its minutes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		audioPath := args[0]
		if _, err := os.Stat(audioPath); err != nil {
			return fmt.Errorf("audio file not found: %s", audioPath)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := processors.ProcessMeeting(ctx, audioPath, processors.Options{
			ExpectedSpeakers:   expectedSpeakers,
			DisableDiarization: noDiarization,
			GapThreshold:       gapThreshold,
			MaxSpeakers:        maxSpeakers,
			OutputDir:          outputDir,
		})
		if err != nil {
			return err
		}

		if archive {
			if err := storage.InitStore(); err != nil {
				log.Warn().Err(err).Msg("archive store init failed")
			}
			count := storage.Get().Upsert(result.MeetingID, result.Segments)
			log.Info().Int("count", count).Msg("segments archived")
		}

		fmt.Printf("전사 파일: %s\n", result.TranscriptPath)
		fmt.Printf("회의록 파일: %s\n", result.MinutesPath)
		fmt.Printf("처리된 구간: %d개\n", len(result.Segments))
		fmt.Printf("화자 구분 방식: %s\n", result.AttributionSource)
		fmt.Printf("분석 방식: %s\n", result.AnalysisSource)
		for _, warning := range result.Warnings {
			fmt.Printf("경고: %s\n", warning)
		}
		return nil
	},
}

func init() {
	processCmd.Flags().IntVar(&expectedSpeakers, "speakers", 0, "expected speaker count (0 = auto)")
	processCmd.Flags().BoolVar(&noDiarization, "no-diarization", false, "skip diarization, use gap-based clustering")
	processCmd.Flags().Float64Var(&gapThreshold, "gap-threshold", 0, "silence gap (seconds) that switches speakers in the fallback")
	processCmd.Flags().IntVar(&maxSpeakers, "max-speakers", 0, "speaker label cap in the fallback")
	processCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory for generated documents (default: alongside the audio)")
	processCmd.Flags().BoolVar(&archive, "archive", false, "store attributed segments in the archive for later search")
	rootCmd.AddCommand(processCmd)
}
