package processors

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"meetingMinutes/config"
	"meetingMinutes/core"
)

// Step reports one pipeline stage outcome.
type Step struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "completed", "failed", "skipped"
	Error  string `json:"error,omitempty"`
}

// Options tune a single processing run.
type Options struct {
	// ExpectedSpeakers is passed to the diarizer; 0 means auto-detect.
	ExpectedSpeakers int
	// DisableDiarization forces the gap-clustering fallback.
	DisableDiarization bool
	GapThreshold       float64
	MaxSpeakers        int
	// OutputDir receives the transcript and minutes files; empty means the
	// audio file's directory.
	OutputDir string

	Transcriber Transcriber
	Diarizer    Diarizer
	Summarizer  Summarizer
}

// Result is the complete outcome of one meeting run.
type Result struct {
	MeetingID         string                   `json:"meeting_id"`
	Segments          []core.AttributedSegment `json:"segments"`
	Info              core.TranscriptInfo      `json:"info"`
	Analysis          core.MeetingAnalysis     `json:"analysis"`
	AttributionSource AttributionSource        `json:"attribution_source"`
	AnalysisSource    AnalysisSource           `json:"analysis_source"`
	TranscriptPath    string                   `json:"transcript_path,omitempty"`
	MinutesPath       string                   `json:"minutes_path,omitempty"`
	Steps             []Step                   `json:"steps"`
	Warnings          []string                 `json:"warnings,omitempty"`
}

func (r *Result) step(name, status string, err error) {
	s := Step{Name: name, Status: status}
	if err != nil {
		s.Error = err.Error()
	}
	r.Steps = append(r.Steps, s)
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ProcessMeeting runs the full pipeline over one audio file: transcribe,
// validate, correct, attribute speakers, analyze, render. Collaborator
// failures degrade (diarizer -> gap clusterer, summarizer -> fallback
// record) and are recorded in Steps/Warnings; only transcription failure and
// invalid transcriber output abort the run.
func ProcessMeeting(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.GapThreshold <= 0 {
		opts.GapThreshold = cfg.GapThreshold
	}
	if opts.MaxSpeakers < 1 {
		opts.MaxSpeakers = cfg.MaxSpeakers
	}
	if opts.Transcriber == nil {
		opts.Transcriber = PickTranscriber()
	}
	if opts.Summarizer == nil {
		opts.Summarizer = PickSummarizer()
	}

	result := &Result{
		MeetingID: newMeetingID(),
		Steps:     make([]Step, 0, 6),
	}
	logger := log.With().Str("meeting_id", result.MeetingID).Logger()
	logger.Info().Str("audio", audioPath).Msg("processing meeting recording")

	// Transcription.
	segments, info, err := opts.Transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		result.step("transcribe", "failed", err)
		return result, fmt.Errorf("transcribe: %w", err)
	}
	result.Info = info
	result.step("transcribe", "completed", nil)
	logger.Info().Int("segments", len(segments)).Str("language", info.Language).Msg("transcription completed")

	// Timing invariants must hold before any overlap arithmetic.
	if err := core.ValidateSegments(segments); err != nil {
		result.step("validate", "failed", err)
		return result, err
	}
	result.step("validate", "completed", nil)

	// Terminology correction.
	corrected, session := CorrectSegments(segments, DefaultCorrectionRules(), result.MeetingID)
	segments = corrected
	result.step("correct", "completed", nil)
	logger.Info().Int("changed", session.ChangedSegments).Msg("terminology correction completed")

	// Speaker attribution: diarization when available, gap clustering
	// otherwise.
	if opts.DisableDiarization {
		result.Segments = ClusterBySilence(segments, opts.GapThreshold, opts.MaxSpeakers)
		result.AttributionSource = AttributionGap
		result.step("diarize", "skipped", nil)
	} else {
		diarizer := opts.Diarizer
		if diarizer == nil {
			diarizer = PickDiarizer()
		}
		turns, derr := diarizer.Diarize(ctx, audioPath, opts.ExpectedSpeakers)
		if derr != nil {
			if !errors.Is(derr, ErrDiarizationUnavailable) {
				// Unexpected diarizer errors degrade the same way; they
				// must never cross the reconciliation boundary.
				logger.Warn().Err(derr).Msg("diarizer returned unexpected error")
			}
			result.Segments = ClusterBySilence(segments, opts.GapThreshold, opts.MaxSpeakers)
			result.AttributionSource = AttributionGap
			result.step("diarize", "skipped", derr)
			result.warn("diarization unavailable, gap-based clustering used")
			logger.Info().
				Float64("gap_threshold", opts.GapThreshold).
				Int("max_speakers", opts.MaxSpeakers).
				Msg("gap-based speaker clustering applied")
		} else {
			result.Segments = ReconcileSpeakers(segments, turns)
			result.AttributionSource = AttributionDiarization
			result.step("diarize", "completed", nil)
			logger.Info().Int("speakers", len(turns)).Msg("diarization reconciled with transcript")
		}
	}
	for speaker, count := range SpeakerCounts(result.Segments) {
		logger.Debug().Str("speaker", speaker).Int("segments", count).Msg("speaker attribution")
	}

	// Analysis. The summarizer is best-effort: failure, timeout, or an
	// unparseable response all land on the fallback record.
	fullText := core.FullText(result.Segments)
	result.Analysis, result.AnalysisSource = AnalyzeMeeting(ctx, opts.Summarizer, fullText)
	result.step("analyze", "completed", nil)
	if result.AnalysisSource == AnalysisFallback {
		result.warn("summarizer unavailable or unparseable, fallback analysis used")
	}
	logger.Info().Str("source", string(result.AnalysisSource)).Msg("meeting analysis completed")

	// Rendering.
	if err := writeDocuments(audioPath, opts, result); err != nil {
		result.step("render", "failed", err)
		result.warn("failed to write documents: %v", err)
	} else {
		result.step("render", "completed", nil)
	}

	return result, nil
}

func newMeetingID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}

func writeDocuments(audioPath string, opts Options, result *Result) error {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	outDir := opts.OutputDir
	if outDir == "" {
		outDir = filepath.Dir(audioPath)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	meta := MinutesMetadata{
		Title:     base,
		Generated: time.Now(),
		Info:      result.Info,
	}

	transcriptPath := filepath.Join(outDir, base+"_전사결과.txt")
	if err := os.WriteFile(transcriptPath, []byte(RenderTranscript(meta, result.Segments)), 0644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	result.TranscriptPath = transcriptPath

	minutesPath := filepath.Join(outDir, base+"_회의록.txt")
	if err := os.WriteFile(minutesPath, []byte(RenderMinutes(meta, result.Analysis)), 0644); err != nil {
		return fmt.Errorf("write minutes: %w", err)
	}
	result.MinutesPath = minutesPath
	return nil
}
