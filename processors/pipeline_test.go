package processors

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetingMinutes/core"
)

type stubTranscriber struct {
	segments []core.Segment
	info     core.TranscriptInfo
	err      error
}

func (s stubTranscriber) Transcribe(ctx context.Context, audioPath string) ([]core.Segment, core.TranscriptInfo, error) {
	return s.segments, s.info, s.err
}

func pipelineOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		OutputDir: t.TempDir(),
		Transcriber: stubTranscriber{
			segments: []core.Segment{
				{Start: 0, End: 5, Text: "그거를 먼저 정리합시다"},
				{Start: 6, End: 10, Text: "네 알겠습니다"},
				{Start: 20, End: 25, Text: "다음 안건입니다"},
			},
			info: core.TranscriptInfo{Language: "ko", LanguageProbability: 0.97, Duration: 25},
		},
		Diarizer:   MockDiarizer{},
		Summarizer: MockSummarizer{},
	}
}

func stepStatus(t *testing.T, steps []Step, name string) string {
	t.Helper()
	for _, s := range steps {
		if s.Name == name {
			return s.Status
		}
	}
	t.Fatalf("step %q not recorded", name)
	return ""
}

func TestProcessMeetingWithDiarization(t *testing.T) {
	opts := pipelineOptions(t)
	opts.Diarizer = MockDiarizer{Turns: map[string][]core.SpeakerTurn{
		"화자1": {{Start: 0, End: 12}},
		"화자2": {{Start: 18, End: 30}},
	}}

	result, err := ProcessMeeting(context.Background(), filepath.Join(t.TempDir(), "주간회의.wav"), opts)
	require.NoError(t, err)

	assert.Len(t, result.MeetingID, 32)
	assert.Equal(t, AttributionDiarization, result.AttributionSource)
	require.Len(t, result.Segments, 3)
	assert.Equal(t, "화자1", result.Segments[0].Speaker)
	assert.Equal(t, "화자1", result.Segments[1].Speaker)
	assert.Equal(t, "화자2", result.Segments[2].Speaker)

	// Terminology correction ran before attribution.
	assert.Equal(t, "그것을 먼저 정리합시다", result.Segments[0].Text)

	assert.Equal(t, AnalysisLLM, result.AnalysisSource)
	assert.NotEmpty(t, result.Analysis.Subject)
	assert.Empty(t, result.Warnings)

	for _, name := range []string{"transcribe", "validate", "correct", "diarize", "analyze", "render"} {
		assert.Equal(t, "completed", stepStatus(t, result.Steps, name), name)
	}

	require.NotEmpty(t, result.TranscriptPath)
	require.NotEmpty(t, result.MinutesPath)
	assert.Equal(t, "주간회의_전사결과.txt", filepath.Base(result.TranscriptPath))
	assert.Equal(t, "주간회의_회의록.txt", filepath.Base(result.MinutesPath))

	transcript, err := os.ReadFile(result.TranscriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(transcript), "화자2 00:20")

	minutes, err := os.ReadFile(result.MinutesPath)
	require.NoError(t, err)
	assert.Contains(t, string(minutes), "회의록")
}

func TestProcessMeetingDiarizerUnavailableFallsBackToClustering(t *testing.T) {
	opts := pipelineOptions(t)

	result, err := ProcessMeeting(context.Background(), "meeting.wav", opts)
	require.NoError(t, err)

	assert.Equal(t, AttributionGap, result.AttributionSource)
	assert.Equal(t, "skipped", stepStatus(t, result.Steps, "diarize"))
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "diarization unavailable")

	// 1s gap keeps the speaker, 10s gap switches.
	require.Len(t, result.Segments, 3)
	assert.Equal(t, "화자1", result.Segments[0].Speaker)
	assert.Equal(t, "화자1", result.Segments[1].Speaker)
	assert.Equal(t, "화자2", result.Segments[2].Speaker)
}

func TestProcessMeetingDisableDiarization(t *testing.T) {
	opts := pipelineOptions(t)
	opts.DisableDiarization = true
	opts.Diarizer = nil

	result, err := ProcessMeeting(context.Background(), "meeting.wav", opts)
	require.NoError(t, err)

	assert.Equal(t, AttributionGap, result.AttributionSource)
	assert.Equal(t, "skipped", stepStatus(t, result.Steps, "diarize"))
	assert.Empty(t, result.Warnings)
}

func TestProcessMeetingGapOptionsOverrideClustering(t *testing.T) {
	opts := pipelineOptions(t)
	opts.DisableDiarization = true
	opts.GapThreshold = 0.5
	opts.MaxSpeakers = 2

	result, err := ProcessMeeting(context.Background(), "meeting.wav", opts)
	require.NoError(t, err)

	// Both gaps exceed 0.5s and the labels wrap past the cap of 2.
	require.Len(t, result.Segments, 3)
	assert.Equal(t, "화자1", result.Segments[0].Speaker)
	assert.Equal(t, "화자2", result.Segments[1].Speaker)
	assert.Equal(t, "화자1", result.Segments[2].Speaker)
}

func TestProcessMeetingTranscriberFailureAborts(t *testing.T) {
	opts := pipelineOptions(t)
	opts.Transcriber = stubTranscriber{err: errors.New("no audio stream")}

	result, err := ProcessMeeting(context.Background(), "meeting.wav", opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no audio stream")
	require.NotNil(t, result)
	assert.Equal(t, "failed", stepStatus(t, result.Steps, "transcribe"))
	assert.Empty(t, result.Segments)
}

func TestProcessMeetingRejectsInvalidSegments(t *testing.T) {
	opts := pipelineOptions(t)
	opts.Transcriber = stubTranscriber{
		segments: []core.Segment{{Start: 5, End: 5, Text: "길이가 없는 구간"}},
		info:     core.TranscriptInfo{Language: "ko", Duration: 5},
	}

	result, err := ProcessMeeting(context.Background(), "meeting.wav", opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidSegment)
	assert.Equal(t, "failed", stepStatus(t, result.Steps, "validate"))
}

func TestProcessMeetingSummarizerFailureUsesFallback(t *testing.T) {
	opts := pipelineOptions(t)
	opts.Summarizer = failingSummarizer{err: errors.New("model not loaded")}

	result, err := ProcessMeeting(context.Background(), "meeting.wav", opts)
	require.NoError(t, err)

	assert.Equal(t, AnalysisFallback, result.AnalysisSource)
	assert.Equal(t, "completed", stepStatus(t, result.Steps, "analyze"))
	assert.NotEmpty(t, result.Analysis.Subject)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[len(result.Warnings)-1], "fallback analysis")
}

func TestNewMeetingIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := newMeetingID()
		assert.Len(t, id, 32)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
