package core

import (
	"errors"
	"fmt"
)

// Segment is one timed piece of transcribed speech, as produced by the
// transcriber. Segments are ordered by start time and treated as read-only:
// every stage returns a new slice instead of mutating its input.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// SpeakerTurn is one speaker-labeled time interval from the diarizer.
// Turns of the same speaker do not overlap; turns of different speakers may.
type SpeakerTurn struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// AttributedSegment is a Segment with exactly one assigned speaker label.
type AttributedSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker"`
}

// TranscriptInfo carries transcriber metadata about the whole file.
type TranscriptInfo struct {
	Language            string  `json:"language"`
	LanguageProbability float64 `json:"language_probability"`
	Duration            float64 `json:"duration"`
}

// ContentItem is one numbered discussion item of the minutes with its
// bullet-point details.
type ContentItem struct {
	Title   string   `json:"title"`
	Details []string `json:"details"`
}

// MeetingAnalysis is the structured result parsed from the summarizer
// response. All fields are always non-nil; consumers never see missing
// sections.
type MeetingAnalysis struct {
	Subject      string        `json:"subject"`
	MainContents []ContentItem `json:"main_contents"`
	Issues       []string      `json:"issues"`
	Decisions    []string      `json:"decisions"`
}

// ErrInvalidSegment marks a transcriber segment that violates the timing
// invariant (start >= 0, end > start).
var ErrInvalidSegment = errors.New("invalid segment")

// ValidateSegments rejects segments whose timing would skew overlap
// reconciliation. Upstream transcribers never produce these in practice, so
// a violation is a caller bug and is surfaced instead of silently yielding
// zero or negative overlaps.
func ValidateSegments(segments []Segment) error {
	for i, s := range segments {
		if s.Start < 0 {
			return fmt.Errorf("%w: segment %d has negative start %.3f", ErrInvalidSegment, i, s.Start)
		}
		if s.End <= s.Start {
			return fmt.Errorf("%w: segment %d has end %.3f <= start %.3f", ErrInvalidSegment, i, s.End, s.Start)
		}
	}
	return nil
}

// Hit is one archive search result.
type Hit struct {
	Score   float64 `json:"score"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker"`
}

// FullText joins attributed segment texts into the single string handed to
// the summarizer.
func FullText(segments []AttributedSegment) string {
	total := 0
	for _, s := range segments {
		total += len(s.Text) + 1
	}
	buf := make([]byte, 0, total)
	for i, s := range segments {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, s.Text...)
	}
	return string(buf)
}
