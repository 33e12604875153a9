package processors

import (
	"fmt"
	"sort"

	"meetingMinutes/core"
)

// DefaultSpeaker is assigned when no diarization turn overlaps a segment.
const DefaultSpeaker = "화자1"

const (
	DefaultGapThreshold = 5.0
	DefaultMaxSpeakers  = 4
)

// AttributionSource records which speaker-assignment path produced a result.
type AttributionSource string

const (
	AttributionDiarization AttributionSource = "diarization"
	AttributionGap         AttributionSource = "gap"
)

// FlattenTurns merges the per-speaker turn lists into one timeline ordered by
// start time. The sort is stable so that turns starting at the same instant
// keep the insertion order of their speaker group, which makes overlap
// tie-breaking deterministic across runs.
func FlattenTurns(turns map[string][]core.SpeakerTurn) []core.SpeakerTurn {
	speakers := make([]string, 0, len(turns))
	for sp := range turns {
		speakers = append(speakers, sp)
	}
	sort.Strings(speakers)

	timeline := make([]core.SpeakerTurn, 0)
	for _, sp := range speakers {
		for _, t := range turns[sp] {
			if t.Speaker == "" {
				t.Speaker = sp
			}
			timeline = append(timeline, t)
		}
	}
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Start < timeline[j].Start
	})
	return timeline
}

// ReconcileSpeakers assigns one speaker to every transcript segment by
// maximum temporal overlap with the diarization timeline. Each segment gets
// the turn with strictly greatest positive overlap; on an exact tie the turn
// encountered first in the start-sorted timeline wins. Segments overlapping
// nothing, and every segment when the timeline is empty, get DefaultSpeaker.
// Output length and ordering always match the input.
func ReconcileSpeakers(segments []core.Segment, turns map[string][]core.SpeakerTurn) []core.AttributedSegment {
	timeline := FlattenTurns(turns)

	attributed := make([]core.AttributedSegment, 0, len(segments))
	for _, seg := range segments {
		best := DefaultSpeaker
		maxOverlap := 0.0
		for _, turn := range timeline {
			overlap := overlapDuration(seg.Start, seg.End, turn.Start, turn.End)
			if overlap > maxOverlap {
				maxOverlap = overlap
				best = turn.Speaker
			}
		}
		attributed = append(attributed, core.AttributedSegment{
			Start:   seg.Start,
			End:     seg.End,
			Text:    seg.Text,
			Speaker: best,
		})
	}
	return attributed
}

func overlapDuration(aStart, aEnd, bStart, bEnd float64) float64 {
	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	if end <= start {
		return 0
	}
	return end - start
}

// ClusterBySilence is the diarization fallback: it assigns speaker labels
// from inter-segment silence alone. The speaker index starts at 1 and
// advances whenever the gap to the previous segment exceeds gapThreshold
// (strictly; a gap equal to the threshold keeps the current speaker). Past
// maxSpeakers the index wraps back to 1, so distant unrelated speakers can
// share a label once the cap is hit. That reuse is a known approximation of
// the heuristic, kept as-is rather than growing labels without bound.
func ClusterBySilence(segments []core.Segment, gapThreshold float64, maxSpeakers int) []core.AttributedSegment {
	if gapThreshold <= 0 {
		gapThreshold = DefaultGapThreshold
	}
	if maxSpeakers < 1 {
		maxSpeakers = DefaultMaxSpeakers
	}

	current := 1
	attributed := make([]core.AttributedSegment, 0, len(segments))
	for i, seg := range segments {
		if i > 0 {
			gap := seg.Start - segments[i-1].End
			if gap > gapThreshold {
				current++
				if current > maxSpeakers {
					current = 1
				}
			}
		}
		attributed = append(attributed, core.AttributedSegment{
			Start:   seg.Start,
			End:     seg.End,
			Text:    seg.Text,
			Speaker: speakerLabel(current),
		})
	}
	return attributed
}

func speakerLabel(n int) string {
	return fmt.Sprintf("화자%d", n)
}

// SpeakerCounts tallies segments per speaker label, for degradation-path
// logging and the transcript footer.
func SpeakerCounts(segments []core.AttributedSegment) map[string]int {
	counts := make(map[string]int, 4)
	for _, s := range segments {
		counts[s.Speaker]++
	}
	return counts
}
