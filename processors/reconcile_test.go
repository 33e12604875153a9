package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetingMinutes/core"
)

func segs(pairs ...[2]float64) []core.Segment {
	out := make([]core.Segment, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, core.Segment{Start: p[0], End: p[1], Text: "내용"})
	}
	return out
}

func TestReconcileSpeakersPreservesLengthAndOrder(t *testing.T) {
	segments := segs([2]float64{0, 5}, [2]float64{6, 10}, [2]float64{12, 18})
	turns := map[string][]core.SpeakerTurn{
		"화자1": {{Start: 0, End: 7}},
		"화자2": {{Start: 7, End: 20}},
	}

	attributed := ReconcileSpeakers(segments, turns)
	require.Len(t, attributed, len(segments))
	for i := range segments {
		assert.Equal(t, segments[i].Start, attributed[i].Start)
		assert.Equal(t, segments[i].End, attributed[i].End)
		assert.Equal(t, segments[i].Text, attributed[i].Text)
	}
}

func TestReconcileSpeakersEmptyTurnsUsesDefault(t *testing.T) {
	segments := segs([2]float64{0, 5}, [2]float64{6, 10})

	for _, turns := range []map[string][]core.SpeakerTurn{nil, {}} {
		attributed := ReconcileSpeakers(segments, turns)
		require.Len(t, attributed, 2)
		for _, seg := range attributed {
			assert.Equal(t, DefaultSpeaker, seg.Speaker)
		}
	}
}

func TestReconcileSpeakersContainment(t *testing.T) {
	segments := segs([2]float64{2, 4})
	turns := map[string][]core.SpeakerTurn{
		"화자1": {{Start: 10, End: 20}},
		"화자2": {{Start: 1, End: 5}},
	}

	attributed := ReconcileSpeakers(segments, turns)
	require.Len(t, attributed, 1)
	assert.Equal(t, "화자2", attributed[0].Speaker)
}

func TestReconcileSpeakersNoPositiveOverlapUsesDefault(t *testing.T) {
	// Turn ends exactly where the segment starts: zero overlap.
	segments := segs([2]float64{5, 10})
	turns := map[string][]core.SpeakerTurn{
		"화자3": {{Start: 0, End: 5}},
	}

	attributed := ReconcileSpeakers(segments, turns)
	require.Len(t, attributed, 1)
	assert.Equal(t, DefaultSpeaker, attributed[0].Speaker)
}

func TestReconcileSpeakersTieGoesToEarlierSortedTurn(t *testing.T) {
	// Both turns overlap the segment for exactly 2s; the one starting
	// earlier in the flattened timeline must win, run after run.
	segments := segs([2]float64{4, 8})
	turns := map[string][]core.SpeakerTurn{
		"화자2": {{Start: 2, End: 6}},
		"화자1": {{Start: 6, End: 10}},
	}

	for i := 0; i < 50; i++ {
		attributed := ReconcileSpeakers(segments, turns)
		require.Len(t, attributed, 1)
		assert.Equal(t, "화자2", attributed[0].Speaker)
	}
}

func TestReconcileSpeakersEqualStartTieKeepsGroupOrder(t *testing.T) {
	// Identical intervals from two speakers: the stable sort keeps the
	// sorted-speaker insertion order, so 화자1 is encountered first.
	segments := segs([2]float64{0, 4})
	turns := map[string][]core.SpeakerTurn{
		"화자2": {{Start: 0, End: 4}},
		"화자1": {{Start: 0, End: 4}},
	}

	attributed := ReconcileSpeakers(segments, turns)
	require.Len(t, attributed, 1)
	assert.Equal(t, "화자1", attributed[0].Speaker)
}

func TestFlattenTurnsSortedByStart(t *testing.T) {
	turns := map[string][]core.SpeakerTurn{
		"화자1": {{Start: 8, End: 9}, {Start: 1, End: 2}},
		"화자2": {{Start: 3, End: 4}},
	}

	timeline := FlattenTurns(turns)
	require.Len(t, timeline, 3)
	assert.Equal(t, 1.0, timeline[0].Start)
	assert.Equal(t, 3.0, timeline[1].Start)
	assert.Equal(t, 8.0, timeline[2].Start)
	for _, turn := range timeline {
		assert.NotEmpty(t, turn.Speaker)
	}
}

func TestClusterBySilenceGapExactlyAtThresholdKeepsSpeaker(t *testing.T) {
	// 5.0s gap with a 5.0 threshold: strictly-greater comparison, no switch.
	segments := segs([2]float64{0, 5}, [2]float64{10, 12})

	attributed := ClusterBySilence(segments, 5.0, 4)
	require.Len(t, attributed, 2)
	assert.Equal(t, "화자1", attributed[0].Speaker)
	assert.Equal(t, "화자1", attributed[1].Speaker)
}

func TestClusterBySilenceGapAboveThresholdSwitches(t *testing.T) {
	segments := segs([2]float64{0, 5}, [2]float64{10.1, 12})

	attributed := ClusterBySilence(segments, 5.0, 4)
	require.Len(t, attributed, 2)
	assert.Equal(t, "화자1", attributed[0].Speaker)
	assert.Equal(t, "화자2", attributed[1].Speaker)
}

func TestClusterBySilenceWrapsPastMaxSpeakers(t *testing.T) {
	// Five clusters separated by 10s gaps with a cap of 4: the fifth
	// cluster reuses 화자1.
	segments := segs(
		[2]float64{0, 1},
		[2]float64{20, 21},
		[2]float64{40, 41},
		[2]float64{60, 61},
		[2]float64{80, 81},
	)

	attributed := ClusterBySilence(segments, 5.0, 4)
	require.Len(t, attributed, 5)
	labels := make([]string, 0, 5)
	for _, seg := range attributed {
		labels = append(labels, seg.Speaker)
	}
	assert.Equal(t, []string{"화자1", "화자2", "화자3", "화자4", "화자1"}, labels)
}

func TestClusterBySilenceScenario(t *testing.T) {
	// 1s gap keeps the speaker, 10s gap switches.
	segments := segs([2]float64{0, 5}, [2]float64{6, 10}, [2]float64{20, 25})

	attributed := ClusterBySilence(segments, 5.0, 4)
	require.Len(t, attributed, 3)
	assert.Equal(t, "화자1", attributed[0].Speaker)
	assert.Equal(t, "화자1", attributed[1].Speaker)
	assert.Equal(t, "화자2", attributed[2].Speaker)
}

func TestClusterBySilenceEmptyAndPartialInput(t *testing.T) {
	assert.Empty(t, ClusterBySilence(nil, 5.0, 4))

	// A single segment, as left over by an interrupted transcription run.
	attributed := ClusterBySilence(segs([2]float64{0, 3}), 5.0, 4)
	require.Len(t, attributed, 1)
	assert.Equal(t, "화자1", attributed[0].Speaker)
}

func TestSpeakerCounts(t *testing.T) {
	attributed := []core.AttributedSegment{
		{Speaker: "화자1"}, {Speaker: "화자2"}, {Speaker: "화자1"},
	}
	counts := SpeakerCounts(attributed)
	assert.Equal(t, 2, counts["화자1"])
	assert.Equal(t, 1, counts["화자2"])
}
