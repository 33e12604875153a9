package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSegments(t *testing.T) {
	valid := []Segment{
		{Start: 0, End: 5, Text: "첫 구간"},
		{Start: 5, End: 10.5, Text: "둘째 구간"},
	}
	assert.NoError(t, ValidateSegments(valid))
	assert.NoError(t, ValidateSegments(nil))

	assert.ErrorIs(t, ValidateSegments([]Segment{{Start: -0.1, End: 2}}), ErrInvalidSegment)
	assert.ErrorIs(t, ValidateSegments([]Segment{{Start: 3, End: 3}}), ErrInvalidSegment)
	assert.ErrorIs(t, ValidateSegments([]Segment{{Start: 4, End: 2}}), ErrInvalidSegment)

	// The first offender is reported with its index.
	err := ValidateSegments([]Segment{{Start: 0, End: 1}, {Start: 2, End: 2}})
	assert.ErrorContains(t, err, "segment 1")
}

func TestFullText(t *testing.T) {
	segments := []AttributedSegment{
		{Text: "안건을 확인합니다", Speaker: "화자1"},
		{Text: "이의 없습니다", Speaker: "화자2"},
	}
	assert.Equal(t, "안건을 확인합니다 이의 없습니다", FullText(segments))
	assert.Equal(t, "", FullText(nil))
	assert.Equal(t, "하나", FullText([]AttributedSegment{{Text: "하나"}}))
}
