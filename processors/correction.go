package processors

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"meetingMinutes/core"
)

// CorrectionRule is one find/replace entry. Rules apply in slice order and
// each rule sees the output of the previous one, so chained corrections are
// intentional: a replacement value may itself be rewritten by a later rule.
type CorrectionRule struct {
	Wrong string `json:"wrong"`
	Right string `json:"right"`
}

// defaultCorrectionRules is the static terminology dictionary for Korean
// meeting transcripts: spaced organization names the recognizer splits
// apart, domain terms, and colloquial speech normalization.
var defaultCorrectionRules = []CorrectionRule{
	// organization names
	{"기획 처", "기획처"},
	{"도로 처", "도로처"},
	{"구조물 처", "구조물처"},
	{"AI 데이터부", "AI데이터부"},
	{"AI데이터 부", "AI데이터부"},
	{"미래 전략처", "미래전략처"},
	{"안전 혁신처", "안전혁신처"},

	// technical terms
	{"모바일 오피스", "모바일오피스"},
	{"디지털 관리처", "디지털관리처"},
	{"기술 자문", "기술자문"},
	{"지역 본부", "지역본부"},
	{"학습 데이터", "학습데이터"},
	{"x GP", "xGP"},
	{"X GP", "xGP"},

	// colloquial fixes
	{"그거를", "그것을"},
	{"그래 가지고", "그래서"},
	{"뭐 그런", "그런"},
	{"이제 뭐", "뭐"},
}

// DefaultCorrectionRules returns a copy of the built-in dictionary.
func DefaultCorrectionRules() []CorrectionRule {
	rules := make([]CorrectionRule, len(defaultCorrectionRules))
	copy(rules, defaultCorrectionRules)
	return rules
}

// ApplyCorrections rewrites text through every rule in order. Replacement is
// literal substring matching, no regex. Applying the same dictionary twice
// is a no-op once the output contains no remaining keys.
func ApplyCorrections(text string, rules []CorrectionRule) string {
	corrected := text
	for _, r := range rules {
		corrected = strings.ReplaceAll(corrected, r.Wrong, r.Right)
	}
	return corrected
}

// CorrectionSession records what a correction pass did, for diagnostics.
type CorrectionSession struct {
	MeetingID       string    `json:"meeting_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	RuleCount       int       `json:"rule_count"`
	TotalSegments   int       `json:"total_segments"`
	ChangedSegments int       `json:"changed_segments"`
}

// CorrectSegments returns a new segment slice with the dictionary applied to
// every text. The input is left untouched.
func CorrectSegments(segments []core.Segment, rules []CorrectionRule, meetingID string) ([]core.Segment, *CorrectionSession) {
	session := &CorrectionSession{
		MeetingID:     meetingID,
		StartTime:     time.Now(),
		RuleCount:     len(rules),
		TotalSegments: len(segments),
	}

	corrected := make([]core.Segment, len(segments))
	for i, seg := range segments {
		text := ApplyCorrections(seg.Text, rules)
		if text != seg.Text {
			session.ChangedSegments++
		}
		corrected[i] = core.Segment{Start: seg.Start, End: seg.End, Text: text}
	}
	session.EndTime = time.Now()

	log.Debug().
		Str("meeting_id", meetingID).
		Int("rules", session.RuleCount).
		Int("changed", session.ChangedSegments).
		Int("total", session.TotalSegments).
		Msg("text correction applied")
	return corrected, session
}
