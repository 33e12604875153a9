package processors

import (
	"fmt"
	"strings"
	"time"

	"meetingMinutes/core"
)

// MinutesMetadata is the per-meeting header information for the rendered
// documents.
type MinutesMetadata struct {
	Title     string
	Location  string
	Author    string
	Generated time.Time
	Info      core.TranscriptInfo
}

// RenderTranscript formats the speaker-attributed transcript: a short header
// with date, duration and detected language, then one speaker/time-stamped
// block per segment.
func RenderTranscript(meta MinutesMetadata, segments []core.AttributedSegment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s - 전사 결과\n", meta.Title)
	fmt.Fprintf(&b, "%s ・ %s\n", meta.Generated.Format("2006.01.02 15:04"), formatDuration(meta.Info.Duration))
	fmt.Fprintf(&b, "언어: %s (확률: %.1f%%)\n\n", meta.Info.Language, meta.Info.LanguageProbability*100)

	for _, seg := range segments {
		fmt.Fprintf(&b, "%s %s\n", seg.Speaker, formatClock(seg.Start))
		fmt.Fprintf(&b, "%s\n\n", strings.TrimSpace(seg.Text))
	}

	fmt.Fprintf(&b, "총 %d개 구간 처리 완료\n", len(segments))
	return b.String()
}

const boxWidth = 57

// RenderMinutes formats the structured analysis as the boxed minutes
// document: header table, numbered discussion items with details, open
// issues, decisions, and the attachment reference.
func RenderMinutes(meta MinutesMetadata, analysis core.MeetingAnalysis) string {
	var b strings.Builder

	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString(strings.Repeat(" ", 25) + "회의록" + strings.Repeat(" ", 25) + "\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	author := meta.Author
	if author == "" {
		author = "AI 음성인식 시스템"
	}
	location := meta.Location
	if location == "" {
		location = "회의실"
	}

	boxTop(&b)
	boxLine(&b, fmt.Sprintf("일시    : %s", meta.Generated.Format("2006.01.02, 15:04")))
	boxLine(&b, fmt.Sprintf("장소    : %s", location))
	boxLine(&b, fmt.Sprintf("회의주제 : %s", analysis.Subject))
	boxLine(&b, "참석자   : 기관명 이름 직위 (인)")
	boxLine(&b, fmt.Sprintf("작성자   : %s", author))
	boxBottom(&b)
	b.WriteString("\n")

	boxTop(&b)
	boxCenter(&b, "회 의 내 용")
	boxDivider(&b)
	for i, content := range analysis.MainContents {
		boxLine(&b, fmt.Sprintf("%d. %s", i+1, content.Title))
		for _, detail := range content.Details {
			boxLine(&b, fmt.Sprintf("   - %s", detail))
		}
	}
	boxBottom(&b)
	b.WriteString("\n")

	boxTop(&b)
	boxCenter(&b, "이슈사항(미결사항)")
	boxDivider(&b)
	for _, issue := range analysis.Issues {
		boxLine(&b, fmt.Sprintf("◦ %s", issue))
	}
	boxBottom(&b)
	b.WriteString("\n")

	boxTop(&b)
	boxCenter(&b, "결정사항")
	boxDivider(&b)
	for _, decision := range analysis.Decisions {
		boxLine(&b, fmt.Sprintf("◦ %s", decision))
	}
	boxBottom(&b)
	b.WriteString("\n")

	boxTop(&b)
	boxCenter(&b, "첨부파일")
	boxDivider(&b)
	boxLine(&b, fmt.Sprintf("◦ %s_전사결과.txt", meta.Title))
	boxBottom(&b)

	return b.String()
}

func boxTop(b *strings.Builder) {
	b.WriteString("┌" + strings.Repeat("─", boxWidth) + "┐\n")
}

func boxBottom(b *strings.Builder) {
	b.WriteString("└" + strings.Repeat("─", boxWidth) + "┘\n")
}

func boxDivider(b *strings.Builder) {
	b.WriteString("├" + strings.Repeat("─", boxWidth) + "┤\n")
}

func boxLine(b *strings.Builder, text string) {
	fmt.Fprintf(b, "│ %s%s │\n", text, padding(text))
}

func boxCenter(b *strings.Builder, text string) {
	inner := boxWidth - 2
	pad := inner - displayWidth(text)
	if pad < 0 {
		pad = 0
	}
	left := pad / 2
	right := pad - left
	fmt.Fprintf(b, "│ %s%s%s │\n", strings.Repeat(" ", left), text, strings.Repeat(" ", right))
}

func padding(text string) string {
	pad := boxWidth - 2 - displayWidth(text)
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad)
}

// displayWidth approximates terminal columns: Hangul and other wide
// characters occupy two cells.
func displayWidth(s string) int {
	width := 0
	for _, r := range s {
		if r >= 0x1100 && (r <= 0x115F || // Hangul Jamo
			(r >= 0x2E80 && r <= 0xA4CF) || // CJK
			(r >= 0xAC00 && r <= 0xD7A3) || // Hangul syllables
			(r >= 0xF900 && r <= 0xFAFF) ||
			(r >= 0xFF00 && r <= 0xFF60)) {
			width += 2
		} else {
			width++
		}
	}
	return width
}

func formatClock(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	m := int(sec) / 60
	s := int(sec) % 60
	return fmt.Sprintf("%02d:%02d", m, s)
}

func formatDuration(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("%d분 %d초", int(sec)/60, int(sec)%60)
}
