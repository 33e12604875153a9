package processors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"meetingMinutes/config"
	"meetingMinutes/core"
)

// AnalysisSource records whether the analysis came from the LLM or from the
// deterministic fallback record.
type AnalysisSource string

const (
	AnalysisLLM      AnalysisSource = "llm"
	AnalysisFallback AnalysisSource = "fallback"
)

// Summarizer turns the full meeting text into a free-form minutes draft.
type Summarizer interface {
	Summarize(ctx context.Context, meetingText string) (string, error)
}

// MockSummarizer returns a fixed well-formed response, used in tests and
// when no LLM endpoint is configured.
type MockSummarizer struct{}

func (MockSummarizer) Summarize(ctx context.Context, meetingText string) (string, error) {
	return `1. 회의 주제: 회의 내용 논의

2. 주요 내용:
1. 주요 논의사항
   - 회의 내용이 논의되었습니다.

3. 이슈사항(미결사항):
◦ 세부 사항 검토 필요

4. 결정사항:
◦ 추후 논의 예정
`, nil
}

// LLMSummarizer calls a chat-completion endpoint (OpenAI-compatible; a local
// Ollama server works through its /v1 API).
type LLMSummarizer struct {
	cli     *openai.Client
	model   string
	timeout time.Duration
}

func NewLLMSummarizer(cli *openai.Client, model string, timeout time.Duration) LLMSummarizer {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return LLMSummarizer{cli: cli, model: model, timeout: timeout}
}

func (l LLMSummarizer) Summarize(ctx context.Context, meetingText string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	resp, err := l.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: l.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: buildMinutesPrompt(meetingText)},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("summarize API failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices from summarize API")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func buildMinutesPrompt(meetingText string) string {
	return `다음 회의 전사 내용을 분석해서 회의록을 작성해주세요.

회의 전사 내용:
` + meetingText + `

다음 형식으로 회의록을 작성해주세요:

1. 회의 주제: (회의의 핵심 주제를 한 줄로 요약)

2. 주요 내용: (중요한 논의사항들을 번호별로 정리)
   1. 첫 번째 주요 논의사항
      - 세부 내용 1
      - 세부 내용 2
   2. 두 번째 주요 논의사항
      - 세부 내용 1

3. 이슈사항(미결사항): (해결되지 않은 문제나 추후 논의가 필요한 사항들)
   ◦ 첫 번째 이슈
   ◦ 두 번째 이슈

4. 결정사항: (회의에서 결정된 내용들)
   ◦ 첫 번째 결정사항
   ◦ 두 번째 결정사항

한국어로 작성하고, 구체적이고 명확하게 작성해주세요.`
}

// PickSummarizer selects the LLM summarizer when an endpoint is configured
// and falls back to the mock otherwise.
func PickSummarizer() Summarizer {
	cfg, err := config.LoadConfig()
	if err != nil || !cfg.HasValidAPI() {
		log.Warn().Msg("no valid API configuration, using mock summarizer")
		return MockSummarizer{}
	}
	return NewLLMSummarizer(openaiClient(cfg), cfg.ChatModel, cfg.SummarizeTimeout())
}

func openaiClient(cfg *config.Config) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

// AnalyzeMeeting runs the summarizer and parses its response. Any failure
// (timeout included) or a response that parses to nothing yields the fixed
// fallback record; the returned source says which path ran.
func AnalyzeMeeting(ctx context.Context, s Summarizer, meetingText string) (core.MeetingAnalysis, AnalysisSource) {
	response, err := s.Summarize(ctx, meetingText)
	if err != nil {
		log.Warn().Err(err).Msg("summarizer failed, using fallback analysis")
		return FallbackAnalysis(), AnalysisFallback
	}

	analysis := ParseMeetingAnalysis(response)
	if isEmptyAnalysis(analysis) {
		log.Warn().Msg("summarizer response matched no section markers, using fallback analysis")
		return FallbackAnalysis(), AnalysisFallback
	}
	return analysis, AnalysisLLM
}

// Parser states. The parser walks the response line by line; only lines
// matching an explicit rule contribute, everything else is skipped.
type parseState int

const (
	stateNone parseState = iota
	stateDiscussions
	stateIssues
	stateDecisions
)

var (
	topicMarkers      = []string{"회의 주제:", "주제:"}
	discussionMarkers = []string{"주요 내용:"}
	issueMarkers      = []string{"이슈사항", "미결사항"}
	decisionMarkers   = []string{"결정사항"}
	numberedPrefixes  = []string{"1.", "2.", "3.", "4.", "5."}
	bulletPrefixes    = []string{"- ", "◦ ", "• "}
)

// ParseMeetingAnalysis converts the summarizer's free text into a structured
// record. Marker priority per line: topic > discussions > issues > decisions,
// matched by substring containment. It never fails; unmatched input just
// yields an emptier record.
func ParseMeetingAnalysis(response string) core.MeetingAnalysis {
	analysis := core.MeetingAnalysis{
		MainContents: make([]core.ContentItem, 0),
		Issues:       make([]string, 0),
		Decisions:    make([]string, 0),
	}

	state := stateNone
	currentItem := -1 // index into MainContents of the active details target

	for _, raw := range strings.Split(strings.TrimSpace(response), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if containsAny(line, topicMarkers) {
			if idx := strings.Index(line, ":"); idx >= 0 {
				analysis.Subject = strings.TrimSpace(line[idx+1:])
			}
			continue
		}
		// "2." opens the discussions section in the prompt template, so a
		// bare "2."-numbered line is a section transition, never an item.
		if containsAny(line, discussionMarkers) || strings.HasPrefix(line, "2.") {
			state = stateDiscussions
			continue
		}
		if containsAny(line, issueMarkers) {
			state = stateIssues
			continue
		}
		if containsAny(line, decisionMarkers) {
			state = stateDecisions
			continue
		}

		if prefix, ok := hasAnyPrefix(line, numberedPrefixes); ok {
			if state == stateDiscussions {
				analysis.MainContents = append(analysis.MainContents, core.ContentItem{
					Title:   strings.TrimSpace(strings.TrimPrefix(line, prefix)),
					Details: make([]string, 0),
				})
				currentItem = len(analysis.MainContents) - 1
			}
			continue
		}

		if prefix, ok := hasAnyPrefix(line, bulletPrefixes); ok {
			detail := strings.TrimSpace(strings.TrimPrefix(line, prefix))
			switch state {
			case stateDiscussions:
				if currentItem >= 0 {
					analysis.MainContents[currentItem].Details = append(analysis.MainContents[currentItem].Details, detail)
				}
			case stateIssues:
				analysis.Issues = append(analysis.Issues, detail)
			case stateDecisions:
				analysis.Decisions = append(analysis.Decisions, detail)
			}
			continue
		}
	}

	return analysis
}

func containsAny(line string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(line string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(line, p) {
			return p, true
		}
	}
	return "", false
}

func isEmptyAnalysis(a core.MeetingAnalysis) bool {
	return a.Subject == "" && len(a.MainContents) == 0 && len(a.Issues) == 0 && len(a.Decisions) == 0
}

// FallbackAnalysis is the structurally complete record used whenever the
// summarizer fails, times out, or produces nothing parseable.
func FallbackAnalysis() core.MeetingAnalysis {
	return core.MeetingAnalysis{
		Subject: "회의 내용 논의",
		MainContents: []core.ContentItem{
			{
				Title:   "주요 논의사항",
				Details: []string{"회의 내용이 논의되었습니다.", "추가 검토가 필요합니다."},
			},
		},
		Issues:    []string{"세부 사항 검토 필요"},
		Decisions: []string{"추후 논의 예정"},
	}
}
