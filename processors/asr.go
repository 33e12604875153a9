package processors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"meetingMinutes/config"
	"meetingMinutes/core"
)

// Transcriber is the speech-recognition boundary. Implementations return the
// ordered segment list plus file-level metadata; the pipeline treats both as
// opaque external input.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]core.Segment, core.TranscriptInfo, error)
}

// MockTranscriber fabricates fixed-length segments from the probed duration.
type MockTranscriber struct{}

func (MockTranscriber) Transcribe(ctx context.Context, audioPath string) ([]core.Segment, core.TranscriptInfo, error) {
	dur, err := probeDuration(audioPath)
	if err != nil {
		return nil, core.TranscriptInfo{}, err
	}
	const segLen = 15.0
	segs := make([]core.Segment, 0)
	for start := 0.0; start < dur; start += segLen {
		end := start + segLen
		if end > dur {
			end = dur
		}
		segs = append(segs, core.Segment{
			Start: start,
			End:   end,
			Text:  fmt.Sprintf("자리표시 전사 %.0f초~%.0f초 구간입니다.", start, end),
		})
	}
	info := core.TranscriptInfo{Language: "ko", LanguageProbability: 1.0, Duration: dur}
	return segs, info, nil
}

// APIWhisperTranscriber sends the file to an OpenAI-compatible transcription
// endpoint. Segment timing granularity depends on the provider; when only a
// single text blob comes back it is returned as one segment spanning the
// probed duration.
type APIWhisperTranscriber struct {
	cli *openai.Client
}

func (w APIWhisperTranscriber) Transcribe(ctx context.Context, audioPath string) ([]core.Segment, core.TranscriptInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	resp, err := w.cli.CreateTranscription(ctx, openai.AudioRequest{
		Model:    "whisper-1",
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, core.TranscriptInfo{}, err
	}

	info := core.TranscriptInfo{Language: resp.Language, LanguageProbability: 1.0, Duration: float64(resp.Duration)}
	if len(resp.Segments) > 0 {
		segs := make([]core.Segment, 0, len(resp.Segments))
		for _, s := range resp.Segments {
			segs = append(segs, core.Segment{Start: s.Start, End: s.End, Text: strings.TrimSpace(s.Text)})
		}
		return segs, info, nil
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, core.TranscriptInfo{}, fmt.Errorf("empty transcription result")
	}
	if info.Duration == 0 {
		info.Duration, _ = probeDuration(audioPath)
	}
	return []core.Segment{{Start: 0, End: info.Duration, Text: text}}, info, nil
}

// LocalWhisperTranscriber runs faster-whisper in a Python subprocess and
// reads JSON from stdout. No API configuration required.
type LocalWhisperTranscriber struct {
	opts config.WhisperOptions
}

const localWhisperScript = `#!/usr/bin/env python3
# -*- coding: utf-8 -*-
import json
import sys
from faster_whisper import WhisperModel

def main():
    opts = json.loads(sys.argv[2])
    model = WhisperModel(opts.get("model", "large-v3"), device="auto", compute_type="default")
    segments, info = model.transcribe(
        sys.argv[1],
        beam_size=opts.get("beam_size", 3),
        language=opts.get("language", "ko"),
        vad_filter=True,
        vad_parameters=dict(min_silence_duration_ms=opts.get("vad_min_silence_ms", 500)),
        temperature=opts.get("temperature", 0.0),
        compression_ratio_threshold=opts.get("compression_ratio_threshold", 2.4),
        no_speech_threshold=opts.get("no_speech_threshold", 0.6),
        condition_on_previous_text=opts.get("condition_on_previous_text", False),
        initial_prompt=opts.get("initial_prompt") or None,
    )
    out = {
        "language": info.language,
        "language_probability": info.language_probability,
        "duration": info.duration,
        "segments": [
            {"start": s.start, "end": s.end, "text": s.text.strip()} for s in segments
        ],
    }
    print(json.dumps(out, ensure_ascii=False))

if __name__ == "__main__":
    main()
`

type localWhisperOutput struct {
	Language            string         `json:"language"`
	LanguageProbability float64        `json:"language_probability"`
	Duration            float64        `json:"duration"`
	Segments            []core.Segment `json:"segments"`
}

func (l LocalWhisperTranscriber) Transcribe(ctx context.Context, audioPath string) ([]core.Segment, core.TranscriptInfo, error) {
	scriptPath := filepath.Join(os.TempDir(), "whisper_transcribe.py")
	if err := os.WriteFile(scriptPath, []byte(localWhisperScript), 0644); err != nil {
		return nil, core.TranscriptInfo{}, fmt.Errorf("failed to create whisper script: %w", err)
	}
	defer os.Remove(scriptPath)

	optsJSON, err := json.Marshal(l.opts)
	if err != nil {
		return nil, core.TranscriptInfo{}, fmt.Errorf("marshal whisper options: %w", err)
	}

	cmd := exec.CommandContext(ctx, pythonBin(), scriptPath, audioPath, string(optsJSON))
	cmd.Stderr = os.Stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, core.TranscriptInfo{}, fmt.Errorf("local whisper failed: %w", err)
	}

	var parsed localWhisperOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, core.TranscriptInfo{}, fmt.Errorf("failed to parse whisper output: %w", err)
	}
	info := core.TranscriptInfo{
		Language:            parsed.Language,
		LanguageProbability: parsed.LanguageProbability,
		Duration:            parsed.Duration,
	}
	return parsed.Segments, info, nil
}

func pythonBin() string {
	if v := os.Getenv("PYTHON_BIN"); v != "" {
		return v
	}
	return "python3"
}

// PickTranscriber selects the provider from the ASR env var: "mock",
// "api-whisper", or local faster-whisper by default.
func PickTranscriber() Transcriber {
	cfg, cfgErr := config.LoadConfig()

	switch strings.ToLower(strings.TrimSpace(os.Getenv("ASR"))) {
	case "mock":
		return MockTranscriber{}
	case "api-whisper":
		if cfgErr != nil || !cfg.HasValidAPI() {
			log.Warn().Msg("API configuration not found for API whisper, using local whisper")
			break
		}
		return APIWhisperTranscriber{cli: openaiClient(cfg)}
	}

	opts := config.WhisperOptions{}
	if cfgErr == nil {
		opts = cfg.Whisper
	}
	return LocalWhisperTranscriber{opts: opts}
}

func probeDuration(path string) (float64, error) {
	cmd := exec.Command("ffprobe", "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", path)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return 0, err
	}
	s := strings.TrimSpace(out.String())
	return strconv.ParseFloat(s, 64)
}
