package processors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"meetingMinutes/core"
)

// ErrDiarizationUnavailable signals that no speaker turns could be produced:
// missing token, missing dependency, or a runtime failure inside the model.
// Callers must treat it as the cue to run the gap clusterer, never as fatal.
var ErrDiarizationUnavailable = errors.New("diarization unavailable")

// Diarizer is the speaker-separation boundary. The returned map groups turns
// by speaker label.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string, numSpeakers int) (map[string][]core.SpeakerTurn, error)
}

// MockDiarizer returns a fixed turn map, for tests.
type MockDiarizer struct {
	Turns map[string][]core.SpeakerTurn
}

func (m MockDiarizer) Diarize(ctx context.Context, audioPath string, numSpeakers int) (map[string][]core.SpeakerTurn, error) {
	if m.Turns == nil {
		return nil, ErrDiarizationUnavailable
	}
	return m.Turns, nil
}

// PyannoteDiarizer shells out to pyannote.audio. It needs a Hugging Face
// token (HF_TOKEN or HUGGINGFACE_TOKEN) for the pretrained pipeline.
type PyannoteDiarizer struct{}

const pyannoteScript = `#!/usr/bin/env python3
# -*- coding: utf-8 -*-
import json
import os
import sys

def main():
    token = os.getenv("HF_TOKEN") or os.getenv("HUGGINGFACE_TOKEN")
    if not token:
        print("missing huggingface token", file=sys.stderr)
        sys.exit(3)
    try:
        import torch
        from pyannote.audio import Pipeline
    except ImportError as e:
        print(f"missing dependency: {e}", file=sys.stderr)
        sys.exit(3)

    pipeline = Pipeline.from_pretrained(
        "pyannote/speaker-diarization-3.1", use_auth_token=token
    )
    if torch.cuda.is_available():
        pipeline = pipeline.to(torch.device("cuda"))

    kwargs = {}
    num_speakers = int(sys.argv[2]) if len(sys.argv) > 2 else 0
    if num_speakers > 0:
        kwargs["num_speakers"] = num_speakers

    diarization = pipeline(sys.argv[1], **kwargs)
    speakers = {}
    for turn, _, speaker in diarization.itertracks(yield_label=True):
        label = speaker.split("_")[-1] if "_" in speaker else speaker
        speakers.setdefault(f"화자{label}", []).append(
            {"start": turn.start, "end": turn.end}
        )
    print(json.dumps(speakers, ensure_ascii=False))

if __name__ == "__main__":
    main()
`

func (PyannoteDiarizer) Diarize(ctx context.Context, audioPath string, numSpeakers int) (map[string][]core.SpeakerTurn, error) {
	if os.Getenv("HF_TOKEN") == "" && os.Getenv("HUGGINGFACE_TOKEN") == "" {
		return nil, fmt.Errorf("%w: no huggingface token configured", ErrDiarizationUnavailable)
	}

	scriptPath := filepath.Join(os.TempDir(), "speaker_diarization.py")
	if err := os.WriteFile(scriptPath, []byte(pyannoteScript), 0644); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiarizationUnavailable, err)
	}
	defer os.Remove(scriptPath)

	cmd := exec.CommandContext(ctx, pythonBin(), scriptPath, audioPath, fmt.Sprintf("%d", numSpeakers))
	var stderr strings.Builder
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		log.Warn().Str("stderr", strings.TrimSpace(stderr.String())).Err(err).Msg("pyannote diarization failed")
		return nil, fmt.Errorf("%w: %v", ErrDiarizationUnavailable, err)
	}

	var raw map[string][]struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	}
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil, fmt.Errorf("%w: bad diarization output: %v", ErrDiarizationUnavailable, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no speakers detected", ErrDiarizationUnavailable)
	}

	turns := make(map[string][]core.SpeakerTurn, len(raw))
	for speaker, intervals := range raw {
		for _, iv := range intervals {
			turns[speaker] = append(turns[speaker], core.SpeakerTurn{Speaker: speaker, Start: iv.Start, End: iv.End})
		}
	}
	return turns, nil
}

// PickDiarizer returns the pyannote diarizer unless DIARIZER=off, which
// forces the gap-clustering fallback.
func PickDiarizer() Diarizer {
	if strings.EqualFold(strings.TrimSpace(os.Getenv("DIARIZER")), "off") {
		return MockDiarizer{}
	}
	return PyannoteDiarizer{}
}
