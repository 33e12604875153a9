package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"meetingMinutes/core"
	"meetingMinutes/processors"
	"meetingMinutes/storage"
)

// Routes registers every endpoint on mux.
func Routes(mux *http.ServeMux) {
	mux.HandleFunc("/process-meeting", processMeetingHandler)
	mux.HandleFunc("/transcribe", transcribeHandler)
	mux.HandleFunc("/correct-text", correctTextHandler)
	mux.HandleFunc("/analyze", analyzeHandler)
	mux.HandleFunc("/search", searchHandler)
	mux.HandleFunc("/health", healthHandler)
}

// ListenAndServe starts the HTTP surface on addr.
func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	Routes(mux)
	log.Info().Str("addr", addr).Msg("server listening")
	return http.ListenAndServe(addr, mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false) // keep Korean text readable in responses
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "write json error: %v", err)
	}
}

type processMeetingRequest struct {
	AudioPath          string  `json:"audio_path"`
	ExpectedSpeakers   int     `json:"expected_speakers"`
	DisableDiarization bool    `json:"disable_diarization"`
	GapThreshold       float64 `json:"gap_threshold"`
	MaxSpeakers        int     `json:"max_speakers"`
	Archive            bool    `json:"archive"`
}

func processMeetingHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req processMeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.AudioPath == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "audio_path required"})
		return
	}
	if _, err := os.Stat(req.AudioPath); os.IsNotExist(err) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("audio file not found: %s", req.AudioPath)})
		return
	}

	result, err := processors.ProcessMeeting(r.Context(), req.AudioPath, processors.Options{
		ExpectedSpeakers:   req.ExpectedSpeakers,
		DisableDiarization: req.DisableDiarization,
		GapThreshold:       req.GapThreshold,
		MaxSpeakers:        req.MaxSpeakers,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if result != nil {
			writeJSON(w, status, result)
		} else {
			writeJSON(w, status, map[string]string{"error": err.Error()})
		}
		return
	}

	if req.Archive {
		count := storage.Get().Upsert(result.MeetingID, result.Segments)
		log.Info().Str("meeting_id", result.MeetingID).Int("count", count).Msg("segments archived")
	}
	writeJSON(w, http.StatusOK, result)
}

type transcribeRequest struct {
	AudioPath string `json:"audio_path"`
}

type transcribeResponse struct {
	Segments []core.Segment      `json:"segments"`
	Info     core.TranscriptInfo `json:"info"`
}

func transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.AudioPath == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "audio_path required"})
		return
	}

	segments, info, err := processors.PickTranscriber().Transcribe(r.Context(), req.AudioPath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, transcribeResponse{Segments: segments, Info: info})
}

type correctTextRequest struct {
	Text string `json:"text"`
}

type correctTextResponse struct {
	Text      string `json:"text"`
	Corrected string `json:"corrected"`
}

func correctTextHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req correctTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	corrected := processors.ApplyCorrections(req.Text, processors.DefaultCorrectionRules())
	writeJSON(w, http.StatusOK, correctTextResponse{Text: req.Text, Corrected: corrected})
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	Analysis core.MeetingAnalysis `json:"analysis"`
	Source   string               `json:"source"`
}

func analyzeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text required"})
		return
	}
	analysis, source := processors.AnalyzeMeeting(r.Context(), processors.PickSummarizer(), req.Text)
	writeJSON(w, http.StatusOK, analyzeResponse{Analysis: analysis, Source: string(source)})
}

type searchRequest struct {
	MeetingID string `json:"meeting_id"`
	Query     string `json:"query"`
	TopK      int    `json:"top_k"`
}

type searchResponse struct {
	MeetingID string     `json:"meeting_id"`
	Query     string     `json:"query"`
	Hits      []core.Hit `json:"hits"`
}

func searchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.MeetingID == "" || strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "meeting_id and query required"})
		return
	}
	hits := storage.Get().Search(req.MeetingID, req.Query, req.TopK)
	if hits == nil {
		hits = []core.Hit{}
	}
	writeJSON(w, http.StatusOK, searchResponse{MeetingID: req.MeetingID, Query: req.Query, Hits: hits})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
