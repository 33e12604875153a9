package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetingMinutes/core"
	"meetingMinutes/storage"
)

func newTestServer() *httptest.Server {
	mux := http.NewServeMux()
	Routes(mux)
	return httptest.NewServer(mux)
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var parsed map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return resp, parsed
}

func TestHealthHandler(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestCorrectTextHandler(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, body := postJSON(t, srv.URL+"/correct-text", `{"text":"기획 처에서 그거를 검토했다"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var corrected string
	require.NoError(t, json.Unmarshal(body["corrected"], &corrected))
	assert.Equal(t, "기획처에서 그것을 검토했다", corrected)
}

func TestCorrectTextHandlerRejectsGet(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/correct-text")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCorrectTextHandlerInvalidJSON(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, _ := postJSON(t, srv.URL+"/correct-text", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchHandler(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	storage.Get().Upsert("meeting-42", []core.AttributedSegment{
		{Start: 0, End: 5, Text: "보안 요건 검토", Speaker: "화자1"},
	})

	resp, body := postJSON(t, srv.URL+"/search", `{"meeting_id":"meeting-42","query":"보안 요건 검토","top_k":3}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var hits []core.Hit
	require.NoError(t, json.Unmarshal(body["hits"], &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "화자1", hits[0].Speaker)
}

func TestSearchHandlerRequiresFields(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	for _, body := range []string{`{}`, `{"meeting_id":"m1"}`, `{"query":"보안"}`} {
		resp, _ := postJSON(t, srv.URL+"/search", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestSearchHandlerUnknownMeetingReturnsEmptyHits(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, body := postJSON(t, srv.URL+"/search", `{"meeting_id":"없는회의","query":"보안"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var hits []core.Hit
	require.NoError(t, json.Unmarshal(body["hits"], &hits))
	assert.Empty(t, hits)
}

func TestProcessMeetingHandlerValidation(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, _ := postJSON(t, srv.URL+"/process-meeting", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := postJSON(t, srv.URL+"/process-meeting", `{"audio_path":"/no/such/file.wav"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var msg string
	require.NoError(t, json.Unmarshal(body["error"], &msg))
	assert.Contains(t, msg, "audio file not found")
}

func TestTranscribeHandlerRequiresAudioPath(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, _ := postJSON(t, srv.URL+"/transcribe", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnalyzeHandlerRequiresText(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, _ := postJSON(t, srv.URL+"/analyze", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWriteJSONKeepsKoreanReadable(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]string{"subject": "회의 <주제>"})

	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "회의 <주제>")
	assert.NotContains(t, rec.Body.String(), "\\u003c")
}
