package transcription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAudioFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job1.mp3")
	require.NoError(t, os.WriteFile(path, []byte("fake audio bytes"), 0o644))
	return path
}

func TestTranscribe_Disabled(t *testing.T) {
	c := New("", "https://api.assemblyai.com/v2")
	var logs []string
	text, err := c.Transcribe(context.Background(), "job1", "whatever", func(s string) { logs = append(logs, s) })
	require.NoError(t, err)
	assert.Empty(t, text)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0], "skipping transcription")
}

func newTranscriptServer(t *testing.T, result map[string]any, pollsUntilDone int32) *httptest.Server {
	t.Helper()
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("authorization"))
		json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.example.com/upload/1"})
	})
	mux.HandleFunc("/transcript", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://cdn.example.com/upload/1", req["audio_url"])
		assert.Equal(t, true, req["speaker_labels"])
		assert.Equal(t, float64(2), req["speakers_expected"])
		assert.Equal(t, true, req["auto_highlights"])
		json.NewEncoder(w).Encode(map[string]string{"id": "t1"})
	})
	mux.HandleFunc("/transcript/t1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < pollsUntilDone {
			json.NewEncoder(w).Encode(map[string]string{"status": "processing"})
			return
		}
		json.NewEncoder(w).Encode(result)
	})
	return httptest.NewServer(mux)
}

func TestTranscribe_PlainTextFallback(t *testing.T) {
	srv := newTranscriptServer(t, map[string]any{
		"status": "completed",
		"text":   "plain transcript text",
	}, 2)
	defer srv.Close()

	c := New("test-key", srv.URL)
	c.SetPollInterval(10 * time.Millisecond)
	var logs []string
	text, err := c.Transcribe(context.Background(), "job1", writeAudioFixture(t), func(s string) { logs = append(logs, s) })
	require.NoError(t, err)
	assert.Equal(t, "plain transcript text", text)
	assert.Contains(t, logs, "transcribe: status=processing")
	assert.Contains(t, logs, "transcribe: status=completed")
}

func TestTranscribe_SpeakerLabelsAndHighlights(t *testing.T) {
	srv := newTranscriptServer(t, map[string]any{
		"status": "completed",
		"text":   "ignored when utterances exist",
		"utterances": []map[string]string{
			{"speaker": "A", "text": "Hello there."},
			{"speaker": "A", "text": "How are you?"},
			{"speaker": "B", "text": "Fine, thanks."},
		},
		"auto_highlights_result": map[string]any{
			"results": []map[string]string{
				{"text": "greeting exchanged"},
			},
		},
	}, 1)
	defer srv.Close()

	c := New("test-key", srv.URL)
	c.SetPollInterval(10 * time.Millisecond)
	text, err := c.Transcribe(context.Background(), "job1", writeAudioFixture(t), func(string) {})
	require.NoError(t, err)

	want := "[Speaker A]:\nHello there.\nHow are you?\n\n[Speaker B]:\nFine, thanks.\n\n\n--- Key Points ---\n- greeting exchanged"
	assert.Equal(t, want, text)
}

func TestTranscribe_ServiceError(t *testing.T) {
	srv := newTranscriptServer(t, map[string]any{
		"status": "error",
		"error":  "audio too short",
	}, 1)
	defer srv.Close()

	c := New("test-key", srv.URL)
	c.SetPollInterval(10 * time.Millisecond)
	_, err := c.Transcribe(context.Background(), "job1", writeAudioFixture(t), func(string) {})
	var te *TranscriptionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "audio too short", te.Message)
}

func TestTranscribe_PollCancellation(t *testing.T) {
	srv := newTranscriptServer(t, map[string]any{"status": "completed", "text": "x"}, 1000)
	defer srv.Close()

	c := New("test-key", srv.URL)
	c.SetPollInterval(10 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := c.Transcribe(ctx, "job1", writeAudioFixture(t), func(string) {})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFormatTranscript_SpeakerGrouping(t *testing.T) {
	body := transcriptResponse{
		Status: "completed",
		Utterances: []utterance{
			{Speaker: "A", Text: " one "},
			{Speaker: "B", Text: "two"},
			{Speaker: "A", Text: "three"},
		},
	}
	want := "[Speaker A]:\none\n\n[Speaker B]:\ntwo\n\n[Speaker A]:\nthree"
	assert.Equal(t, want, formatTranscript(body))
}
