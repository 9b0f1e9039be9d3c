package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// TranscriptionError carries the service-provided failure message. It is
// fatal to the pipeline, unlike an unconfigured client which just skips.
type TranscriptionError struct {
	Message string
}

func (e *TranscriptionError) Error() string {
	return "transcription failed: " + e.Message
}

// Client talks to the AssemblyAI-style transcription API: upload the
// audio, create a transcript job, poll until terminal state.
type Client struct {
	apiKey       string
	base         string
	http         *http.Client
	pollInterval time.Duration
}

func New(apiKey, base string) *Client {
	return &Client{
		apiKey:       apiKey,
		base:         strings.TrimRight(base, "/"),
		http:         &http.Client{Timeout: 10 * time.Minute},
		pollInterval: 2 * time.Second,
	}
}

// Enabled reports whether a credential is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

// SetPollInterval overrides the 2-second status poll cadence.
func (c *Client) SetPollInterval(d time.Duration) { c.pollInterval = d }

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type createRequest struct {
	AudioURL          string `json:"audio_url"`
	SpeakerLabels     bool   `json:"speaker_labels"`
	SpeakersExpected  int    `json:"speakers_expected"`
	AutoHighlights    bool   `json:"auto_highlights"`
	SentimentAnalysis bool   `json:"sentiment_analysis"`
	EntityDetection   bool   `json:"entity_detection"`
	FormatText        bool   `json:"format_text"`
}

type createResponse struct {
	ID string `json:"id"`
}

type utterance struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type highlight struct {
	Text string `json:"text"`
}

type transcriptResponse struct {
	Status     string      `json:"status"`
	Text       string      `json:"text"`
	Error      string      `json:"error"`
	Utterances []utterance `json:"utterances"`

	AutoHighlightsResult struct {
		Results []highlight `json:"results"`
	} `json:"auto_highlights_result"`
}

// Transcribe uploads the file, creates a diarized transcript job and polls
// it to completion. Returns ("", nil) when no credential is configured;
// that is a normal outcome, not an error.
func (c *Client) Transcribe(ctx context.Context, jobID, filePath string, logf func(string)) (string, error) {
	if !c.Enabled() {
		logf("ASSEMBLYAI_API_KEY not set -> skipping transcription")
		return "", nil
	}

	logf("Uploading to AssemblyAI ...")
	uploadURL, err := c.upload(ctx, filePath)
	if err != nil {
		return "", err
	}

	logf("Create transcript job with speaker diarization ...")
	reqBody, _ := json.Marshal(createRequest{
		AudioURL:          uploadURL,
		SpeakerLabels:     true,
		SpeakersExpected:  2,
		AutoHighlights:    true,
		SentimentAnalysis: true,
		EntityDetection:   true,
		FormatText:        true,
	})
	var created createResponse
	if err := c.doJSON(ctx, http.MethodPost, c.base+"/transcript", reqBody, &created); err != nil {
		return "", err
	}
	logf(fmt.Sprintf("Transcript id=%s; polling ...", created.ID))

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}

		var body transcriptResponse
		if err := c.doJSON(ctx, http.MethodGet, c.base+"/transcript/"+created.ID, nil, &body); err != nil {
			return "", err
		}
		logf("transcribe: status=" + body.Status)

		switch body.Status {
		case "completed":
			return formatTranscript(body), nil
		case "error":
			msg := body.Error
			if msg == "" {
				msg = "unknown error"
			}
			return "", &TranscriptionError{Message: msg}
		}
	}
}

// upload streams the audio file to the upload endpoint and returns the
// opaque upload reference.
func (c *Client) upload(ctx context.Context, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/upload", f)
	if err != nil {
		return "", err
	}
	req.Header.Set("authorization", c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload failed: HTTP %d: %s", resp.StatusCode, raw)
	}
	var parsed uploadResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("upload response decode: %w", err)
	}
	return parsed.UploadURL, nil
}

// doJSON issues one JSON request with exponential retry on transport and
// 5xx failures, rebuilding the request each attempt.
func (c *Client) doJSON(ctx context.Context, method, url string, body []byte, target any) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 12 * time.Second
	var lastErr error
	op := func() error {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("authorization", c.apiKey)
		if body != nil {
			req.Header.Set("content-type", "application/json")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %s", raw)
			return lastErr
		}
		if resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, raw)
			return backoff.Permanent(lastErr)
		}
		if err := json.Unmarshal(raw, target); err != nil {
			lastErr = fmt.Errorf("json decode error: %v body=%s", err, raw)
			return lastErr
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}

// formatTranscript reconstructs a speaker-labeled transcript from the
// diarized utterances, appending the top auto-highlights. Falls back to
// the plain text field when no utterances are present.
func formatTranscript(body transcriptResponse) string {
	if len(body.Utterances) == 0 {
		return body.Text
	}

	var lines []string
	currentSpeaker := ""
	for _, utt := range body.Utterances {
		speaker := "Speaker " + utt.Speaker
		if utt.Speaker == "" {
			speaker = "Speaker Unknown"
		}
		if speaker != currentSpeaker {
			if len(lines) > 0 {
				lines = append(lines, "")
			}
			lines = append(lines, fmt.Sprintf("[%s]:", speaker))
			currentSpeaker = speaker
		}
		lines = append(lines, strings.TrimSpace(utt.Text))
	}

	highlights := body.AutoHighlightsResult.Results
	if len(highlights) > 0 {
		lines = append(lines, "\n\n--- Key Points ---")
		for i, h := range highlights {
			if i >= 5 {
				break
			}
			lines = append(lines, "- "+h.Text)
		}
	}
	return strings.Join(lines, "\n")
}
