package summarize

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

const fallbackPrompt = "Summarize this transcript clearly and concisely."

// Client calls the OpenAI-compatible Responses API with streaming enabled.
// Every failure mode is soft: an unconfigured client, a non-2xx response
// or an empty accumulated result all yield "" and keep the pipeline going.
type Client struct {
	apiKey     string
	base       string
	model      string
	promptPath string
	http       *http.Client
}

func New(apiKey, base, model, promptPath string) *Client {
	return &Client{
		apiKey:     apiKey,
		base:       strings.TrimRight(base, "/"),
		model:      model,
		promptPath: promptPath,
		http:       &http.Client{Timeout: 5 * time.Minute},
	}
}

// Enabled reports whether the endpoint and credential are configured.
func (c *Client) Enabled() bool { return c.apiKey != "" && c.base != "" }

type inputContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type inputMessage struct {
	Role    string         `json:"role"`
	Content []inputContent `json:"content"`
}

type responsesRequest struct {
	Model       string         `json:"model"`
	Input       []inputMessage `json:"input"`
	Temperature float64        `json:"temperature"`
	Stream      bool           `json:"stream"`
}

// Summarize streams a summary of the transcript. Returns "" on any soft
// failure, reported through logf.
func (c *Client) Summarize(ctx context.Context, jobID, transcript, meetingDate string, logf func(string)) string {
	if !c.Enabled() {
		logf("OPENAI_* not set -> skipping summarization")
		return ""
	}

	text := c.promptText()
	if meetingDate != "" {
		text += "\n\nMeeting Date: " + meetingDate
	}
	text += "\n\nTranscript:\n" + transcript

	payload, _ := json.Marshal(responsesRequest{
		Model:       c.model,
		Input:       []inputMessage{{Role: "user", Content: []inputContent{{Type: "input_text", Text: text}}}},
		Temperature: 0.2,
		Stream:      true,
	})

	logf("Calling GPT endpoint (Responses API, stream) ...")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/responses", bytes.NewReader(payload))
	if err != nil {
		logf(fmt.Sprintf("GPT error: %v; skipping", err))
		return ""
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		logf(fmt.Sprintf("GPT error: %v; skipping", err))
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		logf(fmt.Sprintf("GPT endpoint HTTP %d; skipping", resp.StatusCode))
		return ""
	}

	content := ""
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(line[len("data:"):])
		if data == "[DONE]" {
			break
		}
		content = applyEvent(content, []byte(data))
	}
	if err := scanner.Err(); err != nil {
		logf(fmt.Sprintf("GPT error: %v; skipping", err))
		return ""
	}

	content = strings.TrimSpace(content)
	if content == "" {
		logf("GPT returned empty content")
		return ""
	}
	logf("GPT call complete")
	return content
}

// applyEvent merges one streamed event payload into the accumulated
// content. The shapes are tried in order and the first match wins for
// that event; malformed JSON is skipped silently. A full-snapshot
// output_text replaces the buffer, everything else appends.
func applyEvent(content string, payload []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil {
		return content
	}

	if s, ok := obj["output_text"].(string); ok && s != "" {
		return strings.TrimSpace(s)
	}
	if resp, ok := obj["response"].(map[string]any); ok {
		if s, ok := resp["output_text"].(string); ok && s != "" {
			return strings.TrimSpace(s)
		}
		if out, ok := resp["output"].([]any); ok {
			return content + collectOutputText(out)
		}
	}

	switch obj["type"] {
	case "output_text.delta", "response.output_text.delta":
		if d, ok := obj["delta"].(string); ok {
			return content + d
		}
		return content
	case "message.delta", "response.message.delta":
		if delta, ok := obj["delta"].(map[string]any); ok {
			if items, ok := delta["content"].([]any); ok {
				for _, it := range items {
					entry, ok := it.(map[string]any)
					if !ok {
						continue
					}
					if t, _ := entry["type"].(string); t == "output_text" || t == "text" {
						if s, ok := entry["text"].(string); ok {
							content += s
						}
					}
				}
				return content
			}
		}
	}

	if out, ok := obj["output"].([]any); ok {
		return content + collectOutputText(out)
	}
	return content
}

func collectOutputText(items []any) string {
	var b strings.Builder
	for _, it := range items {
		entry, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := entry["type"].(string); t != "output_text" {
			continue
		}
		if s, ok := entry["text"].(string); ok {
			b.WriteString(s)
		}
	}
	return b.String()
}

// promptText loads the configured prompt template, falling back to a
// minimal instruction when the file is unreadable.
func (c *Client) promptText() string {
	if c.promptPath != "" {
		if raw, err := os.ReadFile(c.promptPath); err == nil {
			return string(raw)
		}
	}
	return fallbackPrompt
}
