package title

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultTitle is returned when nothing in the summary qualifies.
	DefaultTitle = "Meeting Summary"

	promptPlaceholder = "[The meeting transcript/summary will be inserted here]"
)

// Generator derives a short title from a summary: a model call when the
// LLM endpoint is configured, with a deterministic extraction fallback.
// It never fails.
type Generator struct {
	apiKey     string
	base       string
	model      string
	promptPath string
	http       *http.Client
}

func New(apiKey, base, model, promptPath string) *Generator {
	return &Generator{
		apiKey:     apiKey,
		base:       strings.TrimRight(base, "/"),
		model:      model,
		promptPath: promptPath,
		http:       &http.Client{Timeout: 5 * time.Second},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// FromSummary returns a short title for the summary. Model results are
// accepted only when non-empty and at most 60 characters; anything else
// falls back to ExtractFromSummary.
func (g *Generator) FromSummary(ctx context.Context, summary string) string {
	if summary == "" {
		return ""
	}
	if g.apiKey == "" || g.base == "" {
		return ExtractFromSummary(summary)
	}

	if title, ok := g.generate(ctx, summary); ok {
		return title
	}
	return ExtractFromSummary(summary)
}

func (g *Generator) generate(ctx context.Context, summary string) (string, bool) {
	payload, _ := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a title generator. Return only the title text."},
			{Role: "user", Content: g.prompt(summary)},
		},
		Temperature: 0.3,
		MaxTokens:   20,
	})

	var parsed chatResponse
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 5 * time.Second
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.base+"/v1/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
		req.Header.Set("Content-Type", "application/json")
		resp, err := g.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("title endpoint HTTP %d", resp.StatusCode)
		}
		return json.Unmarshal(raw, &parsed)
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return "", false
	}
	if len(parsed.Choices) == 0 {
		return "", false
	}
	title := strings.TrimSpace(parsed.Choices[0].Message.Content)
	title = strings.Trim(title, `"'`)
	if title == "" || utf8.RuneCountInString(title) > 60 {
		return "", false
	}
	return title, true
}

// prompt builds the title-generation prompt from the template file,
// inserting the truncated summary; falls back to an inline instruction.
func (g *Generator) prompt(summary string) string {
	snippet := summary
	if runes := []rune(summary); len(runes) > 500 {
		snippet = string(runes[:500])
	}
	if g.promptPath != "" {
		if raw, err := os.ReadFile(g.promptPath); err == nil {
			return strings.ReplaceAll(string(raw), promptPlaceholder, snippet)
		}
	}
	return "Generate a concise title (max 50 chars) for: " + snippet
}

var (
	headerRe   = regexp.MustCompile(`(?m)^#+\s*`)
	labeledRe  = regexp.MustCompile(`(?im)(?:Topic|Subject|Meeting about|Discussion about|Overview)[:\s]*([^\n.]+)`)
	sentenceRe = regexp.MustCompile(`(?m)^([A-Z][^.!?\n]{10,50})`)
	markupRe   = regexp.MustCompile(`[*_#]`)
)

// ExtractFromSummary derives a title deterministically: a labeled topic
// phrase first, then a capitalized sentence-like span, then the first
// meaningful line, then DefaultTitle.
func ExtractFromSummary(summary string) string {
	if summary == "" {
		return ""
	}
	cleaned := headerRe.ReplaceAllString(summary, "")

	for _, re := range []*regexp.Regexp{labeledRe, sentenceRe} {
		if m := re.FindStringSubmatch(cleaned); m != nil {
			return tidy(m[1])
		}
	}

	lines := strings.Split(cleaned, "\n")
	if len(lines) > 5 {
		lines = lines[:5]
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) > 10 {
			return tidy(line)
		}
	}
	return DefaultTitle
}

func tidy(s string) string {
	s = markupRe.ReplaceAllString(strings.TrimSpace(s), "")
	if runes := []rune(s); len(runes) > 50 {
		s = string(runes[:47]) + "..."
	}
	return s
}
