package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Resolver maps Plaud share links to directly fetchable audio URLs.
// Resolution is best-effort: every strategy failure falls through to the
// next one and the original URL is the terminal fallback, so Resolve never
// returns an error.
type Resolver struct {
	http        *http.Client
	apiBase     string
	shareDomain string
}

func New(apiBase string) *Resolver {
	return &Resolver{
		http:        &http.Client{Timeout: 30 * time.Second},
		apiBase:     strings.TrimRight(apiBase, "/"),
		shareDomain: "plaud.ai",
	}
}

var (
	shareTokenRe = regexp.MustCompile(`/share/([0-9a-zA-Z]+)`)
	audioLinkRe  = regexp.MustCompile(`(?i)https?://[^'"\s]+\.(?:mp3|m4a|wav)\b`)
	audioQueryRe = regexp.MustCompile(`(?i)https?://[^"'\s]+\.(?:mp3|m4a|wav)(?:\?[^"'\s]*)?`)
	audioTailRe  = regexp.MustCompile(`(?i)^https?://.*\.(?:mp3|m4a|wav)(?:\?.*)?$`)
	nextDataRe   = regexp.MustCompile(`(?is)<script[^>]*id="__NEXT_DATA__"[^>]*>(.*?)</script>`)
	jsonURLKeyRe = regexp.MustCompile(`(?i)"(audioUrl|audio_url|url|source|src)"\s*:\s*"(https?://[^"]+)"`)
)

// directURLKeys are the fields a share API response may carry the audio
// URL under, in the order they are probed.
var directURLKeys = []string{"temp_url", "url", "fileUrl", "audioUrl", "downloadUrl"}

// Resolve returns a direct audio URL for rawURL, or rawURL itself when no
// strategy succeeds. Every attempt and failure is reported through logf.
func (r *Resolver) Resolve(ctx context.Context, rawURL string, logf func(string)) string {
	if !strings.Contains(rawURL, r.shareDomain) {
		return rawURL
	}
	logf("Resolving Plaud link ...")

	token := ""
	if m := shareTokenRe.FindStringSubmatch(rawURL); m != nil {
		token = m[1]
	}

	if token != "" {
		if u, ok := r.resolveTempLink(ctx, token, logf); ok {
			return u
		}
		if u, ok := r.resolveShareContent(ctx, token, logf); ok {
			return u
		}
	}

	if u, ok := r.resolveSharePage(ctx, rawURL, logf); ok {
		return u
	}
	return rawURL
}

// resolveTempLink calls the temp-link API and accepts either a structured
// JSON response with a direct-URL field or a raw-text body containing an
// audio URL.
func (r *Resolver) resolveTempLink(ctx context.Context, token string, logf func(string)) (string, bool) {
	body, ctype, err := r.get(ctx, r.apiBase+"/file/share-file-temp/"+token)
	if err != nil {
		logf(fmt.Sprintf("Plaud temp API failed: %v", err))
		return "", false
	}
	if strings.HasPrefix(ctype, "application/json") {
		var data map[string]any
		if json.Unmarshal(body, &data) == nil {
			for _, key := range directURLKeys {
				if val, ok := data[key].(string); ok && strings.HasPrefix(val, "http") {
					logf("Plaud API resolved (temp) -> " + val)
					return val, true
				}
			}
		}
		return "", false
	}
	if m := audioQueryRe.FindString(string(body)); m != "" {
		logf("Plaud API resolved (regex) -> " + m)
		return m, true
	}
	return "", false
}

// resolveShareContent calls the secondary share-content API and looks for
// direct-URL fields nested under a "data" wrapper.
func (r *Resolver) resolveShareContent(ctx context.Context, token string, logf func(string)) (string, bool) {
	body, _, err := r.get(ctx, r.apiBase+"/file/share-content/"+token)
	if err != nil {
		logf(fmt.Sprintf("Plaud content API failed: %v", err))
		return "", false
	}
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		logf(fmt.Sprintf("Plaud content API failed: %v", err))
		return "", false
	}
	inner := data
	if d, ok := data["data"].(map[string]any); ok {
		inner = d
	}
	for _, key := range []string{"fileUrl", "audioUrl", "url"} {
		if val, ok := inner[key].(string); ok && val != "" {
			logf("Plaud content API resolved -> " + val)
			return val, true
		}
	}
	return "", false
}

// resolveSharePage fetches the share page HTML and scans it three ways:
// literal audio links, the embedded __NEXT_DATA__ JSON blob, and generic
// JSON URL keys whose value ends in a known audio extension.
func (r *Resolver) resolveSharePage(ctx context.Context, rawURL string, logf func(string)) (string, bool) {
	body, _, err := r.get(ctx, rawURL)
	if err != nil {
		logf(fmt.Sprintf("Plaud resolution error: %v; using original URL", err))
		return "", false
	}
	page := string(body)

	if m := audioLinkRe.FindString(page); m != "" {
		logf("Plaud resolved (html) -> " + m)
		return m, true
	}

	if m := nextDataRe.FindStringSubmatch(page); m != nil {
		var data any
		if json.Unmarshal([]byte(html.UnescapeString(m[1])), &data) == nil {
			for _, s := range walkStrings(data) {
				dec := strings.ReplaceAll(s, `\u002F`, "/")
				if audioTailRe.MatchString(dec) {
					logf("Plaud resolved (next) -> " + dec)
					return dec, true
				}
			}
		}
	}

	for _, m := range jsonURLKeyRe.FindAllStringSubmatch(page, -1) {
		cand := strings.ReplaceAll(m[2], `\u002F`, "/")
		low := strings.ToLower(cand)
		if strings.HasSuffix(low, ".mp3") || strings.HasSuffix(low, ".m4a") || strings.HasSuffix(low, ".wav") {
			logf("Plaud resolved (json) -> " + cand)
			return cand, true
		}
	}

	logf("Plaud resolution failed; using original URL")
	return "", false
}

func (r *Resolver) get(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// walkStrings collects every string leaf of a decoded JSON value.
func walkStrings(v any) []string {
	var out []string
	switch t := v.(type) {
	case string:
		out = append(out, t)
	case map[string]any:
		for _, child := range t {
			out = append(out, walkStrings(child)...)
		}
	case []any:
		for _, child := range t {
			out = append(out, walkStrings(child)...)
		}
	}
	return out
}
