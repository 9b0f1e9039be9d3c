package title

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFromSummary(t *testing.T) {
	cases := []struct {
		name    string
		summary string
		want    string
	}{
		{"empty", "", ""},
		{"labeled topic", "Topic: Q3 roadmap review\nDetails follow.", "Q3 roadmap review"},
		{"labeled subject", "Subject: Hiring plan sync\nmore text", "Hiring plan sync"},
		{"markdown header stripped", "## Overview: Budget planning\nbody", "Budget planning"},
		{"capitalized sentence span", "The team discussed rollout timing.\nmore", "The team discussed rollout timing"},
		{"first meaningful line", "- quick sync about onboarding flow", "- quick sync about onboarding flow"},
		{"nothing usable", "ok\nhi\nyes", "Meeting Summary"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractFromSummary(tc.summary))
		})
	}
}

func TestExtractFromSummary_Truncation(t *testing.T) {
	long := "Topic: " + strings.Repeat("a", 80) + "\nbody"
	got := ExtractFromSummary(long)
	assert.Len(t, got, 50)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestExtractFromSummary_MultibyteTruncation(t *testing.T) {
	long := "Topic: " + strings.Repeat("é", 80) + "\nbody"
	got := ExtractFromSummary(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 50, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestFromSummary_Unconfigured(t *testing.T) {
	g := New("", "", "gpt-4o-mini", "")
	assert.Equal(t, "", g.FromSummary(context.Background(), ""))
	assert.Equal(t, "Q3 roadmap review", g.FromSummary(context.Background(), "Topic: Q3 roadmap review"))
}

func titleServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 0.3, req.Temperature)
		assert.Equal(t, 20, req.MaxTokens)
		require.Len(t, req.Messages, 2)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
}

func TestFromSummary_ModelResultStripsQuotes(t *testing.T) {
	srv := titleServer(t, `  "Weekly Planning Sync"  `)
	defer srv.Close()

	g := New("test-key", srv.URL, "gpt-4o-mini", "")
	got := g.FromSummary(context.Background(), "Topic: something else entirely")
	assert.Equal(t, "Weekly Planning Sync", got)
}

func TestFromSummary_MultibyteModelResultAccepted(t *testing.T) {
	// 55 runes but 110 bytes; the length cap counts runes
	srv := titleServer(t, strings.Repeat("ü", 55))
	defer srv.Close()

	g := New("test-key", srv.URL, "gpt-4o-mini", "")
	got := g.FromSummary(context.Background(), "Topic: something else")
	assert.Equal(t, strings.Repeat("ü", 55), got)
}

func TestFromSummary_OverlongModelResultFallsBack(t *testing.T) {
	srv := titleServer(t, strings.Repeat("x", 80))
	defer srv.Close()

	g := New("test-key", srv.URL, "gpt-4o-mini", "")
	got := g.FromSummary(context.Background(), "Topic: fallback title")
	assert.Equal(t, "fallback title", got)
}

func TestFromSummary_EndpointErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := New("test-key", srv.URL, "gpt-4o-mini", "")
	got := g.FromSummary(context.Background(), "Topic: fallback title")
	assert.Equal(t, "fallback title", got)
}
