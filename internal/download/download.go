package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	chunkSize        = 256 * 1024
	progressInterval = 100 * time.Millisecond
)

// ContentTypeError reports a response that is neither audio-like nor
// octet-stream for a URL without a recognizable audio extension. It is
// fatal to the download stage.
type ContentTypeError struct {
	ContentType string
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("URL did not resolve to audio content-type (got '%s')", e.ContentType)
}

// Downloader streams remote audio to local files named by job id.
type Downloader struct {
	http    *http.Client
	dataDir string
}

func New(dataDir string) *Downloader {
	return &Downloader{
		http:    &http.Client{Timeout: 10 * time.Minute},
		dataDir: dataDir,
	}
}

// Download streams url to <dataDir>/<jobID><ext> and returns the final
// path. Progress lines go through logf at most every 100ms; the terminal
// progress line is always emitted.
func (d *Downloader) Download(ctx context.Context, jobID, url string, logf func(string)) (string, error) {
	logf("Downloading audio ...")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "FocusFlow/mini")
	resp, err := d.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	ctype := strings.ToLower(resp.Header.Get("Content-Type"))
	ext := GuessExt(url, ctype)
	if !strings.Contains(ctype, "audio") && !strings.Contains(ctype, "octet-stream") &&
		ext != ".mp3" && ext != ".m4a" && ext != ".wav" {
		return "", &ContentTypeError{ContentType: ctype}
	}

	if err := os.MkdirAll(d.dataDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(d.dataDir, jobID+ext)
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}

	total := resp.ContentLength
	var done int64
	var lastEmit time.Time
	buf := make([]byte, chunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				return "", werr
			}
			done += int64(n)
			if time.Since(lastEmit) > progressInterval {
				lastEmit = time.Now()
				logf(progressLine(done, total))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			return "", readErr
		}
	}
	if err := out.Close(); err != nil {
		return "", err
	}

	// final progress line is never throttled away
	logf(progressLine(done, total))
	return path, nil
}

func progressLine(done, total int64) string {
	if total > 0 {
		return fmt.Sprintf("download: %d/%d bytes (%.1f%%)", done, total, float64(done)/float64(total)*100)
	}
	return fmt.Sprintf("download: %d/? bytes (0.0%%)", done)
}

// GuessExt infers a file extension from the URL first, then the
// content-type token, defaulting to .bin.
func GuessExt(url, ctype string) string {
	low := strings.ToLower(url)
	switch {
	case strings.Contains(low, ".mp3"):
		return ".mp3"
	case strings.Contains(low, ".m4a"):
		return ".m4a"
	case strings.Contains(low, ".wav"):
		return ".wav"
	}
	switch {
	case strings.Contains(ctype, "mpeg"):
		return ".mp3"
	case strings.Contains(ctype, "wav"):
		return ".wav"
	case strings.Contains(ctype, "mp4"), strings.Contains(ctype, "mp4a"), strings.Contains(ctype, "aac"):
		return ".m4a"
	}
	return ".bin"
}
