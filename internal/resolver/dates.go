package resolver

import (
	"context"
	"regexp"
	"strings"
	"time"
)

var (
	pageDateRe  = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})\s+\d{2}:\d{2}:\d{2}`)
	urlDateRes  = []*regexp.Regexp{
		regexp.MustCompile(`(\d{4}[-_]\d{2}[-_]\d{2})`),
		regexp.MustCompile(`(\d{8})`),
		regexp.MustCompile(`(\d{2}[-_]\d{2}[-_]\d{4})`),
		regexp.MustCompile(`(\d{4}[-/]\d{1,2}[-/]\d{1,2})`),
	}
	dateLayouts = []string{"2006-01-02", "20060102", "01-02-2006", "02-01-2006", "2006-1-2"}
)

// MeetingDate extracts a YYYY-MM-DD date from the URL, or from the share
// page for share-domain links. Best-effort: returns "" when nothing looks
// like a date.
func (r *Resolver) MeetingDate(ctx context.Context, rawURL string) string {
	if strings.Contains(rawURL, r.shareDomain) {
		if body, _, err := r.get(ctx, rawURL); err == nil {
			if m := pageDateRe.FindStringSubmatch(string(body)); m != nil {
				return m[1]
			}
		}
	}

	for _, re := range urlDateRes {
		m := re.FindStringSubmatch(rawURL)
		if m == nil {
			continue
		}
		raw := strings.NewReplacer("_", "-", "/", "-").Replace(m[1])
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.Format("2006-01-02")
			}
		}
	}
	return ""
}
