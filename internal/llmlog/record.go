package llmlog

import (
	"fmt"
	"regexp"
	"time"
)

type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Record is one generator round trip as stored for the log browser.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	Op        string `json:"op"`
	Route     string `json:"route,omitempty"`
	StoryID   string `json:"story_id,omitempty"`
	WorldID   string `json:"world_id,omitempty"`
	Day       int    `json:"day"`
	Revision  int    `json:"revision,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Model      string `json:"model"`
	Prompt     string `json:"prompt"`
	Response   string `json:"response,omitempty"`
	Status     Status `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	TokensIn   int    `json:"tokens_in,omitempty"`
	TokensOut  int    `json:"tokens_out,omitempty"`
}

var (
	apiKeyPattern = regexp.MustCompile(`sk-[A-Za-z0-9_-]{8,}`)
	tokenPattern  = regexp.MustCompile(`\b[A-Za-z0-9]{32,}\b`)
)

// Redact masks credential-shaped substrings. Applied to every stored body so
// a leaked prompt or error message never carries a usable key.
func Redact(s string) string {
	s = apiKeyPattern.ReplaceAllString(s, "sk-***")
	return tokenPattern.ReplaceAllString(s, "***")
}

// Truncate bounds a body to limit runes, appending a marker with the
// original length when anything was cut.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + fmt.Sprintf("…[truncated, %d chars total]", len(r))
}
