// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// \x60 is a backtick; raw strings cannot hold one.

	// fencedRegex captures the body of a fenced block with any info string.
	fencedRegex = regexp.MustCompile("(?s)^\x60\x60\x60[a-zA-Z]*[ \t]*\n?(.*?)\\s*\x60\x60\x60\\s*$")
)

// ParseJSONResponse parses a model response into T. It accepts the JSON
// wrapped in a fenced block or surrounded by conversational text.
func ParseJSONResponse[T any](response string) (*T, error) {
	payload := extractJSON(StripFence(response))

	var result T
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, Truncate(payload, 500))
	}
	return &result, nil
}

// extractJSON cuts the outermost object or array out of s, whichever starts
// first.
func extractJSON(s string) string {
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end <= start {
		return s
	}
	return s[start : end+1]
}

// StripFence removes one enclosing fenced code block, as models like to wrap
// whole answers in ```markdown or ```json.
func StripFence(content string) string {
	content = strings.TrimSpace(content)
	if m := fencedRegex.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return content
}

// Truncate shortens s to at most maxLen bytes without splitting a rune.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 0 {
		return ""
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
