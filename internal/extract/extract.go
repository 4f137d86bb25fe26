// Package extract pulls structured content out of raw LLM responses.
// Models wrap code in markdown fences, prepend chatty preambles, and bury
// JSON inside prose; everything here is a pure function so the cleanup
// rules can be tested against fixtures without touching a model.
package extract

import (
	"fmt"
	"strings"
)

// FirstJSONObject returns the first balanced top-level JSON object in s.
// It is string- and escape-aware, so braces inside string values don't
// confuse the depth count.
func FirstJSONObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], nil
				}
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in response")
}

// StripCodeFences removes markdown code fences and incidental preamble from
// a response that should be raw file content. Cleanup happens in stages:
// drop prose lines before the opening fence, drop the fence markers
// themselves, then drop trailing prose after the closing fence. Responses
// without fences pass through with only outer whitespace trimmed.
func StripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}

	lines := strings.Split(trimmed, "\n")

	open := -1
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			open = i
			break
		}
	}
	if open == -1 {
		return stripPreamble(trimmed)
	}

	closing := -1
	for i := len(lines) - 1; i > open; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			closing = i
			break
		}
	}
	if closing == -1 {
		// Opening fence with no close: keep everything after it.
		return strings.Join(lines[open+1:], "\n")
	}
	return strings.Join(lines[open+1:closing], "\n")
}

// stripPreamble removes leading heading or chatty intro lines from unfenced
// content. Only a short prefix is considered; real file content that happens
// to start with a comment or shebang is left alone.
func stripPreamble(s string) string {
	lines := strings.Split(s, "\n")
	drop := 0
	for drop < len(lines) && drop < 3 {
		line := strings.TrimSpace(lines[drop])
		if line == "" || isChattyIntro(line) || isHeading(lines, drop) {
			drop++
			continue
		}
		break
	}
	if drop == 0 {
		return s
	}
	return strings.TrimSpace(strings.Join(lines[drop:], "\n"))
}

// isHeading reports whether line i is a markdown heading introducing the
// content below: hash-prefixed, not a shebang, and set off from what
// follows by a blank line. A comment block running straight into code is
// file content, not a heading.
func isHeading(lines []string, i int) bool {
	line := strings.TrimSpace(lines[i])
	if !strings.HasPrefix(line, "#") || strings.HasPrefix(line, "#!") {
		return false
	}
	return i+1 >= len(lines) || strings.TrimSpace(lines[i+1]) == ""
}

var introPrefixes = []string{
	"here is",
	"here's",
	"sure,",
	"certainly",
	"below is",
	"the updated file",
	"the complete file",
	"i have",
	"i've",
}

// isChattyIntro reports whether a line looks like model small talk rather
// than file content.
func isChattyIntro(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range introPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}
