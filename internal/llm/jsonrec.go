package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a completion yields no parseable JSON after the
// full recovery sequence. Runs abort on it.
var ErrNoJSON = errors.New("completion contains no parseable JSON")

var fencedBlockRe = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)```")

// FirstJSON recovers the first parseable JSON value from free-form completion
// text. Candidates are tried in a fixed order so recovery is deterministic
// for a given input: the trimmed text itself, then every fenced code block in
// order of appearance, then every balanced {...} or [...] substring found by
// scanning.
func FirstJSON(content string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty response", ErrNoJSON)
	}

	candidates := []string{trimmed}
	for _, m := range fencedBlockRe.FindAllStringSubmatch(trimmed, -1) {
		if body := strings.TrimSpace(m[1]); body != "" {
			candidates = append(candidates, body)
		}
	}
	candidates = append(candidates, balancedCandidates(trimmed)...)

	for _, candidate := range candidates {
		var probe any
		if err := json.Unmarshal([]byte(candidate), &probe); err == nil {
			return json.RawMessage(candidate), nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNoJSON, truncate(trimmed, 400))
}

// Decode recovers the first JSON value and unmarshals it into v.
func Decode(content string, v any) error {
	raw, err := FirstJSON(content)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding recovered JSON: %w", err)
	}
	return nil
}

// balancedCandidates returns every substring starting at a '{' or '[' whose
// balanced closing counterpart exists, in order of the opening position.
func balancedCandidates(content string) []string {
	var results []string
	for i := 0; i < len(content); i++ {
		ch := content[i]
		if ch != '{' && ch != '[' {
			continue
		}
		if end := findBalancedEnd(content, i); end != -1 {
			results = append(results, content[i:end+1])
		}
	}
	return results
}

// findBalancedEnd walks the text from the opener at start, tracking nesting
// depth while skipping everything inside double-quoted strings (honoring
// backslash escapes). Returns -1 when the text ends before depth reaches 0.
func findBalancedEnd(content string, start int) int {
	opener := content[start]
	closer := byte('}')
	if opener == '[' {
		closer = ']'
	}

	depth := 0
	inString := false
	escaping := false

	for i := start; i < len(content); i++ {
		ch := content[i]

		if inString {
			switch {
			case escaping:
				escaping = false
			case ch == '\\':
				escaping = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
			continue
		case opener:
			depth++
		case closer:
			depth--
		}

		if depth == 0 {
			return i
		}
	}
	return -1
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
