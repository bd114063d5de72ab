// internal/oracle/parse.go
package oracle

import (
	"fmt"
	"regexp"
	"strings"
)

// Pre-compiled regex to extract JSON from markdown code blocks.
var jsonBlockRegex = regexp.MustCompile(fmt.Sprintf("(?s)%s(?:json)?\\s*(.*?)\\s*%s", "```", "```"))

// extractJSON pulls a JSON object out of a raw model response. Models often
// wrap output in markdown fences despite being asked for bare JSON, so try
// a fenced block first, then fall back to the outermost brace pair.
func extractJSON(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("response is empty")
	}

	if matches := jsonBlockRegex.FindStringSubmatch(trimmed); len(matches) > 1 {
		candidate := strings.TrimSpace(matches[1])
		if candidate != "" {
			return candidate, nil
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return trimmed[start : end+1], nil
}
