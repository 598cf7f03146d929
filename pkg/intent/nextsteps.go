package intent

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
)

var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*?\]`)

// NextSteps runs the given next-steps prompt and returns the parsed step
// list. Empty on any failure; callers supply their own fallback.
func (a *Analyzer) NextSteps(ctx context.Context, prompt string) []string {
	if a.completer == nil {
		return nil
	}
	raw, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		slog.Debug("Next steps LLM call failed", "error", err)
		return nil
	}
	return ParseNextSteps(raw)
}

// ParseNextSteps extracts a list of step strings from a model response: a
// JSON array when present, bullet or numbered lines otherwise.
func ParseNextSteps(response string) []string {
	if blob := jsonArrayPattern.FindString(response); blob != "" {
		var steps []string
		if err := json.Unmarshal([]byte(blob), &steps); err == nil {
			return steps
		}
	}

	var steps []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		for _, prefix := range []string{"•", "-", "*", "1.", "2.", "3."} {
			if strings.HasPrefix(line, prefix) {
				if step := strings.TrimSpace(strings.TrimPrefix(line, prefix)); step != "" {
					steps = append(steps, step)
				}
				break
			}
		}
	}
	return steps
}
