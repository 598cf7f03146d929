package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const goodbyePromptTemplate = `Analyze this user message to determine if they want to END or CLOSE their consultation session.

User message: "%s"

Look for goodbye indicators like:
- Thank you, thanks (when expressing gratitude for completion)
- Bye, goodbye, see you, farewell
- That's all, that's it, I'm done, finished
- End session, close, finish, stop, quit, exit
- No more questions, nothing else, all set
- Perfect, great, awesome (when indicating satisfaction and closure)

Respond with ONLY "YES" if they want to end the session, or "NO" if they want to continue.

Response:`

var goodbyeKeywords = []string{
	"thank you", "thanks", "bye", "goodbye", "farewell",
	"that's all", "that's it", "i'm done", "finished",
	"end session", "quit", "exit", "no more",
}

// DetectGoodbye reports whether the user is ending the session. LLM-based
// with a keyword fallback.
func (a *Analyzer) DetectGoodbye(ctx context.Context, userMessage string) bool {
	if strings.TrimSpace(userMessage) == "" {
		return false
	}

	if a.completer != nil {
		raw, err := a.completer.Complete(ctx, fmt.Sprintf(goodbyePromptTemplate, userMessage))
		if err == nil {
			upper := strings.ToUpper(strings.TrimSpace(raw))
			return strings.Contains(upper, "YES") && !strings.Contains(upper, "NO")
		}
		slog.Debug("Goodbye detection LLM call failed, using keyword fallback", "error", err)
	}

	lower := strings.ToLower(userMessage)
	for _, kw := range goodbyeKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
