package orchestrator

import (
	"fmt"
	"strings"

	"github.com/deskpilot/deskpilot/pkg/desktop"
)

// multiStepIndicators mark a user message as a chained instruction. The
// bare comma is deliberate: "take a screenshot, open Safari" carries no
// other connective. False positives cost at most one extra model call
// because continuation runs at most once per inbound message.
var multiStepIndicators = []string{
	"then",
	"after",
	"next",
	"first",
	"finally",
	"and also",
	",",
}

func hasMultiStepIndicators(message string) bool {
	lower := strings.ToLower(message)
	for _, indicator := range multiStepIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// isScreenshotTool matches both the remote server's screen-capture tool and
// the local backend's short name.
func isScreenshotTool(name string) bool {
	return name == "screenshot" || strings.HasSuffix(name, "get_screen")
}

// shouldContinue reports whether the first batch looks like an interrupted
// multi-step plan: the message chained steps, yet the model stopped after a
// single successful screenshot.
func shouldContinue(message string, results []*desktop.ToolResult) bool {
	if len(results) != 1 {
		return false
	}
	r := results[0]
	return r.Success && isScreenshotTool(r.ToolName) && hasMultiStepIndicators(message)
}

// continuationPrompt re-prompts the model with what is already done so it
// produces the next concrete action instead of stopping at the screenshot.
func continuationPrompt(original string) string {
	return fmt.Sprintf(
		"I captured the screenshot. The original request was: %q. Continue with the remaining steps now, calling the tools needed for the next action.",
		original,
	)
}
