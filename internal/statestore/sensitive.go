package statestore

import (
	"regexp"
	"strings"

	"github.com/outfit-dev/outfit/internal/plan"
)

const redacted = "[REDACTED]"

var sensitiveKeyPattern = regexp.MustCompile(`(?i)token|password|secret`)

// sudoPromptPattern matches the sudo password prompt text that can end up
// in a step's captured output tail (e.g. "[sudo] password for alice:").
var sudoPromptPattern = regexp.MustCompile(`(?i)\[sudo\] password for [^\n:]*:?|^password:`)

// stripSensitive returns a deep copy of state with answer/input values
// whose key matches *token*/*password*/*secret* redacted, and any sudo
// password prompt text scrubbed from step output tails, before the State
// Store ever writes bytes to disk (§4.9).
func stripSensitive(state *plan.PlanState) *plan.PlanState {
	out := *state
	if state.Plan != nil {
		p := *state.Plan
		p.Answers = stripAnswers(state.Plan.Answers)
		p.Inputs = stripInputs(state.Plan.Inputs)
		out.Plan = &p
	}

	results := make([]plan.StepResult, len(state.Results))
	for i, r := range state.Results {
		r.OutputTail = stripOutputTail(r.OutputTail)
		results[i] = r
	}
	out.Results = results
	return &out
}

func stripAnswers(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		if sensitiveKeyPattern.MatchString(k) {
			out[k] = redacted
			continue
		}
		out[k] = v
	}
	return out
}

func stripInputs(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if sensitiveKeyPattern.MatchString(k) {
			out[k] = redacted
			continue
		}
		out[k] = v
	}
	return out
}

func stripOutputTail(tail string) string {
	if tail == "" {
		return tail
	}
	lines := strings.Split(tail, "\n")
	for i, line := range lines {
		if sudoPromptPattern.MatchString(line) {
			lines[i] = redacted
		}
	}
	return strings.Join(lines, "\n")
}
