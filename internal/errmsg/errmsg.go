// Package errmsg formats planner/executor errors (internal/outfiterr) into
// actionable text with possible causes and suggestions.
package errmsg

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/outfit-dev/outfit/internal/outfiterr"
)

// ErrorContext provides additional context for error formatting.
type ErrorContext struct {
	ToolName string // The tool being resolved/installed (for suggestions)
}

// Format returns a formatted error message with possible causes and
// suggestions. ctx is optional - pass nil for generic formatting.
func Format(err error, ctx *ErrorContext) string {
	if err == nil {
		return ""
	}

	var plannerErr *outfiterr.Error
	if errors.As(err, &plannerErr) {
		return formatPlannerError(plannerErr, ctx)
	}

	errMsg := err.Error()

	if isRateLimitError(errMsg) {
		return formatRateLimitError(errMsg, ctx)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return formatNetworkError(netErr, ctx)
	}

	if isNetworkError(errMsg) {
		return formatGenericNetworkError(errMsg)
	}

	if isNotFoundError(errMsg) {
		return formatNotFoundError(errMsg, ctx)
	}

	if isPermissionError(errMsg) {
		return formatPermissionError(errMsg)
	}

	return errMsg
}

func formatPlannerError(err *outfiterr.Error, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	switch err.Kind {
	case outfiterr.KindUnknownTool:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - Typo in the tool identifier\n")
		sb.WriteString("  - No recipe registered for this tool\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Check the spelling of the tool id\n")
		sb.WriteString("  - List available recipes via the recipe registry\n")

	case outfiterr.KindNoViableMethod:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - None of the recipe's install methods are available on this host\n")
		sb.WriteString("  - Required package manager or runtime is missing\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Inspect the per-candidate disqualification reasons in error details\n")
		sb.WriteString("  - Install a prerequisite package manager or runtime\n")

	case outfiterr.KindNoAvailableOption:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - Every option in this choice is disabled for the current profile\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Review each option's disabled_reason for what's missing\n")

	case outfiterr.KindDependencyCycle:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - Two or more recipes declare each other as dependencies\n")
		sb.WriteString("  - satisfies_self is missing on a recipe that should declare it\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Inspect the cycle path in error details\n")
		sb.WriteString("  - Add satisfies_self to the recipe that legitimately provides its own dependency\n")

	case outfiterr.KindTemplateUnresolved:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - A template referenced a variable with no bound input or built-in\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Check the unresolved keys listed in error details\n")

	case outfiterr.KindToolchainMissing:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - build_from_source requires a toolchain not present on this host\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Install the missing compiler/toolchain, or choose a non-source method\n")

	case outfiterr.KindResourceInsufficient:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - Disk or RAM estimate for a source build exceeds what's available\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Free up disk space or choose a binary/package-manager method instead\n")

	case outfiterr.KindNetwork, outfiterr.KindNetworkTimeout, outfiterr.KindRegistryUnreachable:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - Network connectivity issue or registry outage\n")
		sb.WriteString("  - Rate limiting on an unauthenticated API request\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Check your internet connection and retry\n")
		sb.WriteString("  - Set GITHUB_TOKEN to raise GitHub API rate limits\n")

	case outfiterr.KindSudoRequired, outfiterr.KindSudoDenied:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - The sudo session needed a password and none was supplied in time\n")
		sb.WriteString("  - The account lacks sudo privileges for this command\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Respond to the sudo_prompt event promptly, or run with passwordless sudo configured\n")

	case outfiterr.KindPMLockConflict:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - Another step is holding the same package-manager lock\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - This is retried automatically with backoff; no action needed\n")

	case outfiterr.KindExitNonzero:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - The underlying command failed\n")
		sb.WriteString("\nSuggestions:\n")
		if ctx != nil && ctx.ToolName != "" {
			sb.WriteString(fmt.Sprintf("  - Inspect the step's output_tail for %s\n", ctx.ToolName))
		} else {
			sb.WriteString("  - Inspect the step's output_tail for details\n")
		}

	case outfiterr.KindTimeout:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - The step exceeded its timeout_sec\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Re-run with a longer timeout if the underlying operation is just slow\n")

	default:
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Try again; if it persists this may indicate a recipe defect\n")
	}

	return sb.String()
}

func formatRateLimitError(errMsg string, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")
	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - Too many requests to the API\n")
	sb.WriteString("  - Unauthenticated requests have lower limits\n")
	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Set GITHUB_TOKEN environment variable to increase rate limit\n")
	sb.WriteString("  - Wait a few minutes before retrying\n")
	return sb.String()
}

func formatNetworkError(err net.Error, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")
	sb.WriteString("\nPossible causes:\n")
	if err.Timeout() {
		sb.WriteString("  - Request timed out\n")
		sb.WriteString("  - Slow or unstable network connection\n")
	} else {
		sb.WriteString("  - Network connectivity issue\n")
		sb.WriteString("  - DNS resolution failure\n")
	}
	sb.WriteString("  - Firewall or proxy blocking the connection\n")
	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check your internet connection\n")
	sb.WriteString("  - Try again in a few minutes\n")
	return sb.String()
}

func formatGenericNetworkError(errMsg string) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")
	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - Network connectivity issue\n")
	sb.WriteString("  - DNS resolution failure\n")
	sb.WriteString("  - Service temporarily unavailable\n")
	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check your internet connection\n")
	sb.WriteString("  - Try again in a few minutes\n")
	return sb.String()
}

func formatNotFoundError(errMsg string, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")
	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - Recipe does not exist in the registry\n")
	sb.WriteString("  - Typo in the tool name\n")
	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check the spelling of the tool name\n")
	if ctx != nil && ctx.ToolName != "" {
		sb.WriteString(fmt.Sprintf("  - Confirm %q is registered in the recipe registry\n", ctx.ToolName))
	}
	return sb.String()
}

func formatPermissionError(errMsg string) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")
	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - Insufficient permissions on $OUTFIT_HOME directory\n")
	sb.WriteString("  - File or directory owned by a different user\n")
	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check permissions on ~/.outfit\n")
	return sb.String()
}

func isRateLimitError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "rate-limit") ||
		strings.Contains(lower, "too many requests")
}

func isNetworkError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "network is unreachable") ||
		strings.Contains(lower, "dial tcp") ||
		strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "i/o timeout")
}

func isNotFoundError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "not found") ||
		strings.Contains(lower, "404") ||
		strings.Contains(lower, "does not exist")
}

func isPermissionError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "access denied") ||
		strings.Contains(lower, "operation not permitted")
}
