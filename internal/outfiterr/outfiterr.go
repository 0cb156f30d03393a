// Package outfiterr defines the error taxonomy shared by every planner and
// executor component (spec §7): a closed set of machine-readable kinds,
// each tagged resolution-time or runtime, with a uniform wrapper type.
package outfiterr

import "fmt"

// Kind is one of the closed taxonomy of error kinds from §7.
type Kind string

// Resolution-time kinds abort plan creation and surface as PlanResponse.kind:"error".
const (
	KindUnknownTool          Kind = "unknown_tool"
	KindNoViableMethod       Kind = "no_viable_method"
	KindNoAvailableOption    Kind = "no_available_option"
	KindDependencyCycle      Kind = "dependency_cycle"
	KindTemplateUnresolved   Kind = "template_unresolved"
	KindToolchainMissing     Kind = "toolchain_missing"
	KindResourceInsufficient Kind = "resource_insufficient"
)

// Runtime kinds surface during execution, each with its own retry policy.
const (
	KindNetwork             Kind = "network"
	KindNetworkTimeout      Kind = "network_timeout"
	KindRegistryUnreachable Kind = "registry_unreachable"
	KindSudoRequired        Kind = "sudo_required"
	KindSudoDenied          Kind = "sudo_denied"
	KindPMLockConflict      Kind = "pm_lock_conflict"
	KindExitNonzero         Kind = "exit_nonzero"
	KindTimeout             Kind = "timeout"
	KindCancelled           Kind = "cancelled"
	KindDepFailed           Kind = "dep_failed"
)

// resolutionTimeKinds is used by IsResolutionTime.
var resolutionTimeKinds = map[Kind]bool{
	KindUnknownTool:          true,
	KindNoViableMethod:       true,
	KindNoAvailableOption:    true,
	KindDependencyCycle:      true,
	KindTemplateUnresolved:   true,
	KindToolchainMissing:     true,
	KindResourceInsufficient: true,
}

// retryableKinds lists runtime kinds eligible for a step's retry policy (§7, §4.8).
var retryableKinds = map[Kind]bool{
	KindNetwork:             true,
	KindNetworkTimeout:      true,
	KindRegistryUnreachable: true,
	KindPMLockConflict:      true,
	KindTimeout:             true,
}

// IsResolutionTime reports whether k aborts plan creation rather than execution.
func IsResolutionTime(k Kind) bool { return resolutionTimeKinds[k] }

// IsRetryable reports whether a runtime error of this kind should be retried
// per a step's retry.max policy (§4.8, §7). KindCancelled is terminal, not
// an error, and is never retryable. KindDepFailed is a propagated skip, not
// a thing to retry.
func IsRetryable(k Kind) bool { return retryableKinds[k] }

// Error wraps an error with a taxonomy Kind, free-form details, and an
// optional underlying cause, following the structured-error pattern the
// teacher's version.ResolverError uses for errors.As-based dispatch.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

// New constructs an *Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetail returns e with an additional detail key set, for chaining at
// construction time (e.g. the dependency_cycle path, or per-candidate
// no_viable_method disqualification reasons).
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap enables errors.As/errors.Is against the wrapped cause.
func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether this specific error should be retried.
func (e *Error) Retryable() bool { return IsRetryable(e.Kind) }
