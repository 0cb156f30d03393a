// Package engine implements the Execution Engine (component I, spec §4.8):
// a DAG scheduler that runs a plan's steps with bounded parallelism, per-PM
// exclusive locks, sudo session management, streamed output, timeouts,
// retries, cancellation, and partial-success propagation.
package engine

import "github.com/outfit-dev/outfit/internal/plan"

// EventKind names the shape of an Event's payload.
type EventKind string

const (
	EventStepStarted   EventKind = "step_started"
	EventStepOutput    EventKind = "step_output"
	EventStepRetrying  EventKind = "step_retrying"
	EventStepFinished  EventKind = "step_finished"
	EventSudoPrompt    EventKind = "sudo_prompt"
	EventPlanFinished  EventKind = "plan_finished"
)

// Event is one item emitted to the Sink while a plan runs (§4.8, §5).
// Events for a given step are emitted in source order. A step's finished
// event is emitted as each attempt ends, before the scheduler records the
// step's result and calls its result callback, so a sink can receive it
// before the State Store has saved that result.
type Event struct {
	Kind     EventKind
	StepID   string
	Stream   string // "stdout" | "stderr", for EventStepOutput
	Line     string
	Status   plan.StepStatus
	ErrorKind string
	Attempt  int
}

// Sink receives engine events and, for sudo prompts, supplies the
// password back through AwaitSudoPassword.
type Sink interface {
	Emit(Event)
	// AwaitSudoPassword blocks until a password is supplied for the given
	// step or the context is cancelled/times out.
	AwaitSudoPassword(stepID string) (string, error)
}

// NoopSink discards all events and fails every sudo prompt immediately,
// suitable for unattended or test runs with no sudo steps.
type NoopSink struct{}

func (NoopSink) Emit(Event) {}
func (NoopSink) AwaitSudoPassword(string) (string, error) {
	return "", errSudoUnattended
}
