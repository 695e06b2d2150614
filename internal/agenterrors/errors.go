// Package agenterrors collects the closed set of error kinds named in
// spec.md §7, as sentinel errors to be wrapped with context via
// fmt.Errorf("...: %w", ...) and matched with errors.Is.
package agenterrors

import "errors"

var (
	// ErrSchemaInvalid: tool input failed JSON-Schema validation. Recovered
	// locally — the run loop feeds the error text back as the tool output.
	ErrSchemaInvalid = errors.New("invalid tool input")

	// ErrToolRuntime: a tool raised during execution. The registry returns
	// it; the turn loop's dispatch converts it to a string tool output, so
	// it never aborts the run.
	ErrToolRuntime = errors.New("tool runtime failure")

	// ErrHistoryInvariant: an attempt to append the wrong kind of turn.
	// Fatal — aborts the run.
	ErrHistoryInvariant = errors.New("history invariant violated")

	// ErrMultipleToolCalls: the assistant emitted more than one tool call
	// in a single turn. Fatal — aborts the run.
	ErrMultipleToolCalls = errors.New("assistant emitted multiple tool calls in one turn")

	// ErrMaxTurnsExceeded: the turn-loop budget was exhausted. Recovered —
	// the loop emits a diagnostic AgentResponse and returns.
	ErrMaxTurnsExceeded = errors.New("agent did not complete after max turns")

	// ErrInterrupted: cancellation was observed at a suspension point.
	// Recovered — the loop emits an AgentResponse and returns; history
	// remains resumable.
	ErrInterrupted = errors.New("run was interrupted")

	// ErrPathEscape: a tool path resolved outside the workspace root.
	// Recovered — the tool returns a fixed diagnostic.
	ErrPathEscape = errors.New("path escapes workspace root")

	// ErrProvider: the model API failed after internal retries. Fatal.
	ErrProvider = errors.New("llm provider error")

	// ErrPersistence: a database write failed. Logged; never blocks the
	// turn loop.
	ErrPersistence = errors.New("persistence error")
)
