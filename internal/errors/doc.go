// Package errors defines the error taxonomy for the assistant service.
//
// Tool-level failures (unavailable, timeout, execution, invalid args) are
// recoverable: the tool router converts them to structured results that are
// surfaced to the model as tool output. Upstream completion failures and
// server-process failures are terminal for the affected turn or connection
// but never take down unrelated conversations or connections.
package errors
