// Package errors provides standardized error handling patterns for symbolws components.
//
// # Overview
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid (caller
// misuse or malformed input, never retried) and Fatal (unrecoverable, stop processing).
// The subscription client maps its error taxonomy onto these classes:
//
//   - Transport errors and liveness violations: Transient, recovered by reconnecting
//   - Protocol violations (malformed frames): Invalid, logged and dropped
//   - Caller misuse (subscribe before connect, bad pick count, unknown network): Invalid
//   - Use after Close: Fatal
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Directory", "Refresh", "fetch nodes")
//	errors.WrapInvalid(err, "Codec", "Decode", "unmarshal frame")
//	errors.WrapFatal(err, "Client", "Connect", "dial")
//
// The generic Wrap() function keeps the classification of the wrapped error:
//
//	errors.Wrap(errors.ErrEmptyCache, "Directory", "PickOne", "select node")
//
// # Standard Error Variables
//
// Use the package variables for known conditions so callers can match with errors.Is:
//
//	if errors.Is(err, errors.ErrNotConnected) {
//	    // wait for the open event before subscribing
//	}
package errors
