// Package retry provides exponential backoff retry logic for transient failures.
//
// # Overview
//
// Two shapes are offered:
//
//   - Do / DoWithResult run a bounded number of attempts, used for node directory
//     refreshes and price API calls.
//   - Backoff computes delays for an unbounded attempt sequence, used by the
//     subscription client between reconnects.
//
// Errors classified as invalid or fatal by the errors package, or wrapped with
// NonRetryable, stop Do immediately.
//
// # Usage
//
//	nodes, err := retry.DoWithResult(ctx, retry.Quick(), func() ([]Node, error) {
//	    return fetch(ctx)
//	})
//
//	delay := retry.DefaultBackoff().Delay(attempt)
//	if err := retry.Sleep(ctx, delay); err != nil {
//	    return err
//	}
//
// # Context Cancellation
//
// All waits respect context cancellation.
package retry
