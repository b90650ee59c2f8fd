// Package staleness detects dead or lagging nodes: no frame within the response
// timeout, or a block whose timestamp is too far from wall clock in either direction.
package staleness

import (
	"time"

	"github.com/c360/symbolws/network"
	"github.com/c360/symbolws/protocol"
)

// Verdict is the outcome of a block lag check.
type Verdict int

// Block lag verdicts.
const (
	VerdictOK Verdict = iota
	VerdictStale
	VerdictFuture
)

func (v Verdict) String() string {
	switch v {
	case VerdictStale:
		return "stale"
	case VerdictFuture:
		return "future"
	default:
		return "ok"
	}
}

// CloseCode maps a failing verdict to the close code the client sends. VerdictOK maps to 0.
func (v Verdict) CloseCode() protocol.CloseCode {
	switch v {
	case VerdictStale:
		return protocol.CloseStaleBlock
	case VerdictFuture:
		return protocol.CloseFutureBlock
	default:
		return 0
	}
}

// Policy bounds the accepted block lag: (-FutureTolerance, MaxLag].
type Policy struct {
	MaxLag          time.Duration
	FutureTolerance time.Duration
}

// PolicyFor returns the lag policy of a network.
func PolicyFor(n network.Network) Policy {
	return Policy{MaxLag: n.MaxBlockLag, FutureTolerance: n.FutureTolerance}
}

// ResponseTimedOut reports whether more than timeout has passed since lastFrame.
func ResponseTimedOut(lastFrame, now time.Time, timeout time.Duration) bool {
	return now.Sub(lastFrame) > timeout
}

// BlockLag returns now - (epoch + timestamp). Negative lag means the block claims
// to come from the future.
func BlockLag(epoch time.Time, timestampMs uint64, now time.Time) time.Duration {
	blockTime := epoch.Add(time.Duration(timestampMs) * time.Millisecond)
	return now.Sub(blockTime)
}

// CheckBlock classifies a lag sample against the policy.
func CheckBlock(lag time.Duration, p Policy) Verdict {
	if lag > p.MaxLag {
		return VerdictStale
	}
	if lag < -p.FutureTolerance {
		return VerdictFuture
	}
	return VerdictOK
}

// BlockChecker binds a network epoch and policy for repeated checks.
type BlockChecker struct {
	epoch  time.Time
	policy Policy
}

// NewBlockChecker resolves the epoch and policy of n once.
func NewBlockChecker(n network.Network) BlockChecker {
	return BlockChecker{epoch: n.Epoch, policy: PolicyFor(n)}
}

// Check returns the lag of a block timestamp at now and its verdict.
func (c BlockChecker) Check(timestampMs uint64, now time.Time) (time.Duration, Verdict) {
	lag := BlockLag(c.epoch, timestampMs, now)
	return lag, CheckBlock(lag, c.policy)
}
