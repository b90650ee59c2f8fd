package retry

import "time"

// Backoff computes bounded exponential delays for an unbounded sequence of attempts,
// such as reconnecting a websocket against a node directory that may be down.
type Backoff struct {
	Initial    time.Duration `json:"initial" yaml:"initial"`
	Max        time.Duration `json:"max" yaml:"max"`
	Multiplier float64       `json:"multiplier" yaml:"multiplier"`
	Jitter     bool          `json:"jitter" yaml:"jitter"`
}

// DefaultBackoff returns the reconnect backoff used by the subscription client.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Delay returns the wait before retry number attempt (0-based). Attempt 0 waits
// Initial; the result never exceeds Max plus jitter.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Initial <= 0 {
		return 0
	}
	multiplier := b.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := b.Initial
	for i := 0; i < attempt; i++ {
		next := time.Duration(float64(delay) * multiplier)
		if b.Max > 0 && (next > b.Max || next < delay) {
			delay = b.Max
			break
		}
		delay = next
	}
	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}

	if b.Jitter {
		delay += jitter(delay)
	}
	return delay
}
