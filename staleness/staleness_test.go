package staleness

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/symbolws/network"
	"github.com/c360/symbolws/protocol"
)

func TestResponseTimedOut(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	timeout := 45 * time.Second

	tests := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{"fresh", 0, false},
		{"at deadline", 45000 * time.Millisecond, false},
		{"one ms past", 45001 * time.Millisecond, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResponseTimedOut(base, base.Add(tt.elapsed), timeout))
		})
	}
}

func TestBlockLag(t *testing.T) {
	epoch := network.Mainnet.Epoch
	ts := uint64(1_000_000)
	now := epoch.Add(time.Duration(ts)*time.Millisecond + 5*time.Minute)

	assert.Equal(t, 5*time.Minute, BlockLag(epoch, ts, now))
	assert.Equal(t, -2*time.Second, BlockLag(epoch, ts, epoch.Add(time.Duration(ts)*time.Millisecond-2*time.Second)))
}

func TestCheckBlock(t *testing.T) {
	p := Policy{MaxLag: 180 * time.Second, FutureTolerance: 3 * time.Second}

	tests := []struct {
		name string
		lag  time.Duration
		want Verdict
		code protocol.CloseCode
	}{
		{"on time", 10 * time.Second, VerdictOK, 0},
		{"at max lag", 180 * time.Second, VerdictOK, 0},
		{"five minutes old", 5 * time.Minute, VerdictStale, protocol.CloseStaleBlock},
		{"slightly ahead", -2 * time.Second, VerdictOK, 0},
		{"at future tolerance", -3 * time.Second, VerdictOK, 0},
		{"far future", -10 * time.Second, VerdictFuture, protocol.CloseFutureBlock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := CheckBlock(tt.lag, p)
			assert.Equal(t, tt.want, v)
			assert.Equal(t, tt.code, v.CloseCode())
		})
	}
}

func TestBlockChecker_MainnetStaleBlock(t *testing.T) {
	checker := NewBlockChecker(network.Mainnet)
	ts := uint64(100_000_000)
	now := network.Mainnet.BlockTime(ts).Add(5 * time.Minute)

	lag, verdict := checker.Check(ts, now)
	assert.Equal(t, 5*time.Minute, lag)
	assert.Equal(t, VerdictStale, verdict)
	assert.Equal(t, protocol.CloseCode(4002), verdict.CloseCode())
}

func TestWatchdog_FiresOnceAfterTimeout(t *testing.T) {
	clock := NewFakeClock(time.Unix(1_700_000_000, 0))
	var fired atomic.Int32
	w := NewWatchdog(clock, 45*time.Second, func() { fired.Add(1) })

	w.Arm()
	clock.Advance(45 * time.Second)
	assert.Equal(t, int32(0), fired.Load(), "strictly greater than the timeout is required")

	clock.Advance(time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())

	clock.Advance(time.Hour)
	assert.Equal(t, int32(1), fired.Load())
}

func TestWatchdog_ArmResetsDeadline(t *testing.T) {
	clock := NewFakeClock(time.Unix(1_700_000_000, 0))
	var fired atomic.Int32
	w := NewWatchdog(clock, 10*time.Second, func() { fired.Add(1) })

	w.Arm()
	for i := 0; i < 5; i++ {
		clock.Advance(8 * time.Second)
		w.Arm()
	}
	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(11 * time.Second)
	assert.Equal(t, int32(1), fired.Load())
}

func TestWatchdog_Stop(t *testing.T) {
	clock := NewFakeClock(time.Unix(1_700_000_000, 0))
	var fired atomic.Int32
	w := NewWatchdog(clock, time.Second, func() { fired.Add(1) })

	w.Arm()
	w.Stop()
	clock.Advance(time.Minute)
	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, 0, clock.Pending())
}

func TestWatchdog_LastFrame(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clock := NewFakeClock(start)
	w := NewWatchdog(clock, time.Minute, nil)

	assert.Equal(t, time.Duration(0), w.SinceLastFrame())
	w.Arm()
	clock.Advance(3 * time.Second)
	require.Equal(t, start, w.LastFrame())
	assert.Equal(t, 3*time.Second, w.SinceLastFrame())
	assert.Equal(t, time.Minute, w.Timeout())
	w.Stop()
}
