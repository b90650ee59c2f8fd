package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360/symbolws/metric"
)

type testWork struct {
	id   int
	fail bool
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestNewPool(t *testing.T) {
	noop := func(context.Context, testWork) error { return nil }

	pool, err := NewPool(5, 100, noop)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if pool.workers != 5 || pool.queueSize != 100 {
		t.Errorf("got %d workers / queue %d, want 5 / 100", pool.workers, pool.queueSize)
	}

	pool, err = NewPool(0, 0, noop)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if pool.workers != 4 || pool.queueSize != 64 {
		t.Errorf("defaults: got %d workers / queue %d, want 4 / 64", pool.workers, pool.queueSize)
	}

	if _, err := NewPool[testWork](1, 1, nil); !errors.Is(err, ErrNilProcessor) {
		t.Errorf("nil processor: got %v, want ErrNilProcessor", err)
	}
}

func TestPool_Lifecycle(t *testing.T) {
	var processed atomic.Int32
	pool, _ := NewPool(2, 10, func(context.Context, testWork) error {
		processed.Add(1)
		return nil
	})

	if err := pool.Submit(testWork{id: 1}); !errors.Is(err, ErrPoolNotStarted) {
		t.Errorf("submit before start: got %v", err)
	}

	ctx := context.Background()
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := pool.Start(ctx); !errors.Is(err, ErrPoolAlreadyStarted) {
		t.Errorf("second start: got %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := pool.Submit(testWork{id: i}); err != nil {
			t.Errorf("submit %d: %v", i, err)
		}
	}

	if err := pool.Stop(time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := processed.Load(); got != 5 {
		t.Errorf("processed %d items, want 5", got)
	}
	if err := pool.Submit(testWork{id: 9}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("submit after stop: got %v", err)
	}
	if err := pool.Stop(time.Second); err != nil {
		t.Errorf("second stop: %v", err)
	}
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	pool, _ := NewPool(1, 2, func(context.Context, testWork) error {
		<-release
		return nil
	})
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	// One item in flight, two queued.
	_ = pool.Submit(testWork{id: 0})
	waitFor(t, func() bool { return pool.Stats().QueueDepth == 0 })
	_ = pool.Submit(testWork{id: 1})
	_ = pool.Submit(testWork{id: 2})

	if err := pool.Submit(testWork{id: 3}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("got %v, want ErrQueueFull", err)
	}
	if got := pool.Stats().Dropped; got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}

	close(release)
	if err := pool.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
}

func TestPool_FailuresAndPanics(t *testing.T) {
	pool, _ := NewPool(2, 10, func(_ context.Context, w testWork) error {
		if w.id == 3 {
			panic("boom")
		}
		if w.fail {
			return errors.New("failed")
		}
		return nil
	})
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	_ = pool.Submit(testWork{id: 1})
	_ = pool.Submit(testWork{id: 2, fail: true})
	_ = pool.Submit(testWork{id: 3})
	_ = pool.Submit(testWork{id: 4})

	if err := pool.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
	stats := pool.Stats()
	if stats.Processed != 4 {
		t.Errorf("processed = %d, want 4", stats.Processed)
	}
	if stats.Failed != 2 {
		t.Errorf("failed = %d, want 2", stats.Failed)
	}
}

func TestPool_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 1)
	pool, _ := NewPool(1, 10, func(ctx context.Context, _ testWork) error {
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	})
	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}
	_ = pool.Submit(testWork{id: 1})
	<-started

	cancel()
	if err := pool.Stop(time.Second); err != nil {
		t.Errorf("Stop after cancel: %v", err)
	}
}

func TestPool_StopTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	pool, _ := NewPool(1, 1, func(context.Context, testWork) error {
		<-release
		return nil
	})
	_ = pool.Start(context.Background())
	_ = pool.Submit(testWork{id: 1})

	if err := pool.Stop(20 * time.Millisecond); !errors.Is(err, ErrStopTimeout) {
		t.Errorf("got %v, want ErrStopTimeout", err)
	}
}

func TestPool_ConcurrentSubmissions(t *testing.T) {
	var processed atomic.Int64
	pool, _ := NewPool(5, 1000, func(context.Context, testWork) error {
		processed.Add(1)
		return nil
	})
	_ = pool.Start(context.Background())

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = pool.Submit(testWork{id: g*100 + i})
			}
		}(g)
	}
	wg.Wait()

	if err := pool.Stop(2 * time.Second); err != nil {
		t.Fatal(err)
	}
	stats := pool.Stats()
	if stats.Submitted+stats.Dropped != 500 {
		t.Errorf("submitted %d + dropped %d != 500", stats.Submitted, stats.Dropped)
	}
	if processed.Load() != stats.Submitted {
		t.Errorf("processed %d, submitted %d", processed.Load(), stats.Submitted)
	}
}

func TestPool_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	noop := func(context.Context, testWork) error { return nil }

	if _, err := NewPool(1, 1, noop, WithMetrics[testWork](registry, "test_pool")); err != nil {
		t.Fatalf("NewPool with metrics: %v", err)
	}
	if _, err := NewPool(1, 1, noop, WithMetrics[testWork](registry, "test_pool")); err == nil {
		t.Error("expected duplicate metric registration to fail")
	}

	families, err := registry.PrometheusRegistry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "symbolws_test_pool_queue_depth" {
			found = true
		}
	}
	if !found {
		t.Error("queue depth gauge not registered")
	}
}
