// Package worker runs work items on a fixed set of goroutines behind a bounded
// queue.
//
// Submit never blocks: when the queue is full the item is rejected with
// ErrQueueFull and counted as dropped. Processor errors and panics are counted
// as failures and never stop a worker.
//
//	pool, err := worker.NewPool(2, 16, func(ctx context.Context, p price.Pair) error {
//	    return importPair(ctx, p)
//	}, worker.WithMetrics[price.Pair](registry, "price_import"))
//	if err != nil {
//	    return err
//	}
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(30 * time.Second)
//
//	_ = pool.Submit(price.Pair{Symbol: "symbol", Currency: "jpy"})
package worker
