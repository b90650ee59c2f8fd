// Package natsclient manages the NATS connection that relayed websocket events
// are published on.
//
// The client wraps nats.go with a circuit breaker: after a threshold of
// consecutive connection failures (default 5) Connect fails fast with
// ErrCircuitOpen until the backoff elapses. Once connected, nats.go handles
// reconnection on its own and the client tracks the status through its
// disconnect, reconnect and closed handlers. WithStatusListener observes every
// status transition.
//
// # Usage
//
//	nc, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("symbolws"),
//	    natsclient.WithMetrics(registry),
//	    natsclient.WithPingInterval(20*time.Second),
//	    natsclient.WithStatusListener(func(from, to natsclient.ConnectionStatus) {
//	        logger.Info("NATS status", "from", from, "to", to)
//	    }),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := nc.Connect(ctx); err != nil {
//	    return err
//	}
//	defer nc.Close(ctx)
//
//	err = nc.Publish(ctx, "symbol.block", data)
//
// Publish never blocks on the network; nats.go buffers while reconnecting and
// the call fails with ErrNotConnected only when no connection exists at all.
package natsclient
