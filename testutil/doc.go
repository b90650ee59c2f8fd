// Package testutil provides test doubles shared across symbolws packages.
//
// MockPublisher records every message published to it, in order, and can be
// told to fail. It satisfies relay.Publisher, so relay and wiring tests run
// without a NATS server:
//
//	pub := testutil.NewMockPublisher()
//	r, _ := relay.New(pub, relay.Config{Prefix: "symbol"})
//	r.Handle(events.BlockEvent{})
//	msg := testutil.WaitForMessage(t, pub, "symbol.block", time.Second)
//
// Use a real nats-server for anything depending on delivery semantics.
package testutil
