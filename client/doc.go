// Package client implements a resilient subscription client for a node
// websocket.
//
// A Client picks an endpoint from a Directory, dials it, waits for the uid
// handshake, and then dispatches every topic frame to an events.Bus. It keeps
// the connection healthy on its own:
//
//   - no frame within ResponseTimeout closes the socket with 4001
//   - a block older than the network's MaxLag closes with 4002
//   - a block from the future closes with 4003
//
// If the first connection fails before its handshake, Connect returns the
// error and the client is idle again. After the first open, every close that
// the caller did not request is followed by a reconnect with
// bounded exponential backoff against a freshly picked endpoint. Listeners see
// at most one reconnect event between two open events, and exactly one close
// event after Close.
//
// # Usage
//
//	c, err := client.New(client.DefaultConfig(), directory.ForNetwork(network.Mainnet))
//	if err != nil {
//	    return err
//	}
//	c.Bus().OnOpen(func(events.Open) {
//	    _, _ = c.Subscribe(protocol.TopicBlock, "")
//	})
//	c.Bus().OnBlock(func(b protocol.Block) { ... })
//	if err := c.Connect(ctx); err != nil {
//	    return err
//	}
//	defer c.Close()
//
// Subscriptions are not restored after a reconnect; the new session has a new
// uid, so callers resubscribe from their open listener.
package client
