package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// Message is one recorded publish.
type Message struct {
	Subject string
	Data    []byte
}

// MockPublisher is an in-memory publisher. Safe for concurrent use.
type MockPublisher struct {
	mu       sync.RWMutex
	messages []Message
	err      error
	closed   bool
}

// NewMockPublisher creates an empty MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// Publish records the message, or returns the configured error.
func (p *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("publisher is closed")
	}
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, Message{Subject: subject, Data: append([]byte(nil), data...)})
	return nil
}

// SetError makes every following Publish fail with err; nil restores success.
func (p *MockPublisher) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Messages returns a copy of every recorded message in publish order.
func (p *MockPublisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Message(nil), p.messages...)
}

// MessagesOn returns the payloads published to subject.
func (p *MockPublisher) MessagesOn(subject string) [][]byte {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out [][]byte
	for _, m := range p.messages {
		if m.Subject == subject {
			out = append(out, m.Data)
		}
	}
	return out
}

// Count returns the number of recorded messages.
func (p *MockPublisher) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.messages)
}

// Clear drops every recorded message.
func (p *MockPublisher) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = nil
}

// Close makes every following Publish fail.
func (p *MockPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// WaitForMessage polls until a message arrives on subject and returns the latest one.
func WaitForMessage(t *testing.T, p *MockPublisher, subject string, timeout time.Duration) []byte {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if msgs := p.MessagesOn(subject); len(msgs) > 0 {
			return msgs[len(msgs)-1]
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for message on subject %s", subject)
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// WaitForMessageCount polls until at least count messages were recorded.
func WaitForMessageCount(t *testing.T, p *MockPublisher, count int, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for p.Count() < count {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %d messages, got %d", count, p.Count())
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}
