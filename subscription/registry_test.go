package subscription

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360/symbolws/protocol"
)

func TestRegistry_AddRemove(t *testing.T) {
	r := NewRegistry()
	s := Subscription{Topic: protocol.TopicConfirmedAdded, Address: "TADDR"}

	assert.True(t, r.Add(s))
	assert.False(t, r.Add(s))
	assert.True(t, r.Contains(s))
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Remove(s))
	assert.False(t, r.Remove(s))
	assert.False(t, r.Contains(s))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ListOrder(t *testing.T) {
	r := NewRegistry()
	r.Add(Subscription{Topic: protocol.TopicStatus, Address: "B"})
	r.Add(Subscription{Topic: protocol.TopicStatus, Address: "A"})
	r.Add(Subscription{Topic: protocol.TopicBlock})
	r.Add(Subscription{Topic: protocol.TopicConfirmedAdded, Address: "A"})

	assert.Equal(t, []Subscription{
		{Topic: protocol.TopicBlock},
		{Topic: protocol.TopicConfirmedAdded, Address: "A"},
		{Topic: protocol.TopicStatus, Address: "A"},
		{Topic: protocol.TopicStatus, Address: "B"},
	}, r.List())
}

func TestRegistry_Channel(t *testing.T) {
	assert.Equal(t, "block", Subscription{Topic: protocol.TopicBlock}.Channel())
	assert.Equal(t, "status/TADDR", Subscription{Topic: protocol.TopicStatus, Address: "TADDR"}.Channel())
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := Subscription{Topic: protocol.TopicConfirmedAdded, Address: fmt.Sprintf("ADDR%02d", i)}
			r.Add(s)
			_ = r.List()
			_ = r.Contains(s)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, r.Len())

	r.Clear()
	assert.Equal(t, 0, r.Len())
}
