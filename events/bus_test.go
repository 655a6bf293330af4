package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus(t *testing.T) {
	t.Run("events", func(t *testing.T) {
		bus := NewBus()
		ch, cancel := bus.Events()
		done := make(chan Event)
		go func() {
			done <- <-ch
		}()
		bus.Emit(Event{Kind: ConnectionLost, ConnectionID: "node1"})
		ev := <-done
		assert.Equal(t, ConnectionLost, ev.Kind)
		assert.Equal(t, "node1", ev.ConnectionID)
		cancel()
		cancel()
	})
	t.Run("emit does not block on cancelled subscribers", func(t *testing.T) {
		bus := NewBus()
		_, cancel := bus.Events()
		cancel()
		emitted := make(chan struct{})
		go func() {
			bus.Emit(Event{Kind: ClusterConnected})
			close(emitted)
		}()
		select {
		case <-emitted:
		case <-time.After(time.Second):
			t.Fatal("emit blocked")
		}
	})
	t.Run("subscribe filters by kind", func(t *testing.T) {
		bus := NewBus()
		received := make(chan Event, 2)
		cancel := bus.Subscribe(ClusterConnected, func(ev Event) { received <- ev })
		defer cancel()
		bus.Emit(Event{Kind: ConnectionEstablished, NodeIndex: 1})
		bus.Emit(Event{Kind: ClusterConnected})
		require.Equal(t, ClusterConnected, (<-received).Kind)
		assert.Len(t, received, 0)
	})
}

func BenchmarkBus(b *testing.B) {
	bus := NewBus()
	cancel := bus.Subscribe(ConnectionLost, func(Event) {})
	defer cancel()
	for i := 0; i < b.N; i++ {
		bus.Emit(Event{Kind: ConnectionLost})
	}
}
