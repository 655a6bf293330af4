package events

import (
	"sync/atomic"

	"github.com/google/uuid"
	iradix "github.com/hashicorp/go-immutable-radix"
)

type Kind int

const (
	ConnectionEstablished Kind = iota
	ConnectionLost
	ClusterConnected
	TransportStopped
)

func (k Kind) String() string {
	switch k {
	case ConnectionEstablished:
		return "connection_established"
	case ConnectionLost:
		return "connection_lost"
	case ClusterConnected:
		return "cluster_connected"
	case TransportStopped:
		return "transport_stopped"
	}
	return "unknown"
}

type Event struct {
	Kind         Kind
	ConnectionID string
	NodeIndex    int
}

type subscription struct {
	ch   chan Event
	quit chan struct{}
}

type CancelFunc func()

// Bus fans events out to every subscriber. Subscriptions live in an
// immutable radix tree swapped atomically, so Emit never takes a lock.
type Bus struct {
	state atomic.Pointer[iradix.Tree]
}

func NewBus() *Bus {
	b := &Bus{}
	b.state.Store(iradix.New())
	return b
}

// Emit blocks until every subscriber received ev, or cancelled its
// subscription.
func (b *Bus) Emit(ev Event) {
	b.state.Load().Root().Walk(func(k []byte, v interface{}) bool {
		sub := v.(*subscription)
		select {
		case <-sub.quit:
		case sub.ch <- ev:
		}
		return false
	})
}

func (b *Bus) Events() (<-chan Event, CancelFunc) {
	sub, cancel := b.subscribe()
	return sub.ch, cancel
}

func (b *Bus) subscribe() (*subscription, CancelFunc) {
	sub := &subscription{
		ch:   make(chan Event),
		quit: make(chan struct{}),
	}
	id := []byte(uuid.New().String())
	cancel := func() {
		for {
			old := b.state.Load()
			updated, _, ok := old.Delete(id)
			if !ok {
				return
			}
			if b.state.CompareAndSwap(old, updated) {
				close(sub.quit)
				return
			}
		}
	}
	for {
		old := b.state.Load()
		updated, _, _ := old.Insert(id, sub)
		if b.state.CompareAndSwap(old, updated) {
			return sub, cancel
		}
	}
}

// Subscribe runs handler for every event of kind until the returned function
// is called.
func (b *Bus) Subscribe(kind Kind, handler func(Event)) CancelFunc {
	sub, cancel := b.subscribe()
	go func() {
		for {
			select {
			case <-sub.quit:
				return
			case ev := <-sub.ch:
				if ev.Kind == kind {
					handler(ev)
				}
			}
		}
	}()
	return cancel
}
