package pool

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrClosed = errors.New("pool is closed")
)

type Job func()

type slotState int

const (
	idle slotState = iota
	running
)

// Pool is a fixed-size arena of slots. A slot is either idle or running, and
// a running slot only becomes idle again once the job started on it returned.
type Pool struct {
	mtx     sync.Mutex
	free    *sync.Cond
	slots   []slotState
	running int
	closed  bool
	wg      sync.WaitGroup
}

func NewPool(count int) *Pool {
	if count < 1 {
		count = 1
	}
	c := &Pool{
		slots: make([]slotState, count),
	}
	c.free = sync.NewCond(&c.mtx)
	return c
}

func (a *Pool) Capacity() int {
	return len(a.slots)
}

func (a *Pool) Running() int {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.running
}

func (a *Pool) IsRunning(idx int) bool {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.slots[idx] == running
}

// Acquire blocks until a slot is idle, and reserves it for the caller. The
// reserved slot must be handed to Go or given back with Release.
func (a *Pool) Acquire(ctx context.Context) (int, error) {
	stop := context.AfterFunc(ctx, func() {
		a.mtx.Lock()
		a.free.Broadcast()
		a.mtx.Unlock()
	})
	defer stop()

	a.mtx.Lock()
	defer a.mtx.Unlock()
	for {
		if a.closed {
			return -1, ErrClosed
		}
		for idx, state := range a.slots {
			if state == idle {
				a.slots[idx] = running
				a.running++
				return idx, nil
			}
		}
		if err := ctx.Err(); err != nil {
			return -1, err
		}
		a.free.Wait()
	}
}

// Go runs job on the reserved slot idx in its own goroutine.
func (a *Pool) Go(idx int, job Job) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.Release(idx)
		job()
	}()
}

func (a *Pool) Release(idx int) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if a.slots[idx] != running {
		return
	}
	a.slots[idx] = idle
	a.running--
	a.free.Broadcast()
}

// Drain blocks until every slot is idle.
func (a *Pool) Drain() {
	a.mtx.Lock()
	for a.running > 0 {
		a.free.Wait()
	}
	a.mtx.Unlock()
	a.wg.Wait()
}

func (a *Pool) Close() {
	a.mtx.Lock()
	a.closed = true
	a.free.Broadcast()
	a.mtx.Unlock()
	a.Drain()
}
