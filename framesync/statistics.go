package framesync

import (
	"sync"
	"time"
)

const historySize = 100

type history struct {
	values [historySize]time.Duration
	count  int
	next   int
}

func (h *history) add(v time.Duration) {
	h.values[h.next] = v
	h.next = (h.next + 1) % historySize
	if h.count < historySize {
		h.count++
	}
}

// newest first
func (h *history) snapshot() []time.Duration {
	out := make([]time.Duration, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.values[(h.next-1-i+historySize)%historySize]
	}
	return out
}

type Statistics struct {
	SyncTimes   []time.Duration
	LoopTimeMin []time.Duration
	LoopTimeMax []time.Duration
}

type statistics struct {
	mtx         sync.Mutex
	syncTimes   history
	loopTimeMin history
	loopTimeMax history
}

func (s *statistics) addSyncTime(d time.Duration) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.syncTimes.add(d)
}

func (s *statistics) addLoopTimes(l LoopTimes) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.loopTimeMin.add(l.Min)
	s.loopTimeMax.add(l.Max)
}

func (s *statistics) snapshot() Statistics {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return Statistics{
		SyncTimes:   s.syncTimes.snapshot(),
		LoopTimeMin: s.loopTimeMin.snapshot(),
		LoopTimeMax: s.loopTimeMax.snapshot(),
	}
}
