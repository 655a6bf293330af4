package main

import (
	"math"
	"sync"

	"github.com/vx-labs/framelock/capture"
	"github.com/vx-labs/framelock/shareddata"
)

// scene is a headless stand-in for a renderer: a full screen color cycling
// with the shared clock. The server owns the clock and clients decode it.
type scene struct {
	mtx        sync.Mutex
	resolution capture.Resolution
	frame      uint64
	clock      float64
	paused     bool
	pixels     []byte
}

func newScene(res capture.Resolution) *scene {
	return &scene{
		resolution: res,
		pixels:     make([]byte, res.Width*res.Height*4),
	}
}

func (s *scene) Encode() ([]byte, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	e := shareddata.NewEncoder()
	e.Uint64(s.frame)
	e.Float64(s.clock)
	e.Bool(s.paused)
	return e.Data()
}

func (s *scene) Decode(payload []byte) error {
	d := shareddata.NewDecoder(payload)
	frame := d.Uint64()
	clock := d.Float64()
	paused := d.Bool()
	if err := d.Err(); err != nil {
		return err
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.frame, s.clock, s.paused = frame, clock, paused
	return nil
}

func (s *scene) advance(frame uint64) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.frame = frame
	if !s.paused {
		s.clock += 1.0 / 60
	}
	return nil
}

func (s *scene) draw(uint64) error {
	s.mtx.Lock()
	r := channel(s.clock, 0)
	g := channel(s.clock, 2*math.Pi/3)
	b := channel(s.clock, 4*math.Pi/3)
	s.mtx.Unlock()
	for i := 0; i+3 < len(s.pixels); i += 4 {
		s.pixels[i], s.pixels[i+1], s.pixels[i+2], s.pixels[i+3] = r, g, b, 0xff
	}
	return nil
}

func (s *scene) framebuffer() []byte {
	return s.pixels
}

func channel(clock, phase float64) byte {
	return byte(127.5 + 127.5*math.Sin(clock+phase))
}
