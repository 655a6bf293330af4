package capture

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vx-labs/framelock/pool"
	"go.uber.org/zap"
)

var (
	ErrInvalidJob = errors.New("invalid capture job")
)

type Config struct {
	Threads    int
	Resolution Resolution
	Channels   int
	// Quality is only used by the JPEG encoder.
	Quality    int
	RetryDelay time.Duration
	Format     Format
	Naming     Naming
	Limits     Limits
	Registerer prometheus.Registerer
}

func DefaultConfig() Config {
	return Config{
		Threads:    8,
		Channels:   4,
		Quality:    90,
		RetryDelay: 50 * time.Millisecond,
		Format:     PNG,
	}
}

// Job is a frame to be written. Pixels are copied before Submit returns, so
// the caller can reuse its buffer right away.
type Job struct {
	Resolution Resolution
	Channels   int
	Pixels     []byte
	Path       string
	Format     Format
}

type slot struct {
	index  int
	image  Image
	path   string
	format Format
}

// Pool writes screenshots on at most Threads goroutines. A slot's buffer is
// only touched by the goroutine writing it while the slot is running.
type Pool struct {
	mtx        sync.Mutex
	config     Config
	logger     *zap.Logger
	arena      *pool.Pool
	slots      []*slot
	resolution Resolution
	metrics    *metrics
	allocate   func(size int) ([]byte, error)
	write      func(s *slot) error
}

func New(logger *zap.Logger, config Config) *Pool {
	if config.Threads < 1 {
		config.Threads = 1
	}
	if config.Channels == 0 {
		config.Channels = 4
	}
	p := &Pool{
		config:   config,
		logger:   logger.With(zap.String("component", "capture")),
		arena:    pool.NewPool(config.Threads),
		slots:    make([]*slot, config.Threads),
		allocate: allocate,
	}
	p.write = p.writeFile
	p.metrics = newMetrics(config.Registerer, func() float64 { return float64(p.arena.Running()) })
	for idx := range p.slots {
		p.slots[idx] = &slot{index: idx}
	}
	p.reallocate(config.Resolution)
	return p
}

func allocate(size int) (buf []byte, err error) {
	if size <= 0 {
		return nil, backoff.Permanent(errors.Errorf("invalid buffer size %d", size))
	}
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = errors.Errorf("failed to allocate %d bytes: %v", size, r)
		}
	}()
	return make([]byte, size), nil
}

// allocateWithRetry tries once more after RetryDelay before giving up.
func (p *Pool) allocateWithRetry(size int) ([]byte, error) {
	var buf []byte
	err := backoff.Retry(func() error {
		var err error
		buf, err = p.allocate(size)
		return err
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(p.config.RetryDelay), 1))
	return buf, err
}

func (p *Pool) reallocate(res Resolution) {
	p.resolution = res
	if !res.Valid() {
		return
	}
	size := res.Width * res.Height * p.config.Channels
	for _, s := range p.slots {
		buf, err := p.allocateWithRetry(size)
		if err != nil {
			p.logger.Warn("failed to allocate capture buffer",
				zap.Int("slot", s.index), zap.Stringer("resolution", res), zap.Error(err))
			s.image = Image{}
			continue
		}
		s.image = Image{Width: res.Width, Height: res.Height, Channels: p.config.Channels, Pix: buf}
	}
}

func (p *Pool) Capacity() int {
	return p.arena.Capacity()
}

func (p *Pool) Running() int {
	return p.arena.Running()
}

func (p *Pool) Resolution() Resolution {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.resolution
}

// Submit blocks until a slot is free, then hands the job to a writer
// goroutine. Jobs whose buffer cannot be allocated are dropped and logged;
// Submit then returns nil.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if !job.Resolution.Valid() || job.Channels <= 0 ||
		len(job.Pixels) != job.Resolution.Width*job.Resolution.Height*job.Channels {
		return errors.Wrapf(ErrInvalidJob, "%d bytes for %s with %d channels",
			len(job.Pixels), job.Resolution, job.Channels)
	}
	if job.Path == "" {
		return errors.Wrap(ErrInvalidJob, "empty target path")
	}
	p.mtx.Lock()
	defer p.mtx.Unlock()
	idx, err := p.arena.Acquire(ctx)
	if err != nil {
		return err
	}
	s := p.slots[idx]
	size := len(job.Pixels)
	if len(s.image.Pix) != size {
		buf, err := p.allocateWithRetry(size)
		if err != nil {
			p.arena.Release(idx)
			s.image = Image{}
			p.metrics.abandoned.Inc()
			p.logger.Error("capture abandoned: buffer allocation failed",
				zap.String("path", job.Path), zap.Int("slot", idx), zap.Error(err))
			return nil
		}
		s.image.Pix = buf
	}
	copy(s.image.Pix, job.Pixels)
	s.image.Width = job.Resolution.Width
	s.image.Height = job.Resolution.Height
	s.image.Channels = job.Channels
	s.path = job.Path
	s.format = job.Format
	p.arena.Go(idx, func() {
		if err := p.write(s); err != nil {
			p.metrics.failed.Inc()
			p.logger.Error("failed to write screenshot", zap.String("path", s.path), zap.Error(err))
			return
		}
		p.metrics.written.Inc()
		p.logger.Debug("screenshot written", zap.String("path", s.path))
	})
	return nil
}

// Screenshot captures frame number of window if it falls within the
// configured limits.
func (p *Pool) Screenshot(ctx context.Context, number uint64, window Window, eye Eye, pixels []byte) error {
	if !p.config.Limits.Contains(number) {
		return nil
	}
	res := p.Resolution()
	return p.Submit(ctx, Job{
		Resolution: res,
		Channels:   p.config.Channels,
		Pixels:     pixels,
		Path:       p.config.Naming.Filename(number, window, eye, p.config.Format),
		Format:     p.config.Format,
	})
}

// Resize waits for every writer to finish before replacing the buffers.
func (p *Pool) Resize(res Resolution) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.arena.Drain()
	p.reallocate(res)
}

func (p *Pool) Drain() {
	p.arena.Drain()
}

func (p *Pool) Close() {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.arena.Close()
	for _, s := range p.slots {
		s.image = Image{}
	}
}

func (p *Pool) writeFile(s *slot) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create capture directory")
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	defer os.Remove(tmp.Name())
	if err := encode(tmp, s.format, &s.image, encodeOptions{quality: p.config.Quality}); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to encode %s", s.format)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
