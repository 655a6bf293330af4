package capture

import (
	"bytes"
	"context"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ftrvxmtrx/tga"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vx-labs/framelock/pool"
	"go.uber.org/zap"
)

func testConfig(threads int) Config {
	config := DefaultConfig()
	config.Threads = threads
	config.Resolution = Resolution{Width: 4, Height: 2}
	config.RetryDelay = time.Millisecond
	return config
}

func frame(res Resolution, channels int, value byte) []byte {
	return bytes.Repeat([]byte{value}, res.Width*res.Height*channels)
}

func TestPool(t *testing.T) {
	t.Run("writes a decodable png", func(t *testing.T) {
		dir := t.TempDir()
		p := New(zap.NewNop(), testConfig(2))
		res := Resolution{Width: 4, Height: 2}
		target := filepath.Join(dir, "nested", "frame.png")
		require.NoError(t, p.Submit(context.Background(), Job{
			Resolution: res, Channels: 4, Pixels: frame(res, 4, 0x80), Path: target, Format: PNG,
		}))
		p.Close()
		fd, err := os.Open(target)
		require.NoError(t, err)
		defer fd.Close()
		img, err := png.Decode(fd)
		require.NoError(t, err)
		assert.Equal(t, 4, img.Bounds().Dx())
		assert.Equal(t, 2, img.Bounds().Dy())
		entries, err := os.ReadDir(filepath.Dir(target))
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})
	t.Run("every format", func(t *testing.T) {
		dir := t.TempDir()
		p := New(zap.NewNop(), testConfig(3))
		res := Resolution{Width: 4, Height: 2}
		for _, f := range []Format{PNG, JPEG, TGA, BMP, TIFF} {
			require.NoError(t, p.Submit(context.Background(), Job{
				Resolution: res, Channels: 3, Pixels: frame(res, 3, 0x10),
				Path: filepath.Join(dir, "frame"+f.Extension()), Format: f,
			}))
		}
		p.Close()
		for _, f := range []Format{PNG, JPEG, TGA, BMP, TIFF} {
			info, err := os.Stat(filepath.Join(dir, "frame"+f.Extension()))
			require.NoError(t, err, f.String())
			assert.NotZero(t, info.Size(), f.String())
		}
		fd, err := os.Open(filepath.Join(dir, "frame.tga"))
		require.NoError(t, err)
		defer fd.Close()
		img, err := tga.Decode(fd)
		require.NoError(t, err)
		assert.Equal(t, 4, img.Bounds().Dx())
		assert.Equal(t, 2, img.Bounds().Dy())
		assert.Equal(t, color.NRGBA{R: 0x10, G: 0x10, B: 0x10, A: 0xff}, color.NRGBAModel.Convert(img.At(3, 1)))
	})
	t.Run("targa dimensions fit on 16 bits", func(t *testing.T) {
		img := &Image{Width: maxTGADimension + 1, Height: 1, Channels: 4, Pix: make([]byte, (maxTGADimension+1)*4)}
		var buf bytes.Buffer
		err := encode(&buf, TGA, img, encodeOptions{})
		require.ErrorIs(t, err, ErrImageTooLarge)
		assert.Zero(t, buf.Len())
		require.NoError(t, encode(&buf, PNG, img, encodeOptions{}))
	})
	t.Run("rejects invalid jobs", func(t *testing.T) {
		p := New(zap.NewNop(), testConfig(1))
		defer p.Close()
		err := p.Submit(context.Background(), Job{
			Resolution: Resolution{Width: 4, Height: 2}, Channels: 4, Pixels: []byte{1, 2}, Path: "x.png",
		})
		require.ErrorIs(t, err, ErrInvalidJob)
	})
	t.Run("never more than capacity writers", func(t *testing.T) {
		p := New(zap.NewNop(), testConfig(3))
		var current, peak, written int64
		p.write = func(s *slot) error {
			v := atomic.AddInt64(&current, 1)
			for {
				old := atomic.LoadInt64(&peak)
				if v <= old || atomic.CompareAndSwapInt64(&peak, old, v) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&current, -1)
			atomic.AddInt64(&written, 1)
			return nil
		}
		res := Resolution{Width: 4, Height: 2}
		for i := 0; i < 10; i++ {
			require.NoError(t, p.Submit(context.Background(), Job{
				Resolution: res, Channels: 4, Pixels: frame(res, 4, byte(i)), Path: "unused.png",
			}))
			require.LessOrEqual(t, p.Running(), 3)
		}
		p.Close()
		assert.Equal(t, int64(10), atomic.LoadInt64(&written))
		assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
	})
	t.Run("buffer is copied before submit returns", func(t *testing.T) {
		p := New(zap.NewNop(), testConfig(1))
		release := make(chan struct{})
		var seen []byte
		p.write = func(s *slot) error {
			<-release
			seen = append([]byte(nil), s.image.Pix...)
			return nil
		}
		res := Resolution{Width: 4, Height: 2}
		pixels := frame(res, 4, 7)
		require.NoError(t, p.Submit(context.Background(), Job{
			Resolution: res, Channels: 4, Pixels: pixels, Path: "unused.png",
		}))
		for i := range pixels {
			pixels[i] = 0
		}
		close(release)
		p.Close()
		assert.Equal(t, frame(res, 4, 7), seen)
	})
	t.Run("allocation retried once", func(t *testing.T) {
		p := New(zap.NewNop(), testConfig(1))
		var calls int64
		p.allocate = func(size int) ([]byte, error) {
			if atomic.AddInt64(&calls, 1) == 1 {
				return nil, errors.New("out of memory")
			}
			return make([]byte, size), nil
		}
		var written int64
		p.write = func(*slot) error { atomic.AddInt64(&written, 1); return nil }
		res := Resolution{Width: 8, Height: 8}
		require.NoError(t, p.Submit(context.Background(), Job{
			Resolution: res, Channels: 4, Pixels: frame(res, 4, 1), Path: "unused.png",
		}))
		p.Close()
		assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
		assert.Equal(t, int64(1), atomic.LoadInt64(&written))
	})
	t.Run("allocation failure abandons the job", func(t *testing.T) {
		p := New(zap.NewNop(), testConfig(1))
		var calls int64
		p.allocate = func(int) ([]byte, error) {
			atomic.AddInt64(&calls, 1)
			return nil, errors.New("out of memory")
		}
		var written int64
		p.write = func(*slot) error { atomic.AddInt64(&written, 1); return nil }
		res := Resolution{Width: 8, Height: 8}
		require.NoError(t, p.Submit(context.Background(), Job{
			Resolution: res, Channels: 4, Pixels: frame(res, 4, 1), Path: "unused.png",
		}))
		assert.Equal(t, 0, p.Running())
		p.Close()
		assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
		assert.Equal(t, int64(0), atomic.LoadInt64(&written))
	})
	t.Run("resize waits for writers", func(t *testing.T) {
		p := New(zap.NewNop(), testConfig(2))
		var finished int64
		p.write = func(*slot) error {
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt64(&finished, 1)
			return nil
		}
		res := Resolution{Width: 4, Height: 2}
		for i := 0; i < 2; i++ {
			require.NoError(t, p.Submit(context.Background(), Job{
				Resolution: res, Channels: 4, Pixels: frame(res, 4, 1), Path: "unused.png",
			}))
		}
		p.Resize(Resolution{Width: 16, Height: 16})
		assert.Equal(t, int64(2), atomic.LoadInt64(&finished))
		assert.Equal(t, Resolution{Width: 16, Height: 16}, p.Resolution())
		for _, s := range p.slots {
			assert.Len(t, s.image.Pix, 16*16*4)
		}
		p.Close()
	})
	t.Run("write failures do not propagate", func(t *testing.T) {
		p := New(zap.NewNop(), testConfig(1))
		p.write = func(*slot) error { return errors.New("disk full") }
		res := Resolution{Width: 4, Height: 2}
		for i := 0; i < 3; i++ {
			require.NoError(t, p.Submit(context.Background(), Job{
				Resolution: res, Channels: 4, Pixels: frame(res, 4, 1), Path: "unused.png",
			}))
		}
		p.Close()
	})
	t.Run("submit after close", func(t *testing.T) {
		p := New(zap.NewNop(), testConfig(1))
		p.Close()
		res := Resolution{Width: 4, Height: 2}
		err := p.Submit(context.Background(), Job{
			Resolution: res, Channels: 4, Pixels: frame(res, 4, 1), Path: "unused.png",
		})
		require.Equal(t, pool.ErrClosed, err)
	})
	t.Run("screenshot honors limits", func(t *testing.T) {
		dir := t.TempDir()
		config := testConfig(2)
		config.Naming = Naming{Path: dir, Prefix: "cap"}
		config.Limits = Limits{Begin: 1, End: 3}
		p := New(zap.NewNop(), config)
		var mtx sync.Mutex
		var paths []string
		p.write = func(s *slot) error {
			mtx.Lock()
			defer mtx.Unlock()
			paths = append(paths, s.path)
			return nil
		}
		for i := uint64(0); i < 5; i++ {
			require.NoError(t, p.Screenshot(context.Background(), i, Window{ID: 0}, Mono, frame(config.Resolution, 4, 1)))
		}
		p.Close()
		assert.ElementsMatch(t, []string{
			filepath.Join(dir, "cap_win0_000001.png"),
			filepath.Join(dir, "cap_win0_000002.png"),
		}, paths)
	})
}
