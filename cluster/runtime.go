package cluster

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vx-labs/framelock/barrier"
	"github.com/vx-labs/framelock/capture"
	"github.com/vx-labs/framelock/events"
	"github.com/vx-labs/framelock/framesync"
	"github.com/vx-labs/framelock/identity"
	"github.com/vx-labs/framelock/peers"
	"github.com/vx-labs/framelock/transport"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Config struct {
	Nodes         peers.NodeStore
	MasterAddress string
	Identity      identity.Identity
	Mode          Mode
	LocalIndex    int
	IgnoreSync    bool
	FirmSync      bool

	Sync      framesync.Config
	Capture   capture.Config
	Transport transport.Config
	// Extension is the hardware swap group implementation. Nil means the
	// platform has none.
	Extension  barrier.Extension
	Codec      framesync.Codec
	Decoder    transport.Decoder
	Registerer prometheus.Registerer

	// MaxFrames stops Run after this many frames. Zero runs until the
	// context is cancelled.
	MaxFrames uint64
	// ScreenshotEvery captures one frame out of ScreenshotEvery. Zero only
	// captures frames requested with TakeScreenshot.
	ScreenshotEvery uint64
	Window          capture.Window
}

// Application is the code rendering frames. Every callback is optional.
type Application struct {
	// PreSync runs before the frame lock on every node, clients included.
	// Shared state must only be mutated there by the server: clients get it
	// from the broadcast.
	PreSync func(frame uint64) error
	Draw    func(frame uint64) error
	// PostDraw runs once the whole cluster rendered the frame, right before
	// buffers are swapped.
	PostDraw func(frame uint64) error
	// Pixels returns the frame buffer content, tightly packed, for
	// screenshots.
	Pixels func() []byte
}

// Runtime owns every component of a render node. It is built once per
// process.
type Runtime struct {
	config     Config
	logger     *zap.Logger
	resolution Resolution
	bus        *events.Bus
	barrier    *barrier.Controller
	transport  *transport.Manager
	sync       *framesync.Coordinator
	capture    *capture.Pool

	frame         atomic.Uint64
	screenshot    atomic.Bool
	cancelEvents  events.CancelFunc
	cancelWake    events.CancelFunc
	stop          chan struct{}
	eventsStopped chan struct{}
	closeOnce     sync.Once
	closeErr      error
}

func New(logger *zap.Logger, config Config) (*Runtime, error) {
	if config.Nodes == nil || config.Nodes.Count() == 0 {
		return nil, errors.New("cluster has no node")
	}
	if config.Identity == nil {
		local, err := identity.Local()
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve local network identity")
		}
		config.Identity = local
	}
	resolution, err := ResolveRole(config.Nodes, config.MasterAddress, config.Identity,
		config.Mode, config.LocalIndex, config.IgnoreSync)
	if err != nil {
		return nil, err
	}
	logger = logger.With(
		zap.String("node_id", resolution.Self.ID),
		zap.Int("node_index", resolution.Self.Index),
	)
	logger.Info("resolved cluster role",
		zap.Stringer("role", resolution.Role),
		zap.Stringer("mode", resolution.Mode),
		zap.Bool("ignore_sync", resolution.IgnoreSync),
		zap.Bool("firm_sync", config.FirmSync),
		zap.Int("node_count", config.Nodes.Count()),
	)
	r := &Runtime{
		config:        config,
		logger:        logger,
		resolution:    resolution,
		bus:           events.NewBus(),
		barrier:       barrier.New(logger, config.Extension),
		stop:          make(chan struct{}),
		eventsStopped: make(chan struct{}),
	}

	transportConfig := config.Transport
	transportConfig.Role = resolution.Role
	transportConfig.FirmSync = config.FirmSync
	transportConfig.Self = resolution.Self
	transportConfig.Clients = resolution.Clients
	transportConfig.MasterAddress = resolution.MasterAddress
	transportConfig.Decoder = config.Decoder
	r.transport = transport.NewManager(logger, r.bus, transportConfig)

	syncConfig := config.Sync
	syncConfig.Role = resolution.Role
	syncConfig.IgnoreSync = resolution.IgnoreSync
	syncConfig.Nodes = config.Nodes.Count()
	syncConfig.Registerer = config.Registerer
	r.sync = framesync.New(logger, syncConfig, r.transport, config.Codec, r.barrier)

	captureConfig := config.Capture
	captureConfig.Naming.NodeID = resolution.Self.Index
	captureConfig.Naming.Nodes = config.Nodes.Count()
	captureConfig.Registerer = config.Registerer
	r.capture = capture.New(logger, captureConfig)

	ch, cancel := r.bus.Events()
	r.cancelEvents = cancel
	go r.logEvents(ch)
	// Pending waits must notice a stopped transport without waiting for the
	// next watchdog tick.
	r.cancelWake = r.bus.Subscribe(events.TransportStopped, func(events.Event) {
		r.sync.Wake()
	})
	return r, nil
}

func (r *Runtime) logEvents(ch <-chan events.Event) {
	defer close(r.eventsStopped)
	for {
		select {
		case ev := <-ch:
			fields := []zap.Field{zap.Stringer("event", ev.Kind), zap.String("connection_id", ev.ConnectionID)}
			switch ev.Kind {
			case events.ConnectionLost, events.TransportStopped:
				r.logger.Warn("cluster event", fields...)
			default:
				r.logger.Info("cluster event", fields...)
			}
		case <-r.stop:
			return
		}
	}
}

func (r *Runtime) Resolution() Resolution        { return r.resolution }
func (r *Runtime) Events() *events.Bus           { return r.bus }
func (r *Runtime) Barrier() *barrier.Controller  { return r.barrier }
func (r *Runtime) Sync() *framesync.Coordinator  { return r.sync }
func (r *Runtime) Capture() *capture.Pool        { return r.capture }
func (r *Runtime) Transport() *transport.Manager { return r.transport }
func (r *Runtime) Frame() uint64                 { return r.frame.Load() }

// Start connects the cluster and sets up the hardware swap barrier.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.transport.Start(ctx, r.sync.Wake); err != nil {
		return errors.Wrap(err, "failed to start sync transport")
	}
	if err := r.sync.WaitForAllNodes(ctx); err != nil {
		return err
	}
	if r.resolution.Self.SwapLock {
		if r.barrier.DetectCapability() == barrier.Supported {
			r.barrier.JoinSwapGroup()
		}
	}
	r.barrier.SetBarrier(true)
	r.barrier.ResetFrameCounter()
	return nil
}

// TakeScreenshot captures the next rendered frame.
func (r *Runtime) TakeScreenshot() {
	r.screenshot.Store(true)
}

// Run renders frames until ctx is cancelled, MaxFrames is reached, or the
// cluster fell out of sync. Sync failures are returned as is so that the
// caller can report the stalled connection.
func (r *Runtime) Run(ctx context.Context, app Application) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if r.resolution.Role == framesync.Client && !r.transport.IsRunning() {
			r.logger.Error("network disconnected, exiting")
			return errors.Wrap(framesync.ErrDisconnected, "sync transport stopped")
		}
		frame := r.frame.Inc()
		if app.PreSync != nil {
			if err := app.PreSync(frame); err != nil {
				return errors.Wrap(err, "pre sync failed")
			}
		}
		if err := r.sync.PreStage(); err != nil {
			return err
		}
		if app.Draw != nil {
			if err := app.Draw(frame); err != nil {
				return errors.Wrap(err, "draw failed")
			}
		}
		if err := r.sync.PostStage(); err != nil {
			return err
		}
		if app.PostDraw != nil {
			if err := app.PostDraw(frame); err != nil {
				return errors.Wrap(err, "post draw failed")
			}
		}
		r.captureFrame(ctx, frame, app)
		if r.config.MaxFrames > 0 && frame >= r.config.MaxFrames {
			return nil
		}
	}
}

func (r *Runtime) captureFrame(ctx context.Context, frame uint64, app Application) {
	requested := r.screenshot.Swap(false)
	if every := r.config.ScreenshotEvery; every > 0 && frame%every == 0 {
		requested = true
	}
	if !requested || app.Pixels == nil {
		return
	}
	if err := r.capture.Screenshot(ctx, frame, r.config.Window, capture.Mono, app.Pixels()); err != nil {
		r.logger.Warn("failed to submit screenshot", zap.Uint64("frame", frame), zap.Error(err))
	}
}

// Health reports "critical" once the sync transport stopped, and "warning"
// while some nodes are not connected yet.
func (r *Runtime) Health() string {
	if !r.transport.IsRunning() {
		return "critical"
	}
	if !r.resolution.IgnoreSync && !r.transport.AreAllNodesConnected() {
		return "warning"
	}
	return "ok"
}

// Close stops the watchdog, releases the swap barrier, disconnects from the
// cluster and waits for pending screenshots.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		r.cancelWake()
		r.sync.Close()
		r.cancelEvents()
		close(r.stop)
		<-r.eventsStopped
		r.barrier.Close()
		r.closeErr = multierr.Append(r.closeErr, r.transport.Close())
		r.capture.Close()
		r.logger.Info("cluster runtime stopped", zap.Uint64("frame_count", r.frame.Load()))
	})
	return r.closeErr
}
