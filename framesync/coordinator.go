package framesync

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type Config struct {
	Role Role
	// IgnoreSync disables both wait phases. It is decided once at startup.
	IgnoreSync       bool
	Nodes            int
	SyncTimeout      time.Duration
	WatchdogInterval time.Duration
	ReportInterval   time.Duration
	PrintSyncMessage bool
	WaitPolicy       WaitPolicy
	Registerer       prometheus.Registerer
}

func DefaultConfig() Config {
	return Config{
		Role:             Server,
		Nodes:            1,
		SyncTimeout:      60 * time.Second,
		WatchdogInterval: 100 * time.Millisecond,
		ReportInterval:   time.Second,
		PrintSyncMessage: true,
		WaitPolicy:       WaitCondition,
	}
}

// Coordinator runs the two phase frame lock. PreStage and PostStage must be
// called from a single goroutine, once each per frame.
type Coordinator struct {
	mtx       sync.Mutex
	cond      *sync.Cond
	config    Config
	transport Transport
	codec     Codec
	swap      SwapStatus
	logger    *zap.Logger
	metrics   *metrics
	stats     statistics
	frame     atomic.Uint64
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func New(logger *zap.Logger, config Config, transport Transport, codec Codec, swap SwapStatus) *Coordinator {
	if config.SyncTimeout <= 0 {
		config.SyncTimeout = DefaultConfig().SyncTimeout
	}
	if config.WatchdogInterval <= 0 {
		config.WatchdogInterval = DefaultConfig().WatchdogInterval
	}
	if config.ReportInterval <= 0 {
		config.ReportInterval = DefaultConfig().ReportInterval
	}
	// Nothing would wake a wait without the watchdog.
	if config.Nodes <= 1 {
		config.IgnoreSync = true
	}
	c := &Coordinator{
		config:    config,
		transport: transport,
		codec:     codec,
		swap:      swap,
		logger:    logger.With(zap.String("component", "framesync"), zap.Stringer("role", config.Role)),
		metrics:   newMetrics(config.Registerer),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mtx)
	if !config.IgnoreSync {
		go c.watchdog()
	} else {
		close(c.done)
	}
	return c
}

func (c *Coordinator) watchdog() {
	defer close(c.done)
	ticker := time.NewTicker(c.config.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Wake()
		}
	}
}

// Wake re-evaluates every pending wait. The transport calls it once peer
// counters changed.
func (c *Coordinator) Wake() {
	c.mtx.Lock()
	c.cond.Broadcast()
	c.mtx.Unlock()
}

func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.done
	})
}

func (c *Coordinator) Frame() uint64 {
	return c.frame.Load()
}

func (c *Coordinator) Statistics() Statistics {
	return c.stats.snapshot()
}

// PreStage broadcasts the shared state on the server. On clients it blocks
// until the broadcast for this frame was received and decoded, then
// acknowledges it.
func (c *Coordinator) PreStage() error {
	c.frame.Inc()
	if c.config.Role == Server {
		return c.broadcast()
	}
	if c.config.IgnoreSync {
		return nil
	}
	started := time.Now()
	if err := c.wait(PhasePreStage, c.masterSynced, c.reportMaster); err != nil {
		return err
	}
	c.transport.SendAcknowledge()
	c.record(PhasePreStage, time.Since(started))
	return nil
}

// PostStage blocks the server until every client acknowledged the current
// frame.
func (c *Coordinator) PostStage() error {
	if c.config.IgnoreSync || c.config.Role == Client {
		return nil
	}
	started := time.Now()
	if err := c.wait(PhasePostStage, c.clientsSynced, c.reportClients); err != nil {
		return err
	}
	c.record(PhasePostStage, time.Since(started))
	return nil
}

func (c *Coordinator) broadcast() error {
	started := time.Now()
	var payload []byte
	if c.codec != nil {
		var err error
		payload, err = c.codec.Encode()
		if err != nil {
			return errors.Wrap(err, "failed to encode shared state")
		}
	}
	loop, ok := c.transport.SendDataToClients(payload)
	if ok {
		c.stats.addLoopTimes(loop)
		c.metrics.loopTime.WithLabelValues("min").Set(loop.Min.Seconds())
		c.metrics.loopTime.WithLabelValues("max").Set(loop.Max.Seconds())
	}
	elapsed := time.Since(started)
	c.stats.addSyncTime(elapsed)
	c.metrics.broadcast.Observe(elapsed.Seconds())
	return nil
}

func (c *Coordinator) record(phase Phase, d time.Duration) {
	c.stats.addSyncTime(d)
	c.metrics.waits.WithLabelValues(string(phase)).Observe(d.Seconds())
}

// checkFunc reports whether the phase is complete, and the connections
// holding it back otherwise.
type checkFunc func() (bool, []PeerStatus, error)

func (c *Coordinator) masterSynced() (bool, []PeerStatus, error) {
	if !c.transport.IsRunning() {
		return false, nil, ErrDisconnected
	}
	conns := c.transport.Connections()
	if len(conns) == 0 {
		return false, nil, ErrDisconnected
	}
	master := conns[0]
	if !master.IsRunning() {
		return false, []PeerStatus{statusOf(master)}, ErrDisconnected
	}
	if master.IsUpdated() {
		return true, nil, nil
	}
	return false, []PeerStatus{statusOf(master)}, nil
}

func (c *Coordinator) clientsSynced() (bool, []PeerStatus, error) {
	if !c.transport.IsRunning() {
		return false, nil, ErrDisconnected
	}
	var pending []PeerStatus
	for _, peer := range c.transport.Connections() {
		if !peer.IsRunning() {
			return false, []PeerStatus{statusOf(peer)}, ErrDisconnected
		}
		if peer.SendFrameCurrent() != peer.RecvFrameCurrent() {
			pending = append(pending, statusOf(peer))
		}
	}
	return len(pending) == 0, pending, nil
}

func (c *Coordinator) wait(phase Phase, check checkFunc, report func([]PeerStatus)) error {
	started := time.Now()
	lastReport := started
	c.mtx.Lock()
	defer c.mtx.Unlock()
	for {
		done, pending, err := check()
		if err != nil {
			return c.fail(phase, err, time.Since(started), pending)
		}
		if done {
			return nil
		}
		waited := time.Since(started)
		if waited > c.config.SyncTimeout {
			return c.fail(phase, ErrTimeout, waited, pending)
		}
		if time.Since(lastReport) >= c.config.ReportInterval {
			lastReport = time.Now()
			if c.config.PrintSyncMessage {
				report(pending)
			}
		}
		c.block()
	}
}

func (c *Coordinator) block() {
	if c.config.WaitPolicy == WaitSleep {
		c.mtx.Unlock()
		time.Sleep(c.config.WatchdogInterval)
		c.mtx.Lock()
		return
	}
	c.cond.Wait()
}

func (c *Coordinator) fail(phase Phase, err error, waited time.Duration, pending []PeerStatus) error {
	reason := "timeout"
	if err == ErrDisconnected {
		reason = "disconnected"
	}
	c.metrics.failures.WithLabelValues(string(phase), reason).Inc()
	return &StallError{Phase: phase, Err: err, Waited: waited, Peers: pending}
}

func (c *Coordinator) swapFields() []zap.Field {
	fields := []zap.Field{zap.Uint64("frame", c.frame.Load())}
	if c.swap == nil {
		return fields
	}
	state := c.swap.State()
	return append(fields,
		zap.Bool("swap_groups", state.JoinedGroup),
		zap.Bool("swap_barrier", state.BarrierActive),
		zap.Uint32("universal_frame", c.swap.FrameNumber()),
	)
}

func (c *Coordinator) reportMaster(pending []PeerStatus) {
	for _, p := range pending {
		c.logger.Info("waiting for master", append(c.swapFields(),
			zap.String("connection_id", p.ID),
			zap.Int32("send_frame", p.SendFrameCurrent),
			zap.Int32("recv_frame_previous", p.RecvFramePrevious),
		)...)
	}
}

func (c *Coordinator) reportClients(pending []PeerStatus) {
	for _, p := range pending {
		c.logger.Info("waiting for client", append(c.swapFields(),
			zap.String("connection_id", p.ID),
			zap.Int32("send_frame", p.SendFrameCurrent),
			zap.Int32("recv_frame", p.RecvFrameCurrent),
		)...)
	}
}

// WaitForAllNodes blocks until every node of the cluster is connected. It
// returns right away when sync is disabled.
func (c *Coordinator) WaitForAllNodes(ctx context.Context) error {
	if c.config.IgnoreSync || c.config.Nodes <= 1 {
		return nil
	}
	ticker := time.NewTicker(c.config.WatchdogInterval)
	defer ticker.Stop()
	started := time.Now()
	lastReport := started
	for !c.transport.AreAllNodesConnected() {
		if !c.transport.IsRunning() {
			return errors.Wrap(ErrDisconnected, "transport stopped while waiting for nodes")
		}
		if time.Since(lastReport) >= c.config.ReportInterval {
			lastReport = time.Now()
			c.logger.Info("waiting for all nodes to connect", zap.Duration("waited", time.Since(started)))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	c.logger.Info("all nodes connected", zap.Duration("waited", time.Since(started)))
	return nil
}
