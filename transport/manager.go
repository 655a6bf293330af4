package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/vx-labs/framelock/events"
	"github.com/vx-labs/framelock/framesync"
	"github.com/vx-labs/framelock/peers"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type Config struct {
	Role     framesync.Role
	FirmSync bool
	// Self is the node this process renders.
	Self peers.Node
	// Clients are the nodes the server accepts a sync connection from. Unused
	// on clients.
	Clients peers.NodeSet
	// MasterAddress is dialed by clients on their own sync port.
	MasterAddress  string
	ListenHost     string
	MaxPayloadSize uint32
	DialTimeout    time.Duration
	Decoder        Decoder
}

func DefaultConfig() Config {
	return Config{
		FirmSync:       false,
		MaxPayloadSize: 64 << 20,
		DialTimeout:    5 * time.Second,
	}
}

// Manager owns the sync connections of this process.
type Manager struct {
	config       Config
	logger       *zap.Logger
	bus          *events.Bus
	conns        []*Connection
	listeners    []net.Listener
	running      atomic.Bool
	allConnected atomic.Bool
	wake         func()
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	closeOnce    sync.Once
}

func NewManager(logger *zap.Logger, bus *events.Bus, config Config) *Manager {
	if config.MaxPayloadSize == 0 {
		config.MaxPayloadSize = DefaultConfig().MaxPayloadSize
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = DefaultConfig().DialTimeout
	}
	m := &Manager{
		config: config,
		logger: logger.With(zap.String("component", "transport"), zap.Stringer("role", config.Role)),
		bus:    bus,
		wake:   func() {},
	}
	if config.Role == framesync.Server {
		config.Clients.Apply(func(n peers.Node) {
			m.conns = append(m.conns, m.newConnection(n.ID, n.Index))
		})
	} else {
		m.conns = append(m.conns, m.newConnection("master", -1))
	}
	return m
}

func (m *Manager) newConnection(id string, index int) *Connection {
	return &Connection{
		id:         id,
		nodeIndex:  index,
		role:       m.config.Role,
		firmSync:   m.config.FirmSync,
		maxPayload: m.config.MaxPayloadSize,
		decoder:    m.config.Decoder,
		logger:     m.logger.With(zap.String("connection_id", id)),
		onPacket:   m.onPacket,
		onStatus:   m.onStatus,
	}
}

// Start opens the listeners on the server, or starts dialing the server on
// clients. wake is called every time connection counters changed.
func (m *Manager) Start(ctx context.Context, wake func()) error {
	if wake != nil {
		m.wake = wake
	}
	ctx, m.cancel = context.WithCancel(ctx)
	if m.config.Role == framesync.Server {
		for idx, n := range m.config.Clients {
			listener, err := listen(m.config.ListenHost, n.SyncPort)
			if err != nil {
				m.Close()
				return errors.Wrapf(err, "failed to listen for node %s", n.ID)
			}
			m.listeners = append(m.listeners, listener)
			conn := m.conns[idx]
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				acceptLoop(listener, conn.logger, func(socket net.Conn) {
					if !conn.attach(socket, &m.wg) {
						conn.logger.Warn("rejecting sync connection: node already connected")
						socket.Close()
					}
				})
			}()
			m.logger.Info("listening for sync connection",
				zap.String("node_id", n.ID), zap.Int("sync_port", n.SyncPort))
		}
		m.running.Store(true)
		m.updateClusterStatus()
		return nil
	}
	m.running.Store(true)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.dial(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("failed to connect to master", zap.Error(err))
			m.stop()
		}
	}()
	return nil
}

func (m *Manager) dial(ctx context.Context) error {
	address := peers.Node{Address: m.config.MasterAddress, SyncPort: m.config.Self.SyncPort}.SyncAddress()
	dialer := net.Dialer{Timeout: m.config.DialTimeout}
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0
	policy.MaxInterval = 2 * time.Second
	return backoff.RetryNotify(func() error {
		socket, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		m.conns[0].attach(socket, &m.wg)
		return nil
	}, backoff.WithContext(policy, ctx), func(err error, next time.Duration) {
		m.logger.Debug("master is not reachable yet",
			zap.String("address", address), zap.Error(err), zap.Duration("retry_in", next))
	})
}

func (m *Manager) onPacket(c *Connection, id PacketID) {
	if id == ConnectedID && m.config.Role == framesync.Client {
		if !m.allConnected.Swap(true) {
			m.logger.Info("cluster connected")
			m.emit(events.Event{Kind: events.ClusterConnected, ConnectionID: c.id, NodeIndex: c.nodeIndex})
		}
	}
	m.wake()
}

func (m *Manager) onStatus(c *Connection, connected bool) {
	kind := events.ConnectionLost
	if connected {
		kind = events.ConnectionEstablished
	}
	m.emit(events.Event{Kind: kind, ConnectionID: c.id, NodeIndex: c.nodeIndex})
	if m.config.Role == framesync.Client {
		if !connected {
			m.allConnected.Store(false)
			m.stop()
		}
	} else {
		m.updateClusterStatus()
	}
	m.wake()
}

// updateClusterStatus tells every client once all of them are connected.
func (m *Manager) updateClusterStatus() {
	for _, c := range m.conns {
		if !c.IsRunning() {
			m.allConnected.Store(false)
			return
		}
	}
	if m.allConnected.Swap(true) {
		return
	}
	for _, c := range m.conns {
		if err := c.send(Header{ID: ConnectedID}, nil); err != nil {
			c.logger.Warn("failed to send cluster connected packet", zap.Error(err))
		}
	}
	m.logger.Info("all nodes connected", zap.Int("connection_count", len(m.conns)))
	m.emit(events.Event{Kind: events.ClusterConnected, NodeIndex: m.config.Self.Index})
}

func (m *Manager) emit(ev events.Event) {
	if m.bus != nil {
		m.bus.Emit(ev)
	}
}

func (m *Manager) stop() {
	if m.running.Swap(false) {
		m.emit(events.Event{Kind: events.TransportStopped, NodeIndex: m.config.Self.Index})
	}
}

// SendDataToClients broadcasts payload to every connected client, and
// returns the round trip times measured for the previous frame.
func (m *Manager) SendDataToClients(payload []byte) (framesync.LoopTimes, bool) {
	var loop framesync.LoopTimes
	found := false
	if m.config.Role != framesync.Server {
		return loop, false
	}
	for _, c := range m.conns {
		if !c.IsRunning() {
			continue
		}
		current := c.LoopTime()
		if !found || current < loop.Min {
			loop.Min = current
		}
		if !found || current > loop.Max {
			loop.Max = current
		}
		found = true
		frame := c.iterateFrameCounter()
		if err := c.send(Header{ID: DataID, Frame: frame}, payload); err != nil {
			c.logger.Warn("failed to send shared state", zap.Int32("send_frame", frame), zap.Error(err))
		}
	}
	return loop, found
}

// SendAcknowledge tells the server this client is done with the current
// frame.
func (m *Manager) SendAcknowledge() {
	if m.config.Role != framesync.Client {
		return
	}
	c := m.conns[0]
	if !c.IsRunning() {
		return
	}
	frame := c.iterateFrameCounter()
	if err := c.send(Header{ID: DataID, Frame: frame}, nil); err != nil {
		c.logger.Warn("failed to send acknowledgement", zap.Int32("send_frame", frame), zap.Error(err))
	}
}

func (m *Manager) IsRunning() bool {
	return m.running.Load()
}

func (m *Manager) AreAllNodesConnected() bool {
	return m.allConnected.Load()
}

func (m *Manager) Connections() []framesync.Peer {
	out := make([]framesync.Peer, len(m.conns))
	for idx, c := range m.conns {
		out[idx] = c
	}
	return out
}

// Close notifies the remote nodes, then closes every socket and listener.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.stop()
		if m.cancel != nil {
			m.cancel()
		}
		for _, l := range m.listeners {
			l.Close()
		}
		for _, c := range m.conns {
			c.close()
		}
		m.wg.Wait()
	})
	return nil
}
