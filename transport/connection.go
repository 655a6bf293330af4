package transport

import (
	"bufio"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vx-labs/framelock/framesync"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	ErrNotConnected      = errors.New("connection is not established")
	ErrPayloadTooLarge   = errors.New("payload too large")
	ErrUnsupportedPacket = errors.New("unsupported packet")
)

// Decoder receives the shared state broadcast by the server. It runs on the
// connection goroutine, before the frame counters are updated.
type Decoder func(payload []byte) error

// Connection is one sync channel between the server and a client node. The
// server owns one per client, a client owns a single one to the server.
type Connection struct {
	id         string
	nodeIndex  int
	role       framesync.Role
	firmSync   bool
	maxPayload uint32
	decoder    Decoder
	logger     *zap.Logger
	onPacket   func(c *Connection, id PacketID)
	onStatus   func(c *Connection, connected bool)

	writeMtx sync.Mutex
	mtx      sync.Mutex
	conn     net.Conn

	connected    atomic.Bool
	updated      atomic.Bool
	sendCurrent  atomic.Int32
	recvCurrent  atomic.Int32
	recvPrevious atomic.Int32
	sendTime     atomic.Time
	loopTime     atomic.Duration
}

func (c *Connection) ID() string               { return c.id }
func (c *Connection) NodeIndex() int           { return c.nodeIndex }
func (c *Connection) SendFrameCurrent() int32  { return c.sendCurrent.Load() }
func (c *Connection) RecvFrameCurrent() int32  { return c.recvCurrent.Load() }
func (c *Connection) RecvFramePrevious() int32 { return c.recvPrevious.Load() }
func (c *Connection) IsRunning() bool          { return c.connected.Load() }
func (c *Connection) LoopTime() time.Duration  { return c.loopTime.Load() }

// IsUpdated tells whether the frame exchange on this connection is complete.
// On the server, the client acknowledged the last broadcast. On a client, the
// broadcast for the next frame was received and decoded.
func (c *Connection) IsUpdated() bool {
	if !c.connected.Load() {
		return false
	}
	send := c.sendCurrent.Load()
	if c.role == framesync.Server {
		if !c.firmSync {
			return true
		}
		return c.recvCurrent.Load() == send
	}
	if !c.firmSync {
		return c.updated.Load()
	}
	return c.recvPrevious.Load() == send && c.recvCurrent.Load() != send
}

func (c *Connection) iterateFrameCounter() int32 {
	frame := (c.sendCurrent.Load() + 1) % MaxSyncFrameNumber
	c.sendCurrent.Store(frame)
	c.updated.Store(false)
	c.sendTime.Store(time.Now())
	return frame
}

func (c *Connection) setRecvFrame(frame int32) {
	c.recvPrevious.Store(c.recvCurrent.Load())
	c.recvCurrent.Store(frame)
	c.updated.Store(true)
	c.loopTime.Store(time.Since(c.sendTime.Load()))
}

func (c *Connection) resetCounters() {
	c.sendCurrent.Store(0)
	c.recvCurrent.Store(0)
	c.recvPrevious.Store(0)
	c.updated.Store(false)
	c.loopTime.Store(0)
}

// attach binds an established socket to the connection, and reads from it
// until it fails. It returns false if a socket is already bound.
func (c *Connection) attach(conn net.Conn, wg *sync.WaitGroup) bool {
	c.mtx.Lock()
	if c.conn != nil {
		c.mtx.Unlock()
		return false
	}
	c.conn = conn
	c.resetCounters()
	c.connected.Store(true)
	c.mtx.Unlock()
	c.logger.Info("sync connection established")
	c.onStatus(c, true)
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := c.readLoop(conn)
		c.detach(conn)
		if err != nil && err != io.EOF {
			c.logger.Warn("sync connection lost", zap.Error(err))
		} else {
			c.logger.Info("sync connection closed")
		}
		c.onStatus(c, false)
	}()
	return true
}

func (c *Connection) detach(conn net.Conn) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.conn == conn {
		c.conn = nil
		c.connected.Store(false)
	}
	conn.Close()
}

func (c *Connection) current() net.Conn {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.conn
}

func (c *Connection) readLoop(conn net.Conn) error {
	r := bufio.NewReader(conn)
	headerBuf := make([]byte, HeaderSize)
	var payload []byte
	for {
		h, err := ReadHeader(r, headerBuf)
		if err != nil {
			return err
		}
		switch h.ID {
		case DataID:
			if h.Frame < 0 {
				return errors.Errorf("invalid sync frame %d", h.Frame)
			}
			if h.Size > c.maxPayload {
				return errors.Wrapf(ErrPayloadTooLarge, "%d bytes", h.Size)
			}
			if uint32(cap(payload)) < h.Size {
				payload = make([]byte, h.Size)
			}
			payload = payload[:h.Size]
			if _, err := io.ReadFull(r, payload); err != nil {
				return err
			}
			if len(payload) > 0 && c.decoder != nil {
				if err := c.decoder(payload); err != nil {
					return errors.Wrap(err, "failed to decode shared state")
				}
			}
			c.setRecvFrame(h.Frame)
		case DisconnectID:
			c.logger.Info("remote node requested disconnection")
			return nil
		case ConnectedID:
		case CompressedDataID:
			return errors.Wrap(ErrUnsupportedPacket, "compressed payloads")
		default:
			if h.Size > c.maxPayload {
				return errors.Wrapf(ErrPayloadTooLarge, "%d bytes", h.Size)
			}
			if _, err := io.CopyN(io.Discard, r, int64(h.Size)); err != nil {
				return err
			}
		}
		c.onPacket(c, h.ID)
	}
}

func (c *Connection) send(h Header, payload []byte) error {
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMtx.Lock()
	defer c.writeMtx.Unlock()
	if _, err := conn.Write(packet(h, payload)); err != nil {
		conn.Close()
		return err
	}
	return nil
}

// close sends a disconnection packet if the connection is established, then
// closes the socket.
func (c *Connection) close() {
	conn := c.current()
	if conn == nil {
		return
	}
	if err := c.send(Header{ID: DisconnectID}, nil); err != nil {
		c.logger.Debug("failed to send disconnection packet", zap.Error(err))
	}
	conn.Close()
}
