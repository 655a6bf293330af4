package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vx-labs/framelock/framesync"
	"go.uber.org/zap"
)

func TestHeader(t *testing.T) {
	buf := packet(Header{ID: DataID, Frame: 9999}, []byte("state"))
	require.Len(t, buf, HeaderSize+5)
	h, err := ReadHeader(bytes.NewReader(buf), make([]byte, HeaderSize))
	require.NoError(t, err)
	assert.Equal(t, Header{ID: DataID, Frame: 9999, Size: 5, UncompressedSize: 5}, h)
	assert.Equal(t, []byte{17, 0x0f, 0x27, 0, 0, 5, 0, 0, 0, 5, 0, 0, 0}, buf[:HeaderSize])
}

func testConnection(role framesync.Role, firm bool) *Connection {
	c := &Connection{role: role, firmSync: firm, logger: zap.NewNop()}
	c.connected.Store(true)
	return c
}

func TestConnectionCounters(t *testing.T) {
	t.Run("frame counter wraps", func(t *testing.T) {
		c := testConnection(framesync.Server, true)
		c.sendCurrent.Store(MaxSyncFrameNumber - 1)
		assert.Equal(t, int32(0), c.iterateFrameCounter())
	})
	t.Run("firm server", func(t *testing.T) {
		c := testConnection(framesync.Server, true)
		c.iterateFrameCounter()
		assert.False(t, c.IsUpdated())
		c.setRecvFrame(1)
		assert.True(t, c.IsUpdated())
		assert.Equal(t, int32(1), c.RecvFrameCurrent())
		assert.Equal(t, int32(0), c.RecvFramePrevious())
	})
	t.Run("loose server", func(t *testing.T) {
		c := testConnection(framesync.Server, false)
		c.iterateFrameCounter()
		assert.True(t, c.IsUpdated())
	})
	t.Run("firm client", func(t *testing.T) {
		c := testConnection(framesync.Client, true)
		assert.False(t, c.IsUpdated())
		c.setRecvFrame(1)
		assert.True(t, c.IsUpdated())
		c.iterateFrameCounter()
		assert.False(t, c.IsUpdated())
		c.setRecvFrame(2)
		assert.True(t, c.IsUpdated())
	})
	t.Run("loose client", func(t *testing.T) {
		c := testConnection(framesync.Client, false)
		assert.False(t, c.IsUpdated())
		c.setRecvFrame(1)
		assert.True(t, c.IsUpdated())
		c.iterateFrameCounter()
		assert.False(t, c.IsUpdated())
	})
	t.Run("disconnected is never updated", func(t *testing.T) {
		c := testConnection(framesync.Server, false)
		c.connected.Store(false)
		assert.False(t, c.IsUpdated())
	})
}
