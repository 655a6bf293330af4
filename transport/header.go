package transport

import (
	"encoding/binary"
	"io"
)

const HeaderSize = 13

// MaxSyncFrameNumber is where frame counters wrap around.
const MaxSyncFrameNumber = 10000

type PacketID byte

const (
	DefaultID        PacketID = 0
	AckID            PacketID = 6
	DataID           PacketID = 17
	ConnectedID      PacketID = 18
	DisconnectID     PacketID = 19
	CompressedDataID PacketID = 21
)

// Header prefixes every packet on a sync connection. Integers are little
// endian.
type Header struct {
	ID               PacketID
	Frame            int32
	Size             uint32
	UncompressedSize uint32
}

func (h Header) Encode(buf []byte) {
	buf[0] = byte(h.ID)
	binary.LittleEndian.PutUint32(buf[1:], uint32(h.Frame))
	binary.LittleEndian.PutUint32(buf[5:], h.Size)
	binary.LittleEndian.PutUint32(buf[9:], h.UncompressedSize)
}

func ReadHeader(r io.Reader, buf []byte) (Header, error) {
	if _, err := io.ReadFull(r, buf[:HeaderSize]); err != nil {
		return Header{}, err
	}
	return Header{
		ID:               PacketID(buf[0]),
		Frame:            int32(binary.LittleEndian.Uint32(buf[1:])),
		Size:             binary.LittleEndian.Uint32(buf[5:]),
		UncompressedSize: binary.LittleEndian.Uint32(buf[9:]),
	}, nil
}

func packet(h Header, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	h.Size = uint32(len(payload))
	if h.UncompressedSize == 0 {
		h.UncompressedSize = h.Size
	}
	h.Encode(buf)
	copy(buf[HeaderSize:], payload)
	return buf
}
