// Package shareddata serializes the state the server broadcasts to every
// client once per frame.
package shareddata

import (
	"math"

	"github.com/gogo/protobuf/proto"
	"github.com/pkg/errors"
)

var ErrShortBuffer = errors.New("shared data buffer is too short")

// Encoder appends values to a single buffer. The first error is kept and
// returned by Bytes, every later call is a no-op.
type Encoder struct {
	buf *proto.Buffer
	err error
}

func NewEncoder() *Encoder {
	return &Encoder{buf: proto.NewBuffer(make([]byte, 0, 1024))}
}

func (e *Encoder) Reset() {
	e.buf.Reset()
	e.err = nil
}

func (e *Encoder) do(f func() error) {
	if e.err == nil {
		e.err = f()
	}
}

func (e *Encoder) Uint64(v uint64) { e.do(func() error { return e.buf.EncodeVarint(v) }) }
func (e *Encoder) Int64(v int64)   { e.do(func() error { return e.buf.EncodeZigzag64(uint64(v)) }) }
func (e *Encoder) Bool(v bool) {
	var b uint64
	if v {
		b = 1
	}
	e.Uint64(b)
}
func (e *Encoder) Float64(v float64) {
	e.do(func() error { return e.buf.EncodeFixed64(math.Float64bits(v)) })
}
func (e *Encoder) Float32(v float32) {
	e.do(func() error { return e.buf.EncodeFixed32(uint64(math.Float32bits(v))) })
}
func (e *Encoder) String(v string) { e.do(func() error { return e.buf.EncodeStringBytes(v) }) }
func (e *Encoder) Bytes(v []byte)  { e.do(func() error { return e.buf.EncodeRawBytes(v) }) }

// Data returns the encoded payload. It is only valid until the next Reset.
func (e *Encoder) Data() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.buf.Bytes(), nil
}

type Decoder struct {
	buf *proto.Buffer
	err error
}

func NewDecoder(payload []byte) *Decoder {
	return &Decoder{buf: proto.NewBuffer(payload)}
}

func (d *Decoder) Err() error {
	return d.err
}

func (d *Decoder) wrap(err error) {
	if d.err == nil && err != nil {
		d.err = errors.Wrap(ErrShortBuffer, err.Error())
	}
}

func (d *Decoder) Uint64() uint64 {
	if d.err != nil {
		return 0
	}
	v, err := d.buf.DecodeVarint()
	d.wrap(err)
	return v
}

func (d *Decoder) Int64() int64 {
	if d.err != nil {
		return 0
	}
	v, err := d.buf.DecodeZigzag64()
	d.wrap(err)
	return int64(v)
}

func (d *Decoder) Bool() bool {
	return d.Uint64() != 0
}

func (d *Decoder) Float64() float64 {
	if d.err != nil {
		return 0
	}
	v, err := d.buf.DecodeFixed64()
	d.wrap(err)
	return math.Float64frombits(v)
}

func (d *Decoder) Float32() float32 {
	if d.err != nil {
		return 0
	}
	v, err := d.buf.DecodeFixed32()
	d.wrap(err)
	return math.Float32frombits(uint32(v))
}

func (d *Decoder) String() string {
	if d.err != nil {
		return ""
	}
	v, err := d.buf.DecodeStringBytes()
	d.wrap(err)
	return v
}

func (d *Decoder) Bytes() []byte {
	if d.err != nil {
		return nil
	}
	v, err := d.buf.DecodeRawBytes(true)
	d.wrap(err)
	return v
}
