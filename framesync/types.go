package framesync

import (
	"time"

	"github.com/vx-labs/framelock/barrier"
)

type Role int

const (
	Server Role = iota
	Client
)

func (r Role) String() string {
	if r == Client {
		return "client"
	}
	return "server"
}

// LoopTimes are the smallest and largest round trip times observed across
// every client for the last acknowledged frame.
type LoopTimes struct {
	Min time.Duration
	Max time.Duration
}

// Peer is one sync connection to a remote node. Counters are updated by the
// transport receive path, after the payload was decoded.
type Peer interface {
	ID() string
	SendFrameCurrent() int32
	RecvFrameCurrent() int32
	RecvFramePrevious() int32
	IsUpdated() bool
	IsRunning() bool
}

type Transport interface {
	// SendDataToClients broadcasts payload to every client. The boolean is
	// false when there was nobody to measure loop times against.
	SendDataToClients(payload []byte) (LoopTimes, bool)
	SendAcknowledge()
	IsRunning() bool
	AreAllNodesConnected() bool
	Connections() []Peer
}

type Codec interface {
	Encode() ([]byte, error)
}

// SwapStatus exposes the hardware barrier state for diagnostics.
type SwapStatus interface {
	State() barrier.State
	FrameNumber() uint32
}

type WaitPolicy int

const (
	WaitCondition WaitPolicy = iota
	WaitSleep
)

type Phase string

const (
	PhasePreStage  Phase = "pre_stage"
	PhasePostStage Phase = "post_stage"
)
