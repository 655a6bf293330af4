package framesync

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrTimeout      = errors.New("sync timed out")
	ErrDisconnected = errors.New("sync connection lost")
)

type PeerStatus struct {
	ID                string
	SendFrameCurrent  int32
	RecvFrameCurrent  int32
	RecvFramePrevious int32
	Updated           bool
	Running           bool
}

func statusOf(p Peer) PeerStatus {
	return PeerStatus{
		ID:                p.ID(),
		SendFrameCurrent:  p.SendFrameCurrent(),
		RecvFrameCurrent:  p.RecvFrameCurrent(),
		RecvFramePrevious: p.RecvFramePrevious(),
		Updated:           p.IsUpdated(),
		Running:           p.IsRunning(),
	}
}

// StallError is returned when a sync phase could not complete. Peers lists
// the connections that were holding the frame back.
type StallError struct {
	Phase  Phase
	Err    error
	Waited time.Duration
	Peers  []PeerStatus
}

func (e *StallError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %v after %s", e.Phase, e.Err, e.Waited.Round(time.Millisecond))
	for _, p := range e.Peers {
		fmt.Fprintf(&sb, "; connection %s send=%d recv=%d prev=%d running=%t",
			p.ID, p.SendFrameCurrent, p.RecvFrameCurrent, p.RecvFramePrevious, p.Running)
	}
	return sb.String()
}

func (e *StallError) Cause() error  { return e.Err }
func (e *StallError) Unwrap() error { return e.Err }
