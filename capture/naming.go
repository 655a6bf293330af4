package capture

import (
	"fmt"
	"path/filepath"
	"strings"
)

type Eye int

const (
	Mono Eye = iota
	LeftEye
	RightEye
)

func (e Eye) suffix() string {
	switch e {
	case LeftEye:
		return "L"
	case RightEye:
		return "R"
	default:
		return ""
	}
}

// Naming builds screenshot file names following the
// <path>/<prefix>_node<id>_<window>_<eye>_<number>.<ext> layout.
type Naming struct {
	Path   string
	Prefix string
	// AddNodeName prepends node<NodeID> when the cluster has more than one
	// node, so that captures of every node can share a directory.
	AddNodeName bool
	NodeID      int
	Nodes       int
}

// Window identifies the window being captured. An empty name falls back to
// win<ID>.
type Window struct {
	ID   int
	Name string
}

func (n Naming) Filename(number uint64, window Window, eye Eye, format Format) string {
	parts := make([]string, 0, 5)
	if n.Prefix != "" {
		parts = append(parts, n.Prefix)
	}
	if n.AddNodeName && n.Nodes > 1 {
		parts = append(parts, fmt.Sprintf("node%d", n.NodeID))
	}
	if window.Name != "" {
		parts = append(parts, window.Name)
	} else {
		parts = append(parts, fmt.Sprintf("win%d", window.ID))
	}
	if suffix := eye.suffix(); suffix != "" {
		parts = append(parts, suffix)
	}
	parts = append(parts, fmt.Sprintf("%06d", number))
	name := strings.Join(parts, "_") + format.Extension()
	if n.Path == "" {
		return name
	}
	return filepath.Join(n.Path, name)
}

// Limits restricts captures to frame numbers in [Begin, End). A zero End
// means no upper bound.
type Limits struct {
	Begin uint64
	End   uint64
}

func (l Limits) Contains(number uint64) bool {
	if number < l.Begin {
		return false
	}
	return l.End == 0 || number < l.End
}
