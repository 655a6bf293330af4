package peers

import (
	"fmt"

	"github.com/vx-labs/framelock/identity"
)

// Node is one render computer of the cluster, as described by the topology.
type Node struct {
	Index    int
	ID       string
	Address  string
	SyncPort int
	// SwapLock asks the node to join the hardware swap group.
	SwapLock bool
}

func (n Node) SyncAddress() string {
	return identity.NewAddress(n.Address, n.SyncPort).String()
}

func (n Node) String() string {
	return fmt.Sprintf("%s(%d)@%s", n.ID, n.Index, n.SyncAddress())
}

type nodeFilter func(Node) bool
type NodeSet []Node

func (set NodeSet) Filter(filters ...nodeFilter) NodeSet {
	copy := make(NodeSet, 0, len(set))
	for _, node := range set {
		accepted := true
		for _, f := range filters {
			if !f(node) {
				accepted = false
				break
			}
		}
		if accepted {
			copy = append(copy, node)
		}
	}
	return copy
}

func (set NodeSet) Apply(f func(n Node)) {
	for _, node := range set {
		f(node)
	}
}

func Except(index int) nodeFilter {
	return func(n Node) bool {
		return n.Index != index
	}
}
