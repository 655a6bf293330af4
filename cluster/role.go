package cluster

import (
	"github.com/pkg/errors"
	"github.com/vx-labs/framelock/framesync"
	"github.com/vx-labs/framelock/identity"
	"github.com/vx-labs/framelock/peers"
)

type Mode int

const (
	// Remote finds this node by matching the topology against the local
	// network identity.
	Remote Mode = iota
	// LocalServer and LocalClient run every node on this computer, the node
	// index being given explicitly.
	LocalServer
	LocalClient
)

func (m Mode) String() string {
	switch m {
	case LocalServer:
		return "local_server"
	case LocalClient:
		return "local_client"
	default:
		return "remote"
	}
}

var ErrNotInCluster = errors.New("this computer is not part of the cluster configuration")

const localAddress = "127.0.0.1"

// Resolution is decided once at startup and never changes afterwards.
type Resolution struct {
	Mode          Mode
	Role          framesync.Role
	Self          peers.Node
	Clients       peers.NodeSet
	MasterAddress string
	IgnoreSync    bool
}

func ResolveRole(nodes peers.NodeStore, masterAddress string, local identity.Identity, mode Mode, localIndex int, ignoreSync bool) (Resolution, error) {
	r := Resolution{
		Mode:       mode,
		IgnoreSync: ignoreSync || nodes.Count() <= 1,
	}
	switch mode {
	case LocalServer, LocalClient:
		self, err := nodes.ByIndex(localIndex)
		if err != nil {
			return r, errors.Wrapf(ErrNotInCluster, "no node with index %d", localIndex)
		}
		r.Self = self
		r.MasterAddress = localAddress
		r.Role = framesync.Server
		if mode == LocalClient {
			r.Role = framesync.Client
		}
	default:
		self, err := localNode(nodes, local)
		if err != nil {
			return r, err
		}
		r.Self = self
		r.MasterAddress = masterAddress
		r.Role = framesync.Client
		if local.Matches(masterAddress) {
			r.Role = framesync.Server
		}
	}
	if r.Role == framesync.Server {
		r.Clients = nodes.All().Filter(peers.Except(r.Self.Index))
	}
	return r, nil
}

// localNode is the lowest index node hosted under any of the local names.
func localNode(nodes peers.NodeStore, local identity.Identity) (peers.Node, error) {
	var self peers.Node
	found := false
	for _, name := range local.Names() {
		set, err := nodes.ByAddress(name)
		if err != nil {
			continue
		}
		if !found || set[0].Index < self.Index {
			self = set[0]
			found = true
		}
	}
	if !found {
		return self, ErrNotInCluster
	}
	return self, nil
}
