package identity

import (
	"sort"
	"strings"
)

// Identity is the set of names and addresses under which this computer can be
// reached. Cluster nodes are matched against it to find which one we are.
type Identity interface {
	Names() []string
	Matches(address string) bool
}

type identity struct {
	names map[string]struct{}
}

func newIdentity(names ...string) *identity {
	i := &identity{names: make(map[string]struct{}, len(names))}
	for _, name := range names {
		i.add(name)
	}
	return i
}

func (i *identity) add(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return
	}
	i.names[name] = struct{}{}
}

func (i *identity) Names() []string {
	out := make([]string, 0, len(i.names))
	for name := range i.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (i *identity) Matches(address string) bool {
	_, ok := i.names[strings.ToLower(strings.TrimSpace(address))]
	return ok
}
