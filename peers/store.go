package peers

import (
	"fmt"
	"sort"
	"strings"

	memdb "github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
)

const (
	table = "nodes"
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrInvalidNode  = errors.New("invalid node")
)

type NodeStore interface {
	ByIndex(index int) (Node, error)
	ByAddress(address string) (NodeSet, error)
	All() NodeSet
	Count() int
	Upsert(n Node) error
}

type memDBStore struct {
	db *memdb.MemDB
}

// nodeRecord is what memdb indexes. Addresses are matched case-insensitively.
type nodeRecord struct {
	Node
	NormalizedAddress string
}

func NewNodeStore() NodeStore {
	db, err := memdb.NewMemDB(&memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			table: {
				Name: table,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name: "id",
						Indexer: &memdb.StringFieldIndex{
							Field: "ID",
						},
						Unique:       true,
						AllowMissing: false,
					},
					"index": {
						Name:         "index",
						AllowMissing: false,
						Unique:       true,
						Indexer:      &memdb.IntFieldIndex{Field: "Index"},
					},
					"address": {
						Name:         "address",
						AllowMissing: false,
						Unique:       false,
						Indexer:      &memdb.StringFieldIndex{Field: "NormalizedAddress", Lowercase: true},
					},
				},
			},
		},
	})
	if err != nil {
		panic(err)
	}
	return &memDBStore{db: db}
}

// FromNodes builds a store holding nodes. Nodes without an id are named
// after their index.
func FromNodes(nodes ...Node) (NodeStore, error) {
	store := NewNodeStore()
	for idx, n := range nodes {
		n.Index = idx
		if err := store.Upsert(n); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (s *memDBStore) Upsert(n Node) error {
	if n.Index < 0 || n.Address == "" {
		return errors.Wrapf(ErrInvalidNode, "node %d has no address", n.Index)
	}
	if n.SyncPort <= 0 || n.SyncPort > 65535 {
		return errors.Wrapf(ErrInvalidNode, "node %d has invalid sync port %d", n.Index, n.SyncPort)
	}
	if n.ID == "" {
		n.ID = fmt.Sprintf("node%d", n.Index)
	}
	return s.write(func(tx *memdb.Txn) error {
		if existing, err := tx.First(table, "index", n.Index); err == nil && existing != nil {
			if err := tx.Delete(table, existing); err != nil {
				return err
			}
		}
		return tx.Insert(table, &nodeRecord{Node: n, NormalizedAddress: strings.ToLower(n.Address)})
	})
}

func (s *memDBStore) ByIndex(index int) (Node, error) {
	return s.first("index", index)
}

// ByAddress returns every node hosted at address, lowest index first.
func (s *memDBStore) ByAddress(address string) (NodeSet, error) {
	set, err := s.list("address", strings.ToLower(address))
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return nil, ErrNodeNotFound
	}
	return set, nil
}

func (s *memDBStore) All() NodeSet {
	set, _ := s.list("id")
	return set
}

func (s *memDBStore) Count() int {
	return len(s.All())
}

func (s *memDBStore) list(index string, args ...interface{}) (NodeSet, error) {
	var set NodeSet
	err := s.read(func(tx *memdb.Txn) error {
		iterator, err := tx.Get(table, index, args...)
		if err != nil {
			return err
		}
		for {
			payload := iterator.Next()
			if payload == nil {
				return nil
			}
			set = append(set, payload.(*nodeRecord).Node)
		}
	})
	sort.Slice(set, func(i, j int) bool { return set[i].Index < set[j].Index })
	return set, err
}

func (s *memDBStore) first(idx string, id interface{}) (Node, error) {
	var node Node
	return node, s.read(func(tx *memdb.Txn) error {
		data, err := tx.First(table, idx, id)
		if err != nil || data == nil {
			return ErrNodeNotFound
		}
		node = data.(*nodeRecord).Node
		return nil
	})
}

func (s *memDBStore) read(statement func(tx *memdb.Txn) error) error {
	tx := s.db.Txn(false)
	return s.run(tx, statement)
}
func (s *memDBStore) write(statement func(tx *memdb.Txn) error) error {
	tx := s.db.Txn(true)
	return s.run(tx, statement)
}
func (s *memDBStore) run(tx *memdb.Txn, statement func(tx *memdb.Txn) error) error {
	defer tx.Abort()
	err := statement(tx)
	if err != nil {
		return err
	}
	tx.Commit()
	return nil
}
