// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package nodes

import (
	"context"
	"sort"
	"sync"

	"storj.io/objectmanager/pkg/ids"
)

// Static is an in-memory node table.
type Static struct {
	mu    sync.RWMutex
	nodes map[ids.NodeID]string
}

var _ Registry = (*Static)(nil)

// NewStatic creates a node table with the given nodes.
func NewStatic(nodes ...ids.NodeURL) *Static {
	static := &Static{nodes: map[ids.NodeID]string{}}
	for _, node := range nodes {
		static.nodes[node.ID] = node.Address
	}
	return static
}

// Register adds or updates a node.
func (static *Static) Register(ctx context.Context, node ids.NodeURL) error {
	if node.ID.IsZero() || node.Address == "" {
		return Error.New("invalid node %q", node.String())
	}

	static.mu.Lock()
	defer static.mu.Unlock()
	static.nodes[node.ID] = node.Address
	return nil
}

// Unregister removes a node.
func (static *Static) Unregister(ctx context.Context, id ids.NodeID) error {
	static.mu.Lock()
	defer static.mu.Unlock()
	delete(static.nodes, id)
	return nil
}

// Resolve returns the address of the node.
func (static *Static) Resolve(ctx context.Context, id ids.NodeID) (string, error) {
	static.mu.RLock()
	defer static.mu.RUnlock()

	address, ok := static.nodes[id]
	if !ok {
		return "", ErrUnknownNode.New("%s", id)
	}
	return address, nil
}

// List returns all nodes sorted by id.
func (static *Static) List(ctx context.Context) ([]ids.NodeURL, error) {
	static.mu.RLock()
	list := make([]ids.NodeURL, 0, len(static.nodes))
	for id, address := range static.nodes {
		list = append(list, ids.NodeURL{ID: id, Address: address})
	}
	static.mu.RUnlock()

	sort.Slice(list, func(i, k int) bool { return list[i].ID.Less(list[k].ID) })
	return list, nil
}
