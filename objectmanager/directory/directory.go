// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

// Package directory keeps the per-node hints about which nodes hold which
// objects.
//
// The directory is advisory. Holders may have evicted an object or never
// have had it; callers must tolerate wrong answers.
package directory

import (
	"encoding/binary"
	"sort"
	"sync"
	"time"

	monkit "github.com/spacemonkeygo/monkit/v3"

	"storj.io/objectmanager/pkg/ids"
)

var mon = monkit.Package()

const shardCount = 64

type shard struct {
	mu      sync.RWMutex
	holders map[ids.ObjectID]map[ids.NodeID]struct{}
}

// Directory maps object ids to the nodes believed to hold them.
type Directory struct {
	shards [shardCount]shard

	failureMu sync.Mutex
	failures  map[ids.NodeID]time.Time

	now func() time.Time
}

// New creates an empty directory.
func New() *Directory {
	directory := &Directory{
		failures: map[ids.NodeID]time.Time{},
		now:      time.Now,
	}
	for i := range directory.shards {
		directory.shards[i].holders = map[ids.ObjectID]map[ids.NodeID]struct{}{}
	}
	return directory
}

func (directory *Directory) shard(id ids.ObjectID) *shard {
	return &directory.shards[binary.BigEndian.Uint32(id[:4])%shardCount]
}

// Add records nodes as holders of the object.
func (directory *Directory) Add(id ids.ObjectID, nodes ...ids.NodeID) {
	if len(nodes) == 0 {
		return
	}

	shard := directory.shard(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	holders, ok := shard.holders[id]
	if !ok {
		holders = map[ids.NodeID]struct{}{}
		shard.holders[id] = holders
	}
	for _, node := range nodes {
		holders[node] = struct{}{}
	}
	mon.Counter("directory_added").Inc(int64(len(nodes))) //mon:locked
}

// Remove forgets node as a holder of the object.
func (directory *Directory) Remove(id ids.ObjectID, node ids.NodeID) {
	shard := directory.shard(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	holders, ok := shard.holders[id]
	if !ok {
		return
	}
	delete(holders, node)
	if len(holders) == 0 {
		delete(shard.holders, id)
	}
}

// RemoveObjects forgets every holder of the given objects.
func (directory *Directory) RemoveObjects(objects ...ids.ObjectID) {
	for _, id := range objects {
		shard := directory.shard(id)
		shard.mu.Lock()
		delete(shard.holders, id)
		shard.mu.Unlock()
	}
}

// Holders returns the known holders of the object sorted by node id.
func (directory *Directory) Holders(id ids.ObjectID) []ids.NodeID {
	shard := directory.shard(id)
	shard.mu.RLock()
	holders := make([]ids.NodeID, 0, len(shard.holders[id]))
	for node := range shard.holders[id] {
		holders = append(holders, node)
	}
	shard.mu.RUnlock()

	sort.Slice(holders, func(i, k int) bool { return holders[i].Less(holders[k]) })
	return holders
}

// Candidates returns the holders of the object that are not excluded,
// least recently failed first. Nodes that never failed come first.
func (directory *Directory) Candidates(id ids.ObjectID, exclude ...ids.NodeID) []ids.NodeID {
	holders := directory.Holders(id)

	candidates := holders[:0]
next:
	for _, node := range holders {
		for _, excluded := range exclude {
			if node == excluded {
				continue next
			}
		}
		candidates = append(candidates, node)
	}

	directory.failureMu.Lock()
	failed := make(map[ids.NodeID]time.Time, len(candidates))
	for _, node := range candidates {
		if at, ok := directory.failures[node]; ok {
			failed[node] = at
		}
	}
	directory.failureMu.Unlock()

	sort.SliceStable(candidates, func(i, k int) bool {
		a, aok := failed[candidates[i]]
		b, bok := failed[candidates[k]]
		switch {
		case !aok || !bok:
			return !aok && bok
		default:
			return a.Before(b)
		}
	})
	return candidates
}

// MarkFailed records that a request to node failed just now.
func (directory *Directory) MarkFailed(node ids.NodeID) {
	directory.failureMu.Lock()
	defer directory.failureMu.Unlock()
	directory.failures[node] = directory.now()
}

// MarkSucceeded forgets earlier failures of node.
func (directory *Directory) MarkSucceeded(node ids.NodeID) {
	directory.failureMu.Lock()
	defer directory.failureMu.Unlock()
	delete(directory.failures, node)
}

// Snapshot returns a copy of the whole directory.
func (directory *Directory) Snapshot() map[ids.ObjectID][]ids.NodeID {
	snapshot := map[ids.ObjectID][]ids.NodeID{}
	for i := range directory.shards {
		shard := &directory.shards[i]
		shard.mu.RLock()
		for id, holders := range shard.holders {
			nodes := make([]ids.NodeID, 0, len(holders))
			for node := range holders {
				nodes = append(nodes, node)
			}
			sort.Slice(nodes, func(i, k int) bool { return nodes[i].Less(nodes[k]) })
			snapshot[id] = nodes
		}
		shard.mu.RUnlock()
	}
	return snapshot
}
