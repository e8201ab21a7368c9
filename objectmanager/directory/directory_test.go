// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package directory

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"storj.io/common/testrand"
	"storj.io/objectmanager/pkg/ids"
)

func randomObjectID(t *testing.T) ids.ObjectID {
	id, err := ids.ObjectIDFromBytes(testrand.BytesInt(ids.ObjectIDSize))
	require.NoError(t, err)
	return id
}

func randomNodeIDs(t *testing.T, n int) []ids.NodeID {
	var nodes []ids.NodeID
	for i := 0; i < n; i++ {
		id, err := ids.NodeIDFromBytes(testrand.BytesInt(ids.NodeIDSize))
		require.NoError(t, err)
		nodes = append(nodes, id)
	}
	sort.Slice(nodes, func(i, k int) bool { return nodes[i].Less(nodes[k]) })
	return nodes
}

func TestAddRemove(t *testing.T) {
	directory := New()
	object := randomObjectID(t)
	nodes := randomNodeIDs(t, 3)

	require.Empty(t, directory.Holders(object))

	directory.Add(object, nodes...)
	directory.Add(object, nodes[0])
	require.Equal(t, nodes, directory.Holders(object))

	directory.Remove(object, nodes[1])
	require.Equal(t, []ids.NodeID{nodes[0], nodes[2]}, directory.Holders(object))

	other := randomObjectID(t)
	directory.Add(other, nodes[1])

	directory.RemoveObjects(object)
	require.Empty(t, directory.Holders(object))
	require.Equal(t, []ids.NodeID{nodes[1]}, directory.Holders(other))

	directory.Remove(other, nodes[1])
	require.Empty(t, directory.Snapshot())
}

func TestCandidatesOrder(t *testing.T) {
	directory := New()
	object := randomObjectID(t)
	nodes := randomNodeIDs(t, 4)
	directory.Add(object, nodes...)

	now := time.Now()
	directory.now = func() time.Time { return now }
	directory.MarkFailed(nodes[0])
	now = now.Add(time.Second)
	directory.MarkFailed(nodes[1])

	candidates := directory.Candidates(object)
	expected := []ids.NodeID{nodes[2], nodes[3], nodes[0], nodes[1]}
	if diff := cmp.Diff(expected, candidates); diff != "" {
		t.Fatal(diff)
	}

	candidates = directory.Candidates(object, nodes[2], nodes[0])
	require.Equal(t, []ids.NodeID{nodes[3], nodes[1]}, candidates)

	directory.MarkSucceeded(nodes[0])
	candidates = directory.Candidates(object)
	require.Equal(t, []ids.NodeID{nodes[0], nodes[2], nodes[3], nodes[1]}, candidates)
}

func TestSnapshot(t *testing.T) {
	directory := New()
	a, b := randomObjectID(t), randomObjectID(t)
	nodes := randomNodeIDs(t, 2)

	directory.Add(a, nodes...)
	directory.Add(b, nodes[1])

	expected := map[ids.ObjectID][]ids.NodeID{
		a: nodes,
		b: {nodes[1]},
	}
	if diff := cmp.Diff(expected, directory.Snapshot()); diff != "" {
		t.Fatal(diff)
	}
}

func TestConcurrent(t *testing.T) {
	directory := New()
	nodes := randomNodeIDs(t, 8)

	var objects []ids.ObjectID
	for i := 0; i < 32; i++ {
		objects = append(objects, randomObjectID(t))
	}

	var wg sync.WaitGroup
	for _, node := range nodes {
		node := node
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, object := range objects {
				directory.Add(object, node)
				_ = directory.Candidates(object)
				directory.MarkFailed(node)
			}
		}()
	}
	wg.Wait()

	for _, object := range objects {
		require.Equal(t, nodes, directory.Holders(object))
	}
}
