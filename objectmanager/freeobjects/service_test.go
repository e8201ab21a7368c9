// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package freeobjects_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/errs2"
	"storj.io/common/testcontext"
	"storj.io/objectmanager/objectmanager/directory"
	"storj.io/objectmanager/objectmanager/freeobjects"
	"storj.io/objectmanager/objectmanager/nodes"
	"storj.io/objectmanager/objectmanager/objects"
	"storj.io/objectmanager/objectmanager/transfer"
	"storj.io/objectmanager/objectmanager/transfer/transfertest"
	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/pkg/pb"
	"storj.io/objectmanager/storage"
	"storj.io/objectmanager/storage/memstore"
	"storj.io/objectmanager/storage/testsuite"
)

type discarder struct {
	mu        sync.Mutex
	discarded []ids.ObjectID
}

func (d *discarder) Discard(id ids.ObjectID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.discarded = append(d.discarded, id)
}

type cluster struct {
	self, b, c ids.NodeID
	store      *objects.Store
	directory  *directory.Directory
	discarder  *discarder
	peers      *transfertest.Peers
	service    *freeobjects.Service
}

func newCluster(t *testing.T, config freeobjects.Config) *cluster {
	c := &cluster{
		self:      transfertest.NodeID(),
		b:         transfertest.NodeID(),
		c:         transfertest.NodeID(),
		store:     objects.NewStore(zaptest.NewLogger(t), memstore.New(), objects.Config{TombstoneTTL: time.Hour}),
		directory: directory.New(),
		discarder: &discarder{},
		peers:     &transfertest.Peers{},
	}
	resolver := nodes.NewStatic(
		ids.NodeURL{ID: c.self, Address: "127.0.0.1:1"},
		ids.NodeURL{ID: c.b, Address: "127.0.0.1:2"},
		ids.NodeURL{ID: c.c, Address: "127.0.0.1:3"},
	)
	c.service = freeobjects.NewService(zaptest.NewLogger(t), c.self, c.store, c.directory, c.discarder, resolver, c.peers, config)
	return c
}

func (c *cluster) put(ctx context.Context, t *testing.T, count int) []storage.Object {
	var list []storage.Object
	for i := 0; i < count; i++ {
		object := testsuite.NewObject(2, 16)
		require.NoError(t, c.store.Put(ctx, object))
		c.directory.Add(object.ID, c.self, c.b)
		list = append(list, object)
	}
	return list
}

func objectIDs(list []storage.Object) []ids.ObjectID {
	var result []ids.ObjectID
	for _, object := range list {
		result = append(result, object.ID)
	}
	return result
}

func freed(requests []*pb.FreeObjectsRequest) int {
	count := 0
	for _, req := range requests {
		count += len(req.ObjectIds)
	}
	return count
}

func TestFreeEvictsAndBroadcasts(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	c := newCluster(t, freeobjects.Config{
		BatchSize:      2,
		FlushInterval:  time.Hour,
		MaxRetries:     3,
		Timeout:        time.Second,
		MaxConcurrency: 4,
	})
	list := c.put(ctx, t, 3)

	require.NoError(t, c.service.Free(ctx, objectIDs(list)))

	for _, object := range list {
		require.True(t, c.store.Tombstoned(object.ID))
		has, err := c.store.Has(ctx, object.ID)
		require.NoError(t, err)
		require.False(t, has)
		require.Empty(t, c.directory.Holders(object.ID))
	}
	require.ElementsMatch(t, objectIDs(list), c.discarder.discarded)

	require.Empty(t, c.peers.Frees(c.self))
	for _, node := range []ids.NodeID{c.b, c.c} {
		requests := c.peers.Frees(node)
		require.Len(t, requests, 2)
		require.Equal(t, 3, freed(requests))
	}
	require.Zero(t, c.service.Pending())
}

func TestFreeRetriesFailedBroadcast(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	c := newCluster(t, freeobjects.Config{
		BatchSize:      10,
		FlushInterval:  time.Hour,
		MaxRetries:     3,
		Timeout:        time.Second,
		MaxConcurrency: 4,
	})

	var down int32 = 1
	c.peers.OnFreeObjects = func(ctx context.Context, node ids.NodeID, req *pb.FreeObjectsRequest) error {
		if node == c.c && atomic.LoadInt32(&down) == 1 {
			return transfer.ErrUnreachable.New("down")
		}
		return nil
	}

	list := c.put(ctx, t, 2)
	require.NoError(t, c.service.Free(ctx, objectIDs(list)))
	require.Equal(t, 1, c.service.Pending())

	atomic.StoreInt32(&down, 0)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctx.Go(func() error { return errs2.IgnoreCanceled(c.service.Run(runCtx)) })

	c.service.Loop.TriggerWait()
	require.Zero(t, c.service.Pending())
	require.Len(t, c.peers.Frees(c.b), 1)
	require.Len(t, c.peers.Frees(c.c), 2)
}

func TestFreeDropsAfterMaxRetries(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	c := newCluster(t, freeobjects.Config{
		BatchSize:      10,
		FlushInterval:  time.Hour,
		MaxRetries:     2,
		Timeout:        time.Second,
		MaxConcurrency: 4,
	})
	c.peers.OnFreeObjects = func(ctx context.Context, node ids.NodeID, req *pb.FreeObjectsRequest) error {
		if node == c.c {
			return transfer.ErrUnreachable.New("down")
		}
		return nil
	}

	list := c.put(ctx, t, 1)
	require.NoError(t, c.service.Free(ctx, objectIDs(list)))
	require.Equal(t, 1, c.service.Pending())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctx.Go(func() error { return errs2.IgnoreCanceled(c.service.Run(runCtx)) })

	for i := 0; i < 10 && c.service.Pending() > 0; i++ {
		c.service.Loop.TriggerWait()
	}
	require.Zero(t, c.service.Pending())
	require.Len(t, c.peers.Frees(c.c), 3)

	c.service.Loop.TriggerWait()
	require.Len(t, c.peers.Frees(c.c), 3)
}

func TestQueueIsFlushed(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	c := newCluster(t, freeobjects.Config{
		BatchSize:      10,
		FlushInterval:  time.Hour,
		MaxRetries:     3,
		Timeout:        time.Second,
		MaxConcurrency: 4,
	})
	list := c.put(ctx, t, 2)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctx.Go(func() error { return errs2.IgnoreCanceled(c.service.Run(runCtx)) })

	c.service.Queue(objectIDs(list)...)
	c.service.Loop.TriggerWait()

	for _, object := range list {
		ok, err := c.store.Serveable(ctx, object.ID)
		require.NoError(t, err)
		require.False(t, ok)
	}
	require.Equal(t, 2, freed(c.peers.Frees(c.b)))
	require.Equal(t, 2, freed(c.peers.Frees(c.c)))
}

func TestEvictLocalDoesNotBroadcast(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	c := newCluster(t, freeobjects.Config{BatchSize: 10, FlushInterval: time.Hour, MaxConcurrency: 1})
	list := c.put(ctx, t, 1)

	require.NoError(t, c.service.EvictLocal(ctx, objectIDs(list)))
	require.True(t, c.store.Tombstoned(list[0].ID))
	require.Empty(t, c.peers.Frees(c.b))
	require.Empty(t, c.peers.Frees(c.c))
}

func TestDiscardersFanOut(t *testing.T) {
	first, second := &discarder{}, &discarder{}
	discarders := freeobjects.Discarders{first, second}

	id := ids.ObjectIDFromContent(nil, []byte("object"))
	discarders.Discard(id)

	require.Equal(t, []ids.ObjectID{id}, first.discarded)
	require.Equal(t, []ids.ObjectID{id}, second.discarded)
}
