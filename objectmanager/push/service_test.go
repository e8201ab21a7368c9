// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package push_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/memory"
	"storj.io/common/testcontext"
	"storj.io/objectmanager/objectmanager/directory"
	"storj.io/objectmanager/objectmanager/objects"
	"storj.io/objectmanager/objectmanager/push"
	"storj.io/objectmanager/objectmanager/receive"
	"storj.io/objectmanager/objectmanager/transfer"
	"storj.io/objectmanager/objectmanager/transfer/transfertest"
	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/pkg/pb"
	"storj.io/objectmanager/storage"
	"storj.io/objectmanager/storage/memstore"
	"storj.io/objectmanager/storage/testsuite"
)

var config = push.Config{
	ChunkSize:           2 * memory.B,
	MaxConcurrentChunks: 4,
	MaxRetries:          3,
	InitialBackoff:      time.Millisecond,
	MaxBackoff:          5 * time.Millisecond,
	RecentWindow:        time.Minute,
	MaxConcurrentPushes: 4,
}

type fixture struct {
	self, destination ids.NodeID

	source   *objects.Store
	target   *objects.Store
	receiver *receive.Receiver
	peers    *transfertest.Peers
	service  *push.Service
}

// newFixture creates a push service whose peers deliver chunks to a
// receiver on the destination node.
func newFixture(t *testing.T, config push.Config) *fixture {
	log := zaptest.NewLogger(t)
	f := &fixture{
		self:        transfertest.NodeID(),
		destination: transfertest.NodeID(),
		source:      objects.NewStore(log.Named("source"), memstore.New(), objects.Config{TombstoneTTL: time.Hour}),
		target:      objects.NewStore(log.Named("target"), memstore.New(), objects.Config{TombstoneTTL: time.Hour}),
		peers:       &transfertest.Peers{},
	}
	f.receiver = receive.NewReceiver(log.Named("receiver"), f.target, directory.New(), config.ChunkSize.Int(), receive.Config{
		SessionIdleTimeout: time.Hour,
		MaxObjectSize:      memory.MiB,
	})
	f.peers.OnPush = func(ctx context.Context, node ids.NodeID, req *pb.PushRequest) error {
		return f.receiver.HandleChunk(ctx, req)
	}
	f.service = push.NewService(log.Named("push"), f.self, f.source, f.peers, config)
	return f
}

func (f *fixture) put(ctx context.Context, t *testing.T, object storage.Object) {
	require.NoError(t, f.source.Put(ctx, object))
}

func (f *fixture) requireDelivered(ctx context.Context, t *testing.T, object storage.Object) {
	stored, err := f.target.Get(ctx, object.ID)
	require.NoError(t, err)
	testsuite.RequireEqualObject(t, object, stored)
}

func TestPush(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, config)
	object := testsuite.NewObject(0, 4)
	f.put(ctx, t, object)

	require.NoError(t, f.service.Push(ctx, object.ID, f.destination))
	f.requireDelivered(ctx, t, object)

	requests := f.peers.Pushes(f.destination)
	require.Len(t, requests, 2)
	for _, req := range requests {
		require.Equal(t, f.self.Bytes(), req.NodeId)
		require.Equal(t, uint64(4), req.DataSize)
		require.Len(t, req.Data, 2)
	}
	require.Equal(t, requests[0].PushId, requests[1].PushId)
	require.Empty(t, f.service.Sessions())
}

func TestPushEmptyObject(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, config)
	object := testsuite.NewObject(0, 0)
	f.put(ctx, t, object)

	require.NoError(t, f.service.Push(ctx, object.ID, f.destination))
	f.requireDelivered(ctx, t, object)
	require.Len(t, f.peers.Pushes(f.destination), 1)
}

func TestPushToSelf(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, config)
	object := testsuite.NewObject(0, 4)
	f.put(ctx, t, object)

	require.NoError(t, f.service.Push(ctx, object.ID, f.self))
	require.Empty(t, f.peers.Pushes(f.self))
}

func TestPushNotHeld(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, config)
	object := testsuite.NewObject(0, 4)

	err := f.service.Push(ctx, object.ID, f.destination)
	require.True(t, transfer.ErrNotHeld.Has(err), "got %v", err)
	require.Empty(t, f.peers.Pushes(f.destination))
}

func TestPushRetriesMissingChunks(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, config)
	object := testsuite.NewObject(0, 6)
	f.put(ctx, t, object)

	var failures int32 = 2
	f.peers.OnPush = func(ctx context.Context, node ids.NodeID, req *pb.PushRequest) error {
		if req.ChunkIndex == 1 && atomic.AddInt32(&failures, -1) >= 0 {
			return transfer.ErrUnreachable.New("connection reset")
		}
		return f.receiver.HandleChunk(ctx, req)
	}

	require.NoError(t, f.service.Push(ctx, object.ID, f.destination))
	f.requireDelivered(ctx, t, object)

	counts := map[uint32]int{}
	for _, req := range f.peers.Pushes(f.destination) {
		counts[req.ChunkIndex]++
	}
	require.Equal(t, map[uint32]int{0: 1, 1: 3, 2: 1}, counts)
}

func TestPushGivesUp(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, config)
	object := testsuite.NewObject(0, 2)
	f.put(ctx, t, object)

	f.peers.OnPush = func(ctx context.Context, node ids.NodeID, req *pb.PushRequest) error {
		return transfer.ErrUnreachable.New("down")
	}
	err := f.service.Push(ctx, object.ID, f.destination)
	require.True(t, transfer.ErrUnreachable.Has(err), "got %v", err)
	require.Len(t, f.peers.Pushes(f.destination), config.MaxRetries+1)
}

func TestPushStopsOnRejection(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, config)
	object := testsuite.NewObject(0, 2)
	f.put(ctx, t, object)

	require.NoError(t, f.target.Evict(ctx, object.ID))

	err := f.service.Push(ctx, object.ID, f.destination)
	require.True(t, transfer.ErrRejected.Has(err), "got %v", err)
	require.Len(t, f.peers.Pushes(f.destination), 1)
}

func TestPushDuplicateIsSuccess(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, config)
	object := testsuite.NewObject(0, 4)
	f.put(ctx, t, object)
	require.NoError(t, f.target.Put(ctx, object))

	require.NoError(t, f.service.Push(ctx, object.ID, f.destination))
}

func TestPushSharesSession(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, config)
	object := testsuite.NewObject(0, 4)
	f.put(ctx, t, object)

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	f.peers.OnPush = func(ctx context.Context, node ids.NodeID, req *pb.PushRequest) error {
		started <- struct{}{}
		<-release
		return f.receiver.HandleChunk(ctx, req)
	}

	first := make(chan error, 1)
	go func() { first <- f.service.Push(ctx, object.ID, f.destination) }()
	<-started
	require.Len(t, f.service.Sessions(), 1)

	second := make(chan error, 1)
	go func() { second <- f.service.Push(ctx, object.ID, f.destination) }()

	close(release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	f.requireDelivered(ctx, t, object)
	require.Len(t, f.peers.Pushes(f.destination), 2)

	// pushes within the recent window are skipped
	require.NoError(t, f.service.Push(ctx, object.ID, f.destination))
	require.Len(t, f.peers.Pushes(f.destination), 2)
}

func TestPushOutlivesFirstCaller(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, config)
	object := testsuite.NewObject(0, 2)
	f.put(ctx, t, object)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	f.peers.OnPush = func(ctx context.Context, node ids.NodeID, req *pb.PushRequest) error {
		started <- struct{}{}
		<-release
		return f.receiver.HandleChunk(ctx, req)
	}

	firstCtx, cancelFirst := context.WithCancel(ctx)
	first := make(chan error, 1)
	go func() { first <- f.service.Push(firstCtx, object.ID, f.destination) }()
	<-started

	second := make(chan error, 1)
	go func() { second <- f.service.Push(ctx, object.ID, f.destination) }()
	require.Eventually(t, func() bool {
		sessions := f.service.Sessions()
		return len(sessions) == 1 && sessions[0].Waiters == 2
	}, 10*time.Second, time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-first, context.Canceled)

	close(release)
	require.NoError(t, <-second)
	f.requireDelivered(ctx, t, object)
	require.Len(t, f.peers.Pushes(f.destination), 1)
}

func TestPushCanceledWithoutCallers(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, config)
	object := testsuite.NewObject(0, 2)
	f.put(ctx, t, object)

	started := make(chan struct{}, 1)
	f.peers.OnPush = func(ctx context.Context, node ids.NodeID, req *pb.PushRequest) error {
		started <- struct{}{}
		<-ctx.Done()
		return transfer.ErrUnreachable.Wrap(ctx.Err())
	}

	callerCtx, cancel := context.WithCancel(ctx)
	result := make(chan error, 1)
	go func() { result <- f.service.Push(callerCtx, object.ID, f.destination) }()
	<-started

	cancel()
	require.ErrorIs(t, <-result, context.Canceled)
	require.Empty(t, f.service.Sessions())
	require.NoError(t, f.service.Close())

	has, err := f.target.Has(ctx, object.ID)
	require.NoError(t, err)
	require.False(t, has)
}

func TestPushAsyncIgnoresRecentWindow(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, config)
	object := testsuite.NewObject(0, 2)
	f.put(ctx, t, object)

	require.NoError(t, f.service.Push(ctx, object.ID, f.destination))
	require.Len(t, f.peers.Pushes(f.destination), 1)

	// a request from the destination means it lost the object
	require.True(t, f.service.PushAsync(ctx, object.ID, f.destination))
	require.NoError(t, f.service.Close())
	require.Len(t, f.peers.Pushes(f.destination), 2)
}

func TestPushDiscardForgetsRecent(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, config)
	object := testsuite.NewObject(0, 2)
	other := testsuite.NewObject(1, 2)
	f.put(ctx, t, object)
	f.put(ctx, t, other)

	require.NoError(t, f.service.Push(ctx, object.ID, f.destination))
	require.NoError(t, f.service.Push(ctx, other.ID, f.destination))
	require.Len(t, f.peers.Pushes(f.destination), 2)

	f.service.Discard(object.ID)

	require.NoError(t, f.service.Push(ctx, object.ID, f.destination))
	require.NoError(t, f.service.Push(ctx, other.ID, f.destination))

	pushes := f.peers.Pushes(f.destination)
	require.Len(t, pushes, 3)
	require.Equal(t, object.ID.Bytes(), pushes[2].ObjectId)
}

func TestPushAsync(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, config)
	objectList := []storage.Object{testsuite.NewObject(1, 5), testsuite.NewObject(0, 7)}
	for _, object := range objectList {
		f.put(ctx, t, object)
	}

	rpcCtx, cancel := context.WithCancel(ctx)
	for _, object := range objectList {
		require.True(t, f.service.PushAsync(rpcCtx, object.ID, f.destination))
	}
	// pushes outlive the context they were requested with
	cancel()

	require.Eventually(t, func() bool {
		for _, object := range objectList {
			if has, err := f.target.Has(ctx, object.ID); err != nil || !has {
				return false
			}
		}
		return true
	}, 10*time.Second, 10*time.Millisecond)

	require.NoError(t, f.service.Close())
	for _, object := range objectList {
		f.requireDelivered(ctx, t, object)
	}
}

func TestPushRateLimited(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	limited := config
	limited.MaxBytesPerSecond = 1 * memory.KiB
	f := newFixture(t, limited)
	object := testsuite.NewObject(0, 16)
	f.put(ctx, t, object)

	require.NoError(t, f.service.Push(ctx, object.ID, f.destination))
	f.requireDelivered(ctx, t, object)
}
