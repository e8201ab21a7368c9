// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package receive_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/memory"
	"storj.io/common/testcontext"
	"storj.io/objectmanager/objectmanager/directory"
	"storj.io/objectmanager/objectmanager/objects"
	"storj.io/objectmanager/objectmanager/receive"
	"storj.io/objectmanager/objectmanager/transfer"
	"storj.io/objectmanager/objectmanager/transfer/transfertest"
	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/storage/memstore"
	"storj.io/objectmanager/storage/testsuite"
)

const chunkSize = 2

type observer struct {
	mu        sync.Mutex
	chunks    int
	committed []ids.ObjectID
	failed    chan error
}

func newObserver() *observer {
	return &observer{failed: make(chan error, 10)}
}

func (o *observer) ChunkReceived(id ids.ObjectID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.chunks++
}

func (o *observer) ObjectCommitted(id ids.ObjectID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.committed = append(o.committed, id)
}

func (o *observer) ObjectFailed(id ids.ObjectID, sender ids.NodeID, err error) {
	o.failed <- err
}

type fixture struct {
	store     *objects.Store
	directory *directory.Directory
	receiver  *receive.Receiver
	observer  *observer
}

func newFixture(t *testing.T, config receive.Config) *fixture {
	if config.MaxObjectSize == 0 {
		config.MaxObjectSize = memory.MiB
	}
	if config.SessionIdleTimeout == 0 {
		config.SessionIdleTimeout = time.Hour
	}

	f := &fixture{
		store:     objects.NewStore(zaptest.NewLogger(t), memstore.New(), objects.Config{TombstoneTTL: time.Hour}),
		directory: directory.New(),
		observer:  newObserver(),
	}
	f.receiver = receive.NewReceiver(zaptest.NewLogger(t), f.store, f.directory, chunkSize, config)
	f.receiver.Subscribe(f.observer)
	return f
}

func TestReceiveAssemblesObject(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, receive.Config{VerifyContent: true})
	sender := transfertest.NodeID()
	object := testsuite.NewObject(1, 4)
	requests := transfertest.PushRequests(t, object, sender, chunkSize)
	require.Len(t, requests, 3)

	// out of order and with a repeated chunk
	require.NoError(t, f.receiver.HandleChunk(ctx, requests[2]))
	require.NoError(t, f.receiver.HandleChunk(ctx, requests[0]))
	require.NoError(t, f.receiver.HandleChunk(ctx, requests[0]))
	require.Len(t, f.receiver.Sessions(), 1)

	has, err := f.store.Has(ctx, object.ID)
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, f.receiver.HandleChunk(ctx, requests[1]))

	stored, err := f.store.Get(ctx, object.ID)
	require.NoError(t, err)
	testsuite.RequireEqualObject(t, object, stored)

	require.Equal(t, 3, f.observer.chunks)
	require.Equal(t, []ids.ObjectID{object.ID}, f.observer.committed)
	require.Equal(t, []ids.NodeID{sender}, f.directory.Holders(object.ID))
	require.Empty(t, f.receiver.Sessions())

	err = f.receiver.HandleChunk(ctx, requests[0])
	require.True(t, transfer.ErrDuplicate.Has(err), "got %v", err)
}

func TestReceiveEmptyObject(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, receive.Config{})
	object := testsuite.NewObject(0, 0)
	requests := transfertest.PushRequests(t, object, transfertest.NodeID(), chunkSize)
	require.Len(t, requests, 1)

	require.NoError(t, f.receiver.HandleChunk(ctx, requests[0]))
	has, err := f.store.Has(ctx, object.ID)
	require.NoError(t, err)
	require.True(t, has)
}

func TestReceiveConcurrentSessions(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, receive.Config{})
	object := testsuite.NewObject(3, 9)

	var group sync.WaitGroup
	for i := 0; i < 4; i++ {
		requests := transfertest.PushRequests(t, object, transfertest.NodeID(), chunkSize)
		group.Add(1)
		go func() {
			defer group.Done()
			for _, req := range requests {
				err := f.receiver.HandleChunk(ctx, req)
				if !transfer.IsSuccess(err) {
					t.Error(err)
				}
			}
		}()
	}
	group.Wait()

	stored, err := f.store.Get(ctx, object.ID)
	require.NoError(t, err)
	testsuite.RequireEqualObject(t, object, stored)
	require.Len(t, f.observer.committed, 1)
	require.Len(t, f.directory.Holders(object.ID), 4)
}

func TestReceiveRejectsFreedObject(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, receive.Config{})
	object := testsuite.NewObject(0, 4)
	requests := transfertest.PushRequests(t, object, transfertest.NodeID(), chunkSize)

	require.NoError(t, f.receiver.HandleChunk(ctx, requests[0]))

	require.NoError(t, f.store.Evict(ctx, object.ID))
	f.receiver.Discard(object.ID)
	require.Empty(t, f.receiver.Sessions())

	err := f.receiver.HandleChunk(ctx, requests[1])
	require.True(t, transfer.ErrRejected.Has(err), "got %v", err)

	has, err := f.store.Has(ctx, object.ID)
	require.NoError(t, err)
	require.False(t, has)
}

func TestReceiveCorrupt(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, receive.Config{VerifyContent: true})
	object := testsuite.NewObject(0, 2)
	requests := transfertest.PushRequests(t, object, transfertest.NodeID(), chunkSize)
	require.Len(t, requests, 1)
	requests[0].Data = []byte{requests[0].Data[0] ^ 0xFF, requests[0].Data[1]}

	err := f.receiver.HandleChunk(ctx, requests[0])
	require.True(t, transfer.ErrCorrupt.Has(err), "got %v", err)
	require.True(t, transfer.ErrCorrupt.Has(<-f.observer.failed))

	has, err := f.store.Has(ctx, object.ID)
	require.NoError(t, err)
	require.False(t, has)
}

func TestReceiveInvalid(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, receive.Config{MaxObjectSize: 8 * memory.B})
	sender := transfertest.NodeID()

	requests := transfertest.PushRequests(t, testsuite.NewObject(0, 4), sender, chunkSize)
	requests[0].ObjectId = []byte{1, 2, 3}
	err := f.receiver.HandleChunk(ctx, requests[0])
	require.True(t, transfer.ErrInvalid.Has(err), "got %v", err)

	requests = transfertest.PushRequests(t, testsuite.NewObject(0, 16), sender, chunkSize)
	err = f.receiver.HandleChunk(ctx, requests[0])
	require.True(t, transfer.ErrInvalid.Has(err), "got %v", err)

	requests = transfertest.PushRequests(t, testsuite.NewObject(0, 4), sender, chunkSize)
	requests[0].ChunkIndex = 7
	err = f.receiver.HandleChunk(ctx, requests[0])
	require.True(t, transfer.ErrInvalid.Has(err), "got %v", err)

	requests[1].DataSize = 6
	err = f.receiver.HandleChunk(ctx, requests[1])
	require.True(t, transfer.ErrInvalid.Has(err), "got %v", err)
}

func TestReceiveSessionExpires(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, receive.Config{SessionIdleTimeout: 50 * time.Millisecond})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctx.Go(func() error { return f.receiver.Run(runCtx) })

	object := testsuite.NewObject(0, 4)
	requests := transfertest.PushRequests(t, object, transfertest.NodeID(), chunkSize)
	require.NoError(t, f.receiver.HandleChunk(ctx, requests[0]))

	select {
	case err := <-f.observer.failed:
		require.True(t, transfer.ErrTimeout.Has(err), "got %v", err)
		require.True(t, transfer.ErrUnreachable.Has(err), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not expire")
	}
	require.Empty(t, f.receiver.Sessions())
}

func TestReceiveBufferLimit(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, receive.Config{MaxBufferedBytes: 10 * memory.B})
	sender := transfertest.NodeID()

	large := transfertest.PushRequests(t, testsuite.NewObject(0, 8), sender, chunkSize)
	require.NoError(t, f.receiver.HandleChunk(ctx, large[0]))

	waiting := transfertest.PushRequests(t, testsuite.NewObject(0, 4), sender, chunkSize)
	err := f.receiver.HandleChunk(ctx, waiting[0])
	require.True(t, transfer.ErrRejected.Has(err), "got %v", err)
	require.Len(t, f.receiver.Sessions(), 1)

	// committed objects give their space back
	for i := 0; i < 3; i++ {
		small := testsuite.NewObject(0, 2)
		requests := transfertest.PushRequests(t, small, sender, chunkSize)
		require.NoError(t, f.receiver.HandleChunk(ctx, requests[0]))
		has, err := f.store.Has(ctx, small.ID)
		require.NoError(t, err)
		require.True(t, has)
	}

	// so do discarded ones
	largeID, err := ids.ObjectIDFromBytes(large[0].ObjectId)
	require.NoError(t, err)
	f.receiver.Discard(largeID)
	require.NoError(t, f.receiver.HandleChunk(ctx, waiting[0]))
}
