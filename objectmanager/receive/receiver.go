// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

// Package receive assembles inbound pushes and commits them to the local
// object store.
package receive

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	monkit "github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"storj.io/common/memory"
	"storj.io/objectmanager/objectmanager/directory"
	"storj.io/objectmanager/objectmanager/objects"
	"storj.io/objectmanager/objectmanager/transfer"
	"storj.io/objectmanager/pkg/chunk"
	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/pkg/pb"
	"storj.io/objectmanager/storage"
)

var mon = monkit.Package()

// Config contains the options for receiving objects.
type Config struct {
	SessionIdleTimeout time.Duration `help:"how long a partially received object is kept without new chunks" default:"1m0s"`
	MaxObjectSize      memory.Size   `help:"largest object accepted from other nodes" default:"2GiB"`
	VerifyContent      bool          `help:"reject received objects whose content does not match their id" default:"false"`
	MaxBufferedBytes   memory.Size   `help:"limit on the declared size of all partially received objects, 0 means unlimited" default:"256MiB"`
}

// Observer is notified about the outcome of inbound transfers.
type Observer interface {
	// ChunkReceived is called when a new chunk of the object arrived.
	ChunkReceived(id ids.ObjectID)
	// ObjectCommitted is called once the object is in the local store.
	ObjectCommitted(id ids.ObjectID)
	// ObjectFailed is called when an assembly from sender was discarded.
	ObjectFailed(id ids.ObjectID, sender ids.NodeID, err error)
}

type sessionKey struct {
	push   ids.PushID
	object ids.ObjectID
}

// assembly is one inbound push session.
type assembly struct {
	sender   ids.NodeID
	owner    *pb.Address
	reserved atomic.Int64

	mu        sync.Mutex
	assembler *chunk.Assembler
	committed bool
}

// Receiver assembles inbound chunks.
//
// architecture: Service
type Receiver struct {
	log       *zap.Logger
	store     *objects.Store
	directory *directory.Directory
	chunkSize int
	config    Config

	mu       sync.Mutex
	sessions *ttlcache.Cache[sessionKey, *assembly]
	budget   *semaphore.Weighted

	observerMu sync.RWMutex
	observers  []Observer
}

// NewReceiver creates a new receiver. chunkSize must match the chunk size
// used by the senders.
func NewReceiver(log *zap.Logger, store *objects.Store, directory *directory.Directory, chunkSize int, config Config) *Receiver {
	receiver := &Receiver{
		log:       log,
		store:     store,
		directory: directory,
		chunkSize: chunkSize,
		config:    config,
		sessions: ttlcache.New[sessionKey, *assembly](
			ttlcache.WithTTL[sessionKey, *assembly](config.SessionIdleTimeout),
		),
	}
	if config.MaxBufferedBytes > 0 {
		receiver.budget = semaphore.NewWeighted(config.MaxBufferedBytes.Int64())
	}
	receiver.sessions.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[sessionKey, *assembly]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		key, session := item.Key(), item.Value()
		receiver.release(session)
		mon.Meter("receive_session_expired").Mark(1) //mon:locked
		receiver.log.Debug("partial object expired",
			zap.Stringer("Object ID", key.object),
			zap.Stringer("Push ID", key.push),
			zap.Stringer("Sender", session.sender))
		receiver.notifyFailed(key.object, session.sender, transfer.Timeout("no chunks for %s from %s", key.object, session.sender))
	})
	return receiver
}

// Subscribe registers an observer.
func (receiver *Receiver) Subscribe(observer Observer) {
	receiver.observerMu.Lock()
	defer receiver.observerMu.Unlock()
	receiver.observers = append(receiver.observers, observer)
}

// Run expires idle sessions until ctx is canceled.
func (receiver *Receiver) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		receiver.sessions.Stop()
	}()
	receiver.sessions.Start()
	return nil
}

// HandleChunk processes one inbound PushRequest.
//
// It returns transfer.ErrDuplicate when the object is already stored,
// transfer.ErrRejected when the object is being freed or the partial objects
// would exceed the buffer limit and transfer.ErrCorrupt when the assembled
// content does not match the id.
func (receiver *Receiver) HandleChunk(ctx context.Context, req *pb.PushRequest) (err error) {
	defer mon.Task()(&ctx)(&err)

	id, err := ids.ObjectIDFromBytes(req.ObjectId)
	if err != nil {
		return transfer.ErrInvalid.Wrap(err)
	}
	pushID, err := ids.PushIDFromBytes(req.PushId)
	if err != nil {
		return transfer.ErrInvalid.Wrap(err)
	}
	sender, err := ids.NodeIDFromBytes(req.NodeId)
	if err != nil {
		return transfer.ErrInvalid.Wrap(err)
	}
	if req.MetadataSize+req.DataSize < req.DataSize || req.MetadataSize+req.DataSize > uint64(receiver.config.MaxObjectSize.Int64()) {
		return transfer.ErrInvalid.New("object %s of %d bytes exceeds the limit of %s",
			id, req.MetadataSize+req.DataSize, receiver.config.MaxObjectSize)
	}

	// the sender holds the object, whatever happens to this chunk
	receiver.directory.Add(id, sender)

	if receiver.store.Tombstoned(id) {
		return transfer.ErrRejected.New("object %s is being freed", id)
	}
	has, err := receiver.store.Has(ctx, id)
	if err != nil {
		return err
	}
	if has {
		return transfer.ErrDuplicate.New("object %s", id)
	}

	key := sessionKey{push: pushID, object: id}
	session, err := receiver.session(key, sender, req)
	if err != nil {
		return err
	}

	session.mu.Lock()
	layout := session.assembler.Layout()
	if layout.MetadataSize != req.MetadataSize || layout.DataSize != req.DataSize {
		session.mu.Unlock()
		return transfer.ErrInvalid.New("chunk %d of %s has sizes %d/%d, session has %d/%d",
			req.ChunkIndex, id, req.MetadataSize, req.DataSize, layout.MetadataSize, layout.DataSize)
	}
	added, err := session.assembler.Add(req.ChunkIndex, req.Data)
	if err != nil {
		session.mu.Unlock()
		return transfer.ErrInvalid.Wrap(err)
	}
	complete := session.assembler.Complete() && !session.committed
	if complete {
		session.committed = true
	}
	session.mu.Unlock()

	if added {
		mon.Meter("receive_chunk").Mark(1)                             //mon:locked
		mon.IntVal("receive_chunk_size").Observe(int64(len(req.Data))) //mon:locked
		receiver.notifyChunk(id)
	}
	if !complete {
		return nil
	}

	receiver.sessions.Delete(key)
	defer receiver.release(session)
	return receiver.commit(ctx, id, sender, session)
}

// session returns the assembly for key, creating it when needed.
func (receiver *Receiver) session(key sessionKey, sender ids.NodeID, req *pb.PushRequest) (*assembly, error) {
	receiver.mu.Lock()
	defer receiver.mu.Unlock()

	if item := receiver.sessions.Get(key); item != nil {
		return item.Value(), nil
	}

	layout, err := chunk.NewLayout(req.MetadataSize, req.DataSize, receiver.chunkSize)
	if err != nil {
		return nil, transfer.ErrInvalid.Wrap(err)
	}

	size := int64(layout.MetadataSize + layout.DataSize)
	if receiver.budget != nil && !receiver.budget.TryAcquire(size) {
		mon.Meter("receive_budget_exceeded").Mark(1) //mon:locked
		return nil, transfer.ErrRejected.New("no buffer space for %s of %d bytes", key.object, size)
	}

	session := &assembly{
		sender:    sender,
		owner:     req.OwnerAddress,
		assembler: chunk.NewAssembler(layout),
	}
	session.reserved.Store(size)
	receiver.sessions.Set(key, session, ttlcache.DefaultTTL)
	return session, nil
}

// release returns the buffer space reserved by the session.
func (receiver *Receiver) release(session *assembly) {
	if size := session.reserved.Swap(0); size > 0 && receiver.budget != nil {
		receiver.budget.Release(size)
	}
}

func (receiver *Receiver) commit(ctx context.Context, id ids.ObjectID, sender ids.NodeID, session *assembly) (err error) {
	defer mon.Task()(&ctx)(&err)

	metadata, data, err := session.assembler.Result()
	if err != nil {
		return err
	}

	if receiver.config.VerifyContent && ids.ObjectIDFromContent(metadata, data) != id {
		mon.Meter("receive_corrupt").Mark(1) //mon:locked
		err := transfer.ErrCorrupt.New("content of %s from %s does not match its id", id, sender)
		receiver.log.Warn("discarding corrupt object", zap.Stringer("Object ID", id), zap.Stringer("Sender", sender))
		receiver.notifyFailed(id, sender, err)
		return err
	}

	err = receiver.store.Commit(ctx, storage.Object{
		ID:       id,
		Metadata: metadata,
		Data:     data,
		Owner:    session.owner,
	})
	switch {
	case storage.ErrAlreadyExists.Has(err):
		// another session committed first
		return nil
	case err != nil:
		receiver.notifyFailed(id, sender, err)
		return err
	}

	receiver.log.Debug("object received",
		zap.Stringer("Object ID", id),
		zap.Stringer("Sender", sender),
		zap.Int("Size", len(metadata)+len(data)))
	receiver.notifyCommitted(id)
	return nil
}

// Discard drops every partial assembly of the object.
func (receiver *Receiver) Discard(id ids.ObjectID) {
	receiver.mu.Lock()
	defer receiver.mu.Unlock()

	for key, item := range receiver.sessions.Items() {
		if key.object == id {
			receiver.sessions.Delete(key)
			receiver.release(item.Value())
		}
	}
}

// SessionInfo describes a partial inbound object.
type SessionInfo struct {
	PushID   ids.PushID   `json:"push_id"`
	ObjectID ids.ObjectID `json:"object_id"`
	Sender   ids.NodeID   `json:"sender"`
	Received uint32       `json:"received"`
	Chunks   uint32       `json:"chunks"`
}

// Sessions returns the partial inbound objects.
func (receiver *Receiver) Sessions() []SessionInfo {
	var infos []SessionInfo
	for key, item := range receiver.sessions.Items() {
		session := item.Value()
		session.mu.Lock()
		infos = append(infos, SessionInfo{
			PushID:   key.push,
			ObjectID: key.object,
			Sender:   session.sender,
			Received: session.assembler.Received(),
			Chunks:   session.assembler.Layout().Count(),
		})
		session.mu.Unlock()
	}
	return infos
}

func (receiver *Receiver) notifyChunk(id ids.ObjectID) {
	receiver.observerMu.RLock()
	defer receiver.observerMu.RUnlock()
	for _, observer := range receiver.observers {
		observer.ChunkReceived(id)
	}
}

func (receiver *Receiver) notifyCommitted(id ids.ObjectID) {
	receiver.observerMu.RLock()
	defer receiver.observerMu.RUnlock()
	for _, observer := range receiver.observers {
		observer.ObjectCommitted(id)
	}
}

func (receiver *Receiver) notifyFailed(id ids.ObjectID, sender ids.NodeID, err error) {
	receiver.observerMu.RLock()
	defer receiver.observerMu.RUnlock()
	for _, observer := range receiver.observers {
		observer.ObjectFailed(id, sender, err)
	}
}
