// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

// Package endpoint implements the ObjectManagerService rpc surface.
package endpoint

import (
	"context"

	monkit "github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"storj.io/objectmanager/objectmanager/transfer"
	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/pkg/pb"
)

var mon = monkit.Package()

// Receiver handles inbound chunks.
type Receiver interface {
	HandleChunk(ctx context.Context, req *pb.PushRequest) error
}

// Pusher starts pushes back to requesting nodes.
type Pusher interface {
	PushAsync(ctx context.Context, id ids.ObjectID, destination ids.NodeID) bool
}

// Evictor evicts objects from the local node.
type Evictor interface {
	EvictLocal(ctx context.Context, objectIDs []ids.ObjectID) error
}

// Holdings tells whether the local node serves an object.
type Holdings interface {
	Serveable(ctx context.Context, id ids.ObjectID) (bool, error)
}

// Endpoint dispatches ObjectManagerService requests.
//
// architecture: Endpoint
type Endpoint struct {
	log      *zap.Logger
	receiver Receiver
	pusher   Pusher
	evictor  Evictor
	holdings Holdings
}

var _ pb.ObjectManagerServiceServer = (*Endpoint)(nil)

// New creates a new endpoint.
func New(log *zap.Logger, receiver Receiver, pusher Pusher, evictor Evictor, holdings Holdings) *Endpoint {
	return &Endpoint{
		log:      log,
		receiver: receiver,
		pusher:   pusher,
		evictor:  evictor,
		holdings: holdings,
	}
}

// Push receives one chunk of an object.
func (endpoint *Endpoint) Push(ctx context.Context, req *pb.PushRequest) (_ *pb.PushReply, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := endpoint.receiver.HandleChunk(ctx, req); err != nil {
		if !transfer.ErrDuplicate.Has(err) {
			endpoint.log.Debug("push rejected", zap.Uint32("Chunk", req.ChunkIndex), zap.Error(err))
		}
		return nil, transfer.ToRPC(err)
	}
	return &pb.PushReply{}, nil
}

// Pull starts pushing the requested object back to the requesting node.
func (endpoint *Endpoint) Pull(ctx context.Context, req *pb.PullRequest) (_ *pb.PullReply, err error) {
	defer mon.Task()(&ctx)(&err)

	id, err := ids.ObjectIDFromBytes(req.ObjectId)
	if err != nil {
		return nil, transfer.ToRPC(transfer.ErrInvalid.Wrap(err))
	}
	requester, err := ids.NodeIDFromBytes(req.NodeId)
	if err != nil {
		return nil, transfer.ToRPC(transfer.ErrInvalid.Wrap(err))
	}

	ok, err := endpoint.holdings.Serveable(ctx, id)
	if err != nil {
		return nil, transfer.ToRPC(err)
	}
	if !ok {
		return nil, transfer.ToRPC(transfer.ErrNotHeld.New("%s", id))
	}

	if !endpoint.pusher.PushAsync(ctx, id, requester) {
		return nil, transfer.ToRPC(transfer.ErrUnreachable.New("node is shutting down"))
	}

	endpoint.log.Debug("pull accepted", zap.Stringer("Object ID", id), zap.Stringer("Requester", requester))
	return &pb.PullReply{}, nil
}

// FreeObjects evicts the listed objects from the local node.
func (endpoint *Endpoint) FreeObjects(ctx context.Context, req *pb.FreeObjectsRequest) (_ *pb.FreeObjectsReply, err error) {
	defer mon.Task()(&ctx)(&err)

	objectIDs := make([]ids.ObjectID, 0, len(req.ObjectIds))
	for _, raw := range req.ObjectIds {
		id, err := ids.ObjectIDFromBytes(raw)
		if err != nil {
			return nil, transfer.ToRPC(transfer.ErrInvalid.Wrap(err))
		}
		objectIDs = append(objectIDs, id)
	}

	if err := endpoint.evictor.EvictLocal(ctx, objectIDs); err != nil {
		return nil, transfer.ToRPC(err)
	}
	return &pb.FreeObjectsReply{}, nil
}
