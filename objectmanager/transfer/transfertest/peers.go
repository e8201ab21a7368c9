// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

// Package transfertest implements an in-process transfer.Peers for tests.
package transfertest

import (
	"context"
	"sync"

	"storj.io/common/testrand"
	"storj.io/objectmanager/objectmanager/transfer"
	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/pkg/pb"
)

// Peers records every request and forwards it to the configured handlers.
//
// A nil handler accepts the request.
type Peers struct {
	OnPush        func(ctx context.Context, node ids.NodeID, req *pb.PushRequest) error
	OnPull        func(ctx context.Context, node ids.NodeID, req *pb.PullRequest) error
	OnFreeObjects func(ctx context.Context, node ids.NodeID, req *pb.FreeObjectsRequest) error

	mu     sync.Mutex
	pushes map[ids.NodeID][]*pb.PushRequest
	pulls  map[ids.NodeID][]*pb.PullRequest
	frees  map[ids.NodeID][]*pb.FreeObjectsRequest
}

var _ transfer.Peers = (*Peers)(nil)

// Push implements transfer.Peers.
func (peers *Peers) Push(ctx context.Context, node ids.NodeID, req *pb.PushRequest) error {
	peers.mu.Lock()
	if peers.pushes == nil {
		peers.pushes = map[ids.NodeID][]*pb.PushRequest{}
	}
	peers.pushes[node] = append(peers.pushes[node], req)
	peers.mu.Unlock()

	if peers.OnPush == nil {
		return nil
	}
	return peers.OnPush(ctx, node, req)
}

// Pull implements transfer.Peers.
func (peers *Peers) Pull(ctx context.Context, node ids.NodeID, req *pb.PullRequest) error {
	peers.mu.Lock()
	if peers.pulls == nil {
		peers.pulls = map[ids.NodeID][]*pb.PullRequest{}
	}
	peers.pulls[node] = append(peers.pulls[node], req)
	peers.mu.Unlock()

	if peers.OnPull == nil {
		return nil
	}
	return peers.OnPull(ctx, node, req)
}

// FreeObjects implements transfer.Peers.
func (peers *Peers) FreeObjects(ctx context.Context, node ids.NodeID, req *pb.FreeObjectsRequest) error {
	peers.mu.Lock()
	if peers.frees == nil {
		peers.frees = map[ids.NodeID][]*pb.FreeObjectsRequest{}
	}
	peers.frees[node] = append(peers.frees[node], req)
	peers.mu.Unlock()

	if peers.OnFreeObjects == nil {
		return nil
	}
	return peers.OnFreeObjects(ctx, node, req)
}

// Pushes returns the push requests sent to node.
func (peers *Peers) Pushes(node ids.NodeID) []*pb.PushRequest {
	peers.mu.Lock()
	defer peers.mu.Unlock()
	return append([]*pb.PushRequest(nil), peers.pushes[node]...)
}

// Pulls returns the pull requests sent to node.
func (peers *Peers) Pulls(node ids.NodeID) []*pb.PullRequest {
	peers.mu.Lock()
	defer peers.mu.Unlock()
	return append([]*pb.PullRequest(nil), peers.pulls[node]...)
}

// Frees returns the free requests sent to node.
func (peers *Peers) Frees(node ids.NodeID) []*pb.FreeObjectsRequest {
	peers.mu.Lock()
	defer peers.mu.Unlock()
	return append([]*pb.FreeObjectsRequest(nil), peers.frees[node]...)
}

// NodeID returns a random node id.
func NodeID() ids.NodeID {
	var id ids.NodeID
	copy(id[:], testrand.BytesInt(ids.NodeIDSize))
	return id
}
