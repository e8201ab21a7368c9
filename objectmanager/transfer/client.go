// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package transfer

import (
	"context"
	"time"

	monkit "github.com/spacemonkeygo/monkit/v3"

	"storj.io/objectmanager/objectmanager/nodes"
	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/pkg/pb"
	"storj.io/objectmanager/pkg/rpc"
)

var mon = monkit.Package()

// Peers sends requests to other nodes of the cluster.
//
// Every returned error belongs to the taxonomy of this package.
type Peers interface {
	Push(ctx context.Context, node ids.NodeID, req *pb.PushRequest) error
	Pull(ctx context.Context, node ids.NodeID, req *pb.PullRequest) error
	FreeObjects(ctx context.Context, node ids.NodeID, req *pb.FreeObjectsRequest) error
}

// Client implements Peers over grpc.
type Client struct {
	resolver nodes.Resolver
	pool     *rpc.Pool
	timeout  time.Duration
}

var _ Peers = (*Client)(nil)

// NewClient creates a client that resolves nodes with resolver and keeps
// connections in pool. Each request is bounded by timeout when it is
// non-zero.
func NewClient(resolver nodes.Resolver, pool *rpc.Pool, timeout time.Duration) *Client {
	return &Client{
		resolver: resolver,
		pool:     pool,
		timeout:  timeout,
	}
}

func (client *Client) dial(ctx context.Context, node ids.NodeID) (pb.ObjectManagerServiceClient, error) {
	address, err := client.resolver.Resolve(ctx, node)
	if err != nil {
		return nil, ErrUnreachable.Wrap(err)
	}
	conn, err := client.pool.Client(address)
	if err != nil {
		return nil, ErrUnreachable.Wrap(err)
	}
	return conn, nil
}

func (client *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if client.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, client.timeout)
}

// Push sends one chunk to node.
func (client *Client) Push(ctx context.Context, node ids.NodeID, req *pb.PushRequest) (err error) {
	defer mon.Task()(&ctx)(&err)

	conn, err := client.dial(ctx, node)
	if err != nil {
		return err
	}

	ctx, cancel := client.withTimeout(ctx)
	defer cancel()

	_, err = conn.Push(ctx, req)
	return FromRPC(err)
}

// Pull asks node to push an object back to the requester.
func (client *Client) Pull(ctx context.Context, node ids.NodeID, req *pb.PullRequest) (err error) {
	defer mon.Task()(&ctx)(&err)

	conn, err := client.dial(ctx, node)
	if err != nil {
		return err
	}

	ctx, cancel := client.withTimeout(ctx)
	defer cancel()

	_, err = conn.Pull(ctx, req)
	return FromRPC(err)
}

// FreeObjects asks node to evict objects.
func (client *Client) FreeObjects(ctx context.Context, node ids.NodeID, req *pb.FreeObjectsRequest) (err error) {
	defer mon.Task()(&ctx)(&err)

	conn, err := client.dial(ctx, node)
	if err != nil {
		return err
	}

	ctx, cancel := client.withTimeout(ctx)
	defer cancel()

	_, err = conn.FreeObjects(ctx, req)
	return FromRPC(err)
}
