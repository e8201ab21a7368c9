// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"storj.io/objectmanager/pkg/pb"
)

// Pool keeps one connection per address and closes connections that have
// not been used for a while.
type Pool struct {
	log    *zap.Logger
	dialer Dialer

	mu    sync.Mutex
	conns *ttlcache.Cache[string, *grpc.ClientConn]
}

// NewPool creates a new connection pool.
func NewPool(log *zap.Logger, dialer Dialer, idleExpiration time.Duration) *Pool {
	pool := &Pool{
		log:    log,
		dialer: dialer,
		conns: ttlcache.New[string, *grpc.ClientConn](
			ttlcache.WithTTL[string, *grpc.ClientConn](idleExpiration),
		),
	}
	pool.conns.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *grpc.ClientConn]) {
		if err := item.Value().Close(); err != nil {
			pool.log.Debug("closing connection failed", zap.String("Address", item.Key()), zap.Error(err))
		}
	})
	return pool
}

// Run expires idle connections until ctx is canceled.
func (pool *Pool) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		pool.conns.Stop()
	}()
	pool.conns.Start()
	return nil
}

// Client returns an object manager client for address.
func (pool *Pool) Client(address string) (pb.ObjectManagerServiceClient, error) {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	if item := pool.conns.Get(address); item != nil {
		return pb.NewObjectManagerServiceClient(item.Value()), nil
	}

	conn, err := pool.dialer.Dial(address)
	if err != nil {
		return nil, err
	}
	pool.conns.Set(address, conn, ttlcache.DefaultTTL)
	return pb.NewObjectManagerServiceClient(conn), nil
}

// Len returns the number of open connections.
func (pool *Pool) Len() int { return pool.conns.Len() }

// Close closes all connections.
func (pool *Pool) Close() error {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	pool.conns.DeleteAll()
	return nil
}
