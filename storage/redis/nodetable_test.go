// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package redis_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/common/testrand"
	"storj.io/objectmanager/objectmanager/nodes"
	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/storage/redis"
	"storj.io/objectmanager/storage/redis/redisserver"
)

func randomNode(t *testing.T, address string) ids.NodeURL {
	id, err := ids.NodeIDFromBytes(testrand.BytesInt(ids.NodeIDSize))
	require.NoError(t, err)
	return ids.NodeURL{ID: id, Address: address}
}

func TestNodeTable(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server, err := redisserver.Start()
	require.NoError(t, err)
	defer server.Close()

	table, err := redis.OpenNodeTableFrom(ctx, "redis://"+server.Addr()+"?db=0&prefix=test*node:", time.Minute)
	require.NoError(t, err)
	defer ctx.Check(table.Close)

	a := randomNode(t, "10.0.0.1:7777")
	b := randomNode(t, "10.0.0.2:7777")

	_, err = table.Resolve(ctx, a.ID)
	require.True(t, nodes.ErrUnknownNode.Has(err), "got %v", err)

	require.NoError(t, table.Register(ctx, a))
	require.NoError(t, table.Register(ctx, b))

	address, err := table.Resolve(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, a.Address, address)

	list, err := table.List(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []ids.NodeURL{a, b}, list)

	require.NoError(t, table.Unregister(ctx, b.ID))
	list, err = table.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []ids.NodeURL{a}, list)
}

func TestNodeTableExpiry(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server, err := redisserver.Start()
	require.NoError(t, err)
	defer server.Close()

	table, err := redis.OpenNodeTableFrom(ctx, "redis://"+server.Addr()+"?db=1", time.Second)
	require.NoError(t, err)
	defer ctx.Check(table.Close)

	a := randomNode(t, "10.0.0.1:7777")
	require.NoError(t, table.Register(ctx, a))

	// registrations expire unless refreshed
	server.FastForward(2 * time.Second)
	_, err = table.Resolve(ctx, a.ID)
	require.True(t, nodes.ErrUnknownNode.Has(err), "got %v", err)

	list, err := table.List(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestInvalidConnection(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	_, err := redis.OpenNodeTable(ctx, "127.0.0.1:1", "", 1, time.Minute)
	require.Error(t, err)

	_, err = redis.OpenNodeTableFrom(ctx, "http://localhost", time.Minute)
	require.Error(t, err)
}
