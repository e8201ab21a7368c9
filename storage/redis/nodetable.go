// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package redis implements a shared node table on top of redis.
package redis

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"storj.io/objectmanager/objectmanager/nodes"
	"storj.io/objectmanager/pkg/ids"
)

var (
	// Error is a redis error.
	Error = errs.Class("redis")

	mon = monkit.Package()
)

const defaultPrefix = "node:"

// NodeTable keeps node registrations in redis.
type NodeTable struct {
	db     *redis.Client
	prefix string
	TTL    time.Duration
}

var _ nodes.Registry = (*NodeTable)(nil)

// OpenNodeTable returns a configured NodeTable, verifying a successful connection to redis.
func OpenNodeTable(ctx context.Context, address, password string, db int, ttl time.Duration) (*NodeTable, error) {
	table := &NodeTable{
		db: redis.NewClient(&redis.Options{
			Addr:     address,
			Password: password,
			DB:       db,
		}),
		prefix: defaultPrefix,
		TTL:    ttl,
	}

	// ping here to verify we are able to connect to redis with the initialized client.
	if err := table.db.Ping(ctx).Err(); err != nil {
		return nil, errs.Combine(Error.New("ping failed: %v", err), table.db.Close())
	}

	return table, nil
}

// OpenNodeTableFrom returns a NodeTable from a redis://host:port?db=N&password=P address.
func OpenNodeTableFrom(ctx context.Context, address string, ttl time.Duration) (*NodeTable, error) {
	redisurl, err := url.Parse(address)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	if redisurl.Scheme != "redis" {
		return nil, Error.New("not a redis:// formatted address")
	}

	q := redisurl.Query()

	db := 0
	if s := q.Get("db"); s != "" {
		db, err = strconv.Atoi(s)
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}

	table, err := OpenNodeTable(ctx, redisurl.Host, q.Get("password"), db, ttl)
	if err != nil {
		return nil, err
	}
	if prefix := q.Get("prefix"); prefix != "" {
		table.prefix = prefix
	}
	return table, nil
}

func (table *NodeTable) key(id ids.NodeID) string { return table.prefix + id.String() }

// Register stores the address of the node, expiring after TTL.
func (table *NodeTable) Register(ctx context.Context, node ids.NodeURL) (err error) {
	defer mon.Task()(&ctx)(&err)
	if node.ID.IsZero() || node.Address == "" {
		return nodes.Error.New("invalid node %q", node.String())
	}
	return Error.Wrap(table.db.Set(ctx, table.key(node.ID), node.Address, table.TTL).Err())
}

// Unregister removes the node.
func (table *NodeTable) Unregister(ctx context.Context, id ids.NodeID) (err error) {
	defer mon.Task()(&ctx)(&err)
	return Error.Wrap(table.db.Del(ctx, table.key(id)).Err())
}

// Resolve returns the registered address of the node.
func (table *NodeTable) Resolve(ctx context.Context, id ids.NodeID) (_ string, err error) {
	defer mon.Task()(&ctx)(&err)
	address, err := table.db.Get(ctx, table.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nodes.ErrUnknownNode.New("%s", id)
	}
	return address, Error.Wrap(err)
}

// List returns all registered nodes in unspecified order.
func (table *NodeTable) List(ctx context.Context) (_ []ids.NodeURL, err error) {
	defer mon.Task()(&ctx)(&err)

	match := prefixPattern(table.prefix)
	it := table.db.Scan(ctx, 0, match, 0).Iterator()

	seen := map[ids.NodeID]struct{}{}
	var list []ids.NodeURL
	for it.Next(ctx) {
		key := it.Val()
		id, err := ids.NodeIDFromString(strings.TrimPrefix(key, table.prefix))
		if err != nil {
			continue
		}
		// redis may return duplicates
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		address, err := table.db.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, ids.NodeURL{ID: id, Address: address})
	}
	return list, Error.Wrap(it.Err())
}

// Close closes the redis client.
func (table *NodeTable) Close() error {
	return Error.Wrap(table.db.Close())
}
