// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package objectmanager

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/objectmanager/objectmanager/nodes"
	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/storage"
	"storj.io/objectmanager/storage/badgerstore"
	"storj.io/objectmanager/storage/boltdb"
	"storj.io/objectmanager/storage/memstore"
	"storj.io/objectmanager/storage/redis"
	"storj.io/objectmanager/storage/storelogger"
)

// StorageConfig selects the local object store.
type StorageConfig struct {
	Backend       string `help:"object store backend: memory, bolt or badger" default:"badger"`
	Path          string `help:"directory of the object store" default:"$CONFDIR/objects"`
	LogOperations bool   `help:"log every object store operation at debug level" default:"false"`
}

// OpenStore opens the configured object store.
func OpenStore(log *zap.Logger, config StorageConfig) (_ storage.ObjectStore, err error) {
	var db storage.ObjectStore
	switch config.Backend {
	case "memory":
		db = memstore.New()
	case "bolt":
		if err := os.MkdirAll(config.Path, 0700); err != nil {
			return nil, Error.Wrap(err)
		}
		db, err = boltdb.New(filepath.Join(config.Path, "objects.db"))
	case "badger":
		db, err = badgerstore.Open(log.Named("badger"), badgerstore.Config{Dir: config.Path})
	default:
		return nil, Error.New("unknown storage backend %q", config.Backend)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}

	if config.LogOperations {
		db = storelogger.New(log.Named("storage"), db)
	}
	return db, nil
}

// OpenNodes opens the node table. The static nodes are registered in the
// shared table when one is configured. The returned closer releases the
// table.
func OpenNodes(ctx context.Context, config nodes.Config) (_ nodes.Registry, _ io.Closer, err error) {
	static, err := ids.ParseNodeURLs(config.Static)
	if err != nil {
		return nil, nil, Error.Wrap(err)
	}

	if config.RedisURL == "" {
		return nodes.NewStatic(static...), nopCloser{}, nil
	}

	table, err := redis.OpenNodeTableFrom(ctx, config.RedisURL, config.TTL)
	if err != nil {
		return nil, nil, Error.Wrap(err)
	}
	for _, node := range static {
		if err := table.Register(ctx, node); err != nil {
			return nil, nil, Error.Wrap(errs.Combine(err, table.Close()))
		}
	}
	return table, table, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
