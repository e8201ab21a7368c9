// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

// Package objects serializes writes and deletes of the local object store
// per object id and remembers objects that are being evicted.
package objects

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/objectmanager/objectmanager/transfer"
	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/storage"
)

var (
	mon = monkit.Package()

	// Error is the error class for the objects package.
	Error = errs.Class("objects")
)

// Config contains the eviction options.
type Config struct {
	TombstoneTTL time.Duration `help:"how long a freed object is refused before it can be received again" default:"1m0s"`
}

// Store wraps the local object store.
//
// Commit and Evict of the same object never run concurrently. An evicted
// object is tombstoned: it is neither served nor received until the
// tombstone expires or is cleared.
type Store struct {
	log   *zap.Logger
	db    storage.ObjectStore
	locks *keyLock

	tombstones *ttlcache.Cache[ids.ObjectID, struct{}]
}

// NewStore creates a new store wrapper around db.
func NewStore(log *zap.Logger, db storage.ObjectStore, config Config) *Store {
	return &Store{
		log:   log,
		db:    db,
		locks: newKeyLock(),
		tombstones: ttlcache.New[ids.ObjectID, struct{}](
			ttlcache.WithTTL[ids.ObjectID, struct{}](config.TombstoneTTL),
			ttlcache.WithDisableTouchOnHit[ids.ObjectID, struct{}](),
		),
	}
}

// Run removes expired tombstones until ctx is canceled.
func (store *Store) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		store.tombstones.Stop()
	}()
	store.tombstones.Start()
	return nil
}

// Commit stores a fully assembled object.
//
// It fails with storage.ErrAlreadyExists when the object is already stored
// and with transfer.ErrRejected when the object is being evicted.
func (store *Store) Commit(ctx context.Context, object storage.Object) (err error) {
	defer mon.Task()(&ctx)(&err)

	unlock := store.locks.Lock(object.ID)
	defer unlock()

	if store.Tombstoned(object.ID) {
		return transfer.ErrRejected.New("object %s is being freed", object.ID)
	}
	has, err := store.db.Has(ctx, object.ID)
	if err != nil {
		return Error.Wrap(err)
	}
	if has {
		return storage.ErrAlreadyExists.New("%s", object.ID)
	}
	return store.db.Put(ctx, object)
}

// Put stores a locally produced object. It clears an earlier tombstone.
func (store *Store) Put(ctx context.Context, object storage.Object) (err error) {
	defer mon.Task()(&ctx)(&err)

	unlock := store.locks.Lock(object.ID)
	defer unlock()

	store.tombstones.Delete(object.ID)
	return store.db.Put(ctx, object)
}

// Evict tombstones the object and removes it from the local store.
func (store *Store) Evict(ctx context.Context, id ids.ObjectID) (err error) {
	defer mon.Task()(&ctx)(&err)

	store.tombstones.Set(id, struct{}{}, ttlcache.DefaultTTL)

	unlock := store.locks.Lock(id)
	defer unlock()

	if err := store.db.Delete(ctx, id); err != nil {
		return Error.Wrap(err)
	}
	store.log.Debug("evicted", zap.Stringer("Object ID", id))
	return nil
}

// Tombstoned returns whether the object is being evicted.
func (store *Store) Tombstoned(id ids.ObjectID) bool {
	return store.tombstones.Has(id)
}

// Clear removes the tombstone of the object.
func (store *Store) Clear(id ids.ObjectID) {
	store.tombstones.Delete(id)
}

// Serveable returns whether the object is stored and not being evicted.
func (store *Store) Serveable(ctx context.Context, id ids.ObjectID) (bool, error) {
	if store.Tombstoned(id) {
		return false, nil
	}
	return store.db.Has(ctx, id)
}

// Has returns whether the object is stored.
func (store *Store) Has(ctx context.Context, id ids.ObjectID) (bool, error) {
	return store.db.Has(ctx, id)
}

// Get returns the object.
func (store *Store) Get(ctx context.Context, id ids.ObjectID) (storage.Object, error) {
	return store.db.Get(ctx, id)
}

// List returns the ids of all stored objects.
func (store *Store) List(ctx context.Context) ([]ids.ObjectID, error) {
	return store.db.List(ctx)
}

// Close closes the underlying object store.
func (store *Store) Close() error {
	return store.db.Close()
}
