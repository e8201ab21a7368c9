// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package storelogger wraps an object store with debug logging.
package storelogger

import (
	"context"
	"strconv"
	"sync/atomic"

	monkit "github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/storage"
)

var mon = monkit.Package()

var id int64

// Logger implements a zap.Logger for storage.ObjectStore.
type Logger struct {
	log   *zap.Logger
	store storage.ObjectStore
}

var _ storage.ObjectStore = (*Logger)(nil)

// New creates a new Logger with log and store.
func New(log *zap.Logger, store storage.ObjectStore) *Logger {
	loggerid := atomic.AddInt64(&id, 1)
	name := strconv.Itoa(int(loggerid))
	return &Logger{log.Named(name), store}
}

// Put adds an object to the store.
func (store *Logger) Put(ctx context.Context, object storage.Object) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Put", zap.Stringer("Object ID", object.ID), zap.Int("metadata size", len(object.Metadata)), zap.Int("data size", len(object.Data)))
	return store.store.Put(ctx, object)
}

// Get gets an object from the store.
func (store *Logger) Get(ctx context.Context, id ids.ObjectID) (_ storage.Object, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Get", zap.Stringer("Object ID", id))
	return store.store.Get(ctx, id)
}

// Has checks whether the store contains the object.
func (store *Logger) Has(ctx context.Context, id ids.ObjectID) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	has, err := store.store.Has(ctx, id)
	store.log.Debug("Has", zap.Stringer("Object ID", id), zap.Bool("has", has))
	return has, err
}

// Delete deletes the object.
func (store *Logger) Delete(ctx context.Context, id ids.ObjectID) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Delete", zap.Stringer("Object ID", id))
	return store.store.Delete(ctx, id)
}

// List lists all object ids.
func (store *Logger) List(ctx context.Context) (_ []ids.ObjectID, err error) {
	defer mon.Task()(&ctx)(&err)
	list, err := store.store.List(ctx)
	store.log.Debug("List", zap.Int("count", len(list)))
	return list, err
}

// Close closes the store.
func (store *Logger) Close() error {
	store.log.Debug("Close")
	return store.store.Close()
}
