// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

// Package badgerstore implements an object store backed by badger.
package badgerstore

import (
	"context"
	"errors"
	"sync"

	"github.com/dgraph-io/badger/v3"
	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/storage"
)

var mon = monkit.Package()

// Error is the error class for badger failures.
var Error = errs.Class("badgerstore")

var objectPrefix = []byte("object/")

// Config contains the options for a badger store.
type Config struct {
	Dir      string `help:"directory of the badger database, empty keeps objects in memory" default:""`
	InMemory bool   `help:"keep objects in memory only" default:"false"`
}

// Store is the object store backed by badger.
type Store struct {
	log *zap.Logger
	db  *badger.DB

	// serializes puts so that the existence check and the write are atomic
	// without retrying on transaction conflicts
	putMu sync.Mutex
}

var _ storage.ObjectStore = (*Store)(nil)

// Open opens the badger database.
func Open(log *zap.Logger, config Config) (*Store, error) {
	options := badger.DefaultOptions(config.Dir).
		WithLogger(badgerLogger{log.Sugar()}).
		WithMemTableSize(16 << 20)
	if config.InMemory || config.Dir == "" {
		options = options.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(options)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &Store{log: log, db: db}, nil
}

func objectKey(id ids.ObjectID) []byte {
	return append(append([]byte{}, objectPrefix...), id.Bytes()...)
}

// Put stores the object unless it already exists.
func (store *Store) Put(ctx context.Context, object storage.Object) (err error) {
	defer mon.Task()(&ctx)(&err)

	record, err := storage.EncodeRecord(object)
	if err != nil {
		return err
	}

	store.putMu.Lock()
	defer store.putMu.Unlock()

	return store.db.Update(func(txn *badger.Txn) error {
		key := objectKey(object.ID)
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return storage.ErrAlreadyExists.New("%s", object.ID)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return Error.Wrap(err)
		}
		return Error.Wrap(txn.Set(key, record))
	})
}

// Get loads the object.
func (store *Store) Get(ctx context.Context, id ids.ObjectID) (_ storage.Object, err error) {
	defer mon.Task()(&ctx)(&err)

	var record []byte
	err = store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(objectKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound.New("%s", id)
			}
			return Error.Wrap(err)
		}
		record, err = item.ValueCopy(nil)
		return Error.Wrap(err)
	})
	if err != nil {
		return storage.Object{}, err
	}
	return storage.DecodeRecord(id, record)
}

// Has returns whether the object is stored.
func (store *Store) Has(ctx context.Context, id ids.ObjectID) (has bool, err error) {
	defer mon.Task()(&ctx)(&err)

	err = store.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(objectKey(id))
		switch {
		case err == nil:
			has = true
			return nil
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil
		default:
			return err
		}
	})
	return has, Error.Wrap(err)
}

// Delete removes the object.
func (store *Store) Delete(ctx context.Context, id ids.ObjectID) (err error) {
	defer mon.Task()(&ctx)(&err)

	return Error.Wrap(store.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(objectKey(id))
	}))
}

// List returns all stored object ids in key order.
func (store *Store) List(ctx context.Context) (list []ids.ObjectID, err error) {
	defer mon.Task()(&ctx)(&err)

	err = store.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(objectPrefix); it.ValidForPrefix(objectPrefix); it.Next() {
			id, err := ids.ObjectIDFromBytes(it.Item().Key()[len(objectPrefix):])
			if err != nil {
				return err
			}
			list = append(list, id)
		}
		return nil
	})
	return list, Error.Wrap(err)
}

// Close closes the database.
func (store *Store) Close() error {
	return Error.Wrap(store.db.Close())
}

// badgerLogger forwards badger logs to zap.
type badgerLogger struct {
	log *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.log.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.log.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.log.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.log.Debugf(format, args...) }
