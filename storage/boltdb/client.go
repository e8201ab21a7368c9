// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

// Package boltdb implements an object store backed by a bolt database file.
package boltdb

import (
	"context"
	"time"

	"github.com/boltdb/bolt"
	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/storage"
)

var mon = monkit.Package()

// Error is the error class for bolt failures.
var Error = errs.Class("boltdb")

var (
	defaultTimeout = 1 * time.Second
	objectBucket   = []byte("objects")
)

const (
	// fileMode sets permissions so owner can read and write
	fileMode = 0600
)

// Client is the object store backed by a bolt database.
type Client struct {
	db   *bolt.DB
	Path string
}

var _ storage.ObjectStore = (*Client)(nil)

// New opens or creates the bolt database at path.
func New(path string) (*Client, error) {
	db, err := bolt.Open(path, fileMode, &bolt.Options{Timeout: defaultTimeout})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(objectBucket)
		return err
	})
	if err != nil {
		return nil, errs.Combine(Error.Wrap(err), db.Close())
	}

	return &Client{
		db:   db,
		Path: path,
	}, nil
}

// Put stores the object unless it already exists.
func (client *Client) Put(ctx context.Context, object storage.Object) (err error) {
	defer mon.Task()(&ctx)(&err)

	record, err := storage.EncodeRecord(object)
	if err != nil {
		return err
	}

	return client.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(objectBucket)
		if bucket.Get(object.ID.Bytes()) != nil {
			return storage.ErrAlreadyExists.New("%s", object.ID)
		}
		return Error.Wrap(bucket.Put(object.ID.Bytes(), record))
	})
}

// Get loads the object.
func (client *Client) Get(ctx context.Context, id ids.ObjectID) (_ storage.Object, err error) {
	defer mon.Task()(&ctx)(&err)

	var object storage.Object
	err = client.db.View(func(tx *bolt.Tx) error {
		// bolt values are only valid inside the transaction, DecodeRecord copies them
		data := tx.Bucket(objectBucket).Get(id.Bytes())
		if data == nil {
			return storage.ErrNotFound.New("%s", id)
		}
		var err error
		object, err = storage.DecodeRecord(id, data)
		return err
	})
	return object, err
}

// Has returns whether the object is stored.
func (client *Client) Has(ctx context.Context, id ids.ObjectID) (has bool, err error) {
	defer mon.Task()(&ctx)(&err)

	err = client.db.View(func(tx *bolt.Tx) error {
		has = tx.Bucket(objectBucket).Get(id.Bytes()) != nil
		return nil
	})
	return has, Error.Wrap(err)
}

// Delete removes the object.
func (client *Client) Delete(ctx context.Context, id ids.ObjectID) (err error) {
	defer mon.Task()(&ctx)(&err)

	return Error.Wrap(client.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(objectBucket).Delete(id.Bytes())
	}))
}

// List returns all stored object ids in key order.
func (client *Client) List(ctx context.Context) (list []ids.ObjectID, err error) {
	defer mon.Task()(&ctx)(&err)

	err = client.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(objectBucket).ForEach(func(key, _ []byte) error {
			id, err := ids.ObjectIDFromBytes(key)
			if err != nil {
				return err
			}
			list = append(list, id)
			return nil
		})
	})
	return list, Error.Wrap(err)
}

// Close closes the bolt database.
func (client *Client) Close() error {
	return Error.Wrap(client.db.Close())
}
