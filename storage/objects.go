// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

// Package storage defines the local object store the transfer subsystem
// reads from and writes into.
package storage

import (
	"context"

	"github.com/zeebo/errs"

	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/pkg/pb"
)

var (
	// ErrNotFound is returned when an object is not in the store.
	ErrNotFound = errs.Class("object not found")
	// ErrAlreadyExists is returned when putting an object that is already stored.
	ErrAlreadyExists = errs.Class("object already exists")
	// Error is the class for other storage failures.
	Error = errs.Class("storage")
)

// Object is an immutable object together with its metadata.
type Object struct {
	ID       ids.ObjectID
	Metadata []byte
	Data     []byte
	// Owner is the address of the node that owns the object's lifecycle.
	Owner *pb.Address
}

// Size returns the number of payload bytes of the object.
func (object Object) Size() int64 { return int64(len(object.Metadata) + len(object.Data)) }

// Clone returns a deep copy of object.
func (object Object) Clone() Object {
	clone := Object{
		ID:       object.ID,
		Metadata: cloneBytes(object.Metadata),
		Data:     cloneBytes(object.Data),
	}
	if object.Owner != nil {
		owner := *object.Owner
		owner.NodeId = cloneBytes(owner.NodeId)
		owner.WorkerId = cloneBytes(owner.WorkerId)
		clone.Owner = &owner
	}
	return clone
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

//go:generate mockgen -destination=storagemock/store.go -package=storagemock storj.io/objectmanager/storage ObjectStore

// ObjectStore is the local object storage of a node.
//
// Implementations must be safe for concurrent use. Objects are immutable:
// Put never replaces an existing object.
type ObjectStore interface {
	// Put stores an object, failing with ErrAlreadyExists when it is present.
	Put(ctx context.Context, object Object) error
	// Get returns the object, failing with ErrNotFound when it is missing.
	Get(ctx context.Context, id ids.ObjectID) (Object, error)
	// Has returns whether the object is stored.
	Has(ctx context.Context, id ids.ObjectID) (bool, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, id ids.ObjectID) error
	// List returns the ids of all stored objects.
	List(ctx context.Context) ([]ids.ObjectID, error)
	// Close releases the resources of the store.
	Close() error
}

// EncodeRecord serializes an object for key/value backends.
func EncodeRecord(object Object) ([]byte, error) {
	data, err := pb.Marshal(&pb.ObjectRecord{
		Metadata:     object.Metadata,
		Data:         object.Data,
		OwnerAddress: object.Owner,
	})
	return data, Error.Wrap(err)
}

// DecodeRecord deserializes an object written by EncodeRecord.
func DecodeRecord(id ids.ObjectID, data []byte) (Object, error) {
	var record pb.ObjectRecord
	if err := pb.Unmarshal(data, &record); err != nil {
		return Object{}, Error.Wrap(err)
	}
	return Object{
		ID:       id,
		Metadata: record.Metadata,
		Data:     record.Data,
		Owner:    record.OwnerAddress,
	}, nil
}
