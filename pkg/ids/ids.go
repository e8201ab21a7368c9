// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

// Package ids contains the identifiers used by the object transfer protocol.
package ids

import (
	"bytes"
	"crypto/sha256"

	"github.com/mr-tron/base58"
	"github.com/zeebo/errs"

	"storj.io/common/uuid"
)

const (
	// ObjectIDSize is the length of an ObjectID in bytes.
	ObjectIDSize = 28
	// NodeIDSize is the length of a NodeID in bytes.
	NodeIDSize = 28
)

// ErrObjectID is used when something goes wrong with an object id.
var ErrObjectID = errs.Class("object ID error")

// ErrNodeID is used when something goes wrong with a node id.
var ErrNodeID = errs.Class("node ID error")

// ErrPushID is used when something goes wrong with a push id.
var ErrPushID = errs.Class("push ID error")

// ObjectID is a unique, content-addressed identifier of an immutable object.
type ObjectID [ObjectIDSize]byte

// ObjectIDFromBytes converts a byte slice into an object id.
func ObjectIDFromBytes(b []byte) (ObjectID, error) {
	if len(b) != ObjectIDSize {
		return ObjectID{}, ErrObjectID.New("invalid length %d, expected %d", len(b), ObjectIDSize)
	}
	var id ObjectID
	copy(id[:], b)
	return id, nil
}

// ObjectIDFromString decodes a base58 encoded object id.
func ObjectIDFromString(s string) (ObjectID, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return ObjectID{}, ErrObjectID.Wrap(err)
	}
	return ObjectIDFromBytes(b)
}

// ObjectIDFromContent derives the object id of the given metadata and data.
func ObjectIDFromContent(metadata, data []byte) ObjectID {
	h := sha256.New()
	_, _ = h.Write(metadata)
	_, _ = h.Write(data)
	var id ObjectID
	copy(id[:], h.Sum(nil))
	return id
}

// IsZero returns whether the object id is unassigned.
func (id ObjectID) IsZero() bool { return id == ObjectID{} }

// Bytes returns the raw bytes of the id.
func (id ObjectID) Bytes() []byte { return id[:] }

// String returns the base58 form of the id.
func (id ObjectID) String() string { return base58.Encode(id[:]) }

// Less returns whether id sorts before other.
func (id ObjectID) Less(other ObjectID) bool { return bytes.Compare(id[:], other[:]) < 0 }

// MarshalText implements encoding.TextMarshaler.
func (id ObjectID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ObjectID) UnmarshalText(text []byte) (err error) {
	*id, err = ObjectIDFromString(string(text))
	return err
}

// NodeID is the identifier of a cluster member.
type NodeID [NodeIDSize]byte

// NodeIDFromBytes converts a byte slice into a node id.
func NodeIDFromBytes(b []byte) (NodeID, error) {
	if len(b) != NodeIDSize {
		return NodeID{}, ErrNodeID.New("invalid length %d, expected %d", len(b), NodeIDSize)
	}
	var id NodeID
	copy(id[:], b)
	return id, nil
}

// NodeIDFromString decodes a base58 encoded node id.
func NodeIDFromString(s string) (NodeID, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return NodeID{}, ErrNodeID.Wrap(err)
	}
	return NodeIDFromBytes(b)
}

// IsZero returns whether the node id is unassigned.
func (id NodeID) IsZero() bool { return id == NodeID{} }

// Bytes returns the raw bytes of the id.
func (id NodeID) Bytes() []byte { return id[:] }

// String returns the base58 form of the id.
func (id NodeID) String() string { return base58.Encode(id[:]) }

// Less returns whether id sorts before other.
func (id NodeID) Less(other NodeID) bool { return bytes.Compare(id[:], other[:]) < 0 }

// MarshalText implements encoding.TextMarshaler.
func (id NodeID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *NodeID) UnmarshalText(text []byte) (err error) {
	*id, err = NodeIDFromString(string(text))
	return err
}

// PushID identifies one attempt to deliver an object to a destination.
type PushID = uuid.UUID

// NewPushID returns a random push id.
func NewPushID() (PushID, error) {
	id, err := uuid.New()
	return id, ErrPushID.Wrap(err)
}

// PushIDFromBytes converts a byte slice into a push id.
func PushIDFromBytes(b []byte) (PushID, error) {
	id, err := uuid.FromBytes(b)
	return id, ErrPushID.Wrap(err)
}
