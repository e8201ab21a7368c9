// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

// Package testsuite contains the conformance tests every storage.ObjectStore
// implementation must pass.
package testsuite

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/common/testrand"
	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/pkg/pb"
	"storj.io/objectmanager/storage"
)

// RunTests runs common storage.ObjectStore tests.
func RunTests(t *testing.T, store storage.ObjectStore) {
	t.Run("CRUD", func(t *testing.T) { testCRUD(t, store) })
	t.Run("Immutable", func(t *testing.T) { testImmutable(t, store) })
	t.Run("Empty", func(t *testing.T) { testEmpty(t, store) })
	t.Run("List", func(t *testing.T) { testList(t, store) })
	t.Run("Parallel", func(t *testing.T) { testParallel(t, store) })
}

// NewObject creates a random object with the given data size.
func NewObject(metadataSize, dataSize int) storage.Object {
	metadata := testrand.BytesInt(metadataSize)
	data := testrand.BytesInt(dataSize)
	return storage.Object{
		ID:       ids.ObjectIDFromContent(metadata, data),
		Metadata: metadata,
		Data:     data,
		Owner: &pb.Address{
			NodeId:    testrand.BytesInt(ids.NodeIDSize),
			IpAddress: "127.0.0.1",
			Port:      7777,
		},
	}
}

func cleanup(t *testing.T, store storage.ObjectStore, objects ...storage.Object) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	for _, object := range objects {
		require.NoError(t, store.Delete(ctx, object.ID))
	}
}

// RequireEqualObject checks that two objects have the same content.
func RequireEqualObject(t *testing.T, expected, got storage.Object) {
	t.Helper()
	require.Equal(t, expected.ID, got.ID)
	require.Equal(t, len(expected.Metadata), len(got.Metadata))
	require.Equal(t, len(expected.Data), len(got.Data))
	if len(expected.Metadata) > 0 {
		require.Equal(t, expected.Metadata, got.Metadata)
	}
	if len(expected.Data) > 0 {
		require.Equal(t, expected.Data, got.Data)
	}
	if expected.Owner != nil {
		require.NotNil(t, got.Owner)
		require.Equal(t, expected.Owner.NodeId, got.Owner.NodeId)
		require.Equal(t, expected.Owner.IpAddress, got.Owner.IpAddress)
		require.Equal(t, expected.Owner.Port, got.Owner.Port)
	}
}

func testCRUD(t *testing.T, store storage.ObjectStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	object := NewObject(16, 4096)
	defer cleanup(t, store, object)

	has, err := store.Has(ctx, object.ID)
	require.NoError(t, err)
	require.False(t, has)

	_, err = store.Get(ctx, object.ID)
	require.True(t, storage.ErrNotFound.Has(err), "got %v", err)

	require.NoError(t, store.Put(ctx, object))

	has, err = store.Has(ctx, object.ID)
	require.NoError(t, err)
	require.True(t, has)

	got, err := store.Get(ctx, object.ID)
	require.NoError(t, err)
	RequireEqualObject(t, object, got)

	require.NoError(t, store.Delete(ctx, object.ID))
	require.NoError(t, store.Delete(ctx, object.ID), "deleting a missing object")

	_, err = store.Get(ctx, object.ID)
	require.True(t, storage.ErrNotFound.Has(err), "got %v", err)
}

func testImmutable(t *testing.T, store storage.ObjectStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	object := NewObject(4, 128)
	defer cleanup(t, store, object)

	require.NoError(t, store.Put(ctx, object))

	other := NewObject(4, 256)
	other.ID = object.ID
	err := store.Put(ctx, other)
	require.True(t, storage.ErrAlreadyExists.Has(err), "got %v", err)

	got, err := store.Get(ctx, object.ID)
	require.NoError(t, err)
	RequireEqualObject(t, object, got)

	// mutating the returned object must not affect the store
	got.Data[0]++
	again, err := store.Get(ctx, object.ID)
	require.NoError(t, err)
	RequireEqualObject(t, object, again)
}

func testEmpty(t *testing.T, store storage.ObjectStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	object := NewObject(0, 0)
	object.Owner = nil
	defer cleanup(t, store, object)

	require.NoError(t, store.Put(ctx, object))

	got, err := store.Get(ctx, object.ID)
	require.NoError(t, err)
	require.Equal(t, object.ID, got.ID)
	require.Len(t, got.Metadata, 0)
	require.Len(t, got.Data, 0)
}

func testList(t *testing.T, store storage.ObjectStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	objects := []storage.Object{
		NewObject(1, 10),
		NewObject(2, 20),
		NewObject(3, 30),
	}
	defer cleanup(t, store, objects...)

	var expected []ids.ObjectID
	for _, object := range objects {
		require.NoError(t, store.Put(ctx, object))
		expected = append(expected, object.ID)
	}
	sort.Slice(expected, func(i, k int) bool { return expected[i].Less(expected[k]) })

	list, err := store.List(ctx)
	require.NoError(t, err)
	sort.Slice(list, func(i, k int) bool { return list[i].Less(list[k]) })
	require.Equal(t, expected, list)
}
