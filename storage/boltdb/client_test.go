// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package boltdb_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/objectmanager/storage/boltdb"
	"storj.io/objectmanager/storage/testsuite"
)

func TestSuite(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	client, err := boltdb.New(ctx.File("bolt", "objects.db"))
	require.NoError(t, err)
	defer ctx.Check(client.Close)

	testsuite.RunTests(t, client)
}

func TestReopen(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	path := ctx.File("bolt", "objects.db")

	client, err := boltdb.New(path)
	require.NoError(t, err)

	object := testsuite.NewObject(32, 1024)
	require.NoError(t, client.Put(ctx, object))
	require.NoError(t, client.Close())

	client, err = boltdb.New(path)
	require.NoError(t, err)
	defer ctx.Check(client.Close)

	got, err := client.Get(ctx, object.ID)
	require.NoError(t, err)
	testsuite.RequireEqualObject(t, object, got)
}
