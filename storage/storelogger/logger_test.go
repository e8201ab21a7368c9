// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

package storelogger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"storj.io/common/testcontext"
	"storj.io/objectmanager/storage/memstore"
	"storj.io/objectmanager/storage/testsuite"
)

func TestSuite(t *testing.T) {
	testsuite.RunTests(t, New(zap.NewNop(), memstore.New()))
}

func TestLogsOperations(t *testing.T) {
	ctx := testcontext.New(t)

	core, logs := observer.New(zapcore.DebugLevel)
	store := New(zap.New(core), memstore.New())

	object := testsuite.NewObject(2, 4)
	require.NoError(t, store.Put(ctx, object))

	has, err := store.Has(ctx, object.ID)
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, store.Delete(ctx, object.ID))

	entries := logs.All()
	require.Len(t, entries, 3)
	require.Equal(t, "Put", entries[0].Message)
	require.Equal(t, "Has", entries[1].Message)
	require.Equal(t, true, entries[1].ContextMap()["has"])
	require.Equal(t, "Delete", entries[2].Message)
	require.Equal(t, object.ID.String(), entries[2].ContextMap()["Object ID"])
}
