// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package ids_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/common/testrand"
	"storj.io/objectmanager/pkg/ids"
)

func TestObjectIDString(t *testing.T) {
	var id ids.ObjectID
	copy(id[:], testrand.BytesInt(ids.ObjectIDSize))

	parsed, err := ids.ObjectIDFromString(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = ids.ObjectIDFromBytes([]byte{1, 2, 3})
	require.Error(t, err)
	require.True(t, ids.ErrObjectID.Has(err))

	_, err = ids.ObjectIDFromString("0OIl")
	require.Error(t, err)
}

func TestObjectIDFromContent(t *testing.T) {
	a := ids.ObjectIDFromContent([]byte("meta"), []byte("data"))
	b := ids.ObjectIDFromContent([]byte("meta"), []byte("data"))
	c := ids.ObjectIDFromContent([]byte("meta"), []byte("date"))
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.False(t, a.IsZero())
}

func TestParseNodeURLs(t *testing.T) {
	var first, second ids.NodeID
	first[0], second[0] = 1, 2

	urls, err := ids.ParseNodeURLs(first.String() + "@127.0.0.1:7777, " + second.String() + "@[::1]:7778,")
	require.NoError(t, err)
	require.Equal(t, []ids.NodeURL{
		{ID: first, Address: "127.0.0.1:7777"},
		{ID: second, Address: "[::1]:7778"},
	}, urls)

	_, err = ids.ParseNodeURL("127.0.0.1:7777")
	require.Error(t, err)

	_, err = ids.ParseNodeURL(first.String() + "@")
	require.Error(t, err)
}

func TestPushID(t *testing.T) {
	id, err := ids.NewPushID()
	require.NoError(t, err)

	parsed, err := ids.PushIDFromBytes(id.Bytes())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = ids.PushIDFromBytes([]byte{1})
	require.Error(t, err)
}
