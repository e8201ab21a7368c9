// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package transfertest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/objectmanager/pkg/chunk"
	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/pkg/pb"
	"storj.io/objectmanager/storage"
)

// PushRequests splits object into the requests of one push session from
// sender.
func PushRequests(t testing.TB, object storage.Object, sender ids.NodeID, chunkSize int) []*pb.PushRequest {
	pushID, err := ids.NewPushID()
	require.NoError(t, err)

	source, err := chunk.NewSource(object.Metadata, object.Data, chunkSize)
	require.NoError(t, err)

	requests := make([]*pb.PushRequest, 0, source.Layout.Count())
	for index := uint32(0); index < source.Layout.Count(); index++ {
		payload, err := source.Chunk(index)
		require.NoError(t, err)

		requests = append(requests, &pb.PushRequest{
			PushId:       pushID.Bytes(),
			ObjectId:     object.ID.Bytes(),
			NodeId:       sender.Bytes(),
			OwnerAddress: object.Owner,
			ChunkIndex:   index,
			DataSize:     source.Layout.DataSize,
			MetadataSize: source.Layout.MetadataSize,
			Data:         payload,
		})
	}
	return requests
}
