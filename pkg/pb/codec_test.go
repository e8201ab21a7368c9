// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package pb_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"

	"storj.io/objectmanager/pkg/pb"
)

func TestPushRequestEncoding(t *testing.T) {
	req := &pb.PushRequest{
		PushId:   []byte{1, 2, 3},
		ObjectId: []byte("object"),
		NodeId:   []byte("node"),
		OwnerAddress: &pb.Address{
			NodeId:    []byte("owner"),
			IpAddress: "10.0.0.1",
			Port:      7777,
		},
		ChunkIndex:   3,
		DataSize:     1 << 40,
		MetadataSize: 12,
		Data:         []byte("payload"),
	}

	data, err := pb.Marshal(req)
	require.NoError(t, err)

	var decoded pb.PushRequest
	require.NoError(t, pb.Unmarshal(data, &decoded))
	require.Equal(t, req.PushId, decoded.PushId)
	require.Equal(t, req.ChunkIndex, decoded.ChunkIndex)
	require.Equal(t, req.DataSize, decoded.DataSize)
	require.Equal(t, req.MetadataSize, decoded.MetadataSize)
	require.Equal(t, req.Data, decoded.Data)
	require.Equal(t, "10.0.0.1", decoded.GetOwnerAddress().GetIpAddress())
	require.EqualValues(t, 7777, decoded.GetOwnerAddress().GetPort())
}

func TestEmptyReplyEncodesToNothing(t *testing.T) {
	data, err := pb.Marshal(&pb.PushReply{})
	require.NoError(t, err)
	require.Empty(t, data)
}

func TestCodecRegistered(t *testing.T) {
	codec := encoding.GetCodec(pb.CodecName)
	require.NotNil(t, codec)

	data, err := codec.Marshal(&pb.FreeObjectsRequest{ObjectIds: [][]byte{[]byte("a"), []byte("b")}})
	require.NoError(t, err)

	var decoded pb.FreeObjectsRequest
	require.NoError(t, codec.Unmarshal(data, &decoded))
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, decoded.ObjectIds)

	_, err = codec.Marshal("not a message")
	require.Error(t, err)
}
