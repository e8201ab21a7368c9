// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package pb

import (
	proto "github.com/gogo/protobuf/proto"
)

// The message types below mirror objectmanager.proto. They carry protobuf
// struct tags and are encoded by gogo/protobuf's reflection based marshaler.

// Address is the network address of a node or worker.
type Address struct {
	NodeId    []byte `protobuf:"bytes,1,opt,name=node_id,json=nodeId,proto3" json:"node_id,omitempty"`
	IpAddress string `protobuf:"bytes,2,opt,name=ip_address,json=ipAddress,proto3" json:"ip_address,omitempty"`
	Port      int32  `protobuf:"varint,3,opt,name=port,proto3" json:"port,omitempty"`
	WorkerId  []byte `protobuf:"bytes,4,opt,name=worker_id,json=workerId,proto3" json:"worker_id,omitempty"`
}

func (m *Address) Reset()         { *m = Address{} }
func (m *Address) String() string { return proto.CompactTextString(m) }
func (*Address) ProtoMessage()    {}

func (m *Address) GetNodeId() []byte {
	if m != nil {
		return m.NodeId
	}
	return nil
}

func (m *Address) GetIpAddress() string {
	if m != nil {
		return m.IpAddress
	}
	return ""
}

func (m *Address) GetPort() int32 {
	if m != nil {
		return m.Port
	}
	return 0
}

func (m *Address) GetWorkerId() []byte {
	if m != nil {
		return m.WorkerId
	}
	return nil
}

// PushRequest carries one chunk of an object.
type PushRequest struct {
	PushId       []byte   `protobuf:"bytes,1,opt,name=push_id,json=pushId,proto3" json:"push_id,omitempty"`
	ObjectId     []byte   `protobuf:"bytes,2,opt,name=object_id,json=objectId,proto3" json:"object_id,omitempty"`
	NodeId       []byte   `protobuf:"bytes,3,opt,name=node_id,json=nodeId,proto3" json:"node_id,omitempty"`
	OwnerAddress *Address `protobuf:"bytes,4,opt,name=owner_address,json=ownerAddress,proto3" json:"owner_address,omitempty"`
	ChunkIndex   uint32   `protobuf:"varint,5,opt,name=chunk_index,json=chunkIndex,proto3" json:"chunk_index,omitempty"`
	DataSize     uint64   `protobuf:"varint,6,opt,name=data_size,json=dataSize,proto3" json:"data_size,omitempty"`
	MetadataSize uint64   `protobuf:"varint,7,opt,name=metadata_size,json=metadataSize,proto3" json:"metadata_size,omitempty"`
	Data         []byte   `protobuf:"bytes,8,opt,name=data,proto3" json:"data,omitempty"`
}

func (m *PushRequest) Reset()         { *m = PushRequest{} }
func (m *PushRequest) String() string { return proto.CompactTextString(m) }
func (*PushRequest) ProtoMessage()    {}

func (m *PushRequest) GetPushId() []byte {
	if m != nil {
		return m.PushId
	}
	return nil
}

func (m *PushRequest) GetObjectId() []byte {
	if m != nil {
		return m.ObjectId
	}
	return nil
}

func (m *PushRequest) GetNodeId() []byte {
	if m != nil {
		return m.NodeId
	}
	return nil
}

func (m *PushRequest) GetOwnerAddress() *Address {
	if m != nil {
		return m.OwnerAddress
	}
	return nil
}

func (m *PushRequest) GetChunkIndex() uint32 {
	if m != nil {
		return m.ChunkIndex
	}
	return 0
}

func (m *PushRequest) GetDataSize() uint64 {
	if m != nil {
		return m.DataSize
	}
	return 0
}

func (m *PushRequest) GetMetadataSize() uint64 {
	if m != nil {
		return m.MetadataSize
	}
	return 0
}

func (m *PushRequest) GetData() []byte {
	if m != nil {
		return m.Data
	}
	return nil
}

// PullRequest asks a holder to push an object back to the requesting node.
type PullRequest struct {
	NodeId   []byte `protobuf:"bytes,1,opt,name=node_id,json=nodeId,proto3" json:"node_id,omitempty"`
	ObjectId []byte `protobuf:"bytes,2,opt,name=object_id,json=objectId,proto3" json:"object_id,omitempty"`
}

func (m *PullRequest) Reset()         { *m = PullRequest{} }
func (m *PullRequest) String() string { return proto.CompactTextString(m) }
func (*PullRequest) ProtoMessage()    {}

func (m *PullRequest) GetNodeId() []byte {
	if m != nil {
		return m.NodeId
	}
	return nil
}

func (m *PullRequest) GetObjectId() []byte {
	if m != nil {
		return m.ObjectId
	}
	return nil
}

// FreeObjectsRequest asks a node to evict its local copies of the objects.
type FreeObjectsRequest struct {
	ObjectIds [][]byte `protobuf:"bytes,1,rep,name=object_ids,json=objectIds,proto3" json:"object_ids,omitempty"`
}

func (m *FreeObjectsRequest) Reset()         { *m = FreeObjectsRequest{} }
func (m *FreeObjectsRequest) String() string { return proto.CompactTextString(m) }
func (*FreeObjectsRequest) ProtoMessage()    {}

func (m *FreeObjectsRequest) GetObjectIds() [][]byte {
	if m != nil {
		return m.ObjectIds
	}
	return nil
}

// PushReply is the empty acknowledgement of a PushRequest.
type PushReply struct{}

func (m *PushReply) Reset()         { *m = PushReply{} }
func (m *PushReply) String() string { return proto.CompactTextString(m) }
func (*PushReply) ProtoMessage()    {}

// PullReply is the empty acknowledgement of a PullRequest.
type PullReply struct{}

func (m *PullReply) Reset()         { *m = PullReply{} }
func (m *PullReply) String() string { return proto.CompactTextString(m) }
func (*PullReply) ProtoMessage()    {}

// FreeObjectsReply is the empty acknowledgement of a FreeObjectsRequest.
type FreeObjectsReply struct{}

func (m *FreeObjectsReply) Reset()         { *m = FreeObjectsReply{} }
func (m *FreeObjectsReply) String() string { return proto.CompactTextString(m) }
func (*FreeObjectsReply) ProtoMessage()    {}

// ObjectRecord is the value stored by key/value backed object stores.
type ObjectRecord struct {
	Metadata     []byte   `protobuf:"bytes,1,opt,name=metadata,proto3" json:"metadata,omitempty"`
	Data         []byte   `protobuf:"bytes,2,opt,name=data,proto3" json:"data,omitempty"`
	OwnerAddress *Address `protobuf:"bytes,3,opt,name=owner_address,json=ownerAddress,proto3" json:"owner_address,omitempty"`
}

func (m *ObjectRecord) Reset()         { *m = ObjectRecord{} }
func (m *ObjectRecord) String() string { return proto.CompactTextString(m) }
func (*ObjectRecord) ProtoMessage()    {}

func (m *ObjectRecord) GetOwnerAddress() *Address {
	if m != nil {
		return m.OwnerAddress
	}
	return nil
}

func init() {
	proto.RegisterType((*Address)(nil), "ray.rpc.Address")
	proto.RegisterType((*PushRequest)(nil), "ray.rpc.PushRequest")
	proto.RegisterType((*PullRequest)(nil), "ray.rpc.PullRequest")
	proto.RegisterType((*FreeObjectsRequest)(nil), "ray.rpc.FreeObjectsRequest")
	proto.RegisterType((*PushReply)(nil), "ray.rpc.PushReply")
	proto.RegisterType((*PullReply)(nil), "ray.rpc.PullReply")
	proto.RegisterType((*FreeObjectsReply)(nil), "ray.rpc.FreeObjectsReply")
	proto.RegisterType((*ObjectRecord)(nil), "ray.rpc.ObjectRecord")
}
