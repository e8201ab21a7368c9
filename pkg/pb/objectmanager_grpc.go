// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	objectManagerServiceName = "ray.rpc.ObjectManagerService"

	methodPush        = "/" + objectManagerServiceName + "/Push"
	methodPull        = "/" + objectManagerServiceName + "/Pull"
	methodFreeObjects = "/" + objectManagerServiceName + "/FreeObjects"
)

// ObjectManagerServiceClient is the client API for the object manager service.
type ObjectManagerServiceClient interface {
	Push(ctx context.Context, in *PushRequest, opts ...grpc.CallOption) (*PushReply, error)
	Pull(ctx context.Context, in *PullRequest, opts ...grpc.CallOption) (*PullReply, error)
	FreeObjects(ctx context.Context, in *FreeObjectsRequest, opts ...grpc.CallOption) (*FreeObjectsReply, error)
}

type objectManagerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewObjectManagerServiceClient returns a client using the given connection.
func NewObjectManagerServiceClient(cc grpc.ClientConnInterface) ObjectManagerServiceClient {
	return &objectManagerServiceClient{cc}
}

func (c *objectManagerServiceClient) Push(ctx context.Context, in *PushRequest, opts ...grpc.CallOption) (*PushReply, error) {
	out := new(PushReply)
	err := c.cc.Invoke(ctx, methodPush, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *objectManagerServiceClient) Pull(ctx context.Context, in *PullRequest, opts ...grpc.CallOption) (*PullReply, error) {
	out := new(PullReply)
	err := c.cc.Invoke(ctx, methodPull, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *objectManagerServiceClient) FreeObjects(ctx context.Context, in *FreeObjectsRequest, opts ...grpc.CallOption) (*FreeObjectsReply, error) {
	out := new(FreeObjectsReply)
	err := c.cc.Invoke(ctx, methodFreeObjects, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ObjectManagerServiceServer is the server API for the object manager service.
type ObjectManagerServiceServer interface {
	Push(context.Context, *PushRequest) (*PushReply, error)
	Pull(context.Context, *PullRequest) (*PullReply, error)
	FreeObjects(context.Context, *FreeObjectsRequest) (*FreeObjectsReply, error)
}

// UnimplementedObjectManagerServiceServer can be embedded to have forward
// compatible implementations.
type UnimplementedObjectManagerServiceServer struct{}

// Push implements ObjectManagerServiceServer.
func (UnimplementedObjectManagerServiceServer) Push(context.Context, *PushRequest) (*PushReply, error) {
	return nil, status.Error(codes.Unimplemented, "method Push not implemented")
}

// Pull implements ObjectManagerServiceServer.
func (UnimplementedObjectManagerServiceServer) Pull(context.Context, *PullRequest) (*PullReply, error) {
	return nil, status.Error(codes.Unimplemented, "method Pull not implemented")
}

// FreeObjects implements ObjectManagerServiceServer.
func (UnimplementedObjectManagerServiceServer) FreeObjects(context.Context, *FreeObjectsRequest) (*FreeObjectsReply, error) {
	return nil, status.Error(codes.Unimplemented, "method FreeObjects not implemented")
}

// RegisterObjectManagerServiceServer registers srv with the grpc server.
func RegisterObjectManagerServiceServer(s grpc.ServiceRegistrar, srv ObjectManagerServiceServer) {
	s.RegisterService(&objectManagerServiceDesc, srv)
}

func objectManagerServicePushHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PushRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ObjectManagerServiceServer).Push(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPush}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ObjectManagerServiceServer).Push(ctx, req.(*PushRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func objectManagerServicePullHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PullRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ObjectManagerServiceServer).Pull(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPull}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ObjectManagerServiceServer).Pull(ctx, req.(*PullRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func objectManagerServiceFreeObjectsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(FreeObjectsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ObjectManagerServiceServer).FreeObjects(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodFreeObjects}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ObjectManagerServiceServer).FreeObjects(ctx, req.(*FreeObjectsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var objectManagerServiceDesc = grpc.ServiceDesc{
	ServiceName: objectManagerServiceName,
	HandlerType: (*ObjectManagerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Push", Handler: objectManagerServicePushHandler},
		{MethodName: "Pull", Handler: objectManagerServicePullHandler},
		{MethodName: "FreeObjects", Handler: objectManagerServiceFreeObjectsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "objectmanager.proto",
}
