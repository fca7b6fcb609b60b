package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
// The service uses only well-known types, so no generated code is needed.
const ServiceName = "busprobe.ingest.v1.Ingest"

// Full method names, as seen by interceptors.
const (
	PublishMethod = "/" + ServiceName + "/Publish"
	CountMethod   = "/" + ServiceName + "/Count"
)

// IngestServer is the server API for the ingest service.
type IngestServer interface {
	Publish(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Count(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// IngestServiceDesc describes the ingest service for grpc.Server.
var IngestServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IngestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Publish", Handler: publishHandler},
		{MethodName: "Count", Handler: countHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "busprobe/ingest/v1/ingest.proto",
}

// RegisterIngestServer registers srv on s.
func RegisterIngestServer(s grpc.ServiceRegistrar, srv IngestServer) {
	s.RegisterService(&IngestServiceDesc, srv)
}

func publishHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IngestServer).Publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PublishMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IngestServer).Publish(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func countHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IngestServer).Count(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CountMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IngestServer).Count(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
