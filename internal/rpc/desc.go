package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "foraging.v1.PatchService"

// Method names.
const (
	MethodGet      = "Get"
	MethodSet      = "Set"
	MethodUpdate   = "Update"
	MethodRemove   = "Remove"
	MethodSnapshot = "Snapshot"
	MethodHarvest  = "Harvest"
	MethodHistory  = "History"
)

// PatchServiceServer is the server side of PatchService. Every message is a
// google.protobuf.Struct; field names are listed on Server.
type PatchServiceServer interface {
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Set(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Remove(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Snapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Harvest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type call func(PatchServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, fn call) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(PatchServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(PatchServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// PatchServiceDesc describes PatchService for grpc.Server.RegisterService.
var PatchServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PatchServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodGet, PatchServiceServer.Get),
		unary(MethodSet, PatchServiceServer.Set),
		unary(MethodUpdate, PatchServiceServer.Update),
		unary(MethodRemove, PatchServiceServer.Remove),
		unary(MethodSnapshot, PatchServiceServer.Snapshot),
		unary(MethodHarvest, PatchServiceServer.Harvest),
		unary(MethodHistory, PatchServiceServer.History),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "foraging/v1/patch.proto",
}

// RegisterPatchServiceServer registers srv on s.
func RegisterPatchServiceServer(s grpc.ServiceRegistrar, srv PatchServiceServer) {
	s.RegisterService(&PatchServiceDesc, srv)
}
