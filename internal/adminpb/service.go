package adminpb

import (
	"context"

	"google.golang.org/grpc"
)

// AdminServiceClient is the client-side stub a metad instance dials against
// a storage node. Hand-written in place of protoc-gen-go-grpc output.
type AdminServiceClient interface {
	MovePartition(ctx context.Context, in *MovePartitionRequest, opts ...grpc.CallOption) (*MovePartitionResponse, error)
}

type adminServiceClient struct {
	cc *grpc.ClientConn
}

// NewAdminServiceClient builds a client stub bound to an established
// connection.
func NewAdminServiceClient(cc *grpc.ClientConn) AdminServiceClient {
	return &adminServiceClient{cc: cc}
}

func (c *adminServiceClient) MovePartition(ctx context.Context, in *MovePartitionRequest, opts ...grpc.CallOption) (*MovePartitionResponse, error) {
	out := new(MovePartitionResponse)
	err := c.cc.Invoke(ctx, "/nebula.adminpb.AdminService/MovePartition", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AdminServiceServer is the storage-node-side contract. A real storage node
// implements this; it is declared here so the service descriptor below can
// register it, but metad itself only ever dials a client.
type AdminServiceServer interface {
	MovePartition(context.Context, *MovePartitionRequest) (*MovePartitionResponse, error)
}

func _AdminService_MovePartition_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(MovePartitionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).MovePartition(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/nebula.adminpb.AdminService/MovePartition",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServiceServer).MovePartition(ctx, req.(*MovePartitionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// AdminServiceDesc is the grpc.ServiceDesc a storage node registers its
// AdminServiceServer implementation under.
var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: "nebula.adminpb.AdminService",
	HandlerType: (*AdminServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "MovePartition",
			Handler:    _AdminService_MovePartition_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "adminpb/admin.proto",
}

// RegisterAdminServiceServer registers an implementation with a grpc.Server.
func RegisterAdminServiceServer(s *grpc.Server, srv AdminServiceServer) {
	s.RegisterService(&AdminServiceDesc, srv)
}
