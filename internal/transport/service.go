package transport

import (
	"context"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"raftkv/internal/raft"
	"raftkv/internal/raftpb"
)

// peerIDHeader carries the sending replica's membership id. The wire
// messages themselves carry no sender field (spec §4.4's handler takes it
// as an out-of-band parameter supplied by the transport), so the gRPC
// client stamps it as outgoing metadata and the server handler reads it
// back off the incoming context.
const peerIDHeader = "raftkv-peer-id"

// raftServer is the handler-side interface the hand-written ServiceDesc
// below dispatches to, matching the four peer/client RPCs of spec §6's
// table.
type raftServer interface {
	Vote(context.Context, *raftpb.VoteRequest) (*raftpb.Response, error)
	AppendEntries(context.Context, *raftpb.AppendEntriesRequest) (*raftpb.Response, error)
	Recover(context.Context, *raftpb.RecoverySnapshotRequest) (*raftpb.Response, error)
	ClientReq(context.Context, *raftpb.ClientRequest) (*raftpb.ClientResponse, error)
}

// grpcServer bridges the gRPC service to a live Replica.
type grpcServer struct {
	replica *raft.Replica
}

func peerIDFromContext(ctx context.Context) (uint64, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return 0, false
	}
	vals := md.Get(peerIDHeader)
	if len(vals) == 0 {
		return 0, false
	}
	id, err := strconv.ParseUint(vals[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (s *grpcServer) Vote(_ context.Context, req *raftpb.VoteRequest) (*raftpb.Response, error) {
	return s.replica.HandleVote(req)
}

func (s *grpcServer) AppendEntries(ctx context.Context, req *raftpb.AppendEntriesRequest) (*raftpb.Response, error) {
	from, ok := peerIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "transport: request missing "+peerIDHeader+" metadata")
	}
	return s.replica.HandleAppendEntries(from, req)
}

func (s *grpcServer) Recover(_ context.Context, req *raftpb.RecoverySnapshotRequest) (*raftpb.Response, error) {
	return s.replica.HandleRecoverySnapshot(req)
}

func (s *grpcServer) ClientReq(_ context.Context, req *raftpb.ClientRequest) (*raftpb.ClientResponse, error) {
	return s.replica.HandleClientRequest(req)
}

const serviceName = "raftkv.Raft"

func fullMethod(name string) string { return "/" + serviceName + "/" + name }

func _Raft_Vote_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(raftpb.VoteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(raftServer).Vote(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("Vote")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(raftServer).Vote(ctx, req.(*raftpb.VoteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Raft_AppendEntries_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(raftpb.AppendEntriesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(raftServer).AppendEntries(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("AppendEntries")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(raftServer).AppendEntries(ctx, req.(*raftpb.AppendEntriesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Raft_Recover_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(raftpb.RecoverySnapshotRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(raftServer).Recover(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("Recover")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(raftServer).Recover(ctx, req.(*raftpb.RecoverySnapshotRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Raft_ClientReq_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(raftpb.ClientRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(raftServer).ClientReq(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("ClientReq")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(raftServer).ClientReq(ctx, req.(*raftpb.ClientRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// raftServiceDesc is the hand-written equivalent of what protoc-gen-go-grpc
// would emit from a raft.proto declaring the four RPCs of spec §6's table.
var raftServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*raftServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Vote", Handler: _Raft_Vote_Handler},
		{MethodName: "AppendEntries", Handler: _Raft_AppendEntries_Handler},
		{MethodName: "Recover", Handler: _Raft_Recover_Handler},
		{MethodName: "ClientReq", Handler: _Raft_ClientReq_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "raft.proto",
}
