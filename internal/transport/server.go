package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"

	"raftkv/internal/metrics"
	"raftkv/internal/raft"
)

// Server is the gRPC listener exposing one replica's peer and client RPC
// surface. Construction, interceptor chaining and graceful shutdown follow
// the teacher's internal/transport.Service (StartServer/GracefulStop).
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	log        *slog.Logger
}

// NewServer builds but does not start the listener. timeout bounds every
// unary RPC server-side, matching the teacher's timeoutInterceptor; the
// spec's heartbeat_timeout is the natural choice since that is the
// configured round-trip budget for every peer RPC.
func NewServer(addr string, replica *raft.Replica, timeout time.Duration, log *slog.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}

	gs := grpc.NewServer(
		grpc.ForceServerCodec(rawCodec{}),
		grpc.ChainUnaryInterceptor(metrics.UnaryServerInterceptor(), timeoutInterceptor(timeout)),
	)
	gs.RegisterService(&raftServiceDesc, &grpcServer{replica: replica})

	return &Server{grpcServer: gs, listener: lis, log: log}, nil
}

// Start serves in the background until Stop is called.
func (s *Server) Start() {
	s.log.Info("transport listening", "addr", s.listener.Addr().String())
	go func() {
		if err := s.grpcServer.Serve(s.listener); err != nil {
			s.log.Error("transport: serve exited", "error", err)
		}
	}()
}

// Stop drains in-flight RPCs then closes the listener.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

// Addr reports the bound listen address, useful when addr was ":0" (tests).
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func timeoutInterceptor(d time.Duration) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return handler(ctx, req)
	}
}
