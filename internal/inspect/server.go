package inspect

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "clocksim.inspect.v1.Inspector"

	snapshotMethod = "/" + ServiceName + "/Snapshot"
)

// InspectorServer is the server API of the Inspector service.
type InspectorServer interface {
	Snapshot(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

var inspectorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InspectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Snapshot",
			Handler:    snapshotHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "clocksim/inspect",
}

func snapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InspectorServer).Snapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: snapshotMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InspectorServer).Snapshot(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Server serves the Inspector and health services for one node.
type Server struct {
	source     Source
	grpcServer *grpc.Server
	health     *health.Server
	log        *logrus.Entry
	stopOnce   sync.Once
}

// NewServer creates a server reporting snapshots from source.
// Health starts as NOT_SERVING until SetServing(true).
func NewServer(source Source, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		source:     source,
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
		log:        log,
	}

	s.grpcServer.RegisterService(&inspectorServiceDesc, s)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)
	s.SetServing(false)

	return s
}

// Snapshot handles Inspector/Snapshot requests.
func (s *Server) Snapshot(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	pb, err := s.source.Snapshot().toProto()
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode snapshot: %v", err)
	}
	return pb, nil
}

// SetServing flips the health status of the Inspector service and the
// server as a whole.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve serves on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) (net.Addr, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.log.WithField("addr", lis.Addr().String()).Info("Inspector listening")

	go func() {
		if err := s.Serve(lis); err != nil {
			s.log.WithError(err).Warn("Inspector stopped")
		}
	}()
	return lis.Addr(), nil
}

// Stop marks the node as not serving and stops the gRPC server.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
	})
}
