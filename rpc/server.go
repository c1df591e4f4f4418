package rpc

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/spooky-finn/depthbook/infrastructure/logger"
	"github.com/spooky-finn/depthbook/usecase"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "depthbook.DepthService"

var log = logger.Named("rpc")

// DepthServiceServer is the server API for depthbook.DepthService. Messages are
// google.protobuf.Struct so clients need no generated code.
type DepthServiceServer interface {
	GetDepth(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrderBookSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterDepthServiceServer(s grpc.ServiceRegistrar, srv DepthServiceServer) {
	s.RegisterService(&DepthService_ServiceDesc, srv)
}

func _DepthService_GetDepth_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DepthServiceServer).GetDepth(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/GetDepth",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DepthServiceServer).GetDepth(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _DepthService_GetOrderBookSnapshot_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DepthServiceServer).GetOrderBookSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/GetOrderBookSnapshot",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DepthServiceServer).GetOrderBookSnapshot(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var DepthService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DepthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetDepth",
			Handler:    _DepthService_GetDepth_Handler,
		},
		{
			MethodName: "GetOrderBookSnapshot",
			Handler:    _DepthService_GetOrderBookSnapshot_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "depthbook.proto",
}

type server struct {
	depthViewUseCase  *usecase.DepthViewUseCase
	validationService *ValidationService
}

func NewServer(depthViewUseCase *usecase.DepthViewUseCase, conf *ValidationServiceConfig) *server {
	return &server{
		depthViewUseCase:  depthViewUseCase,
		validationService: NewValidationService(conf),
	}
}

func NewGRPCServer(srv DepthServiceServer) *grpc.Server {
	s := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor))
	RegisterDepthServiceServer(s, srv)
	return s
}

// Serve listens on addr until ctx is done, then stops gracefully.
func Serve(ctx context.Context, addr string, srv DepthServiceServer) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s := NewGRPCServer(srv)
	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	log.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	log.Debug("rpc call",
		zap.String("method", info.FullMethod),
		zap.Duration("took", time.Since(start)),
		zap.String("code", status.Code(err).String()))

	return resp, err
}
