package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/tsbuk33/aqlhr-ai-gateway/internal/audit"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// GatewayServiceName - gRPC-сервис шлюза. Сообщения - google.protobuf.Struct
// с теми же полями, что и JSON в /v1/ai/ask.
const GatewayServiceName = "aqlhr.gateway.v1.Gateway"

type askServer interface {
	Ask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var gatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: GatewayServiceName,
	HandlerType: (*askServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ask", Handler: askHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "aqlhr/gateway/v1/gateway.proto",
}

func askHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(askServer).Ask(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + GatewayServiceName + "/Ask"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(askServer).Ask(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCGatewayServer - тот же конвейер Ask, что и у HTTP
type GRPCGatewayServer struct {
	g *Gateway
}

func (s *GRPCGatewayServer) Ask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	adm, ok := admissionFrom(ctx)
	if !ok {
		return nil, grpcError(domain.ErrUnauthenticated)
	}

	var req domain.AIRequest
	raw, err := json.Marshal(in.AsMap())
	if err == nil {
		err = json.Unmarshal(raw, &req)
	}
	if err != nil {
		return nil, grpcError(domain.Invalid("invalid request"))
	}

	resp, err := s.g.Ask(ctx, adm.Key, req)
	if err != nil {
		s.g.recordError(err)
		return nil, grpcError(err)
	}

	var out map[string]interface{}
	raw, err = json.Marshal(resp)
	if err == nil {
		err = json.Unmarshal(raw, &out)
	}
	if err != nil {
		return nil, grpcError(domain.Infra(err))
	}
	res, err := structpb.NewStruct(out)
	if err != nil {
		return nil, grpcError(domain.Infra(err))
	}
	return res, nil
}

// UnaryAPIKeyInterceptor - тот же допуск, что и у HTTP: ключ из метаданных x-api-key, затем лимит
func (g *Gateway) UnaryAPIKeyInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	// 1. Извлекаем метаданные из контекста (в gRPC заголовки в нижнем регистре)
	md, _ := metadata.FromIncomingContext(ctx)

	var key string
	if keys := md.Get("x-api-key"); len(keys) > 0 {
		key = keys[0]
	}
	if traces := md.Get("x-trace-id"); len(traces) > 0 {
		ctx = audit.WithTraceID(ctx, traces[0])
	}

	// 2. Допуск
	started := time.Now()
	adm, err := g.Admit(ctx, key)
	if err != nil {
		g.recordError(err)
		if !errors.Is(err, domain.ErrUnauthenticated) && !errors.Is(err, domain.ErrRateLimited) {
			g.logger.Error("grpc admission failed", zap.String("method", info.FullMethod), zap.Error(err))
		}
		return nil, grpcError(err)
	}

	// 3. Обогащаем контекст и идем дальше по цепочке
	ctx = context.WithValue(ctx, admissionKey{}, admitted{Admission: adm, started: started})
	return handler(ctx, req)
}

func grpcError(err error) error {
	_, msg := domain.PublicError(err)
	code := codes.Internal

	var e *domain.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case domain.KindAuthentication:
			code = codes.Unauthenticated
		case domain.KindAuthorization:
			code = codes.PermissionDenied
		case domain.KindRateLimit:
			code = codes.ResourceExhausted
		case domain.KindNoProvider, domain.KindProvider:
			code = codes.Unavailable
		case domain.KindValidation:
			code = codes.InvalidArgument
		case domain.KindNotFound:
			code = codes.NotFound
		}
	}
	return status.Error(code, msg)
}

// NewGRPCServer - gRPC-поверхность: health + Gateway.Ask за перехватчиком ключей
func NewGRPCServer(g *Gateway) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(g.UnaryAPIKeyInterceptor))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(GatewayServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	srv.RegisterService(&gatewayServiceDesc, &GRPCGatewayServer{g: g})
	return srv, hs
}
