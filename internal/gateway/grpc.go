// ABOUTME: Token and admin gRPC services built on protobuf well-known types
// ABOUTME: Introspect returns the caller's principal; admin methods manage the principal cache

package gateway

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/2389/coven-jwt/internal/auth"
)

const (
	tokenServiceName = "coven.jwt.v1.TokenService"
	adminServiceName = "coven.jwt.v1.AdminService"

	// adminServicePrefix gates every admin method behind the admin role.
	adminServicePrefix = "/" + adminServiceName + "/"

	// IntrospectMethod returns the caller's AuthContext.
	IntrospectMethod = "/" + tokenServiceName + "/Introspect"
	// CacheStatsMethod returns resolver counters.
	CacheStatsMethod = adminServicePrefix + "CacheStats"
	// InvalidateMethod drops cached principals; the request mirrors InvalidateRequest.
	InvalidateMethod = adminServicePrefix + "Invalidate"
)

// TokenServiceServer is the server API for the token service.
type TokenServiceServer interface {
	Introspect(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// AdminServiceServer is the server API for the admin service.
type AdminServiceServer interface {
	CacheStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Invalidate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// tokenServer implements TokenServiceServer.
type tokenServer struct{}

// Introspect returns the authenticated caller.
func (tokenServer) Introspect(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	a := auth.FromContext(ctx)
	if a == nil {
		return nil, status.Error(codes.Unauthenticated, "not authenticated")
	}
	return authContextStruct(a)
}

// adminServer implements AdminServiceServer.
type adminServer struct {
	gateway *Gateway
}

// CacheStats reports resolver counters and the cache size.
func (s *adminServer) CacheStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	stats, err := s.gateway.cacheStats(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "reading cache size: %v", err)
	}
	return structpb.NewStruct(map[string]any{
		"size":                 stats.Size,
		"hit_count":            stats.HitCount,
		"miss_count":           stats.MissCount,
		"hit_rate":             stats.HitRate,
		"load_success_count":   stats.LoadSuccessCount,
		"load_absent_count":    stats.LoadAbsentCount,
		"load_error_count":     stats.LoadErrorCount,
		"eviction_count":       stats.EvictionCount,
		"average_load_penalty": stats.AverageLoadPenalty,
		"total_request_time":   stats.TotalRequestTime,
	})
}

// Invalidate applies one cache selector.
func (s *adminServer) Invalidate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := invalidateRequestFromStruct(in)
	n, err := s.gateway.invalidate(ctx, req)
	if errors.Is(err, errInvalidSelector) {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "invalidating cache: %v", err)
	}
	return structpb.NewStruct(map[string]any{"invalidated": n})
}

func invalidateRequestFromStruct(in *structpb.Struct) InvalidateRequest {
	fields := in.GetFields()
	req := InvalidateRequest{
		Token:   fields["token"].GetStringValue(),
		Subject: fields["subject"].GetStringValue(),
		TokenID: fields["token_id"].GetStringValue(),
		All:     fields["all"].GetBoolValue(),
	}
	if claim := fields["claim"].GetStructValue(); claim != nil {
		req.Claim = &ClaimMatch{
			Key:   claim.GetFields()["key"].GetStringValue(),
			Value: claim.GetFields()["value"].GetStringValue(),
		}
	}
	return req
}

// authContextStruct converts a to the wire shape used by Introspect.
func authContextStruct(a *auth.AuthContext) (*structpb.Struct, error) {
	roles := make([]any, len(a.Roles))
	for i, r := range a.Roles {
		roles[i] = r
	}
	fields := map[string]any{
		"principal_id":   a.PrincipalID,
		"principal_type": a.PrincipalType,
		"roles":          roles,
	}
	if a.DisplayName != "" {
		fields["display_name"] = a.DisplayName
	}
	if a.TokenID != "" {
		fields["token_id"] = a.TokenID
	}
	return structpb.NewStruct(fields)
}

func introspectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenServiceServer).Introspect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: IntrospectMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TokenServiceServer).Introspect(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func cacheStatsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).CacheStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CacheStatsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServiceServer).CacheStats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func invalidateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).Invalidate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: InvalidateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServiceServer).Invalidate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var tokenServiceDesc = grpc.ServiceDesc{
	ServiceName: tokenServiceName,
	HandlerType: (*TokenServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Introspect", Handler: introspectHandler},
	},
	Streams: []grpc.StreamDesc{},
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: adminServiceName,
	HandlerType: (*AdminServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CacheStats", Handler: cacheStatsHandler},
		{MethodName: "Invalidate", Handler: invalidateHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// registerGRPCServices registers the token and admin services.
func registerGRPCServices(server *grpc.Server, gw *Gateway) {
	server.RegisterService(&tokenServiceDesc, tokenServer{})
	server.RegisterService(&adminServiceDesc, &adminServer{gateway: gw})
}
