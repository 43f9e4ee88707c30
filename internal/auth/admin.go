// ABOUTME: Role gate interceptors restricting a gRPC service to principals holding a role
// ABOUTME: Used as second interceptor after authentication to enforce RBAC

package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// checkRoles returns nil when ctx carries a principal holding any of roles.
func checkRoles(ctx context.Context, roles []string) error {
	auth := FromContext(ctx)
	if auth == nil {
		return status.Error(codes.Unauthenticated, "authentication required")
	}
	for _, r := range roles {
		if auth.HasRole(r) {
			return nil
		}
	}
	return status.Error(codes.PermissionDenied, strings.Join(roles, " or ")+" role required")
}

// RequireRole returns a gRPC unary interceptor that enforces one of roles for
// methods under servicePrefix (for example "/coven.AdminService/"). Other
// services pass through unchanged.
func RequireRole(servicePrefix string, roles ...string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, servicePrefix) {
			return handler(ctx, req)
		}
		if err := checkRoles(ctx, roles); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// RequireRoleStream is the streaming counterpart of RequireRole.
func RequireRoleStream(servicePrefix string, roles ...string) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if !strings.HasPrefix(info.FullMethod, servicePrefix) {
			return handler(srv, ss)
		}
		if err := checkRoles(ss.Context(), roles); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

// RequireAdmin enforces admin or owner role for methods under servicePrefix.
func RequireAdmin(servicePrefix string) grpc.UnaryServerInterceptor {
	return RequireRole(servicePrefix, "admin", "owner")
}

// RequireAdminStream enforces admin or owner role for streaming methods under
// servicePrefix.
func RequireAdminStream(servicePrefix string) grpc.StreamServerInterceptor {
	return RequireRoleStream(servicePrefix, "admin", "owner")
}
