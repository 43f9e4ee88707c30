// ABOUTME: Tests for the role gate interceptors
// ABOUTME: Verifies prefix scoping, missing auth and permission denial

package auth

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func okHandler(ctx context.Context, req any) (any, error) { return "ok", nil }

func TestRequireAdmin(t *testing.T) {
	adminMethod := &grpc.UnaryServerInfo{FullMethod: "/coven.AdminService/RevokeToken"}
	otherMethod := &grpc.UnaryServerInfo{FullMethod: "/coven.TokenService/Introspect"}

	tests := []struct {
		name     string
		auth     *AuthContext
		info     *grpc.UnaryServerInfo
		wantCode codes.Code
	}{
		{"admin allowed", &AuthContext{Roles: []string{"admin"}}, adminMethod, codes.OK},
		{"owner allowed", &AuthContext{Roles: []string{"owner"}}, adminMethod, codes.OK},
		{"member denied", &AuthContext{Roles: []string{"member"}}, adminMethod, codes.PermissionDenied},
		{"unauthenticated", nil, adminMethod, codes.Unauthenticated},
		{"other service passes", nil, otherMethod, codes.OK},
	}

	gate := RequireAdmin("/coven.AdminService/")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.auth != nil {
				ctx = WithAuth(ctx, tt.auth)
			}
			_, err := gate(ctx, nil, tt.info, okHandler)
			if got := status.Code(err); got != tt.wantCode {
				t.Errorf("expected %v, got %v", tt.wantCode, got)
			}
		})
	}
}

func TestRequireRoleStream(t *testing.T) {
	gate := RequireRoleStream("/coven.TokenService/", "reader")
	info := &grpc.StreamServerInfo{FullMethod: "/coven.TokenService/Watch"}
	handler := func(srv any, ss grpc.ServerStream) error { return nil }

	allowed := &mockServerStream{ctx: WithAuth(context.Background(), &AuthContext{Roles: []string{"reader"}})}
	if err := gate(nil, allowed, info, handler); err != nil {
		t.Errorf("expected reader to pass, got %v", err)
	}

	denied := &mockServerStream{ctx: WithAuth(context.Background(), &AuthContext{Roles: []string{"member"}})}
	err := gate(nil, denied, info, handler)
	if status.Code(err) != codes.PermissionDenied {
		t.Errorf("expected PermissionDenied, got %v", err)
	}
	if st, _ := status.FromError(err); st.Message() != "reader role required" {
		t.Errorf("unexpected message %q", st.Message())
	}
}
