// ABOUTME: Tests for Gateway orchestration and the token/admin gRPC services
// ABOUTME: Runs real listeners and calls the services over an insecure gRPC connection

package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/2389/coven-jwt/internal/config"
	"github.com/2389/coven-jwt/internal/store"
)

// freeAddr reserves and releases a local port.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// testConfig creates a minimal config for testing with available ports.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Server.GRPCAddr = freeAddr(t)
	cfg.Server.HTTPAddr = freeAddr(t)
	cfg.Database.Path = filepath.Join(t.TempDir(), "gateway.db")
	cfg.Auth.Secret = "gateway-test-secret"
	cfg.Auth.TokenTTL = time.Hour
	return cfg
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func addPrincipal(t *testing.T, s store.Store, id string, status store.PrincipalStatus, roles ...store.RoleName) {
	t.Helper()
	ctx := context.Background()
	err := s.CreatePrincipal(ctx, &store.Principal{
		ID:          id,
		Type:        store.PrincipalTypeUser,
		DisplayName: "Principal " + id,
		Status:      status,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	})
	if err != nil {
		t.Fatalf("CreatePrincipal() error = %v", err)
	}
	for _, r := range roles {
		if err := s.AddRole(ctx, id, r); err != nil {
			t.Fatalf("AddRole() error = %v", err)
		}
	}
}

// newTestGateway builds a gateway seeded with an admin (alice), a reader (bob)
// and a pending principal (carol).
func newTestGateway(t *testing.T) *Gateway {
	t.Helper()

	gw, err := New(testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { gw.Shutdown(context.Background()) })

	addPrincipal(t, gw.store, "alice", store.PrincipalStatusApproved, store.RoleAdmin)
	addPrincipal(t, gw.store, "bob", store.PrincipalStatusApproved, store.RoleReader)
	addPrincipal(t, gw.store, "carol", store.PrincipalStatusPending)
	return gw
}

func (g *Gateway) mustIssue(t *testing.T, principalID string) string {
	t.Helper()
	issued, err := g.issuer.Issue(context.Background(), principalID, nil)
	if err != nil {
		t.Fatalf("Issue(%s) error = %v", principalID, err)
	}
	return issued.Token
}

// runGateway starts gw and returns a client connection to its gRPC server.
func runGateway(t *testing.T, gw *Gateway) *grpc.ClientConn {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- gw.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(5 * time.Second):
			t.Error("gateway did not shutdown in time")
		}
	})

	conn, err := grpc.NewClient(gw.config.Server.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to dial gateway: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// Wait for the health service to report SERVING.
	client := healthpb.NewHealthClient(conn)
	deadline := time.Now().Add(5 * time.Second)
	for {
		reqCtx, reqCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		resp, err := client.Check(reqCtx, &healthpb.HealthCheckRequest{})
		reqCancel()
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			return conn
		}
		if time.Now().After(deadline) {
			t.Fatalf("gateway never became healthy: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func withToken(raw string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+raw)
}

func TestGatewayNew(t *testing.T) {
	gw := newTestGateway(t)

	if gw.store == nil {
		t.Error("store should not be nil")
	}
	if gw.Authenticator() == nil {
		t.Error("authenticator should not be nil")
	}
	if gw.Issuer() == nil {
		t.Error("issuer should not be nil")
	}
	if gw.redis != nil {
		t.Error("memory backend should not open a redis client")
	}
}

func TestGatewayNew_RequiresSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Secret = ""

	_, err := New(cfg, testLogger())
	if !errors.Is(err, config.ErrMissingSecret) {
		t.Errorf("expected ErrMissingSecret, got %v", err)
	}
}

func TestGatewayNew_RedisBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = "redis"
	cfg.Redis.Addr = freeAddr(t)

	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	if gw.redis == nil {
		t.Fatal("expected redis client")
	}
}

func TestGatewayRunAndShutdown(t *testing.T) {
	gw, err := New(testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("gateway did not shutdown in time")
	}
}

func TestGatewayRun_AddressInUse(t *testing.T) {
	gw, err := New(testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	ln, err := net.Listen("tcp", gw.config.Server.GRPCAddr)
	if err != nil {
		t.Fatalf("failed to occupy port: %v", err)
	}
	defer ln.Close()

	if err := gw.Run(context.Background()); err == nil {
		t.Error("expected listen error")
	}
}

func TestGRPC_Introspect(t *testing.T) {
	gw := newTestGateway(t)
	conn := runGateway(t, gw)
	tok := gw.mustIssue(t, "alice")

	out := new(structpb.Struct)
	if err := conn.Invoke(withToken(tok), IntrospectMethod, &emptypb.Empty{}, out); err != nil {
		t.Fatalf("Introspect failed: %v", err)
	}

	got := out.AsMap()
	if got["principal_id"] != "alice" {
		t.Errorf("principal_id = %v, want alice", got["principal_id"])
	}
	if roles, _ := got["roles"].([]any); len(roles) != 1 || roles[0] != "admin" {
		t.Errorf("roles = %v, want [admin]", got["roles"])
	}
	if got["token_id"] == "" || got["token_id"] == nil {
		t.Error("expected token_id")
	}
}

func TestGRPC_IntrospectRequiresToken(t *testing.T) {
	gw := newTestGateway(t)
	conn := runGateway(t, gw)

	err := conn.Invoke(context.Background(), IntrospectMethod, &emptypb.Empty{}, new(structpb.Struct))
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated, got %v", err)
	}

	pending := gw.mustIssue(t, "carol")
	err = conn.Invoke(withToken(pending), IntrospectMethod, &emptypb.Empty{}, new(structpb.Struct))
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated for pending principal, got %v", err)
	}
}

func TestGRPC_AdminService(t *testing.T) {
	gw := newTestGateway(t)
	conn := runGateway(t, gw)
	admin := gw.mustIssue(t, "alice")
	reader := gw.mustIssue(t, "bob")

	// Populate the cache with bob's token.
	if err := conn.Invoke(withToken(reader), IntrospectMethod, &emptypb.Empty{}, new(structpb.Struct)); err != nil {
		t.Fatalf("Introspect failed: %v", err)
	}

	err := conn.Invoke(withToken(reader), CacheStatsMethod, &emptypb.Empty{}, new(structpb.Struct))
	if status.Code(err) != codes.PermissionDenied {
		t.Errorf("expected PermissionDenied for reader, got %v", err)
	}

	stats := new(structpb.Struct)
	if err := conn.Invoke(withToken(admin), CacheStatsMethod, &emptypb.Empty{}, stats); err != nil {
		t.Fatalf("CacheStats failed: %v", err)
	}
	if size := stats.AsMap()["size"]; size != float64(2) {
		t.Errorf("size = %v, want 2", size)
	}

	req, err := structpb.NewStruct(map[string]any{"subject": "bob"})
	if err != nil {
		t.Fatalf("NewStruct() error = %v", err)
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(withToken(admin), InvalidateMethod, req, out); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if n := out.AsMap()["invalidated"]; n != float64(1) {
		t.Errorf("invalidated = %v, want 1", n)
	}

	empty, _ := structpb.NewStruct(map[string]any{})
	err = conn.Invoke(withToken(admin), InvalidateMethod, empty, new(structpb.Struct))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument for missing selector, got %v", err)
	}
}

func TestGRPC_HealthIsPublic(t *testing.T) {
	gw := newTestGateway(t)
	conn := runGateway(t, gw)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}
}

func TestInvalidateRequestFromStruct(t *testing.T) {
	in, err := structpb.NewStruct(map[string]any{
		"claim": map[string]any{"key": "tenant", "value": "acme"},
		"all":   true,
	})
	if err != nil {
		t.Fatalf("NewStruct() error = %v", err)
	}

	req := invalidateRequestFromStruct(in)
	if !req.All {
		t.Error("expected all")
	}
	if req.Claim == nil || req.Claim.Key != "tenant" || req.Claim.Value != "acme" {
		t.Errorf("claim = %+v", req.Claim)
	}
	if req.Subject != "" || req.Token != "" {
		t.Errorf("unexpected selectors: %+v", req)
	}
}
