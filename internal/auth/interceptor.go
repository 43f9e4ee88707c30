// ABOUTME: gRPC interceptors for authenticating requests with bearer tokens
// ABOUTME: Extracts the token from metadata and populates context for handlers

package auth

import (
	"context"
	"log/slog"
	"slices"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// GRPCConfig holds interceptor options.
type GRPCConfig struct {
	// Scheme is matched case-insensitively against the authorization
	// metadata. Empty means DefaultScheme.
	Scheme string
	// PublicMethods are full method names served without authentication,
	// such as "/grpc.health.v1.Health/Check".
	PublicMethods []string
	// Logger enables auth failure logging for security monitoring.
	Logger *slog.Logger
}

func (c GRPCConfig) scheme() string {
	if c.Scheme == "" {
		return DefaultScheme
	}
	return c.Scheme
}

func (c GRPCConfig) public(method string) bool {
	return slices.Contains(c.PublicMethods, method)
}

// logAuthFailure logs an authentication failure with structured context.
func logAuthFailure(logger *slog.Logger, ctx context.Context, reason string, attrs ...any) {
	if logger == nil {
		return
	}
	// Extract peer address if available
	baseAttrs := []any{"reason", reason}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		baseAttrs = append(baseAttrs, "peer_addr", p.Addr.String())
	}
	baseAttrs = append(baseAttrs, attrs...)
	logger.Warn("auth failure", baseAttrs...)
}

// UnaryInterceptor returns a gRPC unary interceptor that authenticates requests.
func UnaryInterceptor(authn TokenAuthenticator, cfg GRPCConfig) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if cfg.public(info.FullMethod) {
			return handler(ctx, req)
		}

		authCtx, err := extractAuth(ctx, authn, cfg, info.FullMethod)
		if err != nil {
			return nil, err
		}

		ctx = WithAuth(ctx, authCtx)
		return handler(ctx, req)
	}
}

// StreamInterceptor returns a gRPC stream interceptor that authenticates requests.
func StreamInterceptor(authn TokenAuthenticator, cfg GRPCConfig) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if cfg.public(info.FullMethod) {
			return handler(srv, ss)
		}

		authCtx, err := extractAuth(ss.Context(), authn, cfg, info.FullMethod)
		if err != nil {
			return err
		}

		wrapped := &wrappedServerStream{
			ServerStream: ss,
			ctx:          WithAuth(ss.Context(), authCtx),
		}
		return handler(srv, wrapped)
	}
}

// wrappedServerStream wraps a grpc.ServerStream with a custom context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}

// extractAuth authenticates the bearer token carried in gRPC metadata.
func extractAuth(ctx context.Context, authn TokenAuthenticator, cfg GRPCConfig, method string) (*AuthContext, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		logAuthFailure(cfg.Logger, ctx, "missing_metadata", "method", method)
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}

	authHeaders := md.Get("authorization")
	if len(authHeaders) == 0 {
		logAuthFailure(cfg.Logger, ctx, "missing_authorization", "method", method)
		return nil, status.Error(codes.Unauthenticated, "missing authorization header")
	}

	raw, ok := extractSchemeToken(authHeaders[0], cfg.scheme())
	if !ok {
		logAuthFailure(cfg.Logger, ctx, "invalid_authorization_format", "method", method)
		return nil, status.Error(codes.Unauthenticated, "invalid authorization header format")
	}

	authCtx, ok, err := authn.Authenticate(ctx, raw)
	if err != nil {
		code := GRPCCode(err)
		if code == codes.Internal {
			if cfg.Logger != nil {
				cfg.Logger.Error("authentication error", "method", method, "error", err)
			}
			return nil, status.Error(codes.Internal, "authentication failed")
		}
		logAuthFailure(cfg.Logger, ctx, "token_rejected", "method", method, "detail", failureReason(err))
		return nil, status.Error(code, failureReason(err))
	}
	if !ok {
		logAuthFailure(cfg.Logger, ctx, "unknown_principal", "method", method)
		return nil, status.Error(codes.Unauthenticated, failureReason(ErrUnknownPrincipal))
	}
	return authCtx, nil
}
