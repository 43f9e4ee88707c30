// ABOUTME: Gateway orchestrator that coordinates the authenticated GRPC and HTTP servers
// ABOUTME: Wires store, signer, verifier and the caching authenticator, and owns their lifecycle

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/2389/coven-jwt/internal/auth"
	"github.com/2389/coven-jwt/internal/cache"
	"github.com/2389/coven-jwt/internal/config"
	"github.com/2389/coven-jwt/internal/resolver"
	"github.com/2389/coven-jwt/internal/signer"
	"github.com/2389/coven-jwt/internal/store"
	"github.com/2389/coven-jwt/internal/validator"
)

// healthMethods are served without credentials.
var healthMethods = []string{
	"/grpc.health.v1.Health/Check",
	"/grpc.health.v1.Health/Watch",
	"/grpc.health.v1.Health/List",
}

// Gateway orchestrates the coven-jwt server components.
// Every GRPC and HTTP API call passes through the same authenticator, so the
// principal cache is shared between both transports.
type Gateway struct {
	config     *config.Config
	store      store.Store
	authn      *auth.Authenticator[*auth.AuthContext]
	issuer     *auth.Issuer
	redis      *redis.Client
	grpcServer *grpc.Server
	health     *health.Server
	httpServer *http.Server
	logger     *slog.Logger
}

// initStore opens the SQLite store named in the config.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// newCacheStore builds the principal cache backend. The returned client is
// nil unless the redis backend is selected.
func newCacheStore(cfg *config.Config) (cache.Store[*auth.AuthContext], *redis.Client, error) {
	spec, err := cfg.Cache.ParsedSpec()
	if err != nil {
		return nil, nil, fmt.Errorf("parsing cache spec: %w", err)
	}

	if cfg.Cache.Backend != "redis" {
		return cache.NewMemoryStore[*auth.AuthContext](spec), nil, nil
	}

	secret, err := cfg.Auth.SecretBytes()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return cache.NewRedisStore[*auth.AuthContext](client, cfg.Redis.Prefix, spec, cache.WithKeySecret(secret)), client, nil
}

// newKeys builds the signer and verifier from the configured secret.
func newKeys(cfg *config.Config) (*signer.Signer, *signer.Verifier, error) {
	alg, err := cfg.Auth.SigningAlgorithm()
	if err != nil {
		return nil, nil, err
	}
	secret, err := cfg.Auth.SecretBytes()
	if err != nil {
		return nil, nil, err
	}

	sgn, err := signer.NewSigner(alg, secret)
	if err != nil {
		return nil, nil, fmt.Errorf("creating signer: %w", err)
	}
	ver, err := signer.NewVerifier(alg, secret)
	if err != nil {
		return nil, nil, fmt.Errorf("creating verifier: %w", err)
	}
	return sgn, ver, nil
}

// createGRPCServer creates a gRPC server with auth and admin interceptors.
func createGRPCServer(authn auth.TokenAuthenticator, cfg *config.Config, logger *slog.Logger) *grpc.Server {
	grpcCfg := auth.GRPCConfig{
		Scheme:        cfg.Auth.Scheme,
		PublicMethods: healthMethods,
		Logger:        logger.With("component", "grpc-auth"),
	}

	return grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(
			auth.UnaryInterceptor(authn, grpcCfg),
			auth.RequireAdmin(adminServicePrefix),
		),
		grpc.ChainStreamInterceptor(
			auth.StreamInterceptor(authn, grpcCfg),
			auth.RequireAdminStream(adminServicePrefix),
		),
	)
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	sgn, ver, err := newKeys(cfg)
	if err != nil {
		return nil, err
	}

	cacheStore, redisClient, err := newCacheStore(cfg)
	if err != nil {
		return nil, err
	}

	s, err := initStore(cfg)
	if err != nil {
		closeRedis(redisClient)
		return nil, err
	}

	opts := []resolver.Option{resolver.WithLogger(logger.With("component", "resolver"))}
	if !cfg.Cache.CoalesceEnabled() {
		opts = append(opts, resolver.WithoutCoalescing())
	}
	authn := auth.NewAuthenticator(
		ver,
		validator.New(validator.WithClockSkew(cfg.Auth.ClockSkew)),
		auth.NewPrincipalResolver(s, logger.With("component", "principals")).Resolve,
		cacheStore,
		opts...,
	)

	gw := &Gateway{
		config: cfg,
		store:  s,
		authn:  authn,
		issuer: auth.NewIssuer(sgn, s, cfg.Auth.Issuer, cfg.Auth.TokenTTL),
		redis:  redisClient,
		health: health.NewServer(),
		logger: logger.With("component", "gateway"),
	}

	gw.grpcServer = createGRPCServer(authn, cfg, logger)
	healthpb.RegisterHealthServer(gw.grpcServer, gw.health)
	registerGRPCServices(gw.grpcServer, gw)

	httpCfg := auth.HTTPConfig{
		Scheme:     cfg.Auth.Scheme,
		CookieName: cfg.Auth.CookieName,
		Realm:      cfg.Auth.Realm,
		Logger:     logger.With("component", "http-auth"),
	}
	mux := http.NewServeMux()
	gw.registerHTTPRoutes(mux, httpCfg)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Authenticator exposes the shared authenticator.
func (g *Gateway) Authenticator() *auth.Authenticator[*auth.AuthContext] { return g.authn }

// Issuer exposes the token issuer backed by the gateway's store.
func (g *Gateway) Issuer() *auth.Issuer { return g.issuer }

// setupListeners creates standard TCP listeners for gRPC and HTTP.
func (g *Gateway) setupListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"grpc_addr", g.config.Server.GRPCAddr,
		"http_addr", g.config.Server.HTTPAddr,
	)

	grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
	}

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		_ = grpcLn.Close()
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	return grpcLn, httpLn, nil
}

// startServers starts gRPC and HTTP servers in goroutines, returning error channel.
func (g *Gateway) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		g.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
		if err := g.grpcServer.Serve(grpcLn); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts the gateway servers and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if a server fails.
func (g *Gateway) Run(ctx context.Context) error {
	grpcListener, httpListener, err := g.setupListeners()
	if err != nil {
		return err
	}

	g.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	errCh := g.startServers(grpcListener, httpListener)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The original context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

func closeRedis(client *redis.Client) {
	if client != nil {
		_ = client.Close()
	}
}

// Shutdown gracefully stops all gateway servers and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")
	g.health.Shutdown()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.shutdownGRPCServer(ctx)

	errs = appendCloseError(errs, "authenticator close", g.authn.Close())
	if g.redis != nil {
		errs = appendCloseError(errs, "redis close", g.redis.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
