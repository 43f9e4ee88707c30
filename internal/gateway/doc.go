// Package gateway runs the coven-jwt token service.
//
// # Overview
//
// The gateway owns every long-lived component: the SQLite store of
// principals and issued tokens, the signer and verifier built from the
// configured secret, the caching authenticator, and the gRPC and HTTP
// servers that share it.
//
// # Authentication
//
// Both transports authenticate through one auth.Authenticator, so a token
// resolved over HTTP is a cache hit over gRPC and vice versa. Expiry is
// checked on every request; only the principal lookup is cached.
//
// # HTTP API
//
//	GET  /health                         liveness, no auth
//	GET  /health/ready                   cache backend reachable, no auth
//	GET  /api/whoami                     caller's AuthContext
//	POST /api/tokens                     issue a token (admin)
//	POST /api/tokens/{id}/revoke         revoke one token (admin)
//	POST /api/principals/{id}/revoke     revoke a principal and its tokens (admin)
//	GET  /api/cache/stats                resolver counters (admin)
//	POST /api/cache/invalidate           drop cached principals (admin)
//
// Revocation endpoints update the store and then invalidate matching cache
// entries, so revoked tokens stop working immediately.
//
// # gRPC Services
//
// Services are declared by hand over protobuf well-known types:
//
//	coven.jwt.v1.TokenService/Introspect   Empty  -> Struct
//	coven.jwt.v1.AdminService/CacheStats   Empty  -> Struct (admin)
//	coven.jwt.v1.AdminService/Invalidate   Struct -> Struct (admin)
//
// The standard grpc.health.v1.Health service is public.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is canceled
package gateway
