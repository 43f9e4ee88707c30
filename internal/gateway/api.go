// ABOUTME: HTTP API handlers for token introspection, issuance and revocation
// ABOUTME: Admin routes also expose cache statistics and targeted cache invalidation

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/2389/coven-jwt/internal/auth"
	"github.com/2389/coven-jwt/internal/cache"
	"github.com/2389/coven-jwt/internal/store"
)

// maxRequestBody caps JSON request bodies on the admin API.
const maxRequestBody = 64 << 10

// IssueTokenRequest is the JSON request body for POST /api/tokens.
type IssueTokenRequest struct {
	PrincipalID string         `json:"principal_id"`
	Claims      map[string]any `json:"claims,omitempty"`
}

// IssueTokenResponse is the JSON response for POST /api/tokens.
type IssueTokenResponse struct {
	Token     string `json:"token"`
	TokenID   string `json:"token_id"`
	Subject   string `json:"subject"`
	IssuedAt  string `json:"issued_at"`
	ExpiresAt string `json:"expires_at"`
}

// RevokeTokenResponse is the JSON response for POST /api/tokens/{id}/revoke.
type RevokeTokenResponse struct {
	TokenID     string `json:"token_id"`
	Invalidated int    `json:"invalidated"`
}

// RevokePrincipalResponse is the JSON response for POST /api/principals/{id}/revoke.
type RevokePrincipalResponse struct {
	PrincipalID   string   `json:"principal_id"`
	RevokedTokens []string `json:"revoked_tokens"`
	Invalidated   int      `json:"invalidated"`
}

// ClaimMatch selects cached tokens by a string claim.
type ClaimMatch struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// InvalidateRequest is the JSON request body for POST /api/cache/invalidate.
// Exactly one selector must be set.
type InvalidateRequest struct {
	Token   string      `json:"token,omitempty"`
	Subject string      `json:"subject,omitempty"`
	TokenID string      `json:"token_id,omitempty"`
	Claim   *ClaimMatch `json:"claim,omitempty"`
	All     bool        `json:"all,omitempty"`
}

// InvalidateResponse is the JSON response for POST /api/cache/invalidate.
type InvalidateResponse struct {
	Invalidated int `json:"invalidated"`
}

// CacheStatsResponse is the JSON response for GET /api/cache/stats.
type CacheStatsResponse struct {
	Size               int     `json:"size"`
	HitCount           uint64  `json:"hit_count"`
	MissCount          uint64  `json:"miss_count"`
	HitRate            float64 `json:"hit_rate"`
	LoadSuccessCount   uint64  `json:"load_success_count"`
	LoadAbsentCount    uint64  `json:"load_absent_count"`
	LoadErrorCount     uint64  `json:"load_error_count"`
	EvictionCount      int64   `json:"eviction_count"`
	AverageLoadPenalty string  `json:"average_load_penalty"`
	TotalRequestTime   string  `json:"total_request_time"`
}

var errInvalidSelector = errors.New("exactly one of token, subject, token_id, claim or all is required")

// registerHTTPRoutes wires health, introspection and admin routes onto mux.
func (g *Gateway) registerHTTPRoutes(mux *http.ServeMux, httpCfg auth.HTTPConfig) {
	authenticated := auth.HTTPAuthMiddleware(g.authn, httpCfg)
	admin := func(h http.HandlerFunc) http.Handler {
		return authenticated(auth.RequireAdminHTTP()(h))
	}

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	mux.Handle("GET /api/whoami", authenticated(http.HandlerFunc(g.handleWhoAmI)))

	mux.Handle("POST /api/tokens", admin(g.handleIssueToken))
	mux.Handle("POST /api/tokens/{id}/revoke", admin(g.handleRevokeToken))
	mux.Handle("POST /api/principals/{id}/revoke", admin(g.handleRevokePrincipal))
	mux.Handle("GET /api/cache/stats", admin(g.handleCacheStats))
	mux.Handle("POST /api/cache/invalidate", admin(g.handleInvalidate))
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the cache backend answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if g.redis != nil {
		if err := g.redis.Ping(r.Context()).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("cache backend unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleWhoAmI returns the caller's AuthContext.
func (g *Gateway) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, auth.MustFromContext(r.Context()))
}

// handleIssueToken mints a token for an approved principal.
func (g *Gateway) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req IssueTokenRequest
	if err := decodeBody(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PrincipalID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "principal_id is required")
		return
	}

	p, err := g.store.GetPrincipal(r.Context(), req.PrincipalID)
	if errors.Is(err, store.ErrPrincipalNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "principal not found")
		return
	}
	if err != nil {
		g.logger.Error("looking up principal", "principal_id", req.PrincipalID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if p.Status != store.PrincipalStatusApproved {
		g.sendJSONError(w, http.StatusConflict, fmt.Sprintf("principal is %s", p.Status))
		return
	}

	issued, err := g.issuer.Issue(r.Context(), req.PrincipalID, req.Claims)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	caller := auth.MustFromContext(r.Context())
	g.logger.Info("issued token",
		"token_id", issued.ID,
		"principal_id", issued.Subject,
		"issued_by", caller.PrincipalID,
	)
	g.sendJSON(w, http.StatusCreated, IssueTokenResponse{
		Token:     issued.Token,
		TokenID:   issued.ID,
		Subject:   issued.Subject,
		IssuedAt:  issued.IssuedAt.Format(time.RFC3339),
		ExpiresAt: issued.ExpiresAt.Format(time.RFC3339),
	})
}

// handleRevokeToken revokes a registered token and drops it from the cache.
func (g *Gateway) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := g.store.RevokeToken(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "token not found")
			return
		}
		g.logger.Error("revoking token", "token_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	n, err := g.authn.Resolver().InvalidateAllMatching(r.Context(), auth.TokenIDMatcher(id))
	if err != nil {
		g.logger.Warn("invalidating revoked token", "token_id", id, "error", err)
	}
	g.sendJSON(w, http.StatusOK, RevokeTokenResponse{TokenID: id, Invalidated: n})
}

// handleRevokePrincipal revokes a principal and every live token it holds.
func (g *Gateway) handleRevokePrincipal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := g.store.UpdatePrincipalStatus(r.Context(), id, store.PrincipalStatusRevoked); err != nil {
		if errors.Is(err, store.ErrPrincipalNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "principal not found")
			return
		}
		g.logger.Error("revoking principal", "principal_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	revoked, err := g.store.RevokePrincipalTokens(r.Context(), id)
	if err != nil {
		g.logger.Error("revoking principal tokens", "principal_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	n, err := g.authn.Resolver().InvalidateAllMatching(r.Context(), auth.SubjectMatcher(id))
	if err != nil {
		g.logger.Warn("invalidating revoked principal", "principal_id", id, "error", err)
	}
	g.sendJSON(w, http.StatusOK, RevokePrincipalResponse{PrincipalID: id, RevokedTokens: revoked, Invalidated: n})
}

// handleCacheStats reports resolver counters and the current cache size.
func (g *Gateway) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	resp, err := g.cacheStats(r.Context())
	if err != nil {
		g.logger.Error("reading cache size", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// handleInvalidate drops cached principals selected by the request body.
func (g *Gateway) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if err := decodeBody(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := g.invalidate(r.Context(), req)
	if errors.Is(err, errInvalidSelector) {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		g.logger.Error("invalidating cache", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	g.sendJSON(w, http.StatusOK, InvalidateResponse{Invalidated: n})
}

// cacheStats snapshots the resolver. Shared by the HTTP and gRPC admin surfaces.
func (g *Gateway) cacheStats(ctx context.Context) (*CacheStatsResponse, error) {
	res := g.authn.Resolver()
	size, err := res.Size(ctx)
	if err != nil {
		return nil, err
	}
	stats := res.Stats()
	return &CacheStatsResponse{
		Size:               size,
		HitCount:           stats.HitCount,
		MissCount:          stats.MissCount,
		HitRate:            stats.HitRate(),
		LoadSuccessCount:   stats.LoadSuccessCount,
		LoadAbsentCount:    stats.LoadAbsentCount,
		LoadErrorCount:     stats.LoadErrorCount,
		EvictionCount:      stats.EvictionCount,
		AverageLoadPenalty: stats.AverageLoadPenalty().String(),
		TotalRequestTime:   stats.TotalRequestTime.String(),
	}, nil
}

// invalidate applies a single cache selector and returns how many entries
// were dropped.
func (g *Gateway) invalidate(ctx context.Context, req InvalidateRequest) (int, error) {
	selectors := 0
	for _, set := range []bool{req.Token != "", req.Subject != "", req.TokenID != "", req.Claim != nil, req.All} {
		if set {
			selectors++
		}
	}
	if selectors != 1 {
		return 0, errInvalidSelector
	}

	res := g.authn.Resolver()
	switch {
	case req.Token != "":
		target := cache.Redact(req.Token)
		return res.InvalidateAllMatching(ctx, func(redacted string) bool { return redacted == target })
	case req.Subject != "":
		return res.InvalidateAllMatching(ctx, auth.SubjectMatcher(req.Subject))
	case req.TokenID != "":
		return res.InvalidateAllMatching(ctx, auth.TokenIDMatcher(req.TokenID))
	case req.Claim != nil:
		if req.Claim.Key == "" {
			return 0, errInvalidSelector
		}
		return res.InvalidateAllMatching(ctx, auth.ClaimMatcher(req.Claim.Key, req.Claim.Value))
	default:
		size, err := res.Size(ctx)
		if err != nil {
			return 0, err
		}
		return size, res.InvalidateAllEntries(ctx)
	}
}

// decodeBody parses a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// sendJSON writes v as a JSON response.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}
