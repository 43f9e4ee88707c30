// ABOUTME: Tests for the HTTP API handlers
// ABOUTME: Drives the gateway mux with httptest across auth, issuance, revocation and cache admin

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/2389/coven-jwt/internal/auth"
	"github.com/2389/coven-jwt/internal/store"
)

// do sends a request through the gateway's HTTP handler.
func do(t *testing.T, gw *Gateway, method, path, tok, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	gw.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthEndpoints(t *testing.T) {
	gw := newTestGateway(t)

	if rec := do(t, gw, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("/health = %d %q", rec.Code, rec.Body.String())
	}
	if rec := do(t, gw, http.MethodGet, "/health/ready", "", ""); rec.Code != http.StatusOK {
		t.Errorf("/health/ready = %d", rec.Code)
	}
}

func TestWhoAmI(t *testing.T) {
	gw := newTestGateway(t)

	rec := do(t, gw, http.MethodGet, "/api/whoami", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); got != `Bearer realm="coven"` {
		t.Errorf("WWW-Authenticate = %q", got)
	}

	rec = do(t, gw, http.MethodGet, "/api/whoami", gw.mustIssue(t, "bob"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got auth.AuthContext
	decodeJSON(t, rec, &got)
	if got.PrincipalID != "bob" || !got.HasRole("reader") {
		t.Errorf("unexpected principal %+v", got)
	}
}

func TestWhoAmI_TamperedToken(t *testing.T) {
	gw := newTestGateway(t)
	tok := gw.mustIssue(t, "bob")
	tampered := tok[:len(tok)-2] + "xx"
	if tampered == tok {
		tampered = tok[:len(tok)-2] + "yy"
	}

	rec := do(t, gw, http.MethodGet, "/api/whoami", tampered, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestIssueToken(t *testing.T) {
	gw := newTestGateway(t)
	admin := gw.mustIssue(t, "alice")
	reader := gw.mustIssue(t, "bob")

	tests := []struct {
		name     string
		tok      string
		body     string
		wantCode int
	}{
		{"admin issues", admin, `{"principal_id":"bob","claims":{"tenant":"acme"}}`, http.StatusCreated},
		{"reader forbidden", reader, `{"principal_id":"bob"}`, http.StatusForbidden},
		{"unknown principal", admin, `{"principal_id":"ghost"}`, http.StatusNotFound},
		{"pending principal", admin, `{"principal_id":"carol"}`, http.StatusConflict},
		{"missing principal", admin, `{}`, http.StatusBadRequest},
		{"bad json", admin, `{`, http.StatusBadRequest},
		{"reserved claim", admin, `{"principal_id":"bob","claims":{"jti":"mine"}}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, gw, http.MethodPost, "/api/tokens", tt.tok, tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestIssueToken_UsableAndRecorded(t *testing.T) {
	gw := newTestGateway(t)

	rec := do(t, gw, http.MethodPost, "/api/tokens", gw.mustIssue(t, "alice"), `{"principal_id":"bob"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var issued IssueTokenResponse
	decodeJSON(t, rec, &issued)
	if issued.Subject != "bob" || issued.TokenID == "" {
		t.Errorf("unexpected response %+v", issued)
	}

	if rec := do(t, gw, http.MethodGet, "/api/whoami", issued.Token, ""); rec.Code != http.StatusOK {
		t.Errorf("issued token rejected: %d", rec.Code)
	}
	rec2, err := gw.store.GetToken(context.Background(), issued.TokenID)
	if err != nil {
		t.Fatalf("GetToken() error = %v", err)
	}
	if rec2.PrincipalID != "bob" {
		t.Errorf("recorded principal = %q", rec2.PrincipalID)
	}
}

func TestRevokeToken(t *testing.T) {
	gw := newTestGateway(t)
	admin := gw.mustIssue(t, "alice")

	issued, err := gw.issuer.Issue(context.Background(), "bob", nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if rec := do(t, gw, http.MethodGet, "/api/whoami", issued.Token, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 before revocation, got %d", rec.Code)
	}

	rec := do(t, gw, http.MethodPost, "/api/tokens/"+issued.ID+"/revoke", admin, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp RevokeTokenResponse
	decodeJSON(t, rec, &resp)
	if resp.Invalidated != 1 {
		t.Errorf("invalidated = %d, want 1", resp.Invalidated)
	}

	if rec := do(t, gw, http.MethodGet, "/api/whoami", issued.Token, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after revocation, got %d", rec.Code)
	}

	if rec := do(t, gw, http.MethodPost, "/api/tokens/nope/revoke", admin, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown token, got %d", rec.Code)
	}
}

func TestRevokePrincipal(t *testing.T) {
	gw := newTestGateway(t)
	admin := gw.mustIssue(t, "alice")
	first := gw.mustIssue(t, "bob")
	second := gw.mustIssue(t, "bob")

	for _, tok := range []string{first, second} {
		if rec := do(t, gw, http.MethodGet, "/api/whoami", tok, ""); rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}

	rec := do(t, gw, http.MethodPost, "/api/principals/bob/revoke", admin, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp RevokePrincipalResponse
	decodeJSON(t, rec, &resp)
	if len(resp.RevokedTokens) != 2 || resp.Invalidated != 2 {
		t.Errorf("unexpected response %+v", resp)
	}

	for _, tok := range []string{first, second} {
		if rec := do(t, gw, http.MethodGet, "/api/whoami", tok, ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401 after principal revocation, got %d", rec.Code)
		}
	}

	p, err := gw.store.GetPrincipal(context.Background(), "bob")
	if err != nil {
		t.Fatalf("GetPrincipal() error = %v", err)
	}
	if p.Status != store.PrincipalStatusRevoked {
		t.Errorf("status = %s, want revoked", p.Status)
	}

	if rec := do(t, gw, http.MethodPost, "/api/principals/ghost/revoke", admin, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown principal, got %d", rec.Code)
	}
}

func TestCacheStatsAndInvalidate(t *testing.T) {
	gw := newTestGateway(t)
	admin := gw.mustIssue(t, "alice")
	reader := gw.mustIssue(t, "bob")

	do(t, gw, http.MethodGet, "/api/whoami", reader, "")
	do(t, gw, http.MethodGet, "/api/whoami", reader, "")

	rec := do(t, gw, http.MethodGet, "/api/cache/stats", admin, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats CacheStatsResponse
	decodeJSON(t, rec, &stats)
	if stats.Size != 2 {
		t.Errorf("size = %d, want 2", stats.Size)
	}
	if stats.HitCount != 1 || stats.MissCount != 2 {
		t.Errorf("hits/misses = %d/%d, want 1/2", stats.HitCount, stats.MissCount)
	}

	if rec := do(t, gw, http.MethodGet, "/api/cache/stats", reader, ""); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for reader, got %d", rec.Code)
	}

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantN    int
	}{
		{"no selector", `{}`, http.StatusBadRequest, 0},
		{"two selectors", `{"subject":"bob","all":true}`, http.StatusBadRequest, 0},
		{"empty claim key", `{"claim":{"key":"","value":"x"}}`, http.StatusBadRequest, 0},
		{"unknown token", `{"token":"not-cached"}`, http.StatusOK, 0},
		{"subject", `{"subject":"bob"}`, http.StatusOK, 1},
		{"issuer claim", `{"claim":{"key":"iss","value":"coven-jwt"}}`, http.StatusOK, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, gw, http.MethodPost, "/api/cache/invalidate", admin, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var resp InvalidateResponse
			decodeJSON(t, rec, &resp)
			if resp.Invalidated != tt.wantN {
				t.Errorf("invalidated = %d, want %d", resp.Invalidated, tt.wantN)
			}
		})
	}
}

func TestInvalidateAll(t *testing.T) {
	gw := newTestGateway(t)
	admin := gw.mustIssue(t, "alice")
	do(t, gw, http.MethodGet, "/api/whoami", gw.mustIssue(t, "bob"), "")

	rec := do(t, gw, http.MethodPost, "/api/cache/invalidate", admin, `{"all":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp InvalidateResponse
	decodeJSON(t, rec, &resp)
	// bob's entry plus the admin's own request.
	if resp.Invalidated != 2 {
		t.Errorf("invalidated = %d, want 2", resp.Invalidated)
	}
	if size, _ := gw.authn.Resolver().Size(context.Background()); size != 0 {
		t.Errorf("size = %d, want 0", size)
	}
}
