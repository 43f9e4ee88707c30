// ABOUTME: Unit tests for authentication context functions
// ABOUTME: Tests AuthContext roles, JSON shape, and context propagation helpers

package auth

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
)

func TestAuthContext_IsAdmin(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  bool
	}{
		{"admin role", []string{"admin"}, true},
		{"owner role", []string{"owner"}, true},
		{"admin with other roles", []string{"member", "admin", "reader"}, true},
		{"member only", []string{"member"}, false},
		{"no roles", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &AuthContext{PrincipalID: "test-principal", Roles: tt.roles}
			if got := auth.IsAdmin(); got != tt.want {
				t.Errorf("IsAdmin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthContext_HasRole(t *testing.T) {
	auth := &AuthContext{Roles: []string{"member", "reader"}}
	if !auth.HasRole("reader") {
		t.Error("expected reader")
	}
	if auth.HasRole("Reader") {
		t.Error("role names are case-sensitive")
	}
}

func TestWithAuth_FromContext(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Error("expected nil for empty context")
	}

	want := &AuthContext{PrincipalID: "alice"}
	ctx := WithAuth(context.Background(), want)
	if got := FromContext(ctx); got != want {
		t.Errorf("FromContext() = %v, want %v", got, want)
	}
	if got := MustFromContext(ctx); got != want {
		t.Errorf("MustFromContext() = %v, want %v", got, want)
	}
}

func TestMustFromContext_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustFromContext(context.Background())
}

func TestAuthContext_JSON(t *testing.T) {
	in := &AuthContext{
		PrincipalID:   "alice",
		PrincipalType: "user",
		DisplayName:   "Alice",
		Roles:         []string{"admin"},
		TokenID:       "jti-1",
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"principal_id":"alice","principal_type":"user","display_name":"Alice","roles":["admin"],"token_id":"jti-1"}`
	if string(data) != want {
		t.Errorf("unexpected JSON %s", data)
	}

	var out AuthContext
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !reflect.DeepEqual(in, &out) {
		t.Errorf("round trip mismatch: %+v", out)
	}
}
