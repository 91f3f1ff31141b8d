package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"lightingmap.app/internal/lighting"
)

func TestIssueAndParse(t *testing.T) {
	tokens, err := NewTokenIssuer("test-secret", "test-issuer", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	u := lighting.User{ID: "user-42", Email: "m@riva.it", Role: lighting.RoleMaintainer, IsApproved: true}

	token, exp, err := tokens.Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expected future expiration, got %v", exp)
	}
	claims, err := tokens.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "user-42" || claims.Email != "m@riva.it" || claims.Role != lighting.RoleMaintainer {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
}

func TestParseRejectsForeignAndExpiredTokens(t *testing.T) {
	a, _ := NewTokenIssuer("secret-a", "lightingmap", time.Hour)
	b, _ := NewTokenIssuer("secret-b", "lightingmap", time.Hour)
	u := lighting.User{ID: "u1", Role: lighting.RoleDefaultUser}

	token, _, err := a.Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := b.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign secret, got %v", err)
	}

	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _, err := a.Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	a.now = time.Now
	if _, err := a.Parse(stale); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
	if _, err := a.Parse("  "); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for blank token, got %v", err)
	}
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	if _, err := NewTokenIssuer(" ", "", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewTokenIssuer("x", "", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestRequireRole(t *testing.T) {
	ctx := context.Background()
	if _, err := RequireRole(ctx, lighting.RoleDefaultUser); !errors.Is(err, lighting.ErrPermissionDenied) {
		t.Fatalf("expected permission denied without principal, got %v", err)
	}
	ctx = ContextWithPrincipal(ctx, Principal{UserID: "u1", Role: lighting.RoleAdministrator})
	if _, err := RequireRole(ctx, lighting.RoleMaintainer); err != nil {
		t.Fatalf("administrator should pass maintainer check: %v", err)
	}
	if _, err := RequireRole(ctx, lighting.RoleSuperAdmin); !errors.Is(err, lighting.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	id, ok := UserIDFromContext(ctx)
	if !ok || id != "u1" {
		t.Fatalf("unexpected user id %q", id)
	}
}

func TestHashPassword(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, lighting.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := VerifyPassword(hash, "correct horse"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong horse"); err == nil {
		t.Fatal("expected mismatch")
	}
}
