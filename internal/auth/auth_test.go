package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/rumi-monitor/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	raw, meta, err := tm.GenerateToken("operator", domain.SubjectTypeOperator)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if !meta.ExpiresAt.After(meta.IssuedAt) {
		t.Fatalf("expiry %v not after issue %v", meta.ExpiresAt, meta.IssuedAt)
	}
	claims, err := tm.ParseToken(raw)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.SubjectID != "operator" || claims.Subject != domain.SubjectTypeOperator {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestTokenFromOtherSecretRejected(t *testing.T) {
	raw, _, err := NewTokenManager("one", 5).GenerateToken("operator", domain.SubjectTypeOperator)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewTokenManager("two", 5).ParseToken(raw); err == nil {
		t.Fatal("expected signature failure")
	}
}

func TestComparePassword(t *testing.T) {
	hash, err := HashPassword("hunter2", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if err := ComparePassword(hash, "hunter2"); err != nil {
		t.Fatalf("matching password rejected: %v", err)
	}
	if err := ComparePassword(hash, "wrong"); err == nil {
		t.Fatal("wrong password accepted")
	}
}
