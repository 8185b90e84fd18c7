package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("testsecret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Minute,
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	cfg := testConfig()

	token, err := GenerateToken(cfg, "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ValidateToken(cfg, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.ClientID != "alice" {
		t.Fatalf("unexpected client id %q", claims.ClientID)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	cfg := testConfig()
	token, err := GenerateToken(cfg, "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	other := testConfig()
	other.Secret = []byte("other")
	if _, err := ValidateToken(other, token); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestValidateTokenRejectsWrongAudience(t *testing.T) {
	cfg := testConfig()
	token, err := GenerateToken(cfg, "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	other := testConfig()
	other.Audience = "elsewhere"
	if _, err := ValidateToken(other, token); err == nil {
		t.Fatal("expected audience error")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	cfg := testConfig()
	cfg.TTL = -time.Minute
	token, err := GenerateToken(cfg, "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ValidateToken(cfg, token); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestValidateTokenFallsBackToSubject(t *testing.T) {
	cfg := testConfig()
	claims := jwt.MapClaims{
		"sub": "bob",
		"iss": cfg.Issuer,
		"aud": cfg.Audience,
		"exp": time.Now().Add(time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, err := ValidateToken(cfg, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.ClientID != "bob" {
		t.Fatalf("expected subject fallback, got %q", got.ClientID)
	}
}

func TestGenerateTokenRequiresClientID(t *testing.T) {
	if _, err := GenerateToken(testConfig(), ""); !errors.Is(err, ErrMissingClientID) {
		t.Fatalf("expected ErrMissingClientID, got %v", err)
	}
}
