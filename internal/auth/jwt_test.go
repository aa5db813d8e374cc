package auth

import (
	"strings"
	"testing"
	"time"

	"muxic/internal/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testUser() *models.User {
	return &models.User{
		ID:         "usr_test",
		Email:      "alice@example.com",
		Username:   "alice_01",
		FullName:   "Alice Example",
		IsVerified: true,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	svc := NewJWTService(testSecret, 15*time.Minute, 30*24*time.Hour)

	token, expiresAt, err := svc.GenerateAccessToken(testUser(), true)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	if time.Until(expiresAt) > 15*time.Minute {
		t.Fatalf("expiresAt = %v, want within 15m", expiresAt)
	}

	claims, err := svc.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.UserID != "usr_test" {
		t.Fatalf("claims.UserID = %q, want %q", claims.UserID, "usr_test")
	}
	if claims.Username != "alice_01" {
		t.Fatalf("claims.Username = %q, want %q", claims.Username, "alice_01")
	}
}

func TestValidateAccessTokenRejectsTampering(t *testing.T) {
	svc := NewJWTService(testSecret, 15*time.Minute, 30*24*time.Hour)

	token, _, err := svc.GenerateAccessToken(testUser(), false)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	tampered := token[:len(token)-2] + "xx"
	if _, err := svc.ValidateAccessToken(tampered); err == nil {
		t.Fatal("ValidateAccessToken() accepted a tampered token")
	}
}

func TestValidateAccessTokenRejectsWrongSecret(t *testing.T) {
	svc := NewJWTService(testSecret, 15*time.Minute, 30*24*time.Hour)
	other := NewJWTService(strings.Repeat("x", 32), 15*time.Minute, 30*24*time.Hour)

	token, _, err := other.GenerateAccessToken(testUser(), false)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	if _, err := svc.ValidateAccessToken(token); err == nil {
		t.Fatal("ValidateAccessToken() accepted a token signed with another secret")
	}
}

func TestValidateAccessTokenRejectsExpired(t *testing.T) {
	svc := NewJWTService(testSecret, -time.Minute, 30*24*time.Hour)

	token, _, err := svc.GenerateAccessToken(testUser(), false)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	if _, err := svc.ValidateAccessToken(token); err == nil {
		t.Fatal("ValidateAccessToken() accepted an expired token")
	}
}

func TestGenerateTokenPairReturnsHashedRefresh(t *testing.T) {
	svc := NewJWTService(testSecret, 15*time.Minute, 30*24*time.Hour)

	pair, refreshHash, err := svc.GenerateTokenPair(testUser())
	if err != nil {
		t.Fatalf("GenerateTokenPair() error = %v", err)
	}
	if pair.RefreshToken == "" {
		t.Fatal("refresh token is empty")
	}
	if refreshHash == pair.RefreshToken {
		t.Fatal("stored hash equals the raw refresh token")
	}
	if HashToken(pair.RefreshToken) != refreshHash {
		t.Fatal("refresh hash does not match HashToken of the raw token")
	}
}
