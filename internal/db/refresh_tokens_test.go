package db

import (
	"errors"
	"testing"
	"time"

	"muxic/internal/auth"
)

func TestRotateIsSingleUse(t *testing.T) {
	database := openTestDB(t)
	users := NewUserRepository(database)
	tokens := NewRefreshTokenRepository(database)
	userID := createTestUser(t, users, "alice@example.com", "alice_01")

	stored, err := tokens.Create(userID, auth.HashToken("raw-token-1"), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err = tokens.Rotate(stored.ID, userID, auth.HashToken("raw-token-2"), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	// The consumed token cannot be rotated again.
	err = tokens.Rotate(stored.ID, userID, auth.HashToken("raw-token-3"), time.Now().Add(time.Hour))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Rotate() replay error = %v, want ErrNotFound", err)
	}

	replacement, err := tokens.FindByHash(auth.HashToken("raw-token-2"))
	if err != nil {
		t.Fatalf("FindByHash(replacement) error = %v", err)
	}
	if replacement.RevokedAt != nil {
		t.Fatal("replacement token is revoked")
	}

	consumed, err := tokens.FindByHash(auth.HashToken("raw-token-1"))
	if err != nil {
		t.Fatalf("FindByHash(consumed) error = %v", err)
	}
	if consumed.RevokedAt == nil {
		t.Fatal("consumed token is still live")
	}
}

func TestRotateRejectsExpiredToken(t *testing.T) {
	database := openTestDB(t)
	users := NewUserRepository(database)
	tokens := NewRefreshTokenRepository(database)
	userID := createTestUser(t, users, "alice@example.com", "alice_01")

	stored, err := tokens.Create(userID, auth.HashToken("stale"), time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err = tokens.Rotate(stored.ID, userID, auth.HashToken("fresh"), time.Now().Add(time.Hour))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Rotate() expired error = %v, want ErrNotFound", err)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	database := openTestDB(t)
	users := NewUserRepository(database)
	tokens := NewRefreshTokenRepository(database)
	userID := createTestUser(t, users, "alice@example.com", "alice_01")

	for _, raw := range []string{"one", "two", "three"} {
		if _, err := tokens.Create(userID, auth.HashToken(raw), time.Now().Add(time.Hour)); err != nil {
			t.Fatalf("Create(%q) error = %v", raw, err)
		}
	}

	if err := tokens.RevokeAllForUser(userID); err != nil {
		t.Fatalf("RevokeAllForUser() error = %v", err)
	}

	for _, raw := range []string{"one", "two", "three"} {
		stored, err := tokens.FindByHash(auth.HashToken(raw))
		if err != nil {
			t.Fatalf("FindByHash(%q) error = %v", raw, err)
		}
		if stored.RevokedAt == nil {
			t.Fatalf("token %q is still live after RevokeAllForUser", raw)
		}
	}
}

func TestDeleteExpired(t *testing.T) {
	database := openTestDB(t)
	users := NewUserRepository(database)
	tokens := NewRefreshTokenRepository(database)
	userID := createTestUser(t, users, "alice@example.com", "alice_01")

	if _, err := tokens.Create(userID, auth.HashToken("live"), time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Create(live) error = %v", err)
	}
	if _, err := tokens.Create(userID, auth.HashToken("dead"), time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("Create(dead) error = %v", err)
	}

	deleted, err := tokens.DeleteExpired()
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("DeleteExpired() = %d, want 1", deleted)
	}

	if _, err := tokens.FindByHash(auth.HashToken("live")); err != nil {
		t.Fatalf("FindByHash(live) error = %v", err)
	}
	if _, err := tokens.FindByHash(auth.HashToken("dead")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindByHash(dead) error = %v, want ErrNotFound", err)
	}
}
