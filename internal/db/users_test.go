package db

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"muxic/internal/auth"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}

func createTestUser(t *testing.T, users *UserRepository, email, username string) string {
	t.Helper()

	hash := "$2a$04$notarealhashnotarealhashnotarealhash"
	user, err := users.Create(CreateUserParams{
		Email:        email,
		Username:     username,
		FullName:     "Test User",
		PasswordHash: &hash,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return user.ID
}

func TestCreateRejectsDuplicateEmail(t *testing.T) {
	users := NewUserRepository(openTestDB(t))
	createTestUser(t, users, "alice@example.com", "alice_01")

	hash := "x"
	_, err := users.Create(CreateUserParams{
		Email:        "alice@example.com",
		Username:     "alice_02",
		FullName:     "Other Alice",
		PasswordHash: &hash,
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Create() error = %v, want ErrDuplicate", err)
	}
	if !strings.Contains(err.Error(), "email") {
		t.Fatalf("Create() error = %v, want the email field named", err)
	}
}

func TestCreateRejectsDuplicateUsername(t *testing.T) {
	users := NewUserRepository(openTestDB(t))
	createTestUser(t, users, "alice@example.com", "alice_01")

	hash := "x"
	_, err := users.Create(CreateUserParams{
		Email:        "alice2@example.com",
		Username:     "alice_01",
		FullName:     "Other Alice",
		PasswordHash: &hash,
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Create() error = %v, want ErrDuplicate", err)
	}
	if !strings.Contains(err.Error(), "username") {
		t.Fatalf("Create() error = %v, want the username field named", err)
	}
}

func TestFindByIdentifierMatchesEmailAndUsername(t *testing.T) {
	users := NewUserRepository(openTestDB(t))
	id := createTestUser(t, users, "alice@example.com", "alice_01")

	byEmail, err := users.FindByIdentifier("alice@example.com")
	if err != nil {
		t.Fatalf("FindByIdentifier(email) error = %v", err)
	}
	if byEmail.ID != id {
		t.Fatalf("FindByIdentifier(email) = %q, want %q", byEmail.ID, id)
	}

	byUsername, err := users.FindByIdentifier("alice_01")
	if err != nil {
		t.Fatalf("FindByIdentifier(username) error = %v", err)
	}
	if byUsername.ID != id {
		t.Fatalf("FindByIdentifier(username) = %q, want %q", byUsername.ID, id)
	}

	if _, err := users.FindByIdentifier("nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindByIdentifier(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestMarkVerifiedExactlyOnce(t *testing.T) {
	users := NewUserRepository(openTestDB(t))
	id := createTestUser(t, users, "alice@example.com", "alice_01")

	verified, err := users.MarkVerified(id)
	if err != nil {
		t.Fatalf("MarkVerified() error = %v", err)
	}
	if !verified {
		t.Fatal("MarkVerified() = false on first call")
	}

	verified, err = users.MarkVerified(id)
	if err != nil {
		t.Fatalf("MarkVerified() second call error = %v", err)
	}
	if verified {
		t.Fatal("MarkVerified() = true on second call, want false")
	}

	user, err := users.FindByID(id)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if !user.IsVerified {
		t.Fatal("user is not verified after MarkVerified")
	}
	if user.OTPHash != nil {
		t.Fatal("OTP hash survived verification")
	}
}

func TestConsumeResetTokenIsSingleUse(t *testing.T) {
	users := NewUserRepository(openTestDB(t))
	id := createTestUser(t, users, "alice@example.com", "alice_01")

	tokenHash := auth.HashToken("some-reset-token")
	if err := users.SetResetToken(id, tokenHash, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SetResetToken() error = %v", err)
	}

	gotID, err := users.ConsumeResetToken(tokenHash)
	if err != nil {
		t.Fatalf("ConsumeResetToken() error = %v", err)
	}
	if gotID != id {
		t.Fatalf("ConsumeResetToken() = %q, want %q", gotID, id)
	}

	if _, err := users.ConsumeResetToken(tokenHash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ConsumeResetToken() reuse error = %v, want ErrNotFound", err)
	}
}

func TestConsumeResetTokenRejectsExpired(t *testing.T) {
	users := NewUserRepository(openTestDB(t))
	id := createTestUser(t, users, "alice@example.com", "alice_01")

	tokenHash := auth.HashToken("stale-token")
	if err := users.SetResetToken(id, tokenHash, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("SetResetToken() error = %v", err)
	}

	if _, err := users.ConsumeResetToken(tokenHash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ConsumeResetToken() expired error = %v, want ErrNotFound", err)
	}
}

func TestClearExpiredCredentials(t *testing.T) {
	users := NewUserRepository(openTestDB(t))
	id := createTestUser(t, users, "alice@example.com", "alice_01")

	if err := users.SetOTP(id, auth.HashOTP("alice@example.com", "123456"), time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("SetOTP() error = %v", err)
	}

	if _, err := users.ClearExpiredCredentials(); err != nil {
		t.Fatalf("ClearExpiredCredentials() error = %v", err)
	}

	user, err := users.FindByID(id)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if user.OTPHash != nil {
		t.Fatal("expired OTP hash was not cleared")
	}
}
