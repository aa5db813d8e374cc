package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"muxic/internal/db"
	"muxic/internal/email"
	"muxic/internal/oauth"
)

type stubGoogle struct {
	profile       *oauth.Profile
	exchangeCalls int
}

func (s *stubGoogle) Configured() bool               { return true }
func (s *stubGoogle) AuthCodeURL(state string) string { return "https://accounts.example.com/auth?state=" + state }

func (s *stubGoogle) Exchange(ctx context.Context, code string) (string, error) {
	s.exchangeCalls++
	return "stub-access-token", nil
}

func (s *stubGoogle) FetchProfile(ctx context.Context, accessToken string) (*oauth.Profile, error) {
	return s.profile, nil
}

func newOAuthEnv(t *testing.T, stub *stubGoogle) (*testEnv, *OAuthHandler) {
	t.Helper()

	env := newTestEnv(t)
	emailService := email.NewSMTPService("127.0.0.1", 2525, "", "", "noreply@example.com")
	handler := NewOAuthHandler(
		stub,
		env.users,
		env.refreshTokens,
		env.stats,
		env.jwtService,
		emailService,
		env.dispatcher,
		env.cookies,
		testClientURL,
	)
	return env, handler
}

func TestCallbackStateMismatchSkipsExchange(t *testing.T) {
	stub := &stubGoogle{profile: &oauth.Profile{ID: "g-1", Email: "alice@example.com"}}
	_, handler := newOAuthEnv(t, stub)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback?code=abc&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "genuine"})
	rr := httptest.NewRecorder()

	handler.GoogleCallback(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusFound)
	}
	location := rr.Header().Get("Location")
	if !strings.Contains(location, "error=oauth_state_mismatch") {
		t.Fatalf("Location = %q, want the state mismatch error", location)
	}
	if stub.exchangeCalls != 0 {
		t.Fatalf("exchangeCalls = %d, want 0: the exchange must not fire on a forged state", stub.exchangeCalls)
	}
}

func TestCallbackMissingStateCookieSkipsExchange(t *testing.T) {
	stub := &stubGoogle{profile: &oauth.Profile{ID: "g-1", Email: "alice@example.com"}}
	_, handler := newOAuthEnv(t, stub)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback?code=abc&state=anything", nil)
	rr := httptest.NewRecorder()

	handler.GoogleCallback(rr, req)

	if stub.exchangeCalls != 0 {
		t.Fatalf("exchangeCalls = %d, want 0", stub.exchangeCalls)
	}
}

func TestCallbackCreatesVerifiedUser(t *testing.T) {
	stub := &stubGoogle{profile: &oauth.Profile{
		ID:      "google-123",
		Email:   "newbie@example.com",
		Name:    "New B. User",
		Picture: "https://lh3.example.com/photo.jpg",
	}}
	env, handler := newOAuthEnv(t, stub)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback?code=abc&state=genuine", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "genuine"})
	rr := httptest.NewRecorder()

	handler.GoogleCallback(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusFound)
	}
	if location := rr.Header().Get("Location"); location != testClientURL {
		t.Fatalf("Location = %q, want %q", location, testClientURL)
	}
	if strings.Contains(rr.Header().Get("Location"), "token") {
		t.Fatal("tokens leaked into the redirect URL")
	}
	if responseCookie(t, rr.Result(), "token") == nil {
		t.Fatal("callback did not set the access cookie")
	}

	user, err := env.users.FindByGoogleID("google-123")
	if err != nil {
		t.Fatalf("FindByGoogleID() error = %v", err)
	}
	if !user.IsVerified {
		t.Fatal("oauth-created user is not verified")
	}
	if user.PasswordHash != nil {
		t.Fatal("oauth-created user has a password hash")
	}
}

func TestCallbackLinksExistingAccountByEmail(t *testing.T) {
	stub := &stubGoogle{profile: &oauth.Profile{
		ID:    "google-456",
		Email: "alice@example.com",
		Name:  "Alice",
	}}
	env, handler := newOAuthEnv(t, stub)
	userID := env.createVerifiedUser(t, "alice@example.com", "alice_01", "password123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback?code=abc&state=genuine", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "genuine"})
	rr := httptest.NewRecorder()

	handler.GoogleCallback(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d, body=%q", rr.Code, http.StatusFound, rr.Body.String())
	}

	user, err := env.users.FindByGoogleID("google-456")
	if err != nil {
		t.Fatalf("FindByGoogleID() error = %v", err)
	}
	if user.ID != userID {
		t.Fatalf("linked user = %q, want %q", user.ID, userID)
	}
}

func TestGenerateUniqueUsernameAvoidsCollisions(t *testing.T) {
	stub := &stubGoogle{}
	env, handler := newOAuthEnv(t, stub)

	// Squat the name the email would produce.
	hash := "x"
	if _, err := env.users.Create(db.CreateUserParams{
		Email:        "squatter@example.com",
		Username:     "alice",
		FullName:     "Squatter",
		PasswordHash: &hash,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	valid := regexp.MustCompile(`^[a-z0-9_]{5,20}$`)
	seen := map[string]bool{"alice": true}
	for i := 0; i < 3; i++ {
		username, err := handler.generateUniqueUsername("alice@example.com")
		if err != nil {
			t.Fatalf("generateUniqueUsername() error = %v", err)
		}
		// Collisions resolve with the lowest free numeric suffix.
		if want := fmt.Sprintf("alice%d", i+1); username != want {
			t.Fatalf("generateUniqueUsername() = %q, want %q", username, want)
		}
		if seen[username] {
			t.Fatalf("generateUniqueUsername() = %q, already taken", username)
		}
		if !valid.MatchString(username) {
			t.Fatalf("generateUniqueUsername() = %q, not a valid username", username)
		}

		// Persist it so the next round has to dodge this one too.
		if _, err := env.users.Create(db.CreateUserParams{
			Email:        username + "@example.com",
			Username:     username,
			FullName:     "Generated",
			PasswordHash: &hash,
		}); err != nil {
			t.Fatalf("Create(%q) error = %v", username, err)
		}
		seen[username] = true
	}
}
