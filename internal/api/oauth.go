package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"muxic/internal/auth"
	"muxic/internal/db"
	"muxic/internal/email"
	"muxic/internal/models"
	"muxic/internal/oauth"
)

// googleProvider is the slice of oauth.GoogleClient the handler needs;
// tests substitute a stub so no request leaves the process.
type googleProvider interface {
	Configured() bool
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, accessToken string) (*oauth.Profile, error)
}

type OAuthHandler struct {
	google        googleProvider
	users         *db.UserRepository
	refreshTokens *db.RefreshTokenRepository
	stats         *db.UserStatsRepository
	jwtService    *auth.JWTService
	emailService  *email.SMTPService
	dispatcher    *email.Dispatcher
	cookies       *CookieManager
	clientURL     string
}

func NewOAuthHandler(
	google googleProvider,
	users *db.UserRepository,
	refreshTokens *db.RefreshTokenRepository,
	stats *db.UserStatsRepository,
	jwtService *auth.JWTService,
	emailService *email.SMTPService,
	dispatcher *email.Dispatcher,
	cookies *CookieManager,
	clientURL string,
) *OAuthHandler {
	return &OAuthHandler{
		google:        google,
		users:         users,
		refreshTokens: refreshTokens,
		stats:         stats,
		jwtService:    jwtService,
		emailService:  emailService,
		dispatcher:    dispatcher,
		cookies:       cookies,
		clientURL:     clientURL,
	}
}

// GET /api/v1/auth/google
func (h *OAuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.google.Configured() {
		slog.Error("google oauth requested but not configured")
		internalError(w)
		return
	}

	state, err := auth.GenerateOpaqueToken(16)
	if err != nil {
		slog.Error("error generating oauth state", "error", err)
		internalError(w)
		return
	}

	h.cookies.SetOAuthState(w, state)
	http.Redirect(w, r, h.google.AuthCodeURL(state), http.StatusFound)
}

// GET /api/v1/auth/google/callback
func (h *OAuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	h.cookies.ClearOAuthState(w)

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		slog.Info("google oauth denied", "error", errParam)
		h.redirectWithError(w, r, "oauth_denied")
		return
	}

	// The state check happens before any call to Google; a forged callback
	// never costs us a network round trip.
	stateCookie, err := r.Cookie(oauthStateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || stateCookie.Value == "" || state == "" ||
		subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		slog.Warn("google oauth state mismatch")
		h.redirectWithError(w, r, "oauth_state_mismatch")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectWithError(w, r, "oauth_failed")
		return
	}

	accessToken, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		slog.Error("error exchanging oauth code", "error", err)
		h.redirectWithError(w, r, "oauth_failed")
		return
	}

	profile, err := h.google.FetchProfile(r.Context(), accessToken)
	if err != nil {
		slog.Error("error fetching google profile", "error", err)
		h.redirectWithError(w, r, "oauth_failed")
		return
	}

	user, err := h.resolveUser(profile)
	if err != nil {
		if errors.Is(err, errAccountDisabled) {
			h.redirectWithError(w, r, "account_disabled")
			return
		}
		slog.Error("error resolving oauth user", "error", err)
		h.redirectWithError(w, r, "oauth_failed")
		return
	}

	if err := h.users.TouchLastLogin(user.ID); err != nil {
		slog.Error("error updating last login", "error", err, "user_id", user.ID)
	}

	if err := h.startSession(w, user); err != nil {
		slog.Error("error issuing auth tokens", "error", err, "user_id", user.ID)
		h.redirectWithError(w, r, "oauth_failed")
		return
	}

	// The session travels in cookies; tokens never appear in the URL.
	http.Redirect(w, r, h.clientURL, http.StatusFound)
}

var errAccountDisabled = errors.New("account disabled")

// resolveUser maps a Google profile to a local account: an existing linked
// account wins, then an account with the same email gets linked, and
// otherwise a fresh verified account is created.
func (h *OAuthHandler) resolveUser(profile *oauth.Profile) (*models.User, error) {
	user, err := h.users.FindByGoogleID(profile.ID)
	if err == nil {
		if user.IsBanned || !user.IsActive {
			return nil, errAccountDisabled
		}
		return user, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	address := strings.ToLower(strings.TrimSpace(profile.Email))
	if address == "" {
		return nil, fmt.Errorf("google profile has no email")
	}

	user, err = h.users.FindByEmail(address)
	if err == nil {
		if user.IsBanned || !user.IsActive {
			return nil, errAccountDisabled
		}
		var avatar *string
		if profile.Picture != "" && user.AvatarURL == nil {
			avatar = &profile.Picture
		}
		if err := h.users.LinkGoogle(user.ID, profile.ID, avatar); err != nil {
			return nil, err
		}
		return h.users.FindByID(user.ID)
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	username, err := h.generateUniqueUsername(address)
	if err != nil {
		return nil, err
	}

	fullName := strings.TrimSpace(profile.Name)
	if fullName == "" {
		fullName = username
	}
	var avatar *string
	if profile.Picture != "" {
		avatar = &profile.Picture
	}

	user, err = h.users.Create(db.CreateUserParams{
		Email:      address,
		Username:   username,
		FullName:   fullName,
		AvatarURL:  avatar,
		GoogleID:   &profile.ID,
		IsVerified: true,
	})
	if err != nil {
		return nil, err
	}

	if err := h.stats.Initialize(user.ID); err != nil {
		slog.Error("error initializing user stats", "error", err, "user_id", user.ID)
	}

	to, name := user.Email, user.Username
	h.dispatcher.Enqueue("welcome", to, func() error {
		return h.emailService.SendWelcome(to, name)
	})

	return user, nil
}

// generateUniqueUsername derives a username from the email local part and
// appends a random suffix until it is both valid and free.
func (h *OAuthHandler) generateUniqueUsername(address string) (string, error) {
	local := address
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}

	var b strings.Builder
	for _, c := range strings.ToLower(local) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteRune(c)
		}
	}
	base := b.String()
	if len(base) > 13 {
		base = base[:13]
	}
	if base == "" {
		base = "user"
	}
	for len(base) < 5 {
		base += "0"
	}

	candidate := base
	for n := 1; ; n++ {
		available, err := h.users.IsUsernameAvailable(candidate)
		if err != nil {
			return "", err
		}
		if available {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(n)
	}
}

func (h *OAuthHandler) startSession(w http.ResponseWriter, user *models.User) error {
	tokenPair, refreshHash, err := h.jwtService.GenerateProfileTokenPair(user)
	if err != nil {
		return err
	}
	if _, err := h.refreshTokens.Create(user.ID, refreshHash, h.jwtService.RefreshTokenExpiry()); err != nil {
		return fmt.Errorf("storing refresh token: %w", err)
	}
	h.cookies.SetSession(w, tokenPair.AccessToken, tokenPair.RefreshToken)
	return nil
}

func (h *OAuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, code string) {
	target := fmt.Sprintf("%s/login?error=%s", strings.TrimRight(h.clientURL, "/"), url.QueryEscape(code))
	http.Redirect(w, r, target, http.StatusFound)
}
