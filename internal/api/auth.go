package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"muxic/internal/auth"
	"muxic/internal/constants"
	"muxic/internal/db"
	"muxic/internal/email"
	"muxic/internal/models"
)

var profileSanitizer = bluemonday.StrictPolicy()

type AuthHandler struct {
	users          *db.UserRepository
	refreshTokens  *db.RefreshTokenRepository
	rooms          *db.RoomRepository
	devices        *db.DeviceRepository
	syncSessions   *db.SyncSessionRepository
	stats          *db.UserStatsRepository
	jwtService     *auth.JWTService
	otpService     *auth.OTPService
	passwordHasher *auth.PasswordHasher
	emailService   *email.SMTPService
	dispatcher     *email.Dispatcher
	cookies        *CookieManager
	resetTokenTTL  time.Duration
	clientURL      string
}

func NewAuthHandler(
	users *db.UserRepository,
	refreshTokens *db.RefreshTokenRepository,
	rooms *db.RoomRepository,
	devices *db.DeviceRepository,
	syncSessions *db.SyncSessionRepository,
	stats *db.UserStatsRepository,
	jwtService *auth.JWTService,
	otpService *auth.OTPService,
	passwordHasher *auth.PasswordHasher,
	emailService *email.SMTPService,
	dispatcher *email.Dispatcher,
	cookies *CookieManager,
	resetTokenTTL time.Duration,
	clientURL string,
) *AuthHandler {
	return &AuthHandler{
		users:          users,
		refreshTokens:  refreshTokens,
		rooms:          rooms,
		devices:        devices,
		syncSessions:   syncSessions,
		stats:          stats,
		jwtService:     jwtService,
		otpService:     otpService,
		passwordHasher: passwordHasher,
		emailService:   emailService,
		dispatcher:     dispatcher,
		cookies:        cookies,
		resetTokenTTL:  resetTokenTTL,
		clientURL:      clientURL,
	}
}

type AuthResponse struct {
	User         *UserProfile `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    string       `json:"expiresAt"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// POST /api/v1/auth/register
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Username string `json:"username" validate:"required,min=5,max=20,username"`
	FullName string `json:"fullName" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type RegisterResponse struct {
	Message string       `json:"message"`
	User    *UserProfile `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	req.FullName = strings.TrimSpace(profileSanitizer.Sanitize(req.FullName))
	if req.FullName == "" {
		badRequest(w, "fullname is required")
		return
	}

	passwordHash, err := h.passwordHasher.Hash(req.Password)
	if err != nil {
		slog.Error("error hashing password", "error", err)
		internalError(w)
		return
	}

	code, err := h.otpService.GenerateCode()
	if err != nil {
		slog.Error("error generating verification code", "error", err)
		internalError(w)
		return
	}
	otpHash := auth.HashOTP(req.Email, code)
	otpExpiresAt := h.otpService.ExpiresAt()

	user, err := h.users.Create(db.CreateUserParams{
		Email:        req.Email,
		Username:     req.Username,
		FullName:     req.FullName,
		PasswordHash: &passwordHash,
		OTPHash:      &otpHash,
		OTPExpiresAt: &otpExpiresAt,
	})
	if err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			if strings.HasSuffix(err.Error(), "username") {
				conflict(w, "Username already taken")
				return
			}
			conflict(w, "An account with this email already exists")
			return
		}
		slog.Error("error creating user", "error", err)
		internalError(w)
		return
	}

	if err := h.stats.Initialize(user.ID); err != nil {
		slog.Error("error initializing user stats", "error", err, "user_id", user.ID)
	}

	h.sendVerificationEmail(user, code)

	writeJSON(w, http.StatusCreated, RegisterResponse{
		Message: "Account created. Check your email for a verification code",
		User:    userProfileFromModel(user),
	})
}

// POST /api/v1/auth/login
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Password   string `json:"password" validate:"required,max=128"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	user, err := h.users.FindByIdentifier(strings.TrimSpace(req.Identifier))
	if errors.Is(err, db.ErrNotFound) {
		unauthorized(w, "Invalid credentials")
		return
	}
	if err != nil {
		slog.Error("error finding user", "error", err)
		internalError(w)
		return
	}

	if user.PasswordHash == nil || !h.passwordHasher.Compare(*user.PasswordHash, req.Password) {
		unauthorized(w, "Invalid credentials")
		return
	}

	if user.IsBanned {
		reason := "Account banned"
		if user.BanReason != nil && *user.BanReason != "" {
			reason = fmt.Sprintf("Account banned: %s", *user.BanReason)
		}
		forbidden(w, reason)
		return
	}
	if !user.IsActive {
		forbidden(w, "Account is deactivated")
		return
	}

	if !user.IsVerified {
		if err := h.issueOTP(user); err != nil {
			slog.Error("error reissuing verification code", "error", err, "user_id", user.ID)
		}
		forbidden(w, "Email not verified. A new verification code has been sent")
		return
	}

	if err := h.users.TouchLastLogin(user.ID); err != nil {
		slog.Error("error updating last login", "error", err, "user_id", user.ID)
	}

	authResponse, err := h.issueSession(w, user)
	if err != nil {
		slog.Error("error issuing auth tokens", "error", err, "user_id", user.ID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, authResponse)
}

// GET /api/v1/auth/otp?userId=
type ResendOTPResponse struct {
	Message   string `json:"message"`
	ExpiresAt string `json:"expiresAt"`
}

func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		badRequest(w, "userId is required")
		return
	}

	user, err := h.users.FindByID(userID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "User not found")
		return
	}
	if err != nil {
		slog.Error("error finding user", "error", err)
		internalError(w)
		return
	}

	if user.IsVerified {
		badRequest(w, "Email is already verified")
		return
	}

	expiresAt := h.otpService.ExpiresAt()
	if err := h.issueOTP(user); err != nil {
		slog.Error("error issuing verification code", "error", err, "user_id", user.ID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, ResendOTPResponse{
		Message:   "A new verification code has been sent",
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	})
}

// POST /api/v1/auth/verify
type VerifyOTPRequest struct {
	UserID string `json:"userId" validate:"required,max=64"`
	OTP    string `json:"otp" validate:"required,len=6,numeric"`
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	user, err := h.users.FindByID(strings.TrimSpace(req.UserID))
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "User not found")
		return
	}
	if err != nil {
		slog.Error("error finding user", "error", err)
		internalError(w)
		return
	}

	if user.IsVerified {
		badRequest(w, "Email is already verified")
		return
	}
	if user.OTPHash == nil || !auth.VerifyOTP(user.Email, req.OTP, *user.OTPHash) {
		badRequest(w, "Invalid verification code")
		return
	}
	if user.OTPExpiresAt == nil || time.Now().After(*user.OTPExpiresAt) {
		gone(w, "Verification code has expired")
		return
	}

	verified, err := h.users.MarkVerified(user.ID)
	if err != nil {
		slog.Error("error marking user verified", "error", err, "user_id", user.ID)
		internalError(w)
		return
	}
	if !verified {
		badRequest(w, "Email is already verified")
		return
	}
	user.IsVerified = true

	h.sendWelcomeEmail(user)

	if err := h.users.TouchLastLogin(user.ID); err != nil {
		slog.Error("error updating last login", "error", err, "user_id", user.ID)
	}

	authResponse, err := h.issueSession(w, user)
	if err != nil {
		slog.Error("error issuing auth tokens", "error", err, "user_id", user.ID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, authResponse)
}

// POST /api/v1/auth/forgot-password
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	// The response never reveals whether the address is registered.
	user, err := h.users.FindByEmail(req.Email)
	if err == nil && user.IsActive && !user.IsBanned {
		if err := h.issueResetToken(user); err != nil {
			slog.Error("error issuing reset token", "error", err, "user_id", user.ID)
		}
	} else if err != nil && !errors.Is(err, db.ErrNotFound) {
		slog.Error("error finding user", "error", err)
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Message: "If an account exists with this email, a password reset link has been sent",
	})
}

// POST /api/v1/auth/reset-password
type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required,len=64"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	userID, err := h.users.ConsumeResetToken(auth.HashToken(req.Token))
	if errors.Is(err, db.ErrNotFound) {
		badRequest(w, "Invalid or expired reset token")
		return
	}
	if err != nil {
		slog.Error("error consuming reset token", "error", err)
		internalError(w)
		return
	}

	passwordHash, err := h.passwordHasher.Hash(req.Password)
	if err != nil {
		slog.Error("error hashing password", "error", err)
		internalError(w)
		return
	}
	if err := h.users.UpdatePassword(userID, passwordHash); err != nil {
		slog.Error("error updating password", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	// Every open session dies with the old password.
	if err := h.refreshTokens.RevokeAllForUser(userID); err != nil {
		slog.Error("error revoking refresh tokens", "error", err, "user_id", userID)
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password has been reset. Please log in"})
}

// POST /api/v1/auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    string `json:"expiresAt"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	presented := refreshTokenFromRequest(r)
	if presented == "" {
		unauthorized(w, "Refresh token required")
		return
	}

	stored, err := h.refreshTokens.FindByHash(auth.HashToken(presented))
	if errors.Is(err, db.ErrNotFound) {
		forbidden(w, "Invalid refresh token")
		return
	}
	if err != nil {
		slog.Error("error finding refresh token", "error", err)
		internalError(w)
		return
	}

	if stored.RevokedAt != nil {
		// A revoked token being replayed means it may have leaked, so the
		// whole session family is killed.
		if err := h.refreshTokens.RevokeAllForUser(stored.UserID); err != nil {
			slog.Error("error revoking token family", "error", err, "user_id", stored.UserID)
		}
		h.cookies.ClearSession(w)
		forbidden(w, "Refresh token has been revoked")
		return
	}
	if time.Now().After(stored.ExpiresAt) {
		h.cookies.ClearSession(w)
		writeError(w, http.StatusForbidden, constants.ErrCodeExpired, "Refresh token has expired")
		return
	}

	user, err := h.users.FindByID(stored.UserID)
	if errors.Is(err, db.ErrNotFound) {
		forbidden(w, "Invalid refresh token")
		return
	}
	if err != nil {
		slog.Error("error finding user", "error", err)
		internalError(w)
		return
	}
	if !user.IsActive || user.IsBanned {
		h.cookies.ClearSession(w)
		forbidden(w, "Account is not active")
		return
	}

	tokenPair, newRefreshHash, err := h.jwtService.GenerateProfileTokenPair(user)
	if err != nil {
		slog.Error("error generating refreshed token pair", "error", err)
		internalError(w)
		return
	}

	err = h.refreshTokens.Rotate(stored.ID, user.ID, newRefreshHash, h.jwtService.RefreshTokenExpiry())
	if errors.Is(err, db.ErrNotFound) {
		forbidden(w, "Refresh token has already been used")
		return
	}
	if err != nil {
		slog.Error("error rotating refresh token", "error", err)
		internalError(w)
		return
	}

	h.cookies.SetSession(w, tokenPair.AccessToken, tokenPair.RefreshToken)
	writeJSON(w, http.StatusOK, RefreshResponse{
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    tokenPair.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	if presented := refreshTokenFromRequest(r); presented != "" {
		if err := h.refreshTokens.RevokeByHash(auth.HashToken(presented)); err != nil {
			slog.Error("error revoking refresh token", "error", err, "user_id", userID)
			internalError(w)
			return
		}
	}

	h.cookies.ClearSession(w)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// GET /api/v1/auth/user
func (h *AuthHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.FindByID(GetUserID(r))
	if errors.Is(err, db.ErrNotFound) {
		unauthorized(w, "User no longer exists")
		return
	}
	if err != nil {
		slog.Error("error finding user", "error", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, userProfileFromModel(user))
}

// PATCH /api/v1/auth/user
type UpdateProfileRequest struct {
	FullName          *string `json:"fullName" validate:"omitempty,min=1,max=100"`
	Bio               *string `json:"bio" validate:"omitempty,max=500"`
	Avatar            *string `json:"avatar" validate:"omitempty,url,max=512"`
	ProfileVisibility *string `json:"profileVisibility" validate:"omitempty,oneof=public friends private"`
	ShowOnlineStatus  *bool   `json:"showOnlineStatus"`
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)

	var req UpdateProfileRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	params := db.UpdateProfileParams{
		AvatarURL:         req.Avatar,
		PrivacyShowOnline: req.ShowOnlineStatus,
	}
	if req.FullName != nil {
		name := strings.TrimSpace(profileSanitizer.Sanitize(*req.FullName))
		if name == "" {
			badRequest(w, "fullname must not be empty")
			return
		}
		params.FullName = &name
	}
	if req.Bio != nil {
		bio := strings.TrimSpace(profileSanitizer.Sanitize(*req.Bio))
		params.Bio = &bio
	}
	if req.ProfileVisibility != nil {
		visibility := models.ProfileVisibility(*req.ProfileVisibility)
		params.PrivacyProfile = &visibility
	}

	if err := h.users.UpdateProfile(userID, params); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			unauthorized(w, "User no longer exists")
			return
		}
		slog.Error("error updating profile", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	user, err := h.users.FindByID(userID)
	if err != nil {
		slog.Error("error reloading user", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, userProfileFromModel(user))
}

// DELETE /api/v1/auth/user
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)

	roomIDs, err := h.rooms.DeleteByCreator(userID)
	if err != nil {
		slog.Error("error deleting owned rooms", "error", err, "user_id", userID)
		internalError(w)
		return
	}
	if err := h.syncSessions.DeleteForRooms(roomIDs); err != nil {
		slog.Error("error deleting sync sessions", "error", err, "user_id", userID)
		internalError(w)
		return
	}
	if err := h.rooms.RemoveParticipantEverywhere(userID); err != nil {
		slog.Error("error removing participations", "error", err, "user_id", userID)
		internalError(w)
		return
	}
	if err := h.devices.DeleteAllForUser(userID); err != nil {
		slog.Error("error deleting devices", "error", err, "user_id", userID)
		internalError(w)
		return
	}
	if err := h.stats.Delete(userID); err != nil {
		slog.Error("error deleting stats", "error", err, "user_id", userID)
		internalError(w)
		return
	}
	if err := h.refreshTokens.DeleteAllForUser(userID); err != nil {
		slog.Error("error deleting refresh tokens", "error", err, "user_id", userID)
		internalError(w)
		return
	}
	if err := h.users.Delete(userID); err != nil {
		slog.Error("error deleting user", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	h.cookies.ClearSession(w)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Account deleted"})
}

func (h *AuthHandler) issueSession(w http.ResponseWriter, user *models.User) (*AuthResponse, error) {
	tokenPair, refreshHash, err := h.jwtService.GenerateProfileTokenPair(user)
	if err != nil {
		return nil, err
	}

	if _, err := h.refreshTokens.Create(user.ID, refreshHash, h.jwtService.RefreshTokenExpiry()); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	h.cookies.SetSession(w, tokenPair.AccessToken, tokenPair.RefreshToken)
	return &AuthResponse{
		User:         userProfileFromModel(user),
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    tokenPair.ExpiresAt.UTC().Format(time.RFC3339),
	}, nil
}

func (h *AuthHandler) issueOTP(user *models.User) error {
	code, err := h.otpService.GenerateCode()
	if err != nil {
		return fmt.Errorf("generating verification code: %w", err)
	}
	if err := h.users.SetOTP(user.ID, auth.HashOTP(user.Email, code), h.otpService.ExpiresAt()); err != nil {
		return err
	}
	h.sendVerificationEmail(user, code)
	return nil
}

func (h *AuthHandler) issueResetToken(user *models.User) error {
	token, err := auth.GenerateOpaqueToken(32)
	if err != nil {
		return fmt.Errorf("generating reset token: %w", err)
	}
	expiresAt := time.Now().Add(h.resetTokenTTL)
	if err := h.users.SetResetToken(user.ID, auth.HashToken(token), expiresAt); err != nil {
		return err
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(h.clientURL, "/"), token)
	ttl := h.resetTokenTTL
	to, username := user.Email, user.Username
	h.dispatcher.Enqueue("password_reset", to, func() error {
		return h.emailService.SendPasswordReset(to, username, resetURL, ttl)
	})
	return nil
}

func (h *AuthHandler) sendVerificationEmail(user *models.User, code string) {
	ttl := h.otpService.TTL()
	to, username := user.Email, user.Username
	h.dispatcher.Enqueue("verification", to, func() error {
		return h.emailService.SendVerificationCode(to, username, code, ttl)
	})
}

func (h *AuthHandler) sendWelcomeEmail(user *models.User) {
	to, username := user.Email, user.Username
	h.dispatcher.Enqueue("welcome", to, func() error {
		return h.emailService.SendWelcome(to, username)
	})
}

func refreshTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	var req RefreshRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		return ""
	}
	return req.RefreshToken
}
