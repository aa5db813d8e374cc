package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"muxic/internal/models"
)

type JWTService struct {
	secret          []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

type Claims struct {
	UserID string `json:"userId"`
	// Profile claims are only populated on the OAuth login path, which
	// hands the frontend a ready-to-render identity.
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	FullName string `json:"fullName,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Verified bool   `json:"verified,omitempty"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func NewJWTService(secret string, accessTTL, refreshTTL time.Duration) *JWTService {
	return &JWTService{
		secret:          []byte(secret),
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
	}
}

// GenerateTokenPair signs a fresh access token for user and mints an opaque
// refresh token. The second return value is the refresh token's storage hash;
// the plaintext refresh token only travels to the client.
func (s *JWTService) GenerateTokenPair(user *models.User) (*TokenPair, string, error) {
	accessToken, accessExpiry, err := s.GenerateAccessToken(user, false)
	if err != nil {
		return nil, "", err
	}

	refreshTokenRaw, err := GenerateOpaqueToken(32)
	if err != nil {
		return nil, "", fmt.Errorf("generating refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshTokenRaw,
		ExpiresAt:    accessExpiry,
	}, HashToken(refreshTokenRaw), nil
}

// GenerateProfileTokenPair is GenerateTokenPair with profile claims embedded
// in the access token.
func (s *JWTService) GenerateProfileTokenPair(user *models.User) (*TokenPair, string, error) {
	accessToken, accessExpiry, err := s.GenerateAccessToken(user, true)
	if err != nil {
		return nil, "", err
	}

	refreshTokenRaw, err := GenerateOpaqueToken(32)
	if err != nil {
		return nil, "", fmt.Errorf("generating refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshTokenRaw,
		ExpiresAt:    accessExpiry,
	}, HashToken(refreshTokenRaw), nil
}

func (s *JWTService) GenerateAccessToken(user *models.User, withProfile bool) (string, time.Time, error) {
	accessExpiry := time.Now().Add(s.accessTokenTTL)
	claims := Claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(accessExpiry),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   user.ID,
		},
	}
	if withProfile {
		claims.Email = user.Email
		claims.Username = user.Username
		claims.FullName = user.FullName
		claims.Avatar = user.GetAvatarURL()
		claims.Verified = user.IsVerified
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, accessExpiry, nil
}

func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

func (s *JWTService) AccessTokenTTL() time.Duration {
	return s.accessTokenTTL
}

func (s *JWTService) RefreshTokenTTL() time.Duration {
	return s.refreshTokenTTL
}

func (s *JWTService) RefreshTokenExpiry() time.Time {
	return time.Now().Add(s.refreshTokenTTL)
}
