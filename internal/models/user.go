package models

import "time"

type ProfileVisibility string

const (
	VisibilityPublic  ProfileVisibility = "public"
	VisibilityFriends ProfileVisibility = "friends"
	VisibilityPrivate ProfileVisibility = "private"
)

// User is the persisted identity record. PasswordHash, OTP and reset token
// fields never leave the server; the API layer maps users to UserProfile
// before serializing.
type User struct {
	ID           string
	Email        string
	Username     string
	FullName     string
	PasswordHash *string
	AvatarURL    *string
	Bio          string
	GoogleID     *string
	IsVerified   bool

	OTPHash      *string
	OTPExpiresAt *time.Time

	ResetTokenHash      *string
	ResetTokenExpiresAt *time.Time

	PrivacyProfile    ProfileVisibility
	PrivacyShowOnline bool

	IsActive  bool
	IsBanned  bool
	BanReason *string

	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

func (u *User) GetAvatarURL() string {
	if u.AvatarURL != nil {
		return *u.AvatarURL
	}
	return ""
}

type RefreshToken struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}
