package api

import (
	"time"

	"muxic/internal/models"
)

// UserProfile is the wire representation of a user. Password hashes, OTP
// and reset token material stay in the model and never reach a response.
type UserProfile struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	FullName    string     `json:"fullName"`
	Avatar      string     `json:"avatar,omitempty"`
	Bio         string     `json:"bio,omitempty"`
	IsVerified  bool       `json:"isVerified"`
	Privacy     Privacy    `json:"privacy"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type Privacy struct {
	ProfileVisibility models.ProfileVisibility `json:"profileVisibility"`
	ShowOnlineStatus  bool                     `json:"showOnlineStatus"`
}

func userProfileFromModel(user *models.User) *UserProfile {
	return &UserProfile{
		ID:         user.ID,
		Email:      user.Email,
		Username:   user.Username,
		FullName:   user.FullName,
		Avatar:     user.GetAvatarURL(),
		Bio:        user.Bio,
		IsVerified: user.IsVerified,
		Privacy: Privacy{
			ProfileVisibility: user.PrivacyProfile,
			ShowOnlineStatus:  user.PrivacyShowOnline,
		},
		LastLoginAt: user.LastLoginAt,
		CreatedAt:   user.CreatedAt,
	}
}
