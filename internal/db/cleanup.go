package db

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultCleanupInterval = 1 * time.Hour
)

// CleanupService purges expired refresh tokens and wipes expired OTP and
// reset-token fields on a fixed interval.
type CleanupService struct {
	users         *UserRepository
	refreshTokens *RefreshTokenRepository
	interval      time.Duration
}

func NewCleanupService(users *UserRepository, refreshTokens *RefreshTokenRepository) *CleanupService {
	return &CleanupService{
		users:         users,
		refreshTokens: refreshTokens,
		interval:      DefaultCleanupInterval,
	}
}

func (s *CleanupService) Start(ctx context.Context) {
	slog.Info("starting token cleanup service", "component", "cleanup", "interval", s.interval)

	s.runCleanup()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping token cleanup service", "component", "cleanup")
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *CleanupService) runCleanup() {
	refreshDeleted, err := s.refreshTokens.DeleteExpired()
	if err != nil {
		slog.Error("error deleting expired refresh tokens", "component", "cleanup", "error", err)
	} else if refreshDeleted > 0 {
		slog.Info("deleted expired refresh tokens", "component", "cleanup", "count", refreshDeleted)
	}

	credsCleared, err := s.users.ClearExpiredCredentials()
	if err != nil {
		slog.Error("error clearing expired credentials", "component", "cleanup", "error", err)
	} else if credsCleared > 0 {
		slog.Info("cleared expired otp and reset tokens", "component", "cleanup", "count", credsCleared)
	}
}
