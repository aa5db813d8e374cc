package api

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"muxic/internal/auth"
	"muxic/internal/db"
	"muxic/internal/email"
)

const (
	testJWTSecret = "0123456789abcdef0123456789abcdef"
	testClientURL = "http://localhost:5173"
)

type testEnv struct {
	database      *db.DB
	users         *db.UserRepository
	refreshTokens *db.RefreshTokenRepository
	rooms         *db.RoomRepository
	devices       *db.DeviceRepository
	syncSessions  *db.SyncSessionRepository
	stats         *db.UserStatsRepository
	jwtService    *auth.JWTService
	otpService    *auth.OTPService
	hasher        *auth.PasswordHasher
	dispatcher    *email.Dispatcher
	cookies       *CookieManager
	authHandler   *AuthHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})

	env := &testEnv{
		database:      database,
		users:         db.NewUserRepository(database),
		refreshTokens: db.NewRefreshTokenRepository(database),
		rooms:         db.NewRoomRepository(database),
		devices:       db.NewDeviceRepository(database),
		syncSessions:  db.NewSyncSessionRepository(database),
		stats:         db.NewUserStatsRepository(database),
		jwtService:    auth.NewJWTService(testJWTSecret, 15*time.Minute, 30*24*time.Hour),
		otpService:    auth.NewOTPService(10 * time.Minute),
		hasher:        auth.NewPasswordHasher(4),
		dispatcher:    email.NewDispatcher(),
		cookies:       NewCookieManager(false, 15*time.Minute, 30*24*time.Hour),
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		env.dispatcher.Close(ctx)
	})

	// Deliveries go to a closed local port; the dispatcher logs and drops them.
	emailService := email.NewSMTPService("127.0.0.1", 2525, "", "", "noreply@example.com")

	env.authHandler = NewAuthHandler(
		env.users,
		env.refreshTokens,
		env.rooms,
		env.devices,
		env.syncSessions,
		env.stats,
		env.jwtService,
		env.otpService,
		env.hasher,
		emailService,
		env.dispatcher,
		env.cookies,
		time.Hour,
		testClientURL,
	)
	return env
}

// createVerifiedUser seeds a user the way a completed register+verify flow
// would leave them.
func (env *testEnv) createVerifiedUser(t *testing.T, emailAddr, username, password string) string {
	t.Helper()

	hash, err := env.hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	user, err := env.users.Create(db.CreateUserParams{
		Email:        emailAddr,
		Username:     username,
		FullName:     "Test User",
		PasswordHash: &hash,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := env.users.MarkVerified(user.ID); err != nil {
		t.Fatalf("MarkVerified() error = %v", err)
	}
	if err := env.stats.Initialize(user.ID); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return user.ID
}

func requestWithUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
}

func dbCreateRoomParams(name, creatorID string) db.CreateRoomParams {
	return db.CreateRoomParams{
		Name:            name,
		CreatedBy:       creatorID,
		IsPublic:        true,
		MaxParticipants: 10,
	}
}

func responseCookie(t *testing.T, res *http.Response, name string) *http.Cookie {
	t.Helper()

	for _, cookie := range res.Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}
