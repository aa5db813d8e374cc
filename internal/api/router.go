package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"muxic/internal/auth"
	"muxic/internal/config"
	"muxic/internal/db"
	"muxic/internal/email"
	"muxic/internal/oauth"
)

type Server struct {
	router *chi.Mux
	config *config.Config
}

func NewServer(
	cfg *config.Config,
	database *db.DB,
	emailService *email.SMTPService,
	dispatcher *email.Dispatcher,
	userRepo *db.UserRepository,
	refreshTokenRepo *db.RefreshTokenRepository,
	roomRepo *db.RoomRepository,
	deviceRepo *db.DeviceRepository,
	syncSessionRepo *db.SyncSessionRepository,
	statsRepo *db.UserStatsRepository,
) *Server {
	jwtService := auth.NewJWTService(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)
	otpService := auth.NewOTPService(cfg.Auth.OTPTTL)
	passwordHasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	googleClient := oauth.NewGoogleClient(
		cfg.Google.ClientID,
		cfg.Google.ClientSecret,
		cfg.Google.RedirectURL,
		cfg.Google.HTTPTimeout,
	)
	cookies := NewCookieManager(
		cfg.IsProduction(),
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)

	authHandler := NewAuthHandler(
		userRepo,
		refreshTokenRepo,
		roomRepo,
		deviceRepo,
		syncSessionRepo,
		statsRepo,
		jwtService,
		otpService,
		passwordHasher,
		emailService,
		dispatcher,
		cookies,
		cfg.Auth.ResetTokenTTL,
		cfg.Server.ClientURL,
	)
	oauthHandler := NewOAuthHandler(
		googleClient,
		userRepo,
		refreshTokenRepo,
		statsRepo,
		jwtService,
		emailService,
		dispatcher,
		cookies,
		cfg.Server.ClientURL,
	)
	roomHandler := NewRoomHandler(roomRepo, syncSessionRepo, statsRepo)
	deviceHandler := NewDeviceHandler(deviceRepo, statsRepo)
	healthHandler := NewHealthHandler(cfg.Server.Name, database)

	authMiddleware := NewAuthMiddleware(jwtService)

	loginLimiter := rateLimit(5, 15*time.Minute)
	verifyLimiter := rateLimit(5, 10*time.Minute)
	resetLimiter := rateLimit(3, 15*time.Minute)
	refreshLimiter := rateLimit(30, time.Minute)

	r := chi.NewRouter()
	r.Use(slogRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.Server.ClientURL))
	r.Use(securityHeadersMiddleware)

	r.Get("/health", healthHandler.Check)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(maxBodySizeMiddleware(1 << 20)) // 1 MB

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.With(loginLimiter).Post("/login", authHandler.Login)
			r.With(verifyLimiter).Post("/verify", authHandler.VerifyOTP)
			r.Put("/forgot-password", authHandler.ForgotPassword)
			r.With(resetLimiter).Put("/reset-password", authHandler.ResetPassword)
			r.With(refreshLimiter).Post("/refresh", authHandler.Refresh)

			r.Get("/google", oauthHandler.GoogleLogin)
			r.Get("/google/callback", oauthHandler.GoogleCallback)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.RequireAuth)
				r.Get("/otp", authHandler.ResendOTP)
				r.Post("/logout", authHandler.Logout)
				r.Get("/user", authHandler.GetUser)
				r.Patch("/user", authHandler.UpdateProfile)
				r.Delete("/delete", authHandler.DeleteAccount)
			})
		})

		r.Route("/rooms", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Post("/", roomHandler.Create)
			r.Get("/", roomHandler.ListMine)
			r.Get("/public", roomHandler.ListPublic)
			r.Post("/join", roomHandler.Join)

			r.Route("/{roomID}", func(r chi.Router) {
				r.Get("/", roomHandler.Get)
				r.Post("/leave", roomHandler.Leave)
				r.Post("/next", roomHandler.AdvanceTrack)
				r.Patch("/playback", roomHandler.UpdatePlayback)
				r.Post("/queue", roomHandler.QueueTrack)
				r.Get("/queue", roomHandler.GetQueue)
				r.Delete("/queue/{entryID}", roomHandler.RemoveQueueEntry)
			})
		})

		r.Route("/devices", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Post("/", deviceHandler.Register)
			r.Get("/", deviceHandler.List)
			r.Delete("/{deviceID}", deviceHandler.Remove)
		})

		r.With(authMiddleware.RequireAuth).Get("/stats", deviceHandler.Stats)
	})

	return &Server{
		router: r,
		config: cfg,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func rateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			rateLimited(w)
		}),
	)
}

// corsMiddleware allows only the configured frontend origin; the session
// travels in cookies, so credentialed requests must be permitted.
func corsMiddleware(clientURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && origin == clientURL {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func maxBodySizeMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr,
		)
	})
}
