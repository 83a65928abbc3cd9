package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/silano08/tokingtoking/internal/handlers"
	"github.com/silano08/tokingtoking/internal/metrics"
	"github.com/silano08/tokingtoking/internal/middleware"
)

// Handlers groups the HTTP handlers mounted under /api.
type Handlers struct {
	Auth      *handlers.AuthHandler
	LevelTest *handlers.LevelTestHandler
	Vocab     *handlers.VocabHandler
	Chat      *handlers.ChatHandler
	Speaking  *handlers.SpeakingHandler
	IAP       *handlers.IAPHandler
	History   *handlers.HistoryHandler
}

type Options struct {
	CORSOrigins      []string
	AuthRateLimitRPM int
}

func New(
	jwtAuth *middleware.JWTAuth,
	h Handlers,
	premium handlers.PremiumChecker,
	m *metrics.Metrics,
	log *zap.Logger,
	opts Options,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Recoverer(log))
	r.Use(m.Instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: !allowsAnyOrigin(opts.CORSOrigins),
		MaxAge:           300,
	}))

	authLimit := opts.AuthRateLimitRPM
	if authLimit <= 0 {
		authLimit = 10
	}
	authLimiter := middleware.NewRateLimiter(authLimit, time.Minute)

	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})

		// ──── Auth Routes ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/login", h.Auth.Login)
			r.Post("/refresh", h.Auth.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", h.Auth.Logout)
				r.Get("/me", h.Auth.Me)
			})
		})

		// ──── Level Test Routes ────
		r.Route("/level-test", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/questions", h.LevelTest.Questions)
			r.Post("/submit", h.LevelTest.Submit)
		})

		// ──── Vocabulary Routes ────
		r.Route("/vocab", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/random", h.Vocab.Random)
		})

		// ──── Chat Routes ────
		r.Route("/chat", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/session", h.Chat.CreateSession)
			r.Get("/session/{id}", h.Chat.GetSession)
			r.Post("/message", h.Chat.SendMessage)
		})

		// ──── Speaking Routes (premium) ────
		r.Route("/speaking", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Use(handlers.RequirePremium(premium))
			r.Post("/message", h.Speaking.Message)
			r.Post("/transcribe", h.Speaking.Transcribe)
		})

		// ──── In-App Purchase Routes ────
		r.Route("/iap", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/verify", h.IAP.Verify)
			r.Get("/subscription", h.IAP.Subscription)
		})

		// ──── History Routes ────
		r.Route("/history", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/sessions", h.History.Sessions)
			r.Get("/stats", h.History.Stats)
			r.Get("/word-history", h.History.WordHistory)
		})
	})

	return r
}

// Browsers reject credentialed requests against a wildcard origin.
func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
