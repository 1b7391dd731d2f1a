package app

import (
	"database/sql"
	"net/http"
	"time"

	"studysnap/internal/app/apiresp"
	"studysnap/internal/app/observability"
	"studysnap/internal/auth"
	"studysnap/internal/history"
	"studysnap/internal/quiz"
	"studysnap/internal/scoring"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Deps are the collaborators built by main. DB may be nil, which disables
// history persistence. Sessions defaults to an in-memory store.
type Deps struct {
	DB        *sql.DB
	Sessions  quiz.SessionStore
	Scorer    *scoring.Scorer
	Generator quiz.Generator
}

func NewRouter(cfg Config, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", csrfHeaderName},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	collector := observability.NewCollector(deps.DB)
	r.Use(collector.Middleware)

	sessions := deps.Sessions
	if sessions == nil {
		sessions = quiz.NewMemoryStore(time.Duration(cfg.SessionTTLMin) * time.Minute)
	}

	authSvc := auth.NewService(auth.ServiceConfig{
		JWTSecret:     cfg.AuthJWTSecret,
		LocalUser:     cfg.AuthLocalUser,
		LocalPassHash: cfg.AuthLocalPassHash,
	})
	authHandler := auth.NewHandler(authSvc)

	var recorder quiz.HistoryRecorder
	var historyHandler *history.Handler
	if deps.DB != nil {
		historySvc := history.NewService(deps.DB)
		recorder = historySvc
		historyHandler = history.NewHandler(historySvc, cfg.HistoryLimit)
	}

	quizSvc := quiz.NewService(sessions, deps.Scorer, recorder)
	quizHandler := quiz.NewHandler(quizSvc, deps.Generator)

	hasGeminiKey := cfg.GeminiAPIKey != ""
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		apiresp.WriteOK(w, r, http.StatusOK, map[string]bool{
			"ok":             true,
			"has_gemini_key": hasGeminiKey,
		})
	})
	r.Get("/metrics", collector.MetricsHandler)

	limiter := NewIPRateLimiter(cfg.RateLimitPerMinute, time.Minute)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(RateLimitMiddleware(limiter))
		api.Use(CSRFMiddleware(cfg.CSRFEnforced))

		api.Get("/csrf", IssueCSRFToken)
		api.Post("/auth/login", authHandler.Login)

		api.Group(func(open chi.Router) {
			open.Use(authHandler.OptionalAuth)
			open.Post("/score", quizHandler.Score)
			open.Post("/quizzes/generate", quizHandler.Generate)
			open.Post("/sessions", quizHandler.StartSession)
			open.Get("/sessions/{id}", quizHandler.GetSession)
			open.Post("/sessions/{id}/answers/{index}", quizHandler.CheckAnswer)
			open.Post("/sessions/{id}/retry", quizHandler.RetrySession)
		})

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Get("/auth/me", authHandler.Me)
			if historyHandler != nil {
				secure.Get("/history", historyHandler.List)
				secure.Get("/history/export", historyHandler.Export)
			}
		})
	})

	return r
}
