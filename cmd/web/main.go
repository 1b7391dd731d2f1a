package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"studysnap/internal/app"
	"studysnap/internal/db"
	"studysnap/internal/quiz"
	"studysnap/internal/scoring"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := app.LoadConfig()
	ctx := context.Background()

	scorer := scoring.Default()
	if cfg.ScoringConfigPath != "" {
		scoringCfg, err := scoring.LoadConfig(cfg.ScoringConfigPath)
		if err != nil {
			log.Printf("scoring config error: %v", err)
			os.Exit(1)
		}
		if scorer, err = scoring.NewScorer(scoringCfg); err != nil {
			log.Printf("scoring config error: %v", err)
			os.Exit(1)
		}
		log.Printf("scoring config loaded from %s", cfg.ScoringConfigPath)
	}

	dbConn, err := db.Open(ctx, db.Config{
		Driver:          db.Driver(cfg.DBDriver),
		DSN:             cfg.DBDSN,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifeMins) * time.Minute,
	})
	if err != nil {
		log.Printf("database error: %v", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	sessionTTL := time.Duration(cfg.SessionTTLMin) * time.Minute
	var sessions quiz.SessionStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("redis error: %v", err)
			os.Exit(1)
		}
		sessions = quiz.NewRedisStore(rdb, sessionTTL)
		log.Printf("quiz sessions stored in redis at %s", cfg.RedisAddr)
	} else {
		sessions = quiz.NewMemoryStore(sessionTTL)
	}

	gen := quiz.NewGeminiGenerator(quiz.GeminiConfig{
		APIKey:        cfg.GeminiAPIKey,
		Model:         cfg.GeminiModel,
		QuestionCount: cfg.QuizQuestionCount,
	})
	if !gen.Configured() {
		log.Printf("GEMINI_API_KEY not set; quiz generation disabled")
	}

	r := app.NewRouter(cfg, app.Deps{
		DB:        dbConn,
		Sessions:  sessions,
		Scorer:    scorer,
		Generator: gen,
	})

	log.Printf("studysnap web listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Printf("server stopped: %v", err)
		os.Exit(1)
	}
}
