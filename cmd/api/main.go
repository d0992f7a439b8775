package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"idea-engine/internal/api"
	"idea-engine/internal/archive"
	"idea-engine/internal/config"
	"idea-engine/internal/crewai"
	"idea-engine/internal/orchestrator"
	"idea-engine/internal/ratelimit"
	"idea-engine/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	limiter := ratelimit.NewSubmissionLimiter(redisClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	archiver, err := archive.NewS3Archiver(ctx, cfg)
	if err != nil {
		log.Fatalf("init archiver: %v", err)
	}

	// Keep the interface nil when archival is disabled; a typed nil would
	// dodge the orchestrator's nil check.
	var arch orchestrator.Archiver
	if archiver != nil {
		arch = archiver
	}

	client := crewai.New(cfg.CrewAIURL, cfg.CrewAIBearerToken, cfg.CrewAITimeout)
	core := orchestrator.New(st, client, arch, orchestrator.Options{
		BatchSize:              cfg.CommentBatchSize,
		UnclaimOnSubmitFailure: cfg.UnclaimOnSubmitFailure,
	})

	server := api.New(core, st, limiter)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Printf("api listening on :%s", cfg.HTTPPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
