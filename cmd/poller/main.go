package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"idea-engine/internal/archive"
	"idea-engine/internal/config"
	"idea-engine/internal/crewai"
	"idea-engine/internal/notify"
	"idea-engine/internal/orchestrator"
	"idea-engine/internal/poller"
	"idea-engine/internal/store"
	"idea-engine/internal/telemetry"
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
	notifier := notify.NewRedisNotifier(redisClient)

	archiver, err := archive.NewS3Archiver(ctx, cfg)
	if err != nil {
		log.Fatalf("init archiver: %v", err)
	}
	var arch orchestrator.Archiver
	if archiver != nil {
		arch = archiver
	}

	client := crewai.New(cfg.CrewAIURL, cfg.CrewAIBearerToken, cfg.CrewAITimeout)
	core := orchestrator.New(st, client, arch, orchestrator.Options{
		BatchSize:              cfg.CommentBatchSize,
		UnclaimOnSubmitFailure: cfg.UnclaimOnSubmitFailure,
	})

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	p := poller.New(core, st, notifier, cfg.PollInterval)
	log.Printf("poller started with interval=%s batch_size=%d", cfg.PollInterval, cfg.CommentBatchSize)
	if err := p.Run(ctx); err != nil {
		log.Printf("poller stopped: %v", err)
	}
}
