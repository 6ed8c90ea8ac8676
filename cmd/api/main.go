package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/hasanmaki/rekaprgu-3duta/internal/api"
	"github.com/hasanmaki/rekaprgu-3duta/internal/audit"
	"github.com/hasanmaki/rekaprgu-3duta/internal/config"
	"github.com/hasanmaki/rekaprgu-3duta/internal/export"
	"github.com/hasanmaki/rekaprgu-3duta/internal/ratelimit"
	"github.com/hasanmaki/rekaprgu-3duta/internal/store"
	"github.com/hasanmaki/rekaprgu-3duta/internal/telemetry"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded configuration from .env")
	}
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

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	limiter := ratelimit.NewTokenBucket(redisClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	engine := audit.NewEngine(audit.EngineConfig{
		QueueCapacity: cfg.AuditQueueCapacity,
		PerItemDelay:  cfg.AuditDelay,
	})

	sinks := map[string]export.Sink{
		"local": &export.FileSink{BaseDir: cfg.ExportDir},
	}
	if cfg.S3Bucket != "" {
		s3Sink, err := export.NewS3Sink(ctx, export.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			log.Fatalf("init s3 export sink: %v", err)
		}
		sinks["s3"] = s3Sink
	}

	server := api.New(cfg, st, engine, limiter, sinks)

	httpLogger := httplog.NewLogger("rekaprgu", httplog.Options{
		LogLevel: slog.LevelInfo,
		Concise:  true,
	})
	router := chi.NewRouter()
	router.Use(httplog.RequestLogger(httpLogger))
	router.Mount("/", server.Router())

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	log.Printf("api listening on :%s audit_delay=%s queue_capacity=%d", cfg.HTTPPort, cfg.AuditDelay, cfg.AuditQueueCapacity)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	engine.Stop()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
