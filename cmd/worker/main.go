package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"schoolconsole/internal/audit"
	"schoolconsole/internal/config"
	"schoolconsole/internal/logging"
	"schoolconsole/internal/queue"
	"schoolconsole/internal/store"
)

// Worker drains the audit queue into the Postgres journal.
func main() {
	cfg := config.Load()
	log := logging.Must(cfg.Env, cfg.LogLevel).Named("worker")
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		log.Fatal("QUEUE_BACKEND=memory is drained inside the console; the worker needs redis")
	}

	db, err := store.NewDB(cfg.DatabaseURL, cfg.DBPingTimeout)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	repo := audit.NewRepository(db.Client)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal("audit schema init failed", zap.Error(err))
	}

	// BRPOP blocks for 5s; give reads headroom past that.
	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, 10*time.Second)
	defer redisClient.Close()
	q := queue.NewRedisQueue(redisClient.Client, cfg.AuditQueueKey)

	log.Info("worker started, waiting for audit events")
	if err := audit.Drain(ctx, q, repo, log); err != nil {
		log.Error("queue consume failed", zap.Error(err))
	}
	log.Info("worker stopped")
}
