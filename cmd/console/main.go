package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"schoolconsole/internal/apiclient"
	"schoolconsole/internal/attendance"
	"schoolconsole/internal/audit"
	"schoolconsole/internal/cloudinary"
	"schoolconsole/internal/config"
	"schoolconsole/internal/console"
	"schoolconsole/internal/enrollment"
	"schoolconsole/internal/httpmiddleware"
	"schoolconsole/internal/logging"
	"schoolconsole/internal/queue"
	"schoolconsole/internal/session"
	"schoolconsole/internal/store"
)

func main() {
	cfg := config.Load()
	log := logging.Must(cfg.Env, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, log *zap.Logger) error {
	checks := map[string]func(context.Context) bool{}

	var redisClient *store.Redis
	if cfg.SessionBackend != "memory" || cfg.QueueBackend != "memory" {
		redisClient = store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, time.Second)
		defer redisClient.Close()
		checks["redis"] = redisClient.Healthy
	}

	var sessions session.Store
	if cfg.SessionBackend == "memory" {
		sessions = session.NewMemoryStore(cfg.SessionTTL)
	} else {
		sessions = session.NewRedisStore(redisClient.Client, "console:session:", cfg.SessionTTL)
	}

	drainCtx, stopDrain := context.WithCancel(context.Background())
	defer stopDrain()

	var recorder *audit.Recorder
	var journal console.AuditLog
	if cfg.AuditEnabled {
		var repo *audit.Repository
		db, err := store.NewDB(cfg.DatabaseURL, cfg.DBPingTimeout)
		if err != nil {
			log.Warn("audit db not reachable", zap.Error(err))
		}
		if db != nil {
			defer db.Close()
			repo = audit.NewRepository(db.Client)
			journal = repo
			checks["db"] = db.Healthy
		}

		var q queue.Queue
		if cfg.QueueBackend == "memory" {
			mem := queue.NewInMemory(256)
			var sink audit.Sink = audit.LogSink{Log: log.Named("audit")}
			if repo != nil {
				if err := repo.EnsureSchema(drainCtx); err != nil {
					log.Warn("audit schema init failed, logging events instead", zap.Error(err))
				} else {
					sink = repo
				}
			}
			go func() {
				if err := audit.Drain(drainCtx, mem, sink, log.Named("audit")); err != nil {
					log.Error("audit drain stopped", zap.Error(err))
				}
			}()
			q = mem
		} else {
			q = queue.NewRedisQueue(redisClient.Client, cfg.AuditQueueKey)
		}
		recorder = audit.NewRecorder(q, log)
	}

	var photos console.PhotoUploader
	if cfg.CloudinaryEnabled() {
		photos = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Info("cloudinary configured", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		log.Info("cloudinary not configured, student photos disabled")
	}

	srv := console.NewServer(console.Deps{
		School:         apiclient.New(cfg.SchoolAPIURL, nil, cfg.SchoolAPITimeout, log.Named("school")),
		Sessions:       sessions,
		Inflight:       attendance.NewInflight(),
		Drafts:         enrollment.NewDrafts(),
		Recorder:       recorder,
		Audit:          journal,
		Photos:         photos,
		Limiter:        httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		Checks:         checks,
		Log:            log,
		AllowedOrigins: cfg.CORSOrigins,
		JWTIssuer:      cfg.JWTIssuer,
		JWTSigningKey:  cfg.JWTSigningKey,
		SessionTTL:     cfg.SessionTTL,
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SchoolAPITimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", httpSrv.Addr), zap.String("school_api", cfg.SchoolAPIURL))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}
