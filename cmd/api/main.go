package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"madrasah/internal/api"
	"madrasah/internal/attendance"
	"madrasah/internal/cloudinary"
	"madrasah/internal/config"
	"madrasah/internal/enrollment"
	"madrasah/internal/idempotency"
	"madrasah/internal/logging"
	"madrasah/internal/metrics"
	"madrasah/internal/notification"
	"madrasah/internal/queue"
	"madrasah/internal/realtime"
	"madrasah/internal/resource"
	"madrasah/internal/store"
)

func main() {
	cfg := config.Load()
	log := logging.Must(cfg.Env)
	defer func() { _ = log.Sync() }()

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

type repositories struct {
	attendance   attendance.Repository
	enrollment   enrollment.Repository
	notification notification.Repository
	resource     resource.Repository
}

func openRepositories(ctx context.Context, cfg config.App, log *zap.Logger) (repositories, *store.DB, error) {
	if cfg.StoreBackend == "memory" {
		log.Warn("using in-memory store, data is lost on restart")
		return repositories{
			attendance:   attendance.NewMemoryRepository(),
			enrollment:   enrollment.NewMemoryRepository(),
			notification: notification.NewMemoryRepository(),
			resource:     resource.NewMemoryRepository(),
		}, nil, nil
	}
	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return repositories{}, db, err
	}
	if err := db.Migrate(ctx); err != nil {
		return repositories{}, db, err
	}
	return repositories{
		attendance:   attendance.NewPostgresRepository(db.Client),
		enrollment:   enrollment.NewPostgresRepository(db.Client),
		notification: notification.NewPostgresRepository(db.Client),
		resource:     resource.NewPostgresRepository(db.Client),
	}, db, nil
}

func runHTTP(cfg config.App, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repos, db, err := openRepositories(ctx, cfg, log)
	defer func() { _ = db.Close() }()
	if err != nil {
		return err
	}

	checks := map[string]func(context.Context) bool{}
	if db != nil {
		checks["db"] = db.Healthy
	}

	var redisClient *store.Redis
	if cfg.QueueBackend != "memory" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer func() { _ = redisClient.Close() }()
		checks["redis"] = redisClient.Healthy
	}

	var q queue.Queue
	var idem idempotency.Store
	if redisClient == nil {
		q = queue.NewInMemory(64)
		idem = idempotency.NewMemoryStore(cfg.IdempotencyTTL)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey, log)
		idem = idempotency.NewRedisStore(redisClient.Client, "", cfg.IdempotencyTTL)
	}

	notifications := notification.NewService(repos.notification, q, log.Named("notification"))
	hub := realtime.NewHub(originChecker(cfg.CORSOrigins), log.Named("hub"))
	go hub.Run(ctx)
	if redisClient == nil {
		// no worker can reach an in-memory queue, so deliver and purge in process
		deliverer := notification.NewDeliverer(q, hub, log.Named("deliver"))
		go func() {
			if err := deliverer.Run(ctx); err != nil {
				log.Error("notification delivery stopped", zap.Error(err))
			}
		}()
		scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
		_, err := scheduler.AddFunc(cfg.PurgeSchedule, func() {
			n, err := notifications.PurgeRead(ctx, cfg.NotificationRetention)
			if err != nil {
				log.Error("notification purge failed", zap.Error(err))
				return
			}
			log.Info("notification purge done", zap.Int("deleted", n))
		})
		if err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
	} else {
		relay := realtime.NewRelay(redisClient.Client, realtime.Channel, hub, log.Named("relay"))
		go func() {
			if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("notification relay stopped", zap.Error(err))
			}
		}()
	}

	// Cloudinary client (nil storage when not configured)
	var storage resource.Storage
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		storage = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Info("cloudinary configured", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		log.Info("cloudinary not configured, uploads are disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := api.NewRouter(api.Options{
		Config:       cfg,
		Attendance:   attendance.NewService(repos.attendance, log.Named("attendance")),
		Enrollment:   enrollment.NewService(repos.enrollment, log.Named("enrollment")),
		Notification: notifications,
		Resource:     resource.NewService(repos.resource, storage, log.Named("resource")),
		Idempotency:  idem,
		Hub:          hub,
		Metrics:      metrics.New(reg),
		Gatherer:     reg,
		Checks:       checks,
		Log:          log,
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	cancel()

	log.Info("server exited")
	return nil
}

// originChecker accepts websocket upgrades from the configured CORS origins.
func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		return nil
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
