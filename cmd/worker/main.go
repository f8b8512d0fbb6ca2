package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"madrasah/internal/config"
	"madrasah/internal/logging"
	"madrasah/internal/notification"
	"madrasah/internal/queue"
	"madrasah/internal/realtime"
	"madrasah/internal/store"
)

// Worker delivers queued notifications to the API instances over Redis
// pub/sub and purges old read notifications on a schedule.
func main() {
	cfg := config.Load()
	log := logging.Must(cfg.Env).Named("worker")
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		log.Fatal("worker needs QUEUE_BACKEND=redis; the API delivers in process otherwise")
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal("db migrate failed", zap.Error(err))
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()
	if !redisClient.Healthy(ctx) {
		log.Warn("redis not reachable yet, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey, log.Named("queue"))
	notifications := notification.NewService(notification.NewPostgresRepository(db.Client), q, log.Named("notification"))

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := scheduler.AddFunc(cfg.PurgeSchedule, func() { purge(ctx, notifications, cfg.NotificationRetention, log) }); err != nil {
		log.Fatal("invalid purge schedule", zap.String("schedule", cfg.PurgeSchedule), zap.Error(err))
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	deliverer := notification.NewDeliverer(q, realtime.NewRedisPublisher(redisClient.Client, realtime.Channel), log.Named("deliver"))
	log.Info("worker started",
		zap.String("purge_schedule", cfg.PurgeSchedule),
		zap.Duration("retention", cfg.NotificationRetention),
	)
	if err := deliverer.Run(ctx); err != nil {
		log.Error("delivery failed", zap.Error(err))
	}
	log.Info("worker stopped")
}

func purge(ctx context.Context, svc *notification.Service, retention time.Duration, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	n, err := svc.PurgeRead(ctx, retention)
	if err != nil {
		log.Error("notification purge failed", zap.Error(err))
		return
	}
	log.Info("notification purge done", zap.Int("deleted", n))
}
