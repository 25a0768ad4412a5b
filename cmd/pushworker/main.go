package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"bizgrow/internal/config"
	"bizgrow/internal/push"
	"bizgrow/internal/repository"
	"bizgrow/pkg/db"
	"bizgrow/pkg/logger"
	"bizgrow/pkg/mq"
	"bizgrow/pkg/otel"
	"bizgrow/pkg/redis"
	"bizgrow/pkg/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLoggerWithLevel(cfg.LogLevel)
	defer log.Sync()

	queue := cfg.Worker.Queue
	if queue == "" {
		queue = "notification_push_queue"
	}
	dedupTTL := cfg.Worker.DedupTTL
	if dedupTTL <= 0 {
		dedupTTL = 24 * time.Hour
	}

	log.Info("Starting pushworker...",
		zap.String("queue", queue),
		zap.String("routing_key", mq.RoutingKeyNotificationPush),
	)

	shutdownTracing, err := otel.Init(otel.Config{
		ServiceName:    "bizgrow-pushworker",
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.Otel.Endpoint,
		Enabled:        cfg.Otel.Enabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing()

	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer pool.Close()

	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	// DLQ 发布用单独的连接
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	sender := push.NewDirectPusher(
		repository.NewPushSubscriptionRepository(pool, log),
		cfg.Push,
		&http.Client{Timeout: 10 * time.Second},
		log,
	)
	handler := push.NewWorkerHandler(
		sender,
		util.NewDeduper(rdb, dedupTTL, log),
		util.NewRetryCounter(rdb, dedupTTL),
		publisher,
		log,
	)

	consumer, err := mq.NewConsumer(cfg.MQ.URL, queue, mq.RoutingKeyNotificationPush, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(handler.Handle)
	consumer.SetFailureHandler(handler.OnFailure)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() {
		done <- consumer.StartConsuming()
	}()
	log.Info("pushworker is running")

	select {
	case <-ctx.Done():
		log.Info("Shutting down pushworker gracefully...")
		consumer.Stop()
		<-done
	case err := <-done:
		if err != nil {
			log.Error("Consumer stopped", zap.Error(err))
		}
	}
	log.Info("pushworker shutdown complete")
}
