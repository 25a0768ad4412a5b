package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bizgrow/internal/aigateway"
	"bizgrow/internal/changefeed"
	"bizgrow/internal/classifier"
	"bizgrow/internal/config"
	"bizgrow/internal/handler"
	"bizgrow/internal/httpserver"
	"bizgrow/internal/hub"
	"bizgrow/internal/permission"
	"bizgrow/internal/presenter"
	"bizgrow/internal/push"
	"bizgrow/internal/relay"
	"bizgrow/internal/repository"
	"bizgrow/internal/service/ai"
	"bizgrow/internal/session"
	"bizgrow/pkg/db"
	"bizgrow/pkg/logger"
	"bizgrow/pkg/mq"
	"bizgrow/pkg/otel"
	"bizgrow/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLoggerWithLevel(cfg.LogLevel)
	defer log.Sync()

	log.Info("Starting relay...",
		zap.String("env", cfg.Env),
		zap.String("db_host", cfg.DB.Host),
		zap.String("push_mode", cfg.Push.Mode),
	)

	shutdownTracing, err := otel.Init(otel.Config{
		ServiceName:    "bizgrow-relay",
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.Otel.Endpoint,
		Enabled:        cfg.Otel.Enabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool, log); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	// Repositories
	postRepo := repository.NewPostRepository(pool)
	subRepo := repository.NewPushSubscriptionRepository(pool, log)
	notificationRepo := repository.NewNotificationRepository(pool, log)

	// Push
	var pusher presenter.Pusher
	switch {
	case cfg.Push.VAPIDPrivateKey == "":
		log.Warn("VAPID keys not configured, OS notifications disabled")
	case cfg.Push.Mode == "queue":
		publisher, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		defer publisher.Close()
		pusher = push.NewQueuedPusher(publisher)
	default:
		pusher = push.NewDirectPusher(subRepo, cfg.Push, &http.Client{Timeout: 10 * time.Second}, log)
	}

	// Change feed
	listener := db.NewListener(db.PoolConnector(pool), log, changefeed.Tables...)
	subscriber := changefeed.NewSubscriber(changefeed.FromListener(listener), log, changefeed.Tables...)

	// Sessions
	toastHub := hub.New(log)
	pres := presenter.New(toastHub, subRepo, pusher, log, presenter.WithRecorder(notificationRepo))
	permissions := permission.NewManager(permission.NewRedisStore(rdb), subRepo, toastHub, pres, log)
	rel := relay.New(subscriber, classifier.New(postRepo, cfg.Relay.CurrencySymbol, log), pres, log)
	// 每个在线会话一个 relay，同一 profile 的多个标签页共享
	registry := session.NewRegistry(session.WithStarter(rel.Starter(ctx)))

	// AI functions
	aiService := ai.NewService(aigateway.NewClient(cfg.AIGateway, log), log)

	router := httpserver.NewRouter(httpserver.Handlers{
		Session:       handler.NewSessionHandler(toastHub, registry, permissions, log),
		Permission:    handler.NewPermissionHandler(permissions, registry, cfg.Push.VAPIDPublicKey, log),
		Notifications: handler.NewNotificationHandler(notificationRepo, log),
		Functions:     handler.NewFunctionsHandler(aiService, log),
	}, pool, cfg.JWT.Secret)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: router.Engine,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listener.Run(gctx)
	})
	g.Go(func() error {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info("relay is fully initialized and running")
	if err := g.Wait(); err != nil {
		log.Error("relay stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("relay shutdown complete")
}
