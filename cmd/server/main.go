package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tiger-life/config"
	"tiger-life/internal/api"
	"tiger-life/internal/broker"
	"tiger-life/internal/payment"
	"tiger-life/internal/realtime"
	"tiger-life/internal/redisclient"
	"tiger-life/internal/service"
	"tiger-life/internal/store"
	"tiger-life/internal/util"
	"tiger-life/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting tiger-life")

	tp, err := util.InitTracer("tiger-life", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database connected and migrated")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Business.CacheTTL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	if cfg.Stripe.SecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY is not set, checkouts will fail")
	}
	payments := payment.NewStripeProvider(cfg.Stripe.SecretKey)

	hub := realtime.NewHub()

	userService := service.NewUserService(db)
	orderService := service.NewOrderService(db, payments, cfg.Server.PublicOrigin)
	eventService := service.NewEventService(db, redisClient)
	notificationService := service.NewNotificationService(db, hub)
	listingService := service.NewListingService(db, redisClient)
	messageService := service.NewMessageService(db, hub)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var wg sync.WaitGroup
	runWorker := func(name string, start func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Worker stopped", zap.String("worker", name), zap.Error(err))
			}
		}()
	}

	runWorker("change-feed", realtime.NewListener(cfg.Database.URL, hub).Run)

	relay := worker.NewOutboxRelay(db, eventPublisher, cfg.Business.OutboxInterval)
	runWorker("outbox-relay", relay.Start)

	notificationConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
	notificationWorker := worker.NewNotificationWorker(notificationConsumer, notificationService)
	runWorker("notifications", notificationWorker.Start)

	sweeper := worker.NewOrderSweeper(orderService, redisClient, cfg.Business.SweepInterval, cfg.Business.OrderTimeout)
	runWorker("order-sweeper", sweeper.Start)

	invalidator := worker.NewCacheInvalidator(hub, eventService, listingService)
	runWorker("cache-invalidator", invalidator.Start)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	cookies := sessions.NewCookieStore([]byte(cfg.Session.Secret))
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.Session.MaxAge,
		HttpOnly: true,
		Secure:   cfg.Server.Env == "production",
		SameSite: http.SameSiteLaxMode,
	}

	router := gin.New()
	router.Use(gin.Logger())
	handler := api.NewHandler(api.Services{
		Users:         userService,
		Orders:        orderService,
		Events:        eventService,
		Notifications: notificationService,
		Listings:      listingService,
		Messages:      messageService,
	}, cookies, map[string]api.Pinger{
		"postgres": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}
	srv.RegisterOnShutdown(handler.Shutdown)

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()

	if err := notificationWorker.Stop(); err != nil {
		logger.Warn("Failed to stop notification worker", zap.Error(err))
	}
	wg.Wait()

	logger.Info("Server exited")
}
