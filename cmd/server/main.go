package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-ledger/config"
	"stock-ledger/internal/api"
	"stock-ledger/internal/broker"
	"stock-ledger/internal/redisclient"
	"stock-ledger/internal/service"
	"stock-ledger/internal/store"
	"stock-ledger/internal/util"
	"stock-ledger/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting stock ledger service")

	tp, err := util.InitTracer("stock-ledger", cfg.Observ.JaegerEndpoint)
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
	logger.Info("Database connected")

	// The advisory lock layer is optional; the store serializes writers on
	// its own when redis is down.
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, continuing without advisory locks", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		logger.Info("Redis connected")
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicStock)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	stockService := service.NewStockService(db, redisClient, eventPublisher, cfg.Ledger)
	adjustmentService := service.NewAdjustmentService(db, redisClient, eventPublisher, cfg.Ledger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	ticketConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicTickets, cfg.Kafka.ConsumerGroup)
	ticketWorker := worker.NewTicketWorker(ticketConsumer, db, stockService)
	go func() {
		if err := ticketWorker.Start(workerCtx); err != nil {
			logger.Error("Ticket worker stopped", zap.Error(err))
		}
	}()

	alertConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicStock, "stock-alerts-group")
	alertWorker := worker.NewAlertWorker(alertConsumer)
	go func() {
		if err := alertWorker.Start(workerCtx); err != nil {
			logger.Error("Alert worker stopped", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(stockService, adjustmentService, redisClient)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

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
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	ticketWorker.Stop()
	alertWorker.Stop()

	logger.Info("Server exited")
}
