package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/openpharma/exchange-service/config"
	"github.com/openpharma/exchange-service/internal/audit"
	"github.com/openpharma/exchange-service/internal/auth"
	"github.com/openpharma/exchange-service/internal/notification"
	"github.com/openpharma/exchange-service/pkg/broker"
	"github.com/openpharma/exchange-service/pkg/cache"
	"github.com/openpharma/exchange-service/pkg/logger"
	"github.com/openpharma/exchange-service/pkg/postgres"
	"github.com/openpharma/exchange-service/pkg/search"

	estRepoPkg "github.com/openpharma/exchange-service/internal/establishment/repository"

	exH "github.com/openpharma/exchange-service/internal/exchange/handler"
	exRepoPkg "github.com/openpharma/exchange-service/internal/exchange/repository"
	exUCPkg "github.com/openpharma/exchange-service/internal/exchange/usecase"

	prodRepoPkg "github.com/openpharma/exchange-service/internal/product/repository"
	prodUCPkg "github.com/openpharma/exchange-service/internal/product/usecase"

	stockH "github.com/openpharma/exchange-service/internal/stock/handler"
	stockListenerPkg "github.com/openpharma/exchange-service/internal/stock/listener"
	stockRepoPkg "github.com/openpharma/exchange-service/internal/stock/repository"
	stockUCPkg "github.com/openpharma/exchange-service/internal/stock/usecase"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          "json",
		Level:             "info",
		DisableCaller:     false,
		DisableStacktrace: false,
	}

	if cfg.Server.AppEnv == "development" || cfg.Server.AppEnv == "dev" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = "console"
		logConfig.Level = "debug"
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	// 3. Connect to Database
	db, err := postgres.NewPostgres(&postgres.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	txm := postgres.NewTxManager(db)

	// 4. Initialize Redis
	redisClient, err := cache.NewRedisClient(&cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// 5. Initialize Kafka
	notifProducer := broker.NewProducer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.NotificationsTopic,
	})
	defer notifProducer.Close()

	salesConsumer := broker.NewConsumer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.SalesTopic,
		GroupID: cfg.Kafka.GroupID,
	})
	defer salesConsumer.Close()
	appLogger.Info("Connected to Kafka", zap.Strings("brokers", cfg.Kafka.Brokers))

	// 5.5 Initialize Elasticsearch
	esClient, err := search.NewClient(&search.Config{
		Addresses: cfg.Elastic.Addresses,
		Username:  cfg.Elastic.Username,
		Password:  cfg.Elastic.Password,
	})
	if err != nil {
		appLogger.Warn("Could not connect to Elasticsearch (product search sync disabled)", zap.Error(err))
		esClient = nil
	} else {
		appLogger.Info("Connected to Elasticsearch", zap.Strings("addresses", cfg.Elastic.Addresses))
	}

	// 6. Initialize Repositories
	stockRepo := stockRepoPkg.NewPGRepository(db)
	prodRepo := prodRepoPkg.NewPGRepository(db)
	estRepo := estRepoPkg.NewPGRepository(db)
	exRepo := exRepoPkg.NewPGRepository(db)
	auditor := audit.NewPGRecorder(db)

	// 7. Initialize UseCases
	stockUC := stockUCPkg.NewStockUseCase(stockRepo, appLogger)
	prodUC := prodUCPkg.NewProductUseCase(prodRepo, redisClient, esClient, appLogger)
	dispatcher := notification.NewKafkaDispatcher(notifProducer, appLogger)
	exUC := exUCPkg.NewExchangeUseCase(exRepo, estRepo, stockUC, prodUC, dispatcher, auditor, txm, appLogger)

	// 7.5 Initialize Listeners
	salesListener := stockListenerPkg.NewSalesListener(salesConsumer, stockUC, txm, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go salesListener.Start(ctx)

	// 8. Initialize Handlers
	mux := http.NewServeMux()
	exH.NewExchangeHandler(exUC, appLogger).RegisterRoutes(mux)
	stockH.NewStockHandler(stockUC, appLogger).RegisterRoutes(mux)

	// healthz stays outside the tenant middleware so probes need no identity.
	rootMux := http.NewServeMux()
	rootMux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	rootMux.Handle("/", auth.TenantMiddleware(mux))

	port := cfg.Server.HTTPPort
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	server := &http.Server{
		Addr:    port,
		Handler: rootMux,
	}

	appLogger.Info("Starting HTTP server", zap.String("port", port))

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("forced shutdown", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
