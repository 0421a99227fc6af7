package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trogers1052/stock-history-cache/internal/alphavantage"
	"github.com/trogers1052/stock-history-cache/internal/api"
	"github.com/trogers1052/stock-history-cache/internal/cache"
	"github.com/trogers1052/stock-history-cache/internal/config"
	"github.com/trogers1052/stock-history-cache/internal/database"
	"github.com/trogers1052/stock-history-cache/internal/kafka"
	"github.com/trogers1052/stock-history-cache/internal/rediscache"
	"github.com/trogers1052/stock-history-cache/internal/scheduler"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfgPath := os.Getenv("CONFIG_FILE")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	db, err := openDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Printf("Cache database ready (%s)", db.Driver())

	seriesCache := database.NewSeriesCache(db, cfg.Cache.TTL)
	var store cache.Store = seriesCache
	if cfg.Redis.Addr != "" {
		rdb, err := rediscache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("Redis unavailable, serving from %s only: %v", db.Driver(), err)
		} else {
			redisStore := rediscache.NewStore(rdb, seriesCache, cfg.Cache.TTL)
			defer redisStore.Close()
			store = redisStore
			log.Printf("Redis hot tier enabled at %s", cfg.Redis.Addr)
		}
	}

	// Upstream
	client := alphavantage.NewClient(cfg.Upstream.APIKey,
		alphavantage.WithBaseURL(cfg.Upstream.BaseURL),
		alphavantage.WithTimeout(cfg.Upstream.Timeout),
	)

	service := cache.NewService(store, client)

	// Kafka
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		service.WithPublisher(producer)

		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.RefreshTopic, cfg.Kafka.GroupID, service)
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Printf("Kafka consumer stopped: %v", err)
			}
		}()
		log.Printf("Kafka enabled: events on %s, refresh requests on %s", cfg.Kafka.Topic, cfg.Kafka.RefreshTopic)
	}

	var svc api.SeriesService = service
	if cfg.Cache.Dedupe {
		svc = cache.NewDeduplicated(service)
		log.Println("Concurrent fetch deduplication enabled")
	}

	// Scheduled warm-up
	if cfg.Refresh.Cron != "" {
		watch, err := scheduler.ParseWatchList(cfg.Refresh.Symbols)
		if err != nil {
			log.Fatalf("Invalid refresh symbols: %v", err)
		}
		sched := scheduler.NewScheduler(ctx, svc, watch)
		if err := sched.Register(cfg.Refresh.Cron); err != nil {
			log.Fatalf("Failed to schedule warm-up: %v", err)
		}
		sched.Start()
		defer sched.Stop()
		log.Printf("Warm-up scheduled (%s) for %d series", cfg.Refresh.Cron, len(watch))
	}

	// HTTP
	handler := api.NewHandler(svc, seriesCache)
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.SetupRoutes(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Stock history cache listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutdown signal received, stopping...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Stock history cache stopped")
}

func openDatabase(cfg config.DatabaseConfig) (*database.DB, error) {
	if database.Driver(cfg.Driver) == database.DriverPostgres {
		return database.New(database.DriverPostgres, cfg.ConnectionString())
	}
	return database.OpenSQLite(cfg.Path)
}
