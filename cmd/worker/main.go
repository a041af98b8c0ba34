package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/huffhealth/crm/internal/config"
	"github.com/huffhealth/crm/internal/facebook"
	"github.com/huffhealth/crm/internal/pkg/distlock"
	"github.com/huffhealth/crm/internal/pkg/logger"
	"github.com/huffhealth/crm/internal/repository/postgres"
	"github.com/huffhealth/crm/internal/secrets"
	"github.com/huffhealth/crm/internal/service/leadsync"
	"github.com/huffhealth/crm/internal/worker"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one pull sync and exit")
	flag.Parse()

	log.Println("Starting CRM Lead Sync Worker...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	if cfg.Secrets.EncryptionKey == "" {
		log.Fatal("CRM_ENCRYPTION_KEY is required to read page access tokens")
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.Redact())

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Warning: Redis unavailable (%v), using PG advisory locks", err)
			redisClient.Close()
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	box, err := secrets.NewBox(cfg.Secrets.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to initialize token encryption: %v", err)
	}

	store := postgres.NewStore(db)
	syncer := leadsync.NewService(
		store,
		facebook.NewClient(cfg.Facebook.GraphBaseURL, cfg.Facebook.GraphVersion, cfg.Facebook.Timeout()),
		postgres.NewCredentialStore(store.IntegrationRepo, box),
		leadsync.WithLocker(distlock.NewFactory(redisClient, db)),
		leadsync.WithDefaultSource(cfg.Facebook.DefaultSource),
	)

	w := worker.NewLeadSyncWorker(syncer, cfg.Facebook.SyncInterval())

	if *once {
		res := w.RunOnce(context.Background())
		if res == nil {
			log.Fatal("Sync failed")
		}
		log.Printf("Sync complete: %d synced, %d duplicates, %d errors", res.Synced, res.Duplicates, res.Errors)
		if res.Errors > 0 {
			os.Exit(1)
		}
		return
	}

	w.Start()
	log.Printf("Lead sync worker running (every %s)", cfg.Facebook.SyncInterval())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	w.Stop()

	stats := w.Stats()
	log.Printf("Worker stopped after %d runs (%d synced, %d errors)",
		stats["total_runs"], stats["total_synced"], stats["total_errors"])
}
