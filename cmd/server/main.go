package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/huffhealth/crm/internal/api"
	"github.com/huffhealth/crm/internal/config"
	"github.com/huffhealth/crm/internal/datanorm"
	"github.com/huffhealth/crm/internal/facebook"
	"github.com/huffhealth/crm/internal/pkg/distlock"
	"github.com/huffhealth/crm/internal/pkg/logger"
	"github.com/huffhealth/crm/internal/repository/postgres"
	"github.com/huffhealth/crm/internal/repository/redisstore"
	"github.com/huffhealth/crm/internal/secrets"
	"github.com/huffhealth/crm/internal/service/leadimport"
	"github.com/huffhealth/crm/internal/service/leadsync"
	"github.com/huffhealth/crm/internal/storage"
	"github.com/huffhealth/crm/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	slash := strings.Index(rest, "/")
	if slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	configPath := "config/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		configPath = v
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.Redact())

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	err = db.PingContext(pingCtx)
	pingCancel()
	if err != nil {
		log.Fatalf("Failed to ping database at %s: %v", extractHost(cfg.Database.URL), err)
	}
	log.Printf("Connected to PostgreSQL at %s", extractHost(cfg.Database.URL))

	// Redis is optional: without it progress is not tracked and locks use
	// PostgreSQL advisory locks.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			log.Printf("Warning: Redis connection failed (%s): %v, falling back to PG advisory locks", cfg.Redis.Addr, err)
			redisClient.Close()
			redisClient = nil
		} else {
			defer redisClient.Close()
			log.Printf("Redis connected: %s", cfg.Redis.Addr)
		}
	} else {
		log.Println("Redis not configured, using PG advisory locks and no import progress")
	}
	locks := distlock.NewFactory(redisClient, db)

	store := postgres.NewStore(db)

	// Lead import
	importOpts := []leadimport.Option{
		leadimport.WithLocker(locks),
		leadimport.WithDefaultSource(cfg.Import.DefaultSource),
	}
	if redisClient != nil {
		importOpts = append(importOpts, leadimport.WithProgress(redisstore.NewProgressStore(redisClient)))
	}
	importer := leadimport.NewService(store, datanorm.NewNormalizer(datanorm.DefaultVocabulary()), importOpts...)

	// Upload archive
	var (
		archive  storage.Archiver = storage.NopArchive{}
		s3Health api.BucketHeader
	)
	if cfg.Storage.Enabled {
		client, err := storage.LoadS3Client(ctx, cfg.Storage.Region, cfg.Storage.AWSProfile)
		if err != nil {
			log.Printf("Warning: upload archive disabled: %v", err)
		} else {
			archive = storage.NewS3ArchiveWithClient(client, cfg.Storage.Bucket, cfg.Storage.Prefix)
			s3Health = client
			log.Printf("Upload archive enabled: s3://%s/%s", cfg.Storage.Bucket, cfg.Storage.Prefix)
		}
	}

	handlers := api.NewHandlers(importer, nil, archive, cfg.Import)

	// Facebook Lead Ads
	tasks := worker.NewTaskRunner(worker.TaskRunnerConfig{
		MaxConcurrent: cfg.Tasks.MaxConcurrent,
		MaxAttempts:   cfg.Tasks.MaxAttempts,
	})
	if cfg.Facebook.Enabled {
		box, err := secrets.NewBox(cfg.Secrets.EncryptionKey)
		if err != nil {
			log.Fatalf("Failed to initialize token encryption: %v", err)
		}
		fbClient := facebook.NewClient(cfg.Facebook.GraphBaseURL, cfg.Facebook.GraphVersion, cfg.Facebook.Timeout())
		syncer := leadsync.NewService(store, fbClient, postgres.NewCredentialStore(store.IntegrationRepo, box),
			leadsync.WithLocker(locks),
			leadsync.WithDefaultSource(cfg.Facebook.DefaultSource),
		)
		handlers.WithFacebook(syncer, tasks, cfg.Facebook.AppSecret, cfg.Facebook.VerifyToken)
		log.Printf("Facebook Lead Ads enabled (Graph API %s)", cfg.Facebook.GraphVersion)
	} else {
		log.Println("Facebook Lead Ads disabled")
	}

	health := api.NewHealthChecker(db, redisClient, s3Health, cfg.Storage.Bucket)
	server := api.NewServer(cfg.Server, handlers, health)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := cfg.Server.Addr()
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized, server is ready")

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := tasks.Shutdown(shutdownCtx); err != nil {
		log.Printf("Task runner shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
