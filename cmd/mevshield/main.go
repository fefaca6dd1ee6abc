package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mevshield/mevshield/internal/audit"
	"github.com/mevshield/mevshield/internal/config"
	"github.com/mevshield/mevshield/internal/feed"
	"github.com/mevshield/mevshield/internal/history"
	"github.com/mevshield/mevshield/internal/riskclient"
	"github.com/mevshield/mevshield/internal/server"
	"github.com/mevshield/mevshield/internal/shield"
	"github.com/mevshield/mevshield/internal/token"
	"github.com/mevshield/mevshield/pkg/logger"
)

// routerInventory is the simulated execution inventory minted to the
// router's custody address for each registered asset.
var routerInventory = decimal.NewFromInt(1_000_000_000)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// Create logger
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	zapLogger, err := logger.NewLogger(logLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(os.Getenv("MEVSHIELD_CONFIG"))
	if err != nil {
		zapLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Open the trade history database
	db, err := openDatabase(cfg)
	if err != nil {
		zapLogger.Fatal("Failed to open database", zap.Error(err))
	}
	store, err := history.NewStore(db, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize history store", zap.Error(err))
	}

	// Connect to Redis for rate limiting when configured
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			zapLogger.Warn("Redis unreachable, rate limiting disabled", zap.Error(err))
			redisClient = nil
		}
		cancel()
	}

	// Assemble the audit pipeline: structured logs, live feed, and
	// optionally a Kafka topic for downstream consumers.
	hub := feed.NewHub(zapLogger)
	recorders := audit.Fanout{audit.NewLogRecorder(zapLogger), hub}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaRecorder := audit.NewKafkaRecorder(cfg.Kafka.Brokers, cfg.Kafka.Topic, zapLogger)
		defer kafkaRecorder.Close()
		recorders = append(recorders, kafkaRecorder)
	}

	// Register the configured assets and assemble the protocol instance
	assets := token.BootstrapDirectory(cfg.AssetAddresses(), cfg.RouterAddress(), routerInventory)
	protocol, err := shield.New(shield.Config{
		Owner:               cfg.OwnerAddress(),
		RouterAddr:          cfg.RouterAddress(),
		VaultAddr:           cfg.VaultAddress(),
		Threshold:           cfg.Protocol.Threshold,
		FeeBps:              cfg.Protocol.FeeBps,
		DefaultDelaySeconds: cfg.Protocol.DefaultDelaySeconds,
		SimOutputBps:        cfg.Protocol.SimOutputBps,
		ReferencePriceUSD:   decimal.NewFromFloat(cfg.Protocol.ReferencePriceUSD),
		Reporters:           cfg.ReporterAddresses(),
	}, assets, nil, nil, recorders, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to assemble protocol", zap.Error(err))
	}

	// Risk scoring client
	var scorer riskclient.Scorer
	if cfg.Scoring.URL != "" {
		scorer = riskclient.NewClient(cfg.Scoring.URL, time.Duration(cfg.Scoring.TimeoutSeconds)*time.Second, zapLogger)
	}

	srv := server.NewServer(zapLogger, cfg, protocol, scorer, store, hub, redisClient)

	go func() {
		zapLogger.Info("Starting server",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port))
		if err := srv.Run(); err != nil {
			zapLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down")
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	if cfg.Database.Driver == "postgres" {
		return gorm.Open(postgres.Open(cfg.Database.DSN), gormCfg)
	}
	return gorm.Open(sqlite.Open(cfg.Database.DSN), gormCfg)
}
