package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wrenchbay/wrenchbay/internal/audit"
	"github.com/wrenchbay/wrenchbay/internal/auth"
	"github.com/wrenchbay/wrenchbay/internal/elevated"
	"github.com/wrenchbay/wrenchbay/internal/platform/config"
	"github.com/wrenchbay/wrenchbay/internal/platform/database"
	"github.com/wrenchbay/wrenchbay/internal/platform/server"
	"github.com/wrenchbay/wrenchbay/internal/platform/telemetry"
	"github.com/wrenchbay/wrenchbay/internal/rbac"
	"github.com/wrenchbay/wrenchbay/internal/records"
	"github.com/wrenchbay/wrenchbay/internal/tenant"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Setup logging
	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	telemetry.SetDefault(logger)

	slog.Info("wrenchbay starting",
		"version", "0.1.0",
		"port", cfg.Server.Port,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Database
	slog.Info("connecting to database")
	pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		migrationsURL := fmt.Sprintf("file://%s", cfg.Database.MigrationsPath)
		if err := database.RunMigrations(cfg.Database.URL, migrationsURL); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		slog.Info("migrations complete")
	}

	metrics := telemetry.NewMetrics()

	// Audit
	var auditLogger audit.Logger = audit.NopLogger{}
	auditStore := audit.NewStore()
	if cfg.Audit.Enabled {
		auditLogger = audit.NewAsyncLogger(pool, auditStore, audit.LoggerConfig{
			BufferSize:    cfg.Audit.BufferSize,
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: time.Duration(cfg.Audit.FlushIntervalMs) * time.Millisecond,
			Dropped:       metrics.AuditDropped,
			Logger:        logger,
		})
		defer auditLogger.Close()
		slog.Info("audit logger started")
	}

	// Auth
	tokenSvc := auth.NewTokenService(
		cfg.Auth.JWT.SigningKey,
		cfg.Auth.JWT.Issuer,
		cfg.Auth.JWT.ExpiryHours,
	)

	// RBAC
	rbacEngine, err := rbac.NewEvaluator(rbac.DefaultCapabilities())
	if err != nil {
		return fmt.Errorf("building capability table: %w", err)
	}

	// Elevated sessions
	credStore, closeStore, err := buildCredentialStore(ctx, cfg.Elevated, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			slog.Warn("closing credential store", "error", err)
		}
	}()

	elevatedTokens := elevated.NewTokenService(cfg.Elevated.SigningKey, cfg.Elevated.Issuer, cfg.Elevated.TTL())
	elevatedManager := elevated.NewManager(
		elevatedTokens,
		elevated.NewStoreAuthenticator(pool),
		buildVerifier(cfg.Elevated, elevatedTokens),
		credStore,
		elevated.WithVerifyTimeout(cfg.Elevated.VerifyTimeout()),
		elevated.WithAuditLogger(auditLogger),
		elevated.WithLogger(logger),
		elevated.WithMetrics(metrics.ElevatedVerifications, metrics.ElevatedAcquisitions),
	)

	// Create and start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, server.Dependencies{
		Pool:                   pool,
		Auth:                   tokenSvc,
		Refresher:              auth.NewStore(pool),
		RBAC:                   rbacEngine,
		Verifier:               elevatedManager,
		ElevatedHandler:        elevated.NewHandler(elevatedManager, elevatedTokens),
		RecordHandler:          records.NewHandler(pool, records.NewStore(), auditLogger),
		OrganizationHandler:    tenant.NewHandler(pool, tenant.NewStore(), auditLogger),
		AuditHandler:           audit.NewHandler(pool, auditStore, auditLogger),
		AuditLogger:            auditLogger,
		Metrics:                metrics,
		Logger:                 logger,
		CORSAllowedOrigins:     cfg.CORS.AllowedOrigins,
		ElevatedLoginPerMinute: cfg.RateLimit.ElevatedLoginPerMinute,
		RequestsPerMinute:      cfg.RateLimit.RequestsPerMinute,
		DevMode:                cfg.Server.DevMode,
	})

	slog.Info("server ready", "addr", addr, "dev_mode", cfg.Server.DevMode, "elevated_store", cfg.Elevated.Store)
	return srv.Start(ctx)
}

// buildCredentialStore returns the elevated credential store selected by
// cfg and a func releasing it. A redis store must answer a ping before the
// server starts.
func buildCredentialStore(ctx context.Context, cfg config.ElevatedConfig, redisCfg config.RedisConfig) (elevated.CredentialStore, func() error, error) {
	switch cfg.Store {
	case "memory":
		slog.Warn("elevated sessions kept in memory; they will not survive a restart")
		return elevated.NewMemoryStore(), func() error { return nil }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", redisCfg.Addr, err)
		}
		return elevated.NewRedisStore(client, redisCfg.Prefix), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown elevated credential store %q", cfg.Store)
	}
}

// buildVerifier verifies in-process unless a verification endpoint is
// configured.
func buildVerifier(cfg config.ElevatedConfig, tokens *elevated.TokenService) elevated.Verifier {
	if cfg.VerifyURL == "" {
		return elevated.NewLocalVerifier(tokens)
	}
	return elevated.NewRemoteVerifier(cfg.VerifyURL, &http.Client{Timeout: cfg.VerifyTimeout()})
}
