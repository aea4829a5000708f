package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jcognard-actinvision/askdb/internal/api"
	"github.com/jcognard-actinvision/askdb/internal/ask"
	"github.com/jcognard-actinvision/askdb/internal/auth"
	"github.com/jcognard-actinvision/askdb/internal/config"
	"github.com/jcognard-actinvision/askdb/internal/db"
	duckdbconn "github.com/jcognard-actinvision/askdb/internal/db/duckdb"
	"github.com/jcognard-actinvision/askdb/internal/db/postgres"
	"github.com/jcognard-actinvision/askdb/internal/llm"
	"github.com/jcognard-actinvision/askdb/internal/observability"
	"github.com/jcognard-actinvision/askdb/internal/safety"
	s3store "github.com/jcognard-actinvision/askdb/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("askdb-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	conn, closeConn, err := openConnection(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to open database connection", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeConn()

	client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize model client", slog.Any("error", err))
		os.Exit(1)
	}

	service, err := ask.NewService(conn, client, safety.NewValidator(cfg.Ask.StrictMode), ask.Options{
		MaxTablesBeforeLookup: cfg.Ask.MaxTablesBeforeLookup,
		QueryTemperature:      cfg.LLM.QueryTemperature,
		AnswerTemperature:     cfg.LLM.AnswerTemperature,
	}, logger)
	if err != nil {
		logger.Error("failed to build ask service", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger: logger,
		Ask:    service,
		Readiness: api.CombineReadinessChecks(
			api.CheckDatabaseDSN(cfg),
			api.CheckLLMConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("driver", cfg.Database.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func openConnection(ctx context.Context, cfg config.Config) (db.Connection, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		sqlDB, err := postgres.Open(ctx, postgres.Config{
			DSN:             cfg.Database.DSN,
			Schema:          cfg.Database.Schema,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewConn(sqlDB, cfg.Database.Schema), func() { _ = sqlDB.Close() }, nil
	case "duckdb":
		store, err := s3store.New(s3store.Config{
			Endpoint:        cfg.ObjectStore.Endpoint,
			Region:          cfg.ObjectStore.Region,
			Bucket:          cfg.ObjectStore.Bucket,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
			UseSSL:          cfg.ObjectStore.UseSSL,
			Prefix:          cfg.ObjectStore.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		conn, err := duckdbconn.NewConn(store, "")
		if err != nil {
			return nil, nil, err
		}
		return conn, func() {}, nil
	default:
		return nil, nil, errors.New("unsupported database driver " + cfg.Database.Driver)
	}
}
