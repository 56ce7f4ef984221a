package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tsbuk33/aqlhr-ai-gateway/internal/admin"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/audit"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/console/handler"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/console/server"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/infra"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/infra/auth"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/policy"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/ratelimit"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/repository/postgres"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("console failed", zap.Error(err))
	}
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Ключи: консоль единственная, кто подписывает токены
	pub, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		return fmt.Errorf("auth public key: %w", err)
	}
	priv, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		return fmt.Errorf("auth private key: %w", err)
	}

	// 2. Инициализация ресурсов
	pool, err := postgres.NewPool(appCtx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()

	repo := postgres.NewRepo(pool)
	auditRepo := postgres.NewAuditRepo(pool)

	journal := audit.NewJournal(auditRepo, audit.Options{
		BufferSize:    cfg.Gateway.AuditBufferSize,
		BatchSize:     cfg.Gateway.AuditBatchSize,
		FlushInterval: cfg.Gateway.AuditFlushInterval,
	}, logger)
	journal.Start()
	defer journal.Stop()

	resolver, err := policy.NewResolver(repo, domain.TenantAIPolicyDoc{
		DefaultModel: cfg.Routing.DefaultModel,
		AllowModels:  cfg.Routing.AllowModels,
	}, journal, logger)
	if err != nil {
		return err
	}

	// 3. Админ-функции за AdminActionWrapper (Dependency Injection)
	wrapper := admin.NewWrapper(journal, cfg.Admin.ActionTimeout, logger)
	(&admin.Functions{
		Keys:      repo,
		Policies:  repo,
		Resolver:  resolver,
		RateLimit: ratelimit.NewLimiter(rdb, logger),
		Audit:     auditRepo,
		KeyTTL:    cfg.Admin.KeyTTL,
	}).Register(wrapper)

	consoleSrv := server.NewConsoleServer(
		logger,
		auth.NewRS256Validator(pub, cfg.Auth.Issuer),
		handler.NewAuthHandler(auth.NewIssuer(repo, priv, cfg.Auth.Issuer, cfg.Auth.TokenTTL), logger),
		handler.NewAdminHandler(wrapper),
	)

	// 4. Запуск сервера
	srv := &http.Server{
		Addr:         cfg.Console.Addr(),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Console.ReadTimeout,
		WriteTimeout: cfg.Console.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-appCtx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("console shutdown failed", zap.Error(err))
	}
	logger.Info("console exited properly")
	return nil
}
