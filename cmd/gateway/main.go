package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/tsbuk33/aqlhr-ai-gateway/internal/apikey"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/audit"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/engine"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/infra"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/policy"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/provider"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/ratelimit"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/repository/postgres"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/routing"
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
		logger.Fatal("gateway failed", zap.Error(err))
	}
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	// Контекст для управления жизненным циклом: SIGTERM отменяет его
	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Инфраструктура и ресурсы
	pool, err := postgres.NewPool(appCtx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()
	if err := rdb.Ping(appCtx).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}

	repo := postgres.NewRepo(pool)

	// 2. Журнал аудита: данные полетят в базу пачками
	journal := audit.NewJournal(postgres.NewAuditRepo(pool), audit.Options{
		BufferSize:    cfg.Gateway.AuditBufferSize,
		BatchSize:     cfg.Gateway.AuditBatchSize,
		FlushInterval: cfg.Gateway.AuditFlushInterval,
	}, logger)
	journal.Start()
	defer journal.Stop()

	// Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg, journal.Pending)

	// 3. Провайдеры (Retries, Circuit Breaker, клиентский лимит)
	providers, err := provider.Build(cfg.Providers, &http.Client{Timeout: cfg.Gateway.ProviderTimeout + time.Second}, metrics.SetBreaker, logger)
	if err != nil {
		return err
	}

	// 4. Ядро шлюза
	validator := apikey.NewValidator(repo, cfg.Gateway.UsageTimeout, logger)
	defer validator.Close()

	resolver, err := policy.NewResolver(repo, domain.TenantAIPolicyDoc{
		DefaultModel: cfg.Routing.DefaultModel,
		AllowModels:  cfg.Routing.AllowModels,
	}, journal, logger)
	if err != nil {
		return err
	}

	selector := routing.NewSelector(routing.Roles{
		Cost:        domain.ProviderID(cfg.Routing.CostProvider),
		Analytics:   domain.ProviderID(cfg.Routing.AnalyticsProvider),
		Explanation: domain.ProviderID(cfg.Routing.ExplanationProvider),
	}, routing.DefaultRules)

	gw := engine.NewGateway(
		validator,
		ratelimit.NewLimiter(rdb, logger),
		resolver,
		selector,
		provider.NewInvoker(providers, metrics.ObserveProvider, logger),
		metrics,
		engine.Options{
			RateLimit:       cfg.Gateway.RateLimit,
			RateWindow:      cfg.Gateway.RateWindow,
			ProviderTimeout: cfg.Gateway.ProviderTimeout,
			RequestTimeout:  cfg.Gateway.RequestTimeout,
			MaxFanOut:       cfg.Gateway.MaxFanOut,
			DefaultStrategy: cfg.Gateway.DefaultStrategy,
		},
		logger,
	)

	// 5. Серверы
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      engine.NewRouter(gw),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}

	grpcSrv, healthSrv := engine.NewGRPCServer(gw)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		return fmt.Errorf("failed to listen gRPC: %w", err)
	}

	errCh := make(chan error, 3)
	go func() {
		logger.Info("gateway gRPC server started", zap.Int("port", cfg.GRPC.Port))
		errCh <- grpcSrv.Serve(lis)
	}()
	go func() {
		logger.Info("metrics server started", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("gateway HTTP server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 6. Graceful Shutdown
	select {
	case <-appCtx.Done():
	case err := <-errCh:
		logger.Error("server failed, shutting down", zap.Error(err))
	}
	logger.Info("gateway stopping...")
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	// Даем время на завершение запросов (провайдеры отвечают долго)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.RequestTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	_ = metricsSrv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()

	logger.Info("gateway exited properly")
	return nil
}
