package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/locushq/catchment-api/config"
	"github.com/locushq/catchment-api/internal/adapters/lepton"
	"github.com/locushq/catchment-api/internal/adapters/worker"
	"github.com/locushq/catchment-api/internal/core"
	"github.com/locushq/catchment-api/internal/data"
	domainjob "github.com/locushq/catchment-api/internal/domain/job"
	"github.com/locushq/catchment-api/internal/domain/schema"
	"github.com/locushq/catchment-api/internal/observability/notify/webhook"
	"github.com/locushq/catchment-api/internal/observability/statsd"
	"github.com/locushq/catchment-api/internal/ports"
	"github.com/locushq/catchment-api/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs     *service.JobService
	Broker   *service.StatusBroker
	Quota    core.QuotaKeeper
	Verifier ports.TokenVerifier

	JobRepo       *data.JobRepo
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink *statsd.Client
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures the metrics adapter.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.StatsdAddress,
			Prefix:  cfg.MetricPrefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{MetricsSink: metricsSink}
}

// buildQuotaKeeper wires the Redis-backed allocation tracker, or nil when
// quota accounting is disabled.
func buildQuotaKeeper(deps *ServiceDeps) core.QuotaKeeper {
	if deps.Config == nil || !deps.Config.Quota.Enabled || deps.RedisClient == nil {
		return nil
	}
	return data.NewRedisQuotaRepo(
		deps.RedisClient,
		deps.Config.Quota.MonthlyAllocation,
		&data.RealTimeProvider{},
	)
}

// NewServices wires repositories and business services.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil {
		return ServiceContainer{}, errors.New("service dependencies are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := deps.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	observability := buildObservability(logger, appCfg.Observability)
	jobRepo := data.NewJobRepo(deps.DB, data.RepoConfig{Logger: logger})
	quota := buildQuotaKeeper(deps)
	broker := service.NewStatusBroker()

	jobService, err := service.NewJobService(service.JobServiceOptions{
		Repo:   jobRepo,
		Broker: broker,
		Quota:  quota,
		Limits: schema.Limits{
			MaxFileBytes: appCfg.Upload.MaxFileBytes,
			MaxRows:      appCfg.Upload.MaxRows,
		},
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build job service: %w", err)
	}

	verifier, err := BuildTokenVerifier(ctx, appCfg.Auth, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	return ServiceContainer{
		Jobs:          jobService,
		Broker:        broker,
		Quota:         quota,
		Verifier:      verifier,
		JobRepo:       jobRepo,
		Observability: observability,
	}, nil
}

// buildStatusSinks assembles the worker's event destinations: the in-process
// broker always, the webhook only when configured. The broker sink is
// in-process only, so SSE subscribers must share a process with the worker
// that completes their job. When SERVICES splits http and worker into
// separate processes, clients needing completion signals use the status
// endpoint or the webhook, not the event stream.
func buildStatusSinks(cfg *config.AppConfig, services ServiceContainer, logger *slog.Logger) ([]core.StatusSink, error) {
	sinks := []core.StatusSink{service.BrokerSink{Broker: services.Broker}}

	if cfg.Webhook.URL != "" {
		client, err := webhook.NewClient(webhook.Config{
			URL:        cfg.Webhook.URL,
			Timeout:    cfg.Webhook.Timeout,
			RetryLimit: cfg.Webhook.RetryLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("build webhook client: %w", err)
		}
		sinks = append(sinks, service.NotifySink{Sink: client})
		logger.Info("completion webhook enabled")
	}

	return sinks, nil
}

// WorkerRunConfig groups dependencies for the processing worker.
type WorkerRunConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunWorker builds and runs the processing worker until ctx is cancelled.
func RunWorker(ctx context.Context, cfg WorkerRunConfig) error {
	if cfg.Config == nil {
		return errors.New("worker requires AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	geo, err := lepton.NewClient(lepton.Config{
		BaseURL:           cfg.Config.Provider.BaseURL,
		APIKey:            cfg.Config.Provider.APIKey,
		Timeout:           cfg.Config.Provider.Timeout,
		RetryLimit:        cfg.Config.Provider.RetryLimit,
		RetryBackoff:      cfg.Config.Provider.RetryBackoff,
		AccuracyTimeBased: cfg.Config.Provider.AccuracyTimeBased,
	})
	if err != nil {
		return fmt.Errorf("build geo client: %w", err)
	}

	sinks, err := buildStatusSinks(cfg.Config, cfg.Services, logger)
	if err != nil {
		return err
	}

	var metricsSink statsd.Sink
	if cfg.Services.Observability.MetricsSink != nil {
		metricsSink = cfg.Services.Observability.MetricsSink
	}

	runner, err := worker.NewRunner(worker.RunnerOptions{
		Repo:  cfg.Services.JobRepo,
		Geo:   geo,
		Quota: cfg.Services.Quota,
		Sinks: sinks,
		NotifierOptions: domainjob.NotifierOptions{
			Waiter:     cfg.Services.JobRepo,
			WaitWindow: cfg.Config.Worker.NotifyWaitWindow,
		},
		Logger:  logger,
		Metrics: metricsSink,
		Limits: schema.Limits{
			MaxFileBytes: cfg.Config.Upload.MaxFileBytes,
			MaxRows:      cfg.Config.Upload.MaxRows,
		},
		Instances:      cfg.Config.Worker.Instances,
		RowConcurrency: cfg.Config.Worker.RowConcurrency,
		BaseURL:        cfg.Config.HTTP.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("build worker: %w", err)
	}

	return runner.Run(ctx)
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// RunServicesWithShutdown starts all enabled services and manages their
// lifecycle. It blocks until a shutdown signal arrives or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, len(enabledServices)+1)

	var httpServer *http.Server
	if enabledServices[config.ServiceModeHTTP] {
		httpServer = StartHTTPServer(&HTTPServerConfig{
			Config:   cfg.Config,
			Services: cfg.Services,
			Logger:   logger,
		})
	}

	var workerDone <-chan struct{}
	if enabledServices[config.ServiceModeWorker] {
		done := make(chan struct{})
		go func() {
			defer close(done)
			if runErr := RunWorker(serviceCtx, WorkerRunConfig{
				Config:   cfg.Config,
				Services: cfg.Services,
				Logger:   logger,
			}); runErr != nil && !errors.Is(runErr, context.Canceled) {
				select {
				case errCh <- fmt.Errorf("worker failed: %w", runErr):
				default:
				}
			}
		}()
		workerDone = done
		logger.Info("background service started", "service", "worker")
	}

	return waitForShutdown(shutdownConfig{
		ctx:        serviceCtx,
		cancel:     cancel,
		errCh:      errCh,
		httpServer: httpServer,
		workerDone: workerDone,
		logger:     logger,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx        context.Context
	cancel     context.CancelFunc
	errCh      <-chan error
	httpServer *http.Server
	workerDone <-chan struct{}
	logger     *slog.Logger
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	if cfg.workerDone != nil {
		select {
		case <-cfg.workerDone:
			cfg.logger.Info("worker stopped")
		case <-time.After(shutdownWaitTimeout):
			cfg.logger.Warn("timeout waiting for worker to stop")
		}
	}

	return nil
}
