package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"polysentry/internal/clob"
	"polysentry/internal/config"
	"polysentry/internal/cycle"
	"polysentry/internal/gamma"
	"polysentry/internal/metrics"
	"polysentry/internal/notify"
	"polysentry/internal/opsserver"
	"polysentry/internal/publisher"
	"polysentry/internal/supervisor"
	redisclient "polysentry/pkg/redis"
)

// PolySentry is the top-level application: config, logger, the poll-detect-
// alert cycle, and the supervised ops server.
type PolySentry struct {
	config       *config.Config
	logger       *zap.Logger
	orchestrator *cycle.Orchestrator
	metrics      *metrics.PrometheusMetrics
	opsServer    *opsserver.Server
	redisPub     *publisher.RedisPublisher
	supervisor   *supervisor.Supervisor

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	fmt.Println("🚨 PolySentry - prediction-market anomaly surveillance")

	app := &PolySentry{}

	if err := app.initialize(); err != nil {
		fmt.Printf("❌ failed to initialize: %v\n", err)
		os.Exit(1)
	}

	if err := app.start(); err != nil {
		fmt.Printf("❌ failed to start: %v\n", err)
		os.Exit(1)
	}

	app.waitForShutdown()

	if err := app.shutdown(); err != nil {
		fmt.Printf("❌ error during shutdown: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ PolySentry stopped gracefully")
}

func (app *PolySentry) initialize() error {
	var err error
	app.ctx, app.cancel = context.WithCancel(context.Background())

	app.logger, err = setupLogger()
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}

	app.logger.Info("initializing polysentry")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app.config = cfg

	for _, w := range cfg.Warnings {
		app.logger.Warn("config warning", zap.String("warning", w))
	}

	app.logger.Info("configuration loaded",
		zap.Int("slugs", len(cfg.Slugs)),
		zap.Int("poll_interval", cfg.PollInterval))

	gammaClient := gamma.New(app.logger)

	app.logger.Info("validating tracked slugs")
	validSlugs := gammaClient.ValidateSlugs(app.ctx, cfg.Slugs)
	if len(validSlugs) == 0 {
		return fmt.Errorf("no slugs validated against the event-snapshot feed")
	}
	cfg.Slugs = validSlugs

	clobClient := clob.New(app.logger)
	app.metrics = metrics.NewPrometheusMetrics()

	notifier := notify.New(cfg.Telegram.BotToken, cfg.Telegram.ChatID, app.logger)

	if addr, ok := os.LookupEnv("REDIS_ADDR"); ok {
		rdb, err := redisclient.NewClient(redisclient.ClientConfig{Addr: addr, PoolSize: 10, MaxRetries: 3}, app.logger)
		if err != nil {
			app.logger.Warn("redis unavailable, alert fan-out disabled", zap.Error(err))
		} else {
			app.redisPub = publisher.NewRedisPublisher(rdb, app.logger)
		}
	}

	app.opsServer = opsserver.New(opsAddr(), app.logger)

	sink := cycle.NewNotifySink(notifier, app.redisPub, app.opsServer, app.metrics, app.logger)
	app.orchestrator = cycle.New(cfg, gammaClient, clobClient, sink, app.metrics, app.logger)

	app.logger.Info("core components initialized")
	return nil
}

func setupLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg.OutputPaths = []string{"stdout"}
	return cfg.Build()
}

// loadConfig tries configs/config.yaml next to the executable, falling back
// to environment-only configuration.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader()

	execPath, err := os.Executable()
	if err == nil {
		configPath := filepath.Join(filepath.Dir(execPath), "configs", "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			return loader.LoadFile(configPath)
		}
	}

	if path, ok := os.LookupEnv("POLYSENTRY_CONFIG"); ok {
		return loader.LoadFile(path)
	}

	return loader.LoadFromEnv()
}

func opsAddr() string {
	port := "8900"
	if v, ok := os.LookupEnv("OPS_PORT"); ok {
		port = v
	}
	return ":" + port
}

func (app *PolySentry) start() error {
	app.logger.Info("starting polysentry")

	metricsPort := "9090"
	if v, ok := os.LookupEnv("METRICS_PORT"); ok {
		metricsPort = v
	}
	if err := app.metrics.Start(metricsPort); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	app.supervisor = supervisor.NewSupervisor(app.logger)
	err := app.supervisor.AddWorker(supervisor.WorkerConfig{
		Name:           "ops-server",
		MaxRetries:     0,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}, func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() { errCh <- app.opsServer.Run() }()
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		}
	})
	if err != nil {
		return fmt.Errorf("register ops server worker: %w", err)
	}
	if err := app.supervisor.Start(); err != nil {
		return fmt.Errorf("start supervisor: %w", err)
	}

	go app.runCycleLoop()

	app.printStartupSummary()
	return nil
}

// runCycleLoop runs one cycle, then sleeps poll_interval seconds in 1s
// slices so a shutdown is observed within roughly a second.
func (app *PolySentry) runCycleLoop() {
	for {
		select {
		case <-app.ctx.Done():
			return
		default:
		}

		app.orchestrator.Run(app.ctx, time.Now())

		remaining := app.config.PollInterval
		for remaining > 0 {
			select {
			case <-app.ctx.Done():
				return
			case <-time.After(1 * time.Second):
				remaining--
			}
		}
	}
}

func (app *PolySentry) printStartupSummary() {
	fmt.Println("🎉 polysentry started")
	fmt.Printf("📡 tracking %d slug(s), polling every %ds\n", len(app.config.Slugs), app.config.PollInterval)
	fmt.Printf("🔌 ops server on %s\n", opsAddr())
}

func (app *PolySentry) waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	app.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
}

func (app *PolySentry) shutdown() error {
	app.logger.Info("shutting down polysentry")
	app.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.supervisor.Stop(); err != nil {
		app.logger.Error("error stopping supervisor", zap.Error(err))
	}
	if err := app.opsServer.Stop(ctx); err != nil {
		app.logger.Error("error stopping ops server", zap.Error(err))
	}
	if err := app.metrics.Stop(); err != nil {
		app.logger.Error("error stopping metrics server", zap.Error(err))
	}
	if app.redisPub != nil {
		if err := app.redisPub.Close(); err != nil {
			app.logger.Error("error closing redis publisher", zap.Error(err))
		}
	}

	app.logger.Info("shutdown complete")
	return nil
}
