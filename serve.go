package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"stylizer/api"
	"stylizer/core"
	"stylizer/core/validation"
	"stylizer/db"
	"stylizer/logging"
	"stylizer/metrics"
	"stylizer/sdruntime"
	"stylizer/shutdown"
)

// runServe loads the configuration, wires every component and serves until
// ctx is cancelled or a shutdown signal arrives. It returns the process exit
// code and the error that caused a non-zero code, if any.
func runServe(ctx context.Context) (int, error) {
	cfg, err := core.LoadConfig()
	if err != nil {
		return core.ExitCodeFor(err), err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return core.ExitCodeError, err
	}
	defer func() { _ = logger.Sync() }()
	zl := logger.Zap()

	logger.Info("Starting stylizer",
		zap.String("version", core.GetVersionInfo()),
		zap.String("addr", cfg.Addr()),
		zap.String("runtime_url", cfg.SD.RuntimeURL),
		zap.String("device", cfg.SD.Device),
		zap.String("max_content_length", core.FormatBytes(cfg.MaxContentLength)),
		zap.String("database", cfg.DatabasePath),
		zap.Bool("dev_mode", cfg.DevMode),
	)

	quick := validation.NewValidationSuite(cfg).
		WithShowProgress(false).
		ValidateQuick(ctx)
	if !quick.Success {
		for _, step := range quick.Steps {
			if step.Status == validation.StepFailed {
				logger.Error("Startup check failed",
					zap.String("step", step.Name),
					zap.String("message", step.Message),
					zap.Error(step.Error),
				)
			}
		}
		return core.ExitCodeConfig, quick.GetFirstError()
	}

	manager := shutdown.NewManager(zl, shutdown.WithTimeout(cfg.ShutdownTimeout))
	manager.Start()
	go func() {
		select {
		case <-ctx.Done():
			manager.Trigger("service stop")
		case <-manager.Context().Done():
		}
	}()

	srv, warmup, err := buildServer(manager, cfg, zl)
	if err != nil {
		logger.Error("Startup failed", zap.Error(err))
		_ = manager.Shutdown()
		return core.ExitCodeFor(err), err
	}

	g, gctx := errgroup.WithContext(manager.Context())
	g.Go(func() error {
		if err := srv.Start(); err != nil {
			manager.Trigger("http server failed")
			return err
		}
		return nil
	})
	g.Go(func() error {
		warmup(gctx)
		return nil
	})

	<-manager.Context().Done()
	shutdownErr := manager.Shutdown()
	serveErr := g.Wait()

	if serveErr != nil {
		logger.Error("Server stopped with error", zap.Error(serveErr))
		return core.ExitCodeError, serveErr
	}
	if shutdownErr != nil {
		return core.ExitCodeError, shutdownErr
	}

	code := manager.ExitCode()
	logger.Info("Goodbye", zap.String("exit", core.ExitCodeName(code)))
	return code, nil
}

func newLogger(cfg *core.Config) (*logging.Logger, error) {
	lc := logging.Config{
		Development: cfg.DevMode,
		FilePath:    cfg.LogFile,
	}
	if cfg.LogLevel != "" {
		def := zapcore.InfoLevel
		if cfg.DevMode {
			def = zapcore.DebugLevel
		}
		level := logging.ParseLogLevelString(cfg.LogLevel, def)
		lc.Level = &level
	}
	return logging.NewLogger(lc)
}

// buildServer creates the history store, the runtime client, the generator
// and the HTTP server, registering each closable part with manager. The
// returned warmup function loads the pipelines in the background.
func buildServer(manager *shutdown.Manager, cfg *core.Config, logger *zap.Logger) (*api.Server, func(context.Context), error) {
	ctx := manager.Context()

	if err := cfg.EnsureFolders(); err != nil {
		return nil, nil, err
	}
	shutdown.RemoveUploads(ctx, logger, cfg.InputFolder)
	manager.Register("cleanup-uploads", shutdown.PriorityUploads, shutdown.CleanupUploads(logger, cfg.InputFolder))

	history, err := openHistory(ctx, manager, cfg, logger.Named("history"))
	if err != nil {
		return nil, nil, err
	}

	sd := cfg.SD
	styles, err := sdruntime.LoadStyles(sd.StylesFile)
	if err != nil {
		return nil, nil, &core.ConfigError{
			Code:    core.ErrCodeInvalidValue,
			Message: err.Error(),
			Action:  "Fix or remove STYLES_FILE",
		}
	}

	runtime := sdruntime.NewRemoteRuntime(sd.RuntimeURL, sd.Models, nil, sd.Timeout)
	device := selectDevice(ctx, runtime, sd, logger)
	pipelines := sdruntime.NewPipelines(runtime.Load)
	generator := sdruntime.NewGenerator(pipelines, sdruntime.GeneratorConfig{
		Device:       device,
		Styles:       styles,
		OutputWidth:  sd.OutputWidth,
		OutputHeight: sd.OutputHeight,
	}, logger.Named("generator"))

	verifier, err := api.NewKeyVerifier(cfg.APIKey, cfg.APIKeyHash)
	if err != nil {
		return nil, nil, &core.ConfigError{
			Code:    core.ErrCodeMissingAuth,
			Message: err.Error(),
			Action:  "Set API_KEY or a bcrypt API_KEY_HASH",
		}
	}
	limiter := api.NewFailureLimiter(0, 0, 0)
	limiter.StartCleanupTicker(ctx, time.Minute)

	if cfg.DevMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	deps := api.Deps{
		Generator:  generator,
		Pipelines:  pipelines,
		Metrics:    metrics.NewStore(metrics.StoreConfig{Version: core.GetVersion()}, time.Now()),
		Verifier:   verifier,
		Limiter:    limiter,
		Operations: manager,
	}
	if history != nil {
		deps.History = history
	}

	srv, err := api.NewServer(cfg, deps, logger.Named("api"))
	if err != nil {
		return nil, nil, err
	}
	manager.Register("http-server", shutdown.PriorityHTTPServer, srv.Shutdown)
	manager.Register("logger", shutdown.PriorityLogger, func(context.Context) error {
		_ = logger.Sync()
		return nil
	})

	warmup := func(ctx context.Context) {
		start := time.Now()
		if err := pipelines.EnsureReady(ctx, device); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Warn("Pipeline warmup failed, loading will be retried on the next request",
					zap.Error(err),
				)
			}
			return
		}
		logger.Info("Pipelines ready",
			zap.String("device", string(device)),
			zap.Duration("duration", time.Since(start)),
		)
	}

	return srv, warmup, nil
}

// openHistory opens and migrates the history database. A database that
// cannot be opened disables history instead of failing startup.
func openHistory(ctx context.Context, manager *shutdown.Manager, cfg *core.Config, logger *zap.Logger) (*db.Repository, error) {
	database, err := db.NewDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		logger.Warn("Generation history disabled", zap.String("path", cfg.DatabasePath), zap.Error(err))
		return nil, nil
	}
	if err := database.Migrate(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("migrate %s: %w", cfg.DatabasePath, err)
	}

	writer := db.NewRepositoryWriter(database, db.AsyncWriterConfig{Logger: logger})
	writer.Start()

	manager.Register("history-writer", shutdown.PriorityHistoryWriter, writer.Stop)
	manager.Register("database", shutdown.PriorityDatabase, func(context.Context) error {
		return database.Close()
	})

	database.StartCleanupScheduler(ctx, db.CleanupSchedulerConfig{
		Retention: cfg.HistoryRetention(),
		OnCleanup: func(result db.CleanupResult, err error) {
			if err != nil {
				logger.Warn("History cleanup failed", zap.Error(err))
				return
			}
			if result.Deleted > 0 {
				logger.Info("History cleanup complete",
					zap.Int64("deleted", result.Deleted),
					zap.Time("cutoff", result.Cutoff),
				)
			}
		},
	})

	return db.NewRepository(database, writer), nil
}

// selectDevice waits for the runtime and resolves SD_DEVICE. When the
// runtime does not answer in time an explicit device is kept and "auto"
// falls back to CPU.
func selectDevice(ctx context.Context, runtime *sdruntime.RemoteRuntime, sd *sdruntime.SDConfig, logger *zap.Logger) sdruntime.Device {
	readyCtx, cancel := context.WithTimeout(ctx, sd.ReadyTimeout)
	defer cancel()

	preference := sdruntime.Device(sd.Device)
	if err := runtime.WaitUntilReady(readyCtx, 2*time.Second); err != nil {
		logger.Warn("Diffusion runtime not reachable",
			zap.String("url", sd.RuntimeURL),
			zap.Duration("waited", sd.ReadyTimeout),
			zap.Error(err),
		)
	}

	device, err := sdruntime.SelectDevice(readyCtx, preference, runtime)
	if err != nil {
		logger.Warn("Device probe failed, using CPU", zap.Error(err))
	}
	if device == sdruntime.DeviceCPU && preference != sdruntime.DeviceCPU {
		logger.Warn("CUDA not available, generation will run on CPU")
	}
	return device
}
