package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/vertextoedge/batch-bootstrapper/internal/adapter/filesystem"
	"github.com/vertextoedge/batch-bootstrapper/internal/adapter/sqlite"
	"github.com/vertextoedge/batch-bootstrapper/internal/config"
	"github.com/vertextoedge/batch-bootstrapper/internal/domain"
	"github.com/vertextoedge/batch-bootstrapper/internal/domain/event"
	"github.com/vertextoedge/batch-bootstrapper/internal/logger"
	"github.com/vertextoedge/batch-bootstrapper/internal/port"
	"github.com/vertextoedge/batch-bootstrapper/internal/service/bootstrap"
	"github.com/vertextoedge/batch-bootstrapper/internal/service/maintenance"
	"github.com/vertextoedge/batch-bootstrapper/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Parse command line flags
	configPath := pflag.String("config", "", "Path to configuration file (optional)")
	sweep := pflag.Bool("sweep", false, "Sweep stale staging files and unused cache entries after resolving")
	sweepLoop := pflag.Bool("sweep-loop", false, "Keep running after resolving and sweep every cleanup interval until interrupted")
	showVersion := pflag.Bool("version", false, "Print the version and exit")
	config.RegisterFlags(pflag.CommandLine)
	pflag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", version.ProductToken, version.Version)
		return 0
	}

	// Load configuration
	cfg, err := config.Load(*configPath, pflag.CommandLine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	zapLogger := logger.GetZapLogger()
	zapLogger.Debug("starting batch-bootstrapper",
		zap.String("version", version.Version),
		zap.String("server_url", cfg.Server.URL),
		zap.String("cache_dir", cfg.Cache.CacheRoot()))

	stats := event.NewStatsHandler()
	dispatcher := event.NewInMemoryDispatcher(false)
	dispatcher.Subscribe(event.NewLoggingHandler(zapLogger))
	dispatcher.Subscribe(stats)

	// Open the usage ledger when configured
	var ledger port.UsageLedger
	if cfg.Ledger.Path != "" {
		store, err := sqlite.Open(cfg.Ledger.Path)
		if err != nil {
			zapLogger.Error("failed to open usage ledger", zap.Error(err), zap.String("path", cfg.Ledger.Path))
			return 1
		}
		defer store.Close()
		ledger = store
	}

	bootstrapper, err := bootstrap.NewFromConfig(&bootstrap.Config{
		ServerURL:      cfg.Server.URL,
		ClientToken:    cfg.Server.ClientToken,
		CacheRoot:      cfg.Cache.CacheRoot(),
		BootDir:        cfg.Cache.BootDir,
		ConnectTimeout: cfg.Server.GetConnectTimeout(),
		ReadTimeout:    cfg.Server.GetReadTimeout(),
	}, ledger, dispatcher, zapLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize bootstrapper: %v\n", err)
		return 1
	}

	paths, err := bootstrapper.ResolveArtifacts()
	if err != nil {
		if domain.IsServerUnreachable(err) {
			fmt.Fprintf(os.Stderr, "Server %s can not be reached. Please check the server URL and that the server is running.\n", cfg.Server.URL)
		} else {
			fmt.Fprintf(os.Stderr, "Failed to bootstrap batch artifacts: %v\n", err)
		}
		return 1
	}

	for _, path := range paths {
		fmt.Println(path)
	}

	if *sweep {
		if err := runSweep(cfg, ledger, dispatcher, zapLogger); err != nil {
			zapLogger.Warn("cache sweep finished with errors", zap.Error(err))
		}
	}
	zapLogger.Debug("bootstrap stats", zap.Any("stats", stats.GetStats()))

	if *sweepLoop {
		if err := runSweepLoop(cfg, ledger, zapLogger); err != nil {
			zapLogger.Error("cache sweep loop failed", zap.Error(err))
			return 1
		}
	}
	return 0
}

func newSweepService(cfg *config.Config, ledger port.UsageLedger, dispatcher event.EventDispatcher, zapLogger *zap.Logger) (*maintenance.Service, error) {
	cache, err := filesystem.NewManager(cfg.Cache.CacheRoot())
	if err != nil {
		return nil, err
	}

	return maintenance.New(&maintenance.Config{
		CleanupInterval: cfg.Maintenance.GetCleanupInterval(),
		TempFileMaxAge:  cfg.Maintenance.GetTempFileMaxAge(),
		EntryMaxAge:     cfg.Maintenance.GetEntryMaxAge(),
	}, cache, ledger, dispatcher, zapLogger), nil
}

func runSweep(cfg *config.Config, ledger port.UsageLedger, dispatcher event.EventDispatcher, zapLogger *zap.Logger) error {
	service, err := newSweepService(cfg, ledger, dispatcher, zapLogger)
	if err != nil {
		return err
	}
	_, err = service.RunOnce()
	return err
}

// runSweepLoop sweeps the cache periodically until SIGINT or SIGTERM
func runSweepLoop(cfg *config.Config, ledger port.UsageLedger, zapLogger *zap.Logger) error {
	if cfg.Cache.Disabled {
		return fmt.Errorf("sweep loop needs the content cache enabled")
	}

	// Sweep events are only logged, so handlers need not block the loop
	dispatcher := event.NewInMemoryDispatcher(true)
	dispatcher.Subscribe(event.NewLoggingHandler(zapLogger))
	defer dispatcher.Wait()

	service, err := newSweepService(cfg, ledger, dispatcher, zapLogger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer service.Stop()

	return service.Start(ctx)
}
