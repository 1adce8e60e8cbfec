package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vertextoedge/batch-bootstrapper/internal/domain/event"
	"github.com/vertextoedge/batch-bootstrapper/internal/port"
)

// Config contains maintenance service configuration
type Config struct {
	// CleanupInterval is how often the sweep runs when started as a loop
	CleanupInterval time.Duration

	// TempFileMaxAge is the maximum age of staging and partial files
	TempFileMaxAge time.Duration

	// EntryMaxAge removes cache entries not used for this long. Zero keeps them.
	EntryMaxAge time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		CleanupInterval: time.Hour,
		TempFileMaxAge:  24 * time.Hour,
		EntryMaxAge:     30 * 24 * time.Hour,
	}
}

// Result summarizes one sweep
type Result struct {
	TempFilesRemoved int
	EntriesRemoved   int
	BytesRemoved     int64
}

// Service sweeps the content cache: stale staging files and entries that the
// usage ledger reports as unused
type Service struct {
	config *Config
	cache  port.ContentCache
	ledger port.UsageLedger
	events event.EventDispatcher
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service. ledger may be nil, then only
// temp files are swept.
func New(cfg *Config, cache port.ContentCache, ledger port.UsageLedger, events event.EventDispatcher, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.TempFileMaxAge == 0 {
		cfg.TempFileMaxAge = 24 * time.Hour
	}
	if events == nil {
		events = event.NewNullDispatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config: cfg,
		cache:  cache,
		ledger: ledger,
		events: events,
		logger: logger,
	}
}

// Start runs the sweep every CleanupInterval until ctx is cancelled or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("cleanup_interval", s.config.CleanupInterval),
		zap.Duration("entry_max_age", s.config.EntryMaxAge))

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	cleanupTicker := time.NewTicker(s.config.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanupTicker.C:
			if _, err := s.RunOnce(); err != nil {
				s.logger.Error("cache sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single sweep. Every step runs even if an earlier one
// fails; the failures are combined in the returned error.
func (s *Service) RunOnce() (*Result, error) {
	result := &Result{}
	if !s.cache.Enabled() {
		return result, nil
	}

	var errs error

	removed, err := s.cache.CleanOldTempFiles(s.config.TempFileMaxAge)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("clean temp files: %w", err))
	}
	result.TempFilesRemoved = removed
	if removed > 0 {
		s.logger.Info("cleaned up old temp files", zap.Int("count", removed))
	}

	errs = multierr.Append(errs, s.sweepUnusedEntries(result))

	if result.EntriesRemoved > 0 {
		s.logger.Info("swept unused cache entries",
			zap.Int("count", result.EntriesRemoved),
			zap.String("freed", humanize.Bytes(uint64(result.BytesRemoved))))
	}
	return result, errs
}

// sweepUnusedEntries removes entries whose last use is older than EntryMaxAge.
// A ledger row is only dropped once its file is gone.
func (s *Service) sweepUnusedEntries(result *Result) error {
	if s.ledger == nil || s.config.EntryMaxAge <= 0 {
		return nil
	}

	cutoff := time.Now().Add(-s.config.EntryMaxAge)
	entries, err := s.ledger.ListUnusedSince(cutoff)
	if err != nil {
		return fmt.Errorf("list unused entries: %w", err)
	}

	var errs error
	for _, entry := range entries {
		if err := s.cache.Remove(entry.Name, entry.Checksum); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("remove %s/%s: %w", entry.Checksum, entry.Name, err))
			continue
		}
		if err := s.ledger.DeleteEntry(entry.Checksum, entry.Name); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("forget %s/%s: %w", entry.Checksum, entry.Name, err))
			continue
		}

		result.EntriesRemoved++
		result.BytesRemoved += entry.Size
		s.events.Dispatch(event.NewEntrySwept(entry.Name, entry.Checksum, entry.Path, entry.Size, entry.LastUsedAt))
	}
	return errs
}
