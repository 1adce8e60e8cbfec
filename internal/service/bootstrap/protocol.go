package bootstrap

import (
	"fmt"
	"io"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/batch-bootstrapper/internal/domain"
	"github.com/vertextoedge/batch-bootstrapper/internal/domain/event"
	"github.com/vertextoedge/batch-bootstrapper/internal/port"
)

// Server endpoints
const (
	ServerVersionPath = "/api/server/version"
	LegacyListPath    = "/batch/"
	IndexPath         = "/batch_bootstrap/index"
	batchFilePrefix   = "/batch/"
)

// BatchFilePath returns the download path of a single artifact
func BatchFilePath(name string) string {
	return batchFilePrefix + url.PathEscape(name)
}

// Resolver turns a server listing into local files, one artifact at a time
type Resolver struct {
	fetcher port.Fetcher
	cache   port.ContentCache
	bootDir port.BootDirectory
	ledger  port.UsageLedger
	events  event.EventDispatcher
	logger  *zap.Logger
}

// NewResolver creates a new Resolver. ledger may be nil.
func NewResolver(
	fetcher port.Fetcher,
	cache port.ContentCache,
	bootDir port.BootDirectory,
	ledger port.UsageLedger,
	events event.EventDispatcher,
	logger *zap.Logger,
) *Resolver {
	if events == nil {
		events = event.NewNullDispatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		fetcher: fetcher,
		cache:   cache,
		bootDir: bootDir,
		ledger:  ledger,
		events:  events,
		logger:  logger,
	}
}

// Resolve runs the listing protocol selected for the server
func (r *Resolver) Resolve(protocol domain.Protocol) ([]domain.ResolvedArtifact, error) {
	switch protocol {
	case domain.ProtocolLegacy:
		return r.ResolveLegacy()
	case domain.ProtocolIndexed:
		return r.ResolveIndexed()
	default:
		return nil, fmt.Errorf("%w: unknown protocol %d", domain.ErrInvalidInput, protocol)
	}
}

// ResolveLegacy downloads every file of the comma-separated listing straight
// into the boot directory. Nothing is cached.
func (r *Resolver) ResolveLegacy() ([]domain.ResolvedArtifact, error) {
	body, err := r.fetcher.DownloadString(LegacyListPath)
	if err != nil {
		return nil, fmt.Errorf("fetch batch file list: %w", err)
	}

	names := ParseLegacyList(body)
	r.logger.Debug("legacy batch file list",
		zap.Int("count", len(names)),
		zap.String("boot_dir", r.bootDir.Dir()))

	resolved := make([]domain.ResolvedArtifact, 0, len(names))
	for _, name := range names {
		artifact, err := r.downloadToBootDir(domain.ArtifactDescriptor{Name: name})
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, artifact)
	}
	return resolved, nil
}

// ResolveIndexed fetches the name|checksum index and resolves every entry
// through the cache. Any failed download aborts the whole resolution.
func (r *Resolver) ResolveIndexed() ([]domain.ResolvedArtifact, error) {
	body, err := r.fetcher.DownloadString(IndexPath)
	if err != nil {
		return nil, fmt.Errorf("fetch batch index: %w", err)
	}

	descriptors := ParseIndex(body)
	r.logger.Debug("batch index",
		zap.Int("count", len(descriptors)),
		zap.Bool("cache_enabled", r.cache.Enabled()))

	resolved := make([]domain.ResolvedArtifact, 0, len(descriptors))
	for _, desc := range descriptors {
		artifact, err := r.resolveEntry(desc)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, artifact)
	}
	return resolved, nil
}

func (r *Resolver) resolveEntry(desc domain.ArtifactDescriptor) (domain.ResolvedArtifact, error) {
	if !desc.HasChecksum() {
		r.logger.Warn("index entry has no checksum, not caching", zap.String("name", desc.Name))
		return r.downloadToBootDir(desc)
	}
	if !r.cache.Enabled() {
		return r.downloadToBootDir(desc)
	}

	if cachePath, ok := r.cache.Lookup(desc.Name, desc.Checksum); ok {
		r.recordUse(&domain.CacheEntry{Checksum: desc.Checksum, Name: desc.Name, Path: cachePath})
		r.events.Dispatch(event.NewArtifactCacheHit(desc.Name, desc.Checksum, cachePath))
		return domain.ResolvedArtifact{
			Descriptor: desc,
			Path:       cachePath,
			Checksum:   desc.Checksum,
			FromCache:  true,
		}, nil
	}

	return r.downloadToCache(desc)
}

func (r *Resolver) downloadToCache(desc domain.ArtifactDescriptor) (domain.ResolvedArtifact, error) {
	start := time.Now()

	staging, err := r.cache.Stage()
	if err != nil {
		return domain.ResolvedArtifact{}, fmt.Errorf("stage %s: %w", desc.Name, err)
	}

	if _, err := r.fetcher.DownloadFile(BatchFilePath(desc.Name), staging); err != nil {
		if discardErr := r.cache.Discard(staging); discardErr != nil {
			r.logger.Warn("failed to discard staging file",
				zap.String("path", staging.Path),
				zap.Error(discardErr))
		}
		return domain.ResolvedArtifact{}, fmt.Errorf("download %s: %w", desc.Name, err)
	}

	cachePath, checksum, size, err := r.cache.Commit(staging, desc.Name)
	if err != nil {
		return domain.ResolvedArtifact{}, fmt.Errorf("cache %s: %w", desc.Name, err)
	}

	if checksum != desc.Checksum {
		r.logger.Warn("INVALID CHECKSUM: file was expected to have a different checksum",
			zap.String("name", desc.Name),
			zap.String("expected", desc.Checksum),
			zap.String("actual", checksum),
			zap.String("cache_path", cachePath))
		r.events.Dispatch(event.NewChecksumMismatch(desc.Name, desc.Checksum, checksum, cachePath))
	}

	r.recordUse(&domain.CacheEntry{Checksum: checksum, Name: desc.Name, Path: cachePath, Size: size})
	r.events.Dispatch(event.NewArtifactDownloaded(desc.Name, cachePath, size, true, time.Since(start)))

	return domain.ResolvedArtifact{
		Descriptor: desc,
		Path:       cachePath,
		Checksum:   checksum,
	}, nil
}

func (r *Resolver) downloadToBootDir(desc domain.ArtifactDescriptor) (domain.ResolvedArtifact, error) {
	start := time.Now()

	path, size, err := r.bootDir.Write(desc.Name, func(w io.Writer) (int64, error) {
		return r.fetcher.DownloadFile(BatchFilePath(desc.Name), w)
	})
	if err != nil {
		return domain.ResolvedArtifact{}, fmt.Errorf("download %s: %w", desc.Name, err)
	}

	r.events.Dispatch(event.NewArtifactDownloaded(desc.Name, path, size, false, time.Since(start)))

	return domain.ResolvedArtifact{
		Descriptor: desc,
		Path:       path,
	}, nil
}

// recordUse updates the usage ledger. The cache tree is the source of truth,
// so ledger failures only warn.
func (r *Resolver) recordUse(entry *domain.CacheEntry) {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.RecordUse(entry); err != nil {
		r.logger.Warn("failed to record cache entry use",
			zap.String("name", entry.Name),
			zap.String("checksum", entry.Checksum),
			zap.Error(err))
	}
}
