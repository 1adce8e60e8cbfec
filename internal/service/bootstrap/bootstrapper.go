package bootstrap

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/batch-bootstrapper/internal/adapter/filesystem"
	"github.com/vertextoedge/batch-bootstrapper/internal/adapter/httpfetch"
	"github.com/vertextoedge/batch-bootstrapper/internal/domain"
	"github.com/vertextoedge/batch-bootstrapper/internal/domain/event"
	domainservice "github.com/vertextoedge/batch-bootstrapper/internal/domain/service"
	"github.com/vertextoedge/batch-bootstrapper/internal/port"
)

const tempBootDirPattern = "batch-bootstrap-"

// Config contains bootstrapper settings
type Config struct {
	// ServerURL is the base URL of the analysis server
	ServerURL string

	// ClientToken is appended to the User-Agent
	ClientToken string

	// CacheRoot is the content cache root. Empty disables caching.
	CacheRoot string

	// BootDir receives uncached artifacts. Empty means a temp dir created
	// on the first uncached artifact.
	BootDir string

	// ConnectTimeout and ReadTimeout override the HTTP defaults when set
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Bootstrapper resolves the batch artifacts a server wants its clients to run
type Bootstrapper struct {
	serverURL string
	fetcher   port.Fetcher
	resolver  *Resolver
	events    event.EventDispatcher
	logger    *zap.Logger

	mu            sync.Mutex
	serverVersion string
	versionKnown  bool
}

// New creates a new Bootstrapper from its collaborators. ledger may be nil.
func New(
	serverURL string,
	fetcher port.Fetcher,
	cache port.ContentCache,
	bootDir port.BootDirectory,
	ledger port.UsageLedger,
	events event.EventDispatcher,
	logger *zap.Logger,
) *Bootstrapper {
	if events == nil {
		events = event.NewNullDispatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cache.Enabled() {
		logger.Debug("content cache disabled, artifacts go to the boot directory",
			zap.String("boot_dir", bootDir.Dir()))
	}

	return &Bootstrapper{
		serverURL: serverURL,
		fetcher:   fetcher,
		resolver:  NewResolver(fetcher, cache, bootDir, ledger, events, logger),
		events:    events,
		logger:    logger,
	}
}

// NewFromConfig wires the HTTP fetcher, the content cache and the boot
// directory from cfg
func NewFromConfig(cfg *Config, ledger port.UsageLedger, events event.EventDispatcher, logger *zap.Logger) (*Bootstrapper, error) {
	if cfg == nil || strings.TrimSpace(cfg.ServerURL) == "" {
		return nil, domain.NewBootstrapError("configure", fmt.Errorf("%w: server URL is required", domain.ErrInvalidInput))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var clientCfg *httpfetch.ClientConfig
	if cfg.ConnectTimeout > 0 || cfg.ReadTimeout > 0 {
		clientCfg = &httpfetch.ClientConfig{
			ConnectTimeout: cfg.ConnectTimeout,
			ReadTimeout:    cfg.ReadTimeout,
		}
	}
	fetcher := httpfetch.NewClientWithConfig(cfg.ServerURL, cfg.ClientToken, logger, clientCfg)

	cache, err := filesystem.NewManager(cfg.CacheRoot)
	if err != nil {
		return nil, domain.NewBootstrapError("open content cache", err)
	}

	bootDir := filesystem.NewTempBootDir(tempBootDirPattern)
	if cfg.BootDir != "" {
		bootDir, err = filesystem.NewBootDir(cfg.BootDir)
		if err != nil {
			return nil, domain.NewBootstrapError("create boot directory", err)
		}
	}

	return New(cfg.ServerURL, fetcher, cache, bootDir, ledger, events, logger), nil
}

// Resolve is the one-shot entry point: it bootstraps from serverURL and
// returns the local artifact paths. An empty cacheRoot disables caching.
func Resolve(serverURL, cacheRoot, clientToken string, logger *zap.Logger) ([]string, error) {
	b, err := NewFromConfig(&Config{
		ServerURL:   serverURL,
		ClientToken: clientToken,
		CacheRoot:   cacheRoot,
	}, nil, nil, logger)
	if err != nil {
		return nil, err
	}
	return b.ResolveArtifacts()
}

// ServerVersion queries and memoizes the server version string.
// Failures are not memoized, the next call queries again.
func (b *Bootstrapper) ServerVersion() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.versionKnown {
		return b.serverVersion, nil
	}

	raw, err := b.fetcher.DownloadString(ServerVersionPath)
	if err != nil {
		if domain.IsServerUnreachable(err) {
			b.logger.Error("server can not be reached",
				zap.String("server_url", b.serverURL),
				zap.Error(err))
		}
		return "", err
	}

	b.serverVersion = strings.TrimSpace(raw)
	b.versionKnown = true

	protocol := domainservice.SelectProtocol(b.serverVersion)
	b.logger.Debug("server version",
		zap.String("server_url", b.serverURL),
		zap.String("version", b.serverVersion),
		zap.Stringer("protocol", protocol))
	b.events.Dispatch(event.NewServerVersionResolved(b.serverURL, b.serverVersion, protocol.String()))

	return b.serverVersion, nil
}

// ResolveArtifacts returns the local paths of every batch artifact, in the
// order the server lists them. Every failure is a *domain.BootstrapError.
func (b *Bootstrapper) ResolveArtifacts() ([]string, error) {
	artifacts, err := b.Artifacts()
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(artifacts))
	for i, artifact := range artifacts {
		paths[i] = artifact.Path
	}
	return paths, nil
}

// Artifacts is ResolveArtifacts with the per-artifact details
func (b *Bootstrapper) Artifacts() ([]domain.ResolvedArtifact, error) {
	start := time.Now()

	serverVersion, err := b.ServerVersion()
	if err != nil {
		return nil, domain.NewBootstrapError("query server version", err)
	}

	protocol := domainservice.SelectProtocol(serverVersion)
	artifacts, err := b.resolver.Resolve(protocol)
	if err != nil {
		return nil, domain.NewBootstrapError(fmt.Sprintf("resolve %s batch files", protocol), err)
	}

	fromCache := 0
	for _, artifact := range artifacts {
		if artifact.FromCache {
			fromCache++
		}
	}
	b.logger.Info("batch artifacts resolved",
		zap.String("server_version", serverVersion),
		zap.Stringer("protocol", protocol),
		zap.Int("count", len(artifacts)),
		zap.Int("from_cache", fromCache),
		zap.Duration("duration", time.Since(start)))

	return artifacts, nil
}
