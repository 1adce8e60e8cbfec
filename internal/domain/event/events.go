package event

import (
	"time"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// Event names
const (
	NameServerVersionResolved = "server.version_resolved"
	NameArtifactCacheHit      = "artifact.cache_hit"
	NameArtifactDownloaded    = "artifact.downloaded"
	NameChecksumMismatch      = "artifact.checksum_mismatch"
	NameEntrySwept            = "cache.entry_swept"
)

// ServerVersionResolved is raised once the server version has been queried
type ServerVersionResolved struct {
	BaseEvent
	ServerURL string
	Version   string
	Protocol  string
}

// EventName returns the event name
func (e ServerVersionResolved) EventName() string {
	return NameServerVersionResolved
}

// NewServerVersionResolved creates a new ServerVersionResolved event
func NewServerVersionResolved(serverURL, version, protocol string) ServerVersionResolved {
	return ServerVersionResolved{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		ServerURL: serverURL,
		Version:   version,
		Protocol:  protocol,
	}
}

// ArtifactCacheHit is raised when an artifact is served from the cache
type ArtifactCacheHit struct {
	BaseEvent
	Name      string
	Checksum  string
	CachePath string
}

// EventName returns the event name
func (e ArtifactCacheHit) EventName() string {
	return NameArtifactCacheHit
}

// NewArtifactCacheHit creates a new ArtifactCacheHit event
func NewArtifactCacheHit(name, checksum, cachePath string) ArtifactCacheHit {
	return ArtifactCacheHit{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		Name:      name,
		Checksum:  checksum,
		CachePath: cachePath,
	}
}

// ArtifactDownloaded is raised when an artifact has been fetched from the server
type ArtifactDownloaded struct {
	BaseEvent
	Name     string
	Path     string
	Size     int64
	Cached   bool
	Duration time.Duration
}

// EventName returns the event name
func (e ArtifactDownloaded) EventName() string {
	return NameArtifactDownloaded
}

// NewArtifactDownloaded creates a new ArtifactDownloaded event
func NewArtifactDownloaded(name, path string, size int64, cached bool, duration time.Duration) ArtifactDownloaded {
	return ArtifactDownloaded{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		Name:      name,
		Path:      path,
		Size:      size,
		Cached:    cached,
		Duration:  duration,
	}
}

// ChecksumMismatch is raised when the checksum computed on commit differs from
// the one published by the server. The artifact is still used.
type ChecksumMismatch struct {
	BaseEvent
	Name      string
	Expected  string
	Actual    string
	CachePath string
}

// EventName returns the event name
func (e ChecksumMismatch) EventName() string {
	return NameChecksumMismatch
}

// NewChecksumMismatch creates a new ChecksumMismatch event
func NewChecksumMismatch(name, expected, actual, cachePath string) ChecksumMismatch {
	return ChecksumMismatch{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		Name:      name,
		Expected:  expected,
		Actual:    actual,
		CachePath: cachePath,
	}
}

// EntrySwept is raised when the maintenance sweep removes an unused cache entry
type EntrySwept struct {
	BaseEvent
	Name       string
	Checksum   string
	CachePath  string
	Size       int64
	LastUsedAt time.Time
}

// EventName returns the event name
func (e EntrySwept) EventName() string {
	return NameEntrySwept
}

// NewEntrySwept creates a new EntrySwept event
func NewEntrySwept(name, checksum, cachePath string, size int64, lastUsedAt time.Time) EntrySwept {
	return EntrySwept{
		BaseEvent:  BaseEvent{Timestamp: time.Now()},
		Name:       name,
		Checksum:   checksum,
		CachePath:  cachePath,
		Size:       size,
		LastUsedAt: lastUsedAt,
	}
}
