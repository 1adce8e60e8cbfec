package event

import (
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case ServerVersionResolved:
		h.logger.Info("server version resolved",
			zap.String("server_url", e.ServerURL),
			zap.String("version", e.Version),
			zap.String("protocol", e.Protocol),
		)
	case ArtifactCacheHit:
		h.logger.Debug("artifact found in cache",
			zap.String("name", e.Name),
			zap.String("checksum", e.Checksum),
			zap.String("cache_path", e.CachePath),
		)
	case ArtifactDownloaded:
		h.logger.Debug("artifact downloaded",
			zap.String("name", e.Name),
			zap.String("path", e.Path),
			zap.String("size", humanize.Bytes(uint64(e.Size))),
			zap.Bool("cached", e.Cached),
			zap.Duration("duration", e.Duration),
		)
	case ChecksumMismatch:
		h.logger.Warn("checksum mismatch",
			zap.String("name", e.Name),
			zap.String("expected", e.Expected),
			zap.String("actual", e.Actual),
			zap.String("cache_path", e.CachePath),
		)
	case EntrySwept:
		h.logger.Info("cache entry swept",
			zap.String("name", e.Name),
			zap.String("checksum", e.Checksum),
			zap.String("cache_path", e.CachePath),
			zap.Time("last_used_at", e.LastUsedAt),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *LoggingHandler) HandledEvents() []string {
	return []string{"*"} // Handle all events
}

// StatsHandler counts what happened during a bootstrap
type StatsHandler struct {
	mu                  sync.Mutex
	cacheHits           int64
	artifactsDownloaded int64
	bytesDownloaded     int64
	checksumMismatches  int64
	entriesSwept        int64
	bytesSwept          int64
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler() *StatsHandler {
	return &StatsHandler{}
}

// Handle updates counters based on the event
func (h *StatsHandler) Handle(event DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch e := event.(type) {
	case ArtifactCacheHit:
		h.cacheHits++
	case ArtifactDownloaded:
		h.artifactsDownloaded++
		h.bytesDownloaded += e.Size
	case ChecksumMismatch:
		h.checksumMismatches++
	case EntrySwept:
		h.entriesSwept++
		h.bytesSwept += e.Size
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *StatsHandler) HandledEvents() []string {
	return []string{
		NameArtifactCacheHit,
		NameArtifactDownloaded,
		NameChecksumMismatch,
		NameEntrySwept,
	}
}

// GetStats returns current counters
func (h *StatsHandler) GetStats() map[string]int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return map[string]int64{
		"cache_hits":           h.cacheHits,
		"artifacts_downloaded": h.artifactsDownloaded,
		"bytes_downloaded":     h.bytesDownloaded,
		"checksum_mismatches":  h.checksumMismatches,
		"entries_swept":        h.entriesSwept,
		"bytes_swept":          h.bytesSwept,
	}
}

// RecordingHandler keeps every event it receives, in order
type RecordingHandler struct {
	mu     sync.Mutex
	names  []string
	events []DomainEvent
}

// NewRecordingHandler creates a handler recording the given event names, or all events if none
func NewRecordingHandler(names ...string) *RecordingHandler {
	if len(names) == 0 {
		names = []string{"*"}
	}
	return &RecordingHandler{names: names}
}

// Handle records the event
func (h *RecordingHandler) Handle(event DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}

// HandledEvents returns the events this handler handles
func (h *RecordingHandler) HandledEvents() []string {
	return h.names
}

// Events returns a copy of the recorded events
func (h *RecordingHandler) Events() []DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]DomainEvent, len(h.events))
	copy(out, h.events)
	return out
}
