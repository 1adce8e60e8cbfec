package port

import (
	"time"

	"github.com/vertextoedge/batch-bootstrapper/internal/domain"
)

// UsageLedger records when cache entries were last used, so the maintenance
// sweep can remove entries nobody asked for in a while
type UsageLedger interface {
	// RecordUse inserts the entry or refreshes its last_used_at
	RecordUse(entry *domain.CacheEntry) error

	// GetEntry returns the entry for (checksum, name), or domain.ErrNotFound
	GetEntry(checksum, name string) (*domain.CacheEntry, error)

	// ListUnusedSince returns entries whose last use is before cutoff
	ListUnusedSince(cutoff time.Time) ([]*domain.CacheEntry, error)

	// DeleteEntry removes an entry
	DeleteEntry(checksum, name string) error

	// CountEntries returns the number of tracked entries
	CountEntries() (int, error)
}
