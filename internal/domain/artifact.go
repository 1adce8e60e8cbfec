package domain

import "time"

// ArtifactDescriptor is one entry of the server's batch listing.
// An empty Checksum means the server did not publish one.
type ArtifactDescriptor struct {
	Name     string
	Checksum string
}

// HasChecksum returns true if the server published a checksum for the artifact
func (a ArtifactDescriptor) HasChecksum() bool {
	return a.Checksum != ""
}

// Protocol identifies which listing protocol a server speaks
type Protocol int

const (
	// ProtocolIndexed lists name|checksum pairs and enables caching
	ProtocolIndexed Protocol = iota
	// ProtocolLegacy lists comma-separated file names without checksums
	ProtocolLegacy
)

// String returns the protocol name
func (p Protocol) String() string {
	switch p {
	case ProtocolLegacy:
		return "legacy"
	case ProtocolIndexed:
		return "indexed"
	default:
		return "unknown"
	}
}

// ResolvedArtifact is an artifact available on local disk
type ResolvedArtifact struct {
	Descriptor ArtifactDescriptor

	// Path is the local file to hand to the consumer
	Path string

	// Checksum is the checksum computed from the bytes on disk, empty when
	// the artifact was not cached
	Checksum string

	// FromCache is true when no network call was made for the artifact
	FromCache bool
}

// CacheEntry describes a committed cache file, as tracked by the usage ledger
type CacheEntry struct {
	Checksum   string
	Name       string
	Path       string
	Size       int64
	CreatedAt  time.Time
	LastUsedAt time.Time
}
