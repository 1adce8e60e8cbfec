package port

import (
	"io"
	"time"
)

// StagingFile is a temporary file holding downloaded bytes before commit.
// It never lives at a path returned by ContentCache.Lookup.
type StagingFile struct {
	Path   string
	Writer io.WriteCloser
}

// Write writes to the underlying staging file
func (s *StagingFile) Write(p []byte) (int, error) {
	return s.Writer.Write(p)
}

// Close closes the underlying staging file
func (s *StagingFile) Close() error {
	return s.Writer.Close()
}

// ContentCache defines the content-addressed artifact cache
type ContentCache interface {
	// Enabled returns false when no cache root is configured; a disabled
	// cache always misses and never commits
	Enabled() bool

	// RootDir returns the cache root directory
	RootDir() string

	// CachePath returns <root>/<checksum>/<name>
	CachePath(name, checksum string) string

	// Lookup returns the cache path if an entry for (name, checksum) exists.
	// Content is not verified.
	Lookup(name, checksum string) (string, bool)

	// Stage allocates a fresh staging file outside the cache entries
	Stage() (*StagingFile, error)

	// Commit computes the checksum of the staged content and moves it to
	// <root>/<computedChecksum>/<name>. The staging file is consumed.
	// Returns: cache path, computed checksum, size, error
	Commit(staging *StagingFile, name string) (string, string, int64, error)

	// Discard closes and removes a staging file
	Discard(staging *StagingFile) error

	// Remove deletes a cache entry and its directory when empty
	Remove(name, checksum string) error

	// CleanOldTempFiles removes staging files older than the specified duration
	// Returns the number of files deleted
	CleanOldTempFiles(olderThan time.Duration) (int, error)

	// Size returns total size of cached files
	Size() (int64, error)
}

// BootDirectory receives artifacts that are not cached
type BootDirectory interface {
	// Dir returns the directory path
	Dir() string

	// Write streams content into <dir>/<name>, replacing any previous file.
	// The final path only appears once the content is complete.
	// Returns: path, bytes written, error
	Write(name string, fill func(w io.Writer) (int64, error)) (string, int64, error)
}
