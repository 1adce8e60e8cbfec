package filesystem

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/vertextoedge/batch-bootstrapper/internal/domain"
	"github.com/vertextoedge/batch-bootstrapper/internal/port"
)

const (
	// stagingDirName holds in-flight downloads. It is not a valid checksum,
	// so no lookup can ever resolve into it.
	stagingDirName = "_tmp"
	stagingSuffix  = ".tmp"

	// partSuffix marks a copy in progress inside an entry directory
	partSuffix = ".part"
)

// Manager is the content-addressed artifact cache.
// Entries live at <root>/<checksum>/<name>.
type Manager struct {
	fs         afero.Fs
	rootDir    string
	bufferSize int
}

// Ensure Manager implements port.ContentCache
var _ port.ContentCache = (*Manager)(nil)

// NewManager creates a cache rooted at rootDir on the OS filesystem.
// An empty rootDir returns a disabled cache.
func NewManager(rootDir string) (*Manager, error) {
	return NewManagerWithFs(afero.NewOsFs(), rootDir)
}

// NewManagerWithFs creates a cache on the given filesystem
func NewManagerWithFs(fs afero.Fs, rootDir string) (*Manager, error) {
	if rootDir == "" {
		return NewDisabled(), nil
	}

	// Ensure root and staging directories exist
	if err := fs.MkdirAll(filepath.Join(rootDir, stagingDirName), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache root dir: %w", err)
	}

	return &Manager{
		fs:         fs,
		rootDir:    rootDir,
		bufferSize: 32 * 1024,
	}, nil
}

// NewDisabled returns a cache that always misses and never commits
func NewDisabled() *Manager {
	return &Manager{}
}

// Enabled returns true when a cache root is configured
func (m *Manager) Enabled() bool {
	return m.rootDir != ""
}

// RootDir returns the cache root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// Fs returns the underlying filesystem
func (m *Manager) Fs() afero.Fs {
	return m.fs
}

// CachePath returns the deterministic path of (name, checksum). Checksums
// are matched case-insensitively; directories are always lowercase hex.
func (m *Manager) CachePath(name, checksum string) string {
	return filepath.Join(m.rootDir, strings.ToLower(checksum), name)
}

// Lookup returns the cache path if a file exists there. The content is
// trusted: it was verified once when it was committed.
func (m *Manager) Lookup(name, checksum string) (string, bool) {
	if !m.Enabled() {
		return "", false
	}
	if ValidateName(name) != nil || ValidateChecksum(checksum) != nil {
		return "", false
	}

	cachePath := m.CachePath(name, checksum)
	info, err := m.fs.Stat(cachePath)
	if err != nil || info.IsDir() {
		return "", false
	}
	return cachePath, true
}

// Stage allocates a fresh staging file under <root>/_tmp
func (m *Manager) Stage() (*port.StagingFile, error) {
	if !m.Enabled() {
		return nil, domain.ErrCacheDisabled
	}

	stagingDir := filepath.Join(m.rootDir, stagingDirName)
	if err := m.fs.MkdirAll(stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}

	stagingPath := filepath.Join(stagingDir, uuid.NewString()+stagingSuffix)
	f, err := m.fs.OpenFile(stagingPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}

	return &port.StagingFile{Path: stagingPath, Writer: f}, nil
}

// Commit computes the MD5 of the staged bytes and moves the file to
// <root>/<md5>/<name>. The file only becomes visible at its final path once
// complete. A concurrent writer of the same entry may win the rename; both
// payloads hash to the same key, so the result is the same.
func (m *Manager) Commit(staging *port.StagingFile, name string) (string, string, int64, error) {
	if staging == nil {
		return "", "", 0, domain.ErrNilStagingFile
	}
	committed := false
	defer func() {
		if !committed {
			_ = m.Discard(staging)
		}
	}()

	if !m.Enabled() {
		return "", "", 0, domain.ErrCacheDisabled
	}
	if err := ValidateName(name); err != nil {
		return "", "", 0, err
	}
	if err := closeStaging(staging); err != nil {
		return "", "", 0, fmt.Errorf("failed to close staging file: %w", err)
	}

	checksum, size, err := m.checksumFile(staging.Path)
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to compute checksum: %w", err)
	}

	destDir := filepath.Join(m.rootDir, checksum)
	if err := m.fs.MkdirAll(destDir, 0755); err != nil {
		return "", "", 0, fmt.Errorf("failed to create cache dir: %w", err)
	}

	cachePath := filepath.Join(destDir, name)
	if err := m.fs.Rename(staging.Path, cachePath); err != nil {
		// Rename may fail across devices; copy beside the target then rename
		if copyErr := m.copyIntoPlace(staging.Path, destDir, name); copyErr != nil {
			return "", "", 0, fmt.Errorf("failed to move staging file into cache: %w", errors.Join(err, copyErr))
		}
		_ = m.fs.Remove(staging.Path)
	}

	committed = true
	return cachePath, checksum, size, nil
}

// Discard closes and removes a staging file
func (m *Manager) Discard(staging *port.StagingFile) error {
	if staging == nil || m.fs == nil {
		return nil
	}
	_ = closeStaging(staging)
	if err := m.fs.Remove(staging.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete staging file: %w", err)
	}
	return nil
}

// Remove deletes a cache entry, and its checksum directory when it is empty
func (m *Manager) Remove(name, checksum string) error {
	if !m.Enabled() {
		return domain.ErrCacheDisabled
	}
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ValidateChecksum(checksum); err != nil {
		return err
	}

	if err := m.fs.Remove(m.CachePath(name, checksum)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}

	dir := filepath.Dir(m.CachePath(name, checksum))
	if empty, err := afero.IsEmpty(m.fs, dir); err == nil && empty {
		_ = m.fs.Remove(dir)
	}
	return nil
}

// CleanOldTempFiles removes staging and partial copy files older than the specified duration
func (m *Manager) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	if !m.Enabled() {
		return 0, nil
	}

	count := 0
	threshold := time.Now().Add(-olderThan)
	stagingDir := filepath.Join(m.rootDir, stagingDirName)

	err := afero.Walk(m.fs, m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}

		isStaging := filepath.Dir(path) == stagingDir
		isPart := strings.HasSuffix(info.Name(), partSuffix)
		if !isStaging && !isPart {
			return nil
		}

		if info.ModTime().Before(threshold) {
			if err := m.fs.Remove(path); err == nil {
				count++
			}
		}
		return nil
	})

	return count, err
}

// Size returns total size of cached files, staging area excluded
func (m *Manager) Size() (int64, error) {
	if !m.Enabled() {
		return 0, nil
	}

	var size int64
	stagingDir := filepath.Join(m.rootDir, stagingDirName)
	err := afero.Walk(m.fs, m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path == stagingDir {
				return filepath.SkipDir
			}
			return nil
		}
		size += info.Size()
		return nil
	})
	return size, err
}

// checksumFile returns the lowercase hex MD5 and size of a file
func (m *Manager) checksumFile(path string) (string, int64, error) {
	f, err := m.fs.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, m.bufferSize)
	n, err := io.CopyBuffer(h, f, buf)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// copyIntoPlace copies src to a hidden file in destDir, then renames it to name
func (m *Manager) copyIntoPlace(src, destDir, name string) error {
	in, err := m.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	partPath := filepath.Join(destDir, "."+name+"."+uuid.NewString()+partSuffix)
	out, err := m.fs.OpenFile(partPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}

	buf := make([]byte, m.bufferSize)
	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		out.Close()
		m.fs.Remove(partPath)
		return err
	}
	if err := out.Close(); err != nil {
		m.fs.Remove(partPath)
		return err
	}

	if err := m.fs.Rename(partPath, filepath.Join(destDir, name)); err != nil {
		m.fs.Remove(partPath)
		return err
	}
	return nil
}

func closeStaging(staging *port.StagingFile) error {
	if staging.Writer == nil {
		return nil
	}
	err := staging.Writer.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// ValidateName checks that an artifact name is a plain file name
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: artifact name %q", domain.ErrInvalidCacheKey, name)
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: artifact name %q contains a path separator", domain.ErrInvalidCacheKey, name)
	}
	return nil
}

// ValidateChecksum checks that a checksum is a non-empty hex string
func ValidateChecksum(checksum string) error {
	if checksum == "" {
		return fmt.Errorf("%w: empty checksum", domain.ErrInvalidCacheKey)
	}
	for _, r := range checksum {
		isHex := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
		if !isHex {
			return fmt.Errorf("%w: checksum %q is not hexadecimal", domain.ErrInvalidCacheKey, checksum)
		}
	}
	return nil
}
