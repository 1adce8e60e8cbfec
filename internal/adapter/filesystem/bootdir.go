package filesystem

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/vertextoedge/batch-bootstrapper/internal/port"
)

// BootDir is the scratch directory receiving artifacts that are not cached:
// every artifact of a legacy server, and indexed artifacts without checksum
// or when the cache is disabled.
type BootDir struct {
	fs afero.Fs

	mu      sync.Mutex
	dir     string
	pattern string // temp dir prefix when dir is created on first Write
}

// Ensure BootDir implements port.BootDirectory
var _ port.BootDirectory = (*BootDir)(nil)

// NewBootDir creates a boot directory on the OS filesystem
func NewBootDir(dir string) (*BootDir, error) {
	return NewBootDirWithFs(afero.NewOsFs(), dir)
}

// NewBootDirWithFs creates a boot directory on the given filesystem
func NewBootDirWithFs(fs afero.Fs, dir string) (*BootDir, error) {
	if dir == "" {
		return nil, fmt.Errorf("boot directory is required")
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create boot dir: %w", err)
	}
	return &BootDir{fs: fs, dir: dir}, nil
}

// NewTempBootDir returns a boot directory created under the OS temp dir on
// the first Write, so runs served entirely from the cache leave nothing behind
func NewTempBootDir(pattern string) *BootDir {
	return NewTempBootDirWithFs(afero.NewOsFs(), pattern)
}

// NewTempBootDirWithFs is NewTempBootDir on the given filesystem
func NewTempBootDirWithFs(fs afero.Fs, pattern string) *BootDir {
	return &BootDir{fs: fs, pattern: pattern}
}

// Dir returns the directory path, empty while a temp boot dir is not created yet
func (b *BootDir) Dir() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dir
}

func (b *BootDir) ensureDir() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dir == "" {
		dir, err := afero.TempDir(b.fs, "", b.pattern)
		if err != nil {
			return "", fmt.Errorf("failed to create boot dir: %w", err)
		}
		b.dir = dir
	}
	return b.dir, nil
}

// Write streams content into <dir>/<name> through a hidden partial file.
// A failed fill leaves no file behind.
func (b *BootDir) Write(name string, fill func(w io.Writer) (int64, error)) (string, int64, error) {
	if err := ValidateName(name); err != nil {
		return "", 0, err
	}

	dir, err := b.ensureDir()
	if err != nil {
		return "", 0, err
	}

	finalPath := filepath.Join(dir, name)
	partPath := filepath.Join(dir, "."+name+"."+uuid.NewString()+partSuffix)

	f, err := b.fs.OpenFile(partPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	written, err := fill(f)
	if err != nil {
		f.Close()
		b.fs.Remove(partPath)
		return "", 0, err
	}

	if err := f.Close(); err != nil {
		b.fs.Remove(partPath)
		return "", 0, fmt.Errorf("failed to close file: %w", err)
	}

	if err := b.fs.Rename(partPath, finalPath); err != nil {
		b.fs.Remove(partPath)
		return "", 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return finalPath, written, nil
}
