package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vertextoedge/batch-bootstrapper/internal/adapter/filesystem"
	"github.com/vertextoedge/batch-bootstrapper/internal/domain"
	"github.com/vertextoedge/batch-bootstrapper/internal/domain/event"
	"github.com/vertextoedge/batch-bootstrapper/internal/port"
)

// mockLedger implements port.UsageLedger for testing
type mockLedger struct {
	mu      sync.Mutex
	entries map[string]*domain.CacheEntry
	listErr error
}

func newMockLedger() *mockLedger {
	return &mockLedger{entries: make(map[string]*domain.CacheEntry)}
}

func ledgerKey(checksum, name string) string { return checksum + "/" + name }

func (m *mockLedger) RecordUse(entry *domain.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *entry
	m.entries[ledgerKey(entry.Checksum, entry.Name)] = &copied
	return nil
}
func (m *mockLedger) GetEntry(checksum, name string) (*domain.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[ledgerKey(checksum, name)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return entry, nil
}
func (m *mockLedger) ListUnusedSince(cutoff time.Time) ([]*domain.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*domain.CacheEntry
	for _, entry := range m.entries {
		if entry.LastUsedAt.Before(cutoff) {
			out = append(out, entry)
		}
	}
	return out, nil
}
func (m *mockLedger) DeleteEntry(checksum, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, ledgerKey(checksum, name))
	return nil
}
func (m *mockLedger) CountEntries() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

// mockCache counts CleanOldTempFiles calls; other operations are no-ops
type mockCache struct {
	mu              sync.Mutex
	cleanTempErr    error
	cleanTempCalled int
}

func (m *mockCache) Enabled() bool { return true }
func (m *mockCache) RootDir() string { return "/cache" }
func (m *mockCache) CachePath(name, checksum string) string { return "" }
func (m *mockCache) Lookup(name, checksum string) (string, bool) { return "", false }
func (m *mockCache) Stage() (*port.StagingFile, error) { return nil, nil }
func (m *mockCache) Commit(staging *port.StagingFile, name string) (string, string, int64, error) {
	return "", "", 0, nil
}
func (m *mockCache) Discard(staging *port.StagingFile) error { return nil }
func (m *mockCache) Remove(name, checksum string) error { return nil }
func (m *mockCache) Size() (int64, error) { return 0, nil }
func (m *mockCache) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanTempCalled++
	return 0, m.cleanTempErr
}

func commitEntry(t *testing.T, cache *filesystem.Manager, name, content string) (string, string) {
	t.Helper()
	staging, err := cache.Stage()
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if _, err := staging.Write([]byte(content)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	path, checksum, _, err := cache.Commit(staging, name)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return path, checksum
}

func TestService_New(t *testing.T) {
	s := New(nil, &mockCache{}, nil, nil, nil)
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.config.CleanupInterval != time.Hour {
		t.Errorf("CleanupInterval = %v, want %v", s.config.CleanupInterval, time.Hour)
	}

	s = New(&Config{EntryMaxAge: time.Hour}, &mockCache{}, nil, nil, zap.NewNop())
	if s.config.EntryMaxAge != time.Hour {
		t.Errorf("EntryMaxAge = %v, want %v", s.config.EntryMaxAge, time.Hour)
	}
	if s.config.TempFileMaxAge != 24*time.Hour {
		t.Errorf("TempFileMaxAge = %v, want %v", s.config.TempFileMaxAge, 24*time.Hour)
	}
}

func TestService_RunOnceSweepsUnusedEntries(t *testing.T) {
	cache, err := filesystem.NewManagerWithFs(afero.NewMemMapFs(), "/cache")
	if err != nil {
		t.Fatalf("NewManagerWithFs() error = %v", err)
	}
	oldPath, oldChecksum := commitEntry(t, cache, "old.jar", "fakecontent1")
	recentPath, recentChecksum := commitEntry(t, cache, "recent.jar", "fakecontent2")

	ledger := newMockLedger()
	ledger.RecordUse(&domain.CacheEntry{
		Checksum: oldChecksum, Name: "old.jar", Path: oldPath, Size: 12,
		LastUsedAt: time.Now().Add(-90 * 24 * time.Hour),
	})
	ledger.RecordUse(&domain.CacheEntry{
		Checksum: recentChecksum, Name: "recent.jar", Path: recentPath, Size: 12,
		LastUsedAt: time.Now(),
	})

	recorder := event.NewRecordingHandler(event.NameEntrySwept)
	dispatcher := event.NewInMemoryDispatcher(false)
	dispatcher.Subscribe(recorder)

	s := New(DefaultConfig(), cache, ledger, dispatcher, zap.NewNop())
	result, err := s.RunOnce()
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if result.EntriesRemoved != 1 || result.BytesRemoved != 12 {
		t.Errorf("RunOnce() = %+v, want 1 entry and 12 bytes", result)
	}
	if _, ok := cache.Lookup("old.jar", oldChecksum); ok {
		t.Error("old entry still cached")
	}
	if _, ok := cache.Lookup("recent.jar", recentChecksum); !ok {
		t.Error("recent entry was swept")
	}
	if count, _ := ledger.CountEntries(); count != 1 {
		t.Errorf("ledger has %d entries, want 1", count)
	}
	if got := len(recorder.Events()); got != 1 {
		t.Errorf("recorded %d EntrySwept events, want 1", got)
	}
}

func TestService_RunOnceCombinesErrors(t *testing.T) {
	cache := &mockCache{cleanTempErr: errors.New("disk gone")}
	ledger := newMockLedger()
	ledger.listErr = errors.New("database locked")

	s := New(nil, cache, ledger, nil, zap.NewNop())
	_, err := s.RunOnce()
	if err == nil {
		t.Fatal("RunOnce() error = nil, want combined error")
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Errorf("RunOnce() returned %d errors, want 2: %v", got, err)
	}
}

func TestService_RunOnceDisabledCache(t *testing.T) {
	s := New(nil, filesystem.NewDisabled(), newMockLedger(), nil, zap.NewNop())
	result, err := s.RunOnce()
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if *result != (Result{}) {
		t.Errorf("RunOnce() = %+v, want empty result", result)
	}
}

func TestService_StartStop(t *testing.T) {
	cache := &mockCache{}
	s := New(&Config{CleanupInterval: 10 * time.Millisecond}, cache, nil, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	// Wait for the sweep to run at least once
	time.Sleep(50 * time.Millisecond)

	cancel()
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after Stop()")
	}

	cache.mu.Lock()
	called := cache.cleanTempCalled
	cache.mu.Unlock()

	if called == 0 {
		t.Error("CleanOldTempFiles was not called")
	}
}

func TestService_StartSweepsWithAsyncDispatcher(t *testing.T) {
	cache, err := filesystem.NewManagerWithFs(afero.NewMemMapFs(), "/cache")
	if err != nil {
		t.Fatalf("NewManagerWithFs() error = %v", err)
	}
	path, checksum := commitEntry(t, cache, "old.jar", "fakecontent1")

	ledger := newMockLedger()
	ledger.RecordUse(&domain.CacheEntry{
		Checksum: checksum, Name: "old.jar", Path: path, Size: 12,
		LastUsedAt: time.Now().Add(-48 * time.Hour),
	})

	recorder := event.NewRecordingHandler(event.NameEntrySwept)
	dispatcher := event.NewInMemoryDispatcher(true)
	dispatcher.Subscribe(recorder)

	s := New(&Config{
		CleanupInterval: 10 * time.Millisecond,
		EntryMaxAge:     24 * time.Hour,
	}, cache, ledger, dispatcher, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Stop()
	dispatcher.Wait()

	if _, ok := cache.Lookup("old.jar", checksum); ok {
		t.Error("old entry still cached")
	}
	if got := len(recorder.Events()); got != 1 {
		t.Errorf("recorded %d EntrySwept events, want 1", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.CleanupInterval != time.Hour {
		t.Errorf("CleanupInterval = %v, want %v", cfg.CleanupInterval, time.Hour)
	}
	if cfg.TempFileMaxAge != 24*time.Hour {
		t.Errorf("TempFileMaxAge = %v, want %v", cfg.TempFileMaxAge, 24*time.Hour)
	}
	if cfg.EntryMaxAge != 30*24*time.Hour {
		t.Errorf("EntryMaxAge = %v, want %v", cfg.EntryMaxAge, 30*24*time.Hour)
	}
}
