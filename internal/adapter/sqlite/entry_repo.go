package sqlite

import (
	"database/sql"
	"errors"
	"time"

	"github.com/vertextoedge/batch-bootstrapper/internal/domain"
)

// RecordUse inserts the entry or refreshes its path, size and last_used_at
func (s *Store) RecordUse(entry *domain.CacheEntry) error {
	now := time.Now().UTC()
	if entry.LastUsedAt.IsZero() {
		entry.LastUsedAt = now
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = entry.LastUsedAt
	}

	query := `
		INSERT INTO cache_entries (checksum, name, path, size, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(checksum, name) DO UPDATE SET
			path = excluded.path,
			size = CASE WHEN excluded.size > 0 THEN excluded.size ELSE cache_entries.size END,
			last_used_at = excluded.last_used_at
	`

	_, err := s.db.Exec(query,
		entry.Checksum, entry.Name, entry.Path, entry.Size,
		entry.CreatedAt.UTC(), entry.LastUsedAt.UTC())
	return err
}

// GetEntry returns the entry for (checksum, name)
func (s *Store) GetEntry(checksum, name string) (*domain.CacheEntry, error) {
	query := `
		SELECT checksum, name, path, size, created_at, last_used_at
		FROM cache_entries
		WHERE checksum = ? AND name = ?
	`

	entry, err := scanEntry(s.db.QueryRow(query, checksum, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return entry, err
}

// ListUnusedSince returns entries whose last use is before cutoff, oldest first
func (s *Store) ListUnusedSince(cutoff time.Time) ([]*domain.CacheEntry, error) {
	query := `
		SELECT checksum, name, path, size, created_at, last_used_at
		FROM cache_entries
		WHERE last_used_at < ?
		ORDER BY last_used_at ASC
	`

	rows, err := s.db.Query(query, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.CacheEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteEntry removes an entry
func (s *Store) DeleteEntry(checksum, name string) error {
	_, err := s.db.Exec(`DELETE FROM cache_entries WHERE checksum = ? AND name = ?`, checksum, name)
	return err
}

// CountEntries returns the number of tracked entries
func (s *Store) CountEntries() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*domain.CacheEntry, error) {
	entry := &domain.CacheEntry{}
	err := row.Scan(
		&entry.Checksum, &entry.Name, &entry.Path, &entry.Size,
		&entry.CreatedAt, &entry.LastUsedAt,
	)
	if err != nil {
		return nil, err
	}
	return entry, nil
}
