// Package snapshot persists account QIFI snapshots to JSON files.
//
// Each account is stored as a separate file: acct_<accountCookie>.json.
// Writes use atomic file replacement (write to .tmp, then rename) to
// prevent corruption from partial writes or crashes mid-save. Callers save
// after settlement or on a periodic tick, and load on startup to restore
// account state.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"qaultra-core/internal/account"
	"qaultra-core/internal/preset"
)

// Store persists account snapshots to JSON files in a designated directory.
// All operations are mutex-protected to prevent concurrent file corruption.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open creates a store backed by the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(accountCookie string) string {
	return filepath.Join(s.dir, "acct_"+accountCookie+".json")
}

// Save atomically persists an account's current QIFI snapshot.
func (s *Store) Save(acct *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := acct.ToQIFI()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	path := s.path(snap.AccountCookie)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load restores an account from its saved snapshot, rehydrating positions
// and orders from the given preset table. Returns nil, nil if no snapshot
// exists for accountCookie (fresh account).
func (s *Store) Load(accountCookie string, presets *preset.Table) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(accountCookie))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap account.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return account.FromQIFISnapshot(snap, presets)
}

// List returns the account cookies of every snapshot currently on disk.
func (s *Store) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}

	const prefix, suffix = "acct_", ".json"
	var cookies []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) <= len(prefix)+len(suffix) {
			continue
		}
		if name[:len(prefix)] != prefix || name[len(name)-len(suffix):] != suffix {
			continue
		}
		cookies = append(cookies, name[len(prefix):len(name)-len(suffix)])
	}
	return cookies, nil
}
