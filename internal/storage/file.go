package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgellow/devreg/internal/log"
	"github.com/gofrs/flock"
)

// Ensure FileStore implements Store
var _ Store = (*FileStore)(nil)

// FileStore keeps envelopes in a single JSON file so that separate
// processes (for example successive CLI invocations) share pending
// registrations. Writers serialize on an advisory lock file next to the
// store and re-read the file before every change; readers pick up other
// processes' changes when the file's modification time moves.
type FileStore struct {
	path        string
	lock        *flock.Flock
	ttl         time.Duration
	now         func() time.Time
	rename      func(oldpath, newpath string) error
	mu          sync.RWMutex
	envelopes   map[string]*StoredEnvelope
	lastModTime time.Time
}

// NewFileStore opens or creates the store at path.
func NewFileStore(path string, ttl time.Duration) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving store path: %w", err)
	}

	s := &FileStore{
		path:      absPath,
		lock:      flock.New(absPath + ".lock"),
		ttl:       ttlOrDefault(ttl),
		now:       time.Now,
		rename:    os.Rename,
		envelopes: make(map[string]*StoredEnvelope),
	}
	envelopes, modTime, err := s.read()
	if err != nil {
		return nil, fmt.Errorf("failed to load envelopes: %w", err)
	}
	s.envelopes = envelopes
	s.lastModTime = modTime
	return s, nil
}

// read returns the file contents. A missing or empty file is an empty store.
func (s *FileStore) read() (map[string]*StoredEnvelope, time.Time, error) {
	envelopes := make(map[string]*StoredEnvelope)

	stat, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return envelopes, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read envelope file: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &envelopes); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to parse envelope file: %w", err)
		}
	}
	return envelopes, stat.ModTime(), nil
}

// checkAndReload reloads the file if it changed since it was last read.
func (s *FileStore) checkAndReload() {
	stat, err := os.Stat(s.path)
	if err != nil {
		return
	}

	s.mu.RLock()
	changed := !stat.ModTime().Equal(s.lastModTime)
	s.mu.RUnlock()
	if !changed {
		return
	}

	envelopes, modTime, err := s.read()
	if err != nil {
		log.LogWarnWithFields("storage", "Failed to reload envelope file", map[string]any{
			"path":  s.path,
			"error": err.Error(),
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A local write that landed meanwhile already holds the newer view.
	if modTime.Before(s.lastModTime) {
		return
	}
	s.envelopes = envelopes
	s.lastModTime = modTime
}

// update applies change to a fresh copy of the file contents while holding
// the lock file, and commits the copy in memory only once it is on disk.
// change reports whether anything needs writing.
func (s *FileStore) update(ctx context.Context, change func(map[string]*StoredEnvelope) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	locked, err := s.lock.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("locking envelope file: %w", err)
	}
	if !locked {
		return fmt.Errorf("locking envelope file: %w", ctx.Err())
	}
	defer s.lock.Unlock()

	envelopes, modTime, err := s.read()
	if err != nil {
		return err
	}
	if !change(envelopes) {
		s.envelopes = envelopes
		s.lastModTime = modTime
		return nil
	}

	modTime, err = s.persist(envelopes)
	if err != nil {
		return err
	}
	s.envelopes = envelopes
	s.lastModTime = modTime
	return nil
}

// persist writes envelopes to a temp file and renames it over the store
// file, returning the new modification time.
func (s *FileStore) persist(envelopes map[string]*StoredEnvelope) (time.Time, error) {
	data, err := json.MarshalIndent(envelopes, "", "  ")
	if err != nil {
		return time.Time{}, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return time.Time{}, err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return time.Time{}, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return time.Time{}, err
	}
	if err := s.rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return time.Time{}, err
	}

	// The write landed; a zero time only forces the next read to reload.
	stat, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}, nil
	}
	return stat.ModTime(), nil
}

func (s *FileStore) SaveEnvelope(ctx context.Context, key string, slots map[string]string) error {
	env := newStoredEnvelope(slots, s.now(), s.ttl)
	err := s.update(ctx, func(envelopes map[string]*StoredEnvelope) bool {
		envelopes[key] = env
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to save envelope: %w", err)
	}
	return nil
}

func (s *FileStore) LoadEnvelope(_ context.Context, key string) (map[string]string, error) {
	s.checkAndReload()

	s.mu.RLock()
	defer s.mu.RUnlock()

	env, ok := s.envelopes[key]
	if !ok || env.IsExpired(s.now()) {
		return nil, ErrEnvelopeNotFound
	}
	return maps.Clone(env.Slots), nil
}

func (s *FileStore) DeleteEnvelope(ctx context.Context, key string) error {
	err := s.update(ctx, func(envelopes map[string]*StoredEnvelope) bool {
		if _, ok := envelopes[key]; !ok {
			return false
		}
		delete(envelopes, key)
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to delete envelope: %w", err)
	}
	return nil
}

func (s *FileStore) CleanupExpiredEnvelopes(ctx context.Context) (int, error) {
	now := s.now()
	count := 0
	err := s.update(ctx, func(envelopes map[string]*StoredEnvelope) bool {
		for key, env := range envelopes {
			if env.IsExpired(now) {
				delete(envelopes, key)
				count++
			}
		}
		return count > 0
	})
	if err != nil {
		return 0, fmt.Errorf("failed to persist cleanup: %w", err)
	}
	return count, nil
}

func (s *FileStore) Close() error {
	return s.lock.Close()
}
