// Package draft persists the last edited source so it survives a reload.
package draft

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codepad/internal/common/cache"
	appErr "codepad/pkg/errors"
)

// DefaultKey is the fixed key the draft lives under.
const DefaultKey = "codepad:draft"

// Store loads and saves one draft. A missing draft loads as "".
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, text string) error
}

// Memory keeps the draft in process; used when persistence is disabled.
type Memory struct {
	mu   sync.Mutex
	text string
}

func (m *Memory) Load(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, nil
}

func (m *Memory) Save(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	return nil
}

type fileEntry struct {
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileStore keeps drafts in a JSON file of key to entry, so several keys can share a file.
type FileStore struct {
	path string
	key  string
	now  func() time.Time

	mu sync.Mutex
}

// NewFileStore stores the draft for key in path.
func NewFileStore(path, key string) *FileStore {
	if key == "" {
		key = DefaultKey
	}
	return &FileStore{path: path, key: key, now: time.Now}
}

func (s *FileStore) Load(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read()
	if err != nil {
		return "", err
	}
	return entries[s.key].Text, nil
}

func (s *FileStore) Save(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// The file holds drafts for other keys too, so an unreadable one is left alone.
	entries, err := s.read()
	if err != nil {
		return appErr.Wrapf(err, appErr.DraftSaveFailed, "existing draft file is unreadable")
	}
	entries[s.key] = fileEntry{Text: text, UpdatedAt: s.now().UTC()}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return appErr.Wrapf(err, appErr.DraftSaveFailed, "create draft dir failed")
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return appErr.Wrapf(err, appErr.DraftSaveFailed, "marshal draft failed")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return appErr.Wrapf(err, appErr.DraftSaveFailed, "write draft failed")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return appErr.Wrapf(err, appErr.DraftSaveFailed, "replace draft file failed")
	}
	return nil
}

func (s *FileStore) read() (map[string]fileEntry, error) {
	entries := make(map[string]fileEntry)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, appErr.Wrapf(err, appErr.DraftLoadFailed, "read draft failed")
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, appErr.Wrapf(err, appErr.DraftLoadFailed, "parse draft file failed")
	}
	return entries, nil
}

// RedisStore keeps the draft under a cache key with no expiry.
type RedisStore struct {
	cache cache.KV
	key   string
}

// NewRedisStore stores the draft under key in c.
func NewRedisStore(c cache.KV, key string) *RedisStore {
	if key == "" {
		key = DefaultKey
	}
	return &RedisStore{cache: c, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (string, error) {
	text, err := s.cache.Get(ctx, s.key)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.DraftLoadFailed, "load draft %s failed", s.key)
	}
	return text, nil
}

func (s *RedisStore) Save(ctx context.Context, text string) error {
	if err := s.cache.Set(ctx, s.key, text, 0); err != nil {
		return appErr.Wrapf(err, appErr.DraftSaveFailed, "save draft %s failed", s.key)
	}
	return nil
}
