package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/yolodolo42/chatdefi/internal/llm"
)

const (
	fileName  = "auth.json"
	filePerms = 0o600
)

var ErrNoCredential = errors.New("no API key stored")

// fileData is the layout of auth.json.
type fileData struct {
	Version         int                       `json:"version"`
	Keys            map[llm.ProviderID]string `json:"keys"`
	DefaultProvider llm.ProviderID            `json:"default_provider,omitempty"`
}

// Store keeps LLM API keys in <data dir>/auth.json, readable by the owner
// only.
type Store struct {
	mu   sync.RWMutex
	path string
	data fileData
}

// NewStore opens the store under dataDir, creating the directory if needed.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Store{
		path: filepath.Join(dataDir, fileName),
		data: fileData{Version: 1, Keys: make(map[llm.ProviderID]string)},
	}
	if err := s.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load auth data: %w", err)
	}
	return s, nil
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to parse %s: %w", fileName, err)
	}
	if data.Keys == nil {
		data.Keys = make(map[llm.ProviderID]string)
	}
	s.data = data
	return nil
}

// save writes through a temp file and a rename so a crash never leaves a
// truncated auth.json. Callers hold mu.
func (s *Store) save() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal auth data: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, filePerms); err != nil {
		return fmt.Errorf("failed to write auth file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to save auth file: %w", err)
	}
	return nil
}

// Key returns the stored key for id.
func (s *Store) Key(id llm.ProviderID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.data.Keys[id]
	if !ok || key == "" {
		return "", fmt.Errorf("%w for %s", ErrNoCredential, id)
	}
	return key, nil
}

func (s *Store) SetKey(id llm.ProviderID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Keys[id] = key
	return s.save()
}

func (s *Store) RemoveKey(id llm.ProviderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data.Keys, id)
	if s.data.DefaultProvider == id {
		s.data.DefaultProvider = ""
	}
	return s.save()
}

// DefaultProvider returns the stored default, or "" when none is set.
func (s *Store) DefaultProvider() llm.ProviderID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.DefaultProvider
}

func (s *Store) SetDefaultProvider(id llm.ProviderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.DefaultProvider = id
	return s.save()
}

// Providers returns the providers with a stored key, sorted.
func (s *Store) Providers() []llm.ProviderID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]llm.ProviderID, 0, len(s.data.Keys))
	for id := range s.data.Keys {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
