package testutil

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"sync"

	"github.com/camden-git/labelsysbackend/media"
)

// MemStore is a media.Store kept in memory.
type MemStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

var _ media.Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

func (s *MemStore) Save(assetType media.AssetType, dirHint, filename string, data io.Reader) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	rel := path.Join(string(assetType), dirHint, filename)
	s.Put(rel, b)
	return rel, nil
}

// Put stores b at rel directly.
func (s *MemStore) Put(rel string, b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[rel] = b
}

func (s *MemStore) Open(rel string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[rel]
	if !ok {
		return nil, fmt.Errorf("asset not found at '%s': %w", rel, os.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *MemStore) Exists(rel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[rel]
	return ok
}

func (s *MemStore) Delete(rel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, rel)
	return nil
}

// Len returns the number of stored blobs.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}
