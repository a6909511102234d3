package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"enrich/internal/artifactstore"
)

type object struct {
	data        []byte
	contentType string
}

// Storage is a map-backed artifact store used in tests and dry runs.
type Storage struct {
	mu      sync.RWMutex
	objects map[string]object
}

func NewStorage() *Storage { return &Storage{objects: make(map[string]object)} }

func (s *Storage) Driver() string { return artifactstore.DriverMemory }

func (s *Storage) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	k, err := artifactstore.CleanKey(key)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[k] = object{data: data, contentType: contentType}
	return nil
}

func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	k, err := artifactstore.CleanKey(key)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[k]
	if !ok {
		return nil, fmt.Errorf("artifact %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *Storage) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Storage) Delete(ctx context.Context, key string) (bool, error) {
	k, err := artifactstore.CleanKey(key)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[k]
	delete(s.objects, k)
	return ok, nil
}

// ContentType reports the content type stored with key.
func (s *Storage) ContentType(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objects[key].contentType
}

// Bytes returns the stored payload, or nil.
func (s *Storage) Bytes(key string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil
	}
	return append([]byte(nil), obj.data...)
}
