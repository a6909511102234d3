package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"enrich/internal/artifactstore"
)

// Store writes artifacts as plain files under a root directory. Keys map to
// relative paths, so the output tree is directly browsable.
type Store struct {
	root string
}

// New returns a store rooted at an existing, writable directory. It does not
// create the root; callers prepare the output tree before any sample runs.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("output root required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("output root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("output root %s is not a directory", root)
	}
	tmp, err := os.CreateTemp(root, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("output root %s is not writable: %w", root, err)
	}
	_ = tmp.Close()
	_ = os.Remove(tmp.Name())
	return &Store{root: root}, nil
}

func (s *Store) Driver() string { return artifactstore.DriverFilesystem }

// Root returns the directory backing the store.
func (s *Store) Root() string { return s.root }

func (s *Store) pathFor(key string) (string, error) {
	k, err := artifactstore.CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(k)), nil
}

// Put writes through a temp file and renames it into place, replacing any
// previous artifact under the same key.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	dataPath, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dataPath)
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	dataPath, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	return os.Open(dataPath)
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	dataPath, err := s.pathFor(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(dataPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
