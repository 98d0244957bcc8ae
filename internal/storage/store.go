// Package storage keeps uploaded videos on local disk.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Store is a flat folder of uploaded files keyed by sanitised filename.
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string {
	return s.dir
}

// Path returns where name is stored. name must already be sanitised.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// Save writes r to name, replacing any earlier file of that name. The folder
// is created when missing. The data goes to a temp file first so a failed
// write never leaves a truncated video behind.
func (s *Store) Save(name string, r io.Reader) (string, int64, error) {
	if err := s.ensureDir(); err != nil {
		return "", 0, err
	}

	dst := s.Path(name)
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	size, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return "", 0, fmt.Errorf("write %s: %w", filepath.Base(dst), err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return "", 0, fmt.Errorf("rename upload: %w", err)
	}
	return dst, size, nil
}

// Remove deletes name. A file that is already gone is not an error.
func (s *Store) Remove(name string) error {
	err := os.Remove(s.Path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

func (s *Store) Exists(name string) bool {
	info, err := os.Stat(s.Path(name))
	return err == nil && info.Mode().IsRegular()
}

func (s *Store) ensureDir() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	return nil
}
