package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrOutsideBase is returned for names that resolve outside the root.
var ErrOutsideBase = errors.New("path escapes storage directory")

const partialSuffix = ".part"

// LocalStorage keeps generated report files under one root directory.
// Files are written to a sibling .part file and renamed into place, so a
// download never observes a half-written report.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates root when missing; an empty root means ./exports.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if root == "" {
		root = "./exports"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStorage{root: filepath.Clean(root)}, nil
}

// Save stores data under name and returns the name to persist.
func (s *LocalStorage) Save(name string, data []byte) (string, error) {
	target, err := s.path(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	partial := target + partialSuffix
	if err := os.WriteFile(partial, data, 0o644); err != nil {
		return "", fmt.Errorf("write report file: %w", err)
	}
	if err := os.Rename(partial, target); err != nil {
		_ = os.Remove(partial)
		return "", fmt.Errorf("publish report file: %w", err)
	}
	return name, nil
}

// Open returns the stored file for reading. A missing file wraps
// os.ErrNotExist.
func (s *LocalStorage) Open(name string) (*os.File, error) {
	target, err := s.path(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if err != nil {
		return nil, fmt.Errorf("open report file: %w", err)
	}
	return file, nil
}

// Delete removes a stored file; missing files are not an error.
func (s *LocalStorage) Delete(name string) error {
	target, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete report file: %w", err)
	}
	return nil
}

// CleanupOlderThan deletes files, including abandoned .part files, last
// modified before now-ttl. It returns the removed names sorted.
func (s *LocalStorage) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	var removed []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if rel, err := filepath.Rel(s.root, path); err == nil {
			removed = append(removed, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("clean report storage: %w", err)
	}
	sort.Strings(removed)
	return removed, nil
}

// path maps a stored name onto the root, rooting it first so ".." cannot
// climb out.
func (s *LocalStorage) path(name string) (string, error) {
	if strings.HasSuffix(name, partialSuffix) {
		return "", fmt.Errorf("%w: reserved suffix", ErrOutsideBase)
	}
	target := filepath.Join(s.root, filepath.Clean("/"+name))
	if target == s.root || !strings.HasPrefix(target, s.root+string(filepath.Separator)) {
		return "", ErrOutsideBase
	}
	return target, nil
}
