// SPDX-License-Identifier: AGPL-3.0-only
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const fileExt = ".json"

// JSONStorage keeps one file per key in a directory and watches it for changes.
type JSONStorage struct {
	dir     string
	mu      sync.RWMutex
	watcher *fsnotify.Watcher
}

// NewJSONStorage creates a new JSON storage rooted at dir.
func NewJSONStorage(dir string) (*JSONStorage, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &JSONStorage{dir: abs}, nil
}

// Path returns the file backing key
func (s *JSONStorage) Path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+fileExt)
}

func (s *JSONStorage) keyFor(path string) (string, bool) {
	if filepath.Dir(path) != s.dir {
		return "", false
	}
	base := filepath.Base(path)
	if !strings.HasSuffix(base, fileExt) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(base, fileExt))
	if err != nil {
		return "", false
	}
	return key, true
}

// Get implements Storage.Get.
func (s *JSONStorage) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := os.ReadFile(s.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return b, nil
}

// Set implements Storage.Set. The file is replaced atomically.
func (s *JSONStorage) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir storage dir: %w", err)
	}
	path := s.Path(key)
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	if _, err := f.Write(value); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := f.Sync(); err != nil { // ensure contents flushed for atomic rename
		f.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Remove implements Storage.Remove.
func (s *JSONStorage) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Watch implements Watcher.Watch.
func (s *JSONStorage) Watch(ctx context.Context) (<-chan Event, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir storage dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch dir: %w", err)
	}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()

	ch := make(chan Event)

	go func() {
		defer close(ch)
		defer w.Close()

		// Debounce per key so an atomic save (create tmp, rename) yields one event
		const debounce = 200 * time.Millisecond
		timer := time.NewTimer(debounce)
		if !timer.Stop() {
			<-timer.C
		}
		pending := make(map[string]struct{})

		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case evt, ok := <-w.Events:
				if !ok {
					timer.Stop()
					return
				}
				key, ok := s.keyFor(filepath.Clean(evt.Name))
				if !ok {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					if len(pending) == 0 {
						timer.Reset(debounce)
					}
					pending[key] = struct{}{}
				}
			case <-timer.C:
				for key := range pending {
					select {
					case ch <- Event{Key: key}:
					case <-ctx.Done():
						return
					}
				}
				pending = make(map[string]struct{})
			case _, ok := <-w.Errors:
				if !ok {
					timer.Stop()
					return
				}
				// ignore error
			}
		}
	}()

	return ch, nil
}

// Close implements Storage.Close.
func (s *JSONStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		err := s.watcher.Close()
		s.watcher = nil
		return err
	}
	return nil
}
