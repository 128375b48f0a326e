// Package storage provides named collections ("trees") of ordered key/value
// pairs on top of pebble, and a registry that hands out one store per path.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/guileen/docsql/logger"
	"github.com/guileen/docsql/storage/internal/kv"
	"github.com/guileen/docsql/storage/shared"
)

// ErrNotFound is returned by Tree.Get for a missing key.
var ErrNotFound = shared.ErrNotFound

// ErrClosed is returned after the store has been closed.
var ErrClosed = shared.ErrClosed

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool { return shared.IsNotFound(err) }

// Options configure every store opened by a Registry.
type Options struct {
	InMemory      bool
	CacheSize     int64
	FlushInterval time.Duration
}

// Registry maps storage paths to open stores. Opening the same path twice
// returns the same *Store.
type Registry struct {
	opts   Options
	mu     sync.Mutex
	stores map[string]*Store
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:   opts,
		stores: make(map[string]*Store),
	}
}

// Open returns the store for path, opening it on first use.
func (r *Registry) Open(path string) (*Store, error) {
	path = filepath.Clean(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[path]; ok {
		return s, nil
	}

	cfg := kv.DefaultPebbleConfig(path)
	cfg.InMemory = r.opts.InMemory
	if r.opts.CacheSize > 0 {
		cfg.CacheSize = r.opts.CacheSize
	}
	if r.opts.FlushInterval > 0 {
		cfg.FlushInterval = r.opts.FlushInterval
	}

	db, err := kv.NewPebbleKV(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	s := newStore(path, db)
	r.stores[path] = s
	logger.Info("store opened", logger.Component("storage"), logger.String("path", path), logger.Bool("in_memory", cfg.InMemory))
	return s, nil
}

// Paths lists the paths of the open stores.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, len(r.stores))
	for p := range r.stores {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Remove closes the store at path and deletes its files.
func (r *Registry) Remove(path string) error {
	path = filepath.Clean(path)

	r.mu.Lock()
	s, ok := r.stores[path]
	delete(r.stores, path)
	r.mu.Unlock()

	if ok {
		if err := s.close(); err != nil {
			return err
		}
	}
	if r.opts.InMemory {
		return nil
	}
	return os.RemoveAll(path)
}

// Close closes every open store.
func (r *Registry) Close() error {
	r.mu.Lock()
	stores := r.stores
	r.stores = make(map[string]*Store)
	r.mu.Unlock()

	var firstErr error
	for _, s := range stores {
		if err := s.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
