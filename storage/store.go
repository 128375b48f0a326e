package storage

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/guileen/docsql/storage/shared"
)

var (
	treeDataPrefix = []byte("t\x00")
	treeMetaPrefix = []byte("m\x00trees\x00")
)

// Store is one pebble database holding any number of trees.
type Store struct {
	path string
	kv   shared.KV

	mu    sync.Mutex
	trees map[string]*Tree
}

func newStore(path string, db shared.KV) *Store {
	return &Store{
		path:  path,
		kv:    db,
		trees: make(map[string]*Tree),
	}
}

// Path returns the path the store was opened with.
func (s *Store) Path() string { return s.path }

func validTreeName(name string) error {
	if name == "" || strings.ContainsRune(name, 0) {
		return fmt.Errorf("invalid tree name %q", name)
	}
	return nil
}

func treeMetaKey(name string) []byte {
	return append(append([]byte(nil), treeMetaPrefix...), name...)
}

// OpenTree returns the tree called name, creating it if needed.
func (s *Store) OpenTree(name string) (*Tree, error) {
	if err := validTreeName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.trees[name]; ok {
		return t, nil
	}
	if err := s.kv.Set(treeMetaKey(name), nil, shared.DefaultWriteOptions); err != nil {
		return nil, fmt.Errorf("register tree %s: %w", name, err)
	}
	t := newTree(s, name)
	s.trees[name] = t
	return t, nil
}

// Tree returns an existing tree and fails when it was never created.
func (s *Store) Tree(name string) (*Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.trees[name]; ok {
		return t, nil
	}
	if _, err := s.kv.Get(treeMetaKey(name)); err != nil {
		if shared.IsNotFound(err) {
			return nil, fmt.Errorf("tree %q does not exist", name)
		}
		return nil, err
	}
	t := newTree(s, name)
	s.trees[name] = t
	return t, nil
}

// HasTree reports whether a tree called name exists.
func (s *Store) HasTree(name string) bool {
	_, err := s.Tree(name)
	return err == nil
}

// TreeNames lists every tree in the store, sorted.
func (s *Store) TreeNames() ([]string, error) {
	iter, err := s.kv.NewIterator(&shared.IteratorOptions{
		LowerBound: treeMetaPrefix,
		UpperBound: shared.PrefixEnd(treeMetaPrefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var names []string
	for iter.First(); iter.Valid(); iter.Next() {
		names = append(names, string(bytes.TrimPrefix(iter.Key(), treeMetaPrefix)))
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// DropTree removes every entry of the tree and forgets its name.
func (s *Store) DropTree(name string) error {
	t, err := s.Tree(name)
	if err != nil {
		return err
	}
	if err := t.Clear(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trees, name)
	return s.kv.Delete(treeMetaKey(name), shared.DefaultWriteOptions)
}

// Flush makes every acknowledged write durable.
func (s *Store) Flush() error {
	if err := s.kv.Flush(); err != nil {
		return fmt.Errorf("flush store %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) close() error {
	return s.kv.Close()
}
