package kv

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/guileen/docsql/logger"
	"github.com/guileen/docsql/storage/shared"
)

// PebbleConfig holds configuration options for the Pebble KV store
type PebbleConfig struct {
	Path          string
	InMemory      bool
	CacheSize     int64
	FlushInterval time.Duration
}

// DefaultPebbleConfig creates a default configuration for a store at path
func DefaultPebbleConfig(path string) *PebbleConfig {
	return &PebbleConfig{
		Path:          path,
		CacheSize:     64 << 20,
		FlushInterval: 5 * time.Second,
	}
}

type PebbleKV struct {
	db            *pebble.DB
	dbPath        string
	closed        bool
	mu            sync.RWMutex
	pendingWrites int64
	flushTicker   *time.Ticker
	flushDone     chan struct{}
	flushWG       sync.WaitGroup
}

func NewPebbleKV(config *PebbleConfig) (*PebbleKV, error) {
	cache := pebble.NewCache(config.CacheSize)
	defer cache.Unref()

	opts := &pebble.Options{Cache: cache}
	if config.InMemory {
		opts.FS = vfs.NewMem()
	}

	db, err := pebble.Open(config.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}

	pkv := &PebbleKV{
		db:        db,
		dbPath:    config.Path,
		flushDone: make(chan struct{}),
	}

	if config.FlushInterval > 0 && !config.InMemory {
		pkv.flushTicker = time.NewTicker(config.FlushInterval)
		pkv.flushWG.Add(1)
		go pkv.backgroundFlush()
	}

	return pkv, nil
}

func (p *PebbleKV) backgroundFlush() {
	defer p.flushWG.Done()
	for {
		select {
		case <-p.flushTicker.C:
			if atomic.SwapInt64(&p.pendingWrites, 0) == 0 {
				continue
			}
			if err := p.Flush(); err != nil {
				logger.Warn("background flush failed", logger.String("path", p.dbPath), logger.ErrorField(err))
			}
		case <-p.flushDone:
			return
		}
	}
}

func writeOpts(opts *shared.WriteOptions) *pebble.WriteOptions {
	if opts != nil && opts.Sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (p *PebbleKV) Get(key []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, shared.ErrClosed
	}

	value, closer, err := p.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (p *PebbleKV) Set(key, value []byte, opts *shared.WriteOptions) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return shared.ErrClosed
	}
	atomic.AddInt64(&p.pendingWrites, 1)
	if err := p.db.Set(key, value, writeOpts(opts)); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

func (p *PebbleKV) Delete(key []byte, opts *shared.WriteOptions) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return shared.ErrClosed
	}
	atomic.AddInt64(&p.pendingWrites, 1)
	if err := p.db.Delete(key, writeOpts(opts)); err != nil {
		return fmt.Errorf("pebble delete: %w", err)
	}
	return nil
}

func (p *PebbleKV) DeleteRange(start, end []byte, opts *shared.WriteOptions) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return shared.ErrClosed
	}
	atomic.AddInt64(&p.pendingWrites, 1)
	if err := p.db.DeleteRange(start, end, writeOpts(opts)); err != nil {
		return fmt.Errorf("pebble delete range: %w", err)
	}
	return nil
}

// pebbleBatch is a single-use write batch.
type pebbleBatch struct {
	batch *pebble.Batch
	done  bool
}

func (b *pebbleBatch) Set(key, value []byte) error {
	if b.done {
		return shared.ErrBatchDone
	}
	return b.batch.Set(key, value, nil)
}

func (b *pebbleBatch) Delete(key []byte) error {
	if b.done {
		return shared.ErrBatchDone
	}
	return b.batch.Delete(key, nil)
}

func (b *pebbleBatch) Count() int {
	if b.done {
		return 0
	}
	return int(b.batch.Count())
}

func (b *pebbleBatch) Close() error {
	if b.done {
		return nil
	}
	b.done = true
	return b.batch.Close()
}

func (p *PebbleKV) NewBatch() shared.Batch {
	return &pebbleBatch{batch: p.db.NewBatch()}
}

// CommitBatch applies batch atomically and releases it.
func (p *PebbleKV) CommitBatch(batch shared.Batch, opts *shared.WriteOptions) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return shared.ErrClosed
	}

	pb, ok := batch.(*pebbleBatch)
	if !ok {
		return fmt.Errorf("invalid batch type %T", batch)
	}
	if pb.done {
		return shared.ErrBatchDone
	}

	atomic.AddInt64(&p.pendingWrites, int64(pb.batch.Count()))
	err := pb.batch.Commit(writeOpts(opts))
	pb.Close()
	if err != nil {
		return fmt.Errorf("pebble commit batch: %w", err)
	}
	return nil
}

func (p *PebbleKV) NewIterator(opts *shared.IteratorOptions) (shared.Iterator, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, shared.ErrClosed
	}

	var pebbleOpts *pebble.IterOptions
	if opts != nil {
		pebbleOpts = &pebble.IterOptions{
			LowerBound: opts.LowerBound,
			UpperBound: opts.UpperBound,
		}
	}

	iter, err := p.db.NewIter(pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("pebble new iter: %w", err)
	}
	return &PebbleIterator{iter: iter}, nil
}

// Flush forces the memtable to disk.
func (p *PebbleKV) Flush() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return shared.ErrClosed
	}
	if err := p.db.Flush(); err != nil {
		return fmt.Errorf("pebble flush: %w", err)
	}
	return nil
}

func (p *PebbleKV) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if p.flushTicker != nil {
		p.flushTicker.Stop()
		close(p.flushDone)
		p.flushWG.Wait()
	}
	return p.db.Close()
}
