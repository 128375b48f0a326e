package sql

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/guileen/docsql/protocol/sql/operators"
	"github.com/guileen/docsql/types"
)

// CacheKey is the canonical identity of a direct single-table read.
type CacheKey struct {
	Database   string
	Table      string
	Columns    []string
	Conditions map[string]string
	OrderBy    []operators.OrderSpec
	Limit      *int
}

func (k CacheKey) prefix() string {
	return k.Database + "\x00" + k.Table + "\x00"
}

func (k CacheKey) String() string {
	var b strings.Builder
	b.WriteString(k.prefix())
	b.WriteString(strings.Join(k.Columns, ","))
	b.WriteByte('\x00')

	keys := make([]string, 0, len(k.Conditions))
	for c := range k.Conditions {
		keys = append(keys, c)
	}
	sort.Strings(keys)
	for _, c := range keys {
		b.WriteString(c)
		b.WriteByte('=')
		b.WriteString(strconv.Quote(k.Conditions[c]))
		b.WriteByte(';')
	}
	b.WriteByte('\x00')

	for _, o := range k.OrderBy {
		b.WriteString(o.String())
		b.WriteByte(',')
	}
	b.WriteByte('\x00')
	if k.Limit != nil {
		b.WriteString(strconv.Itoa(*k.Limit))
	}
	return b.String()
}

type cacheEntry struct {
	data    []byte
	created time.Time
}

// ResultCache holds encoded responses of single-table reads, bounded by an
// LRU capacity. Entries older than the TTL are dropped when read.
//
// Every table carries a generation bumped by InvalidateTable. A reader takes
// the generation before it scans and hands it to Put, which refuses the
// entry if the table was invalidated in between.
type ResultCache struct {
	entries *lru.Cache[string, cacheEntry]
	ttl     time.Duration

	mu          sync.Mutex
	generations map[string]uint64

	hits   atomic.Int64
	misses atomic.Int64
}

func NewResultCache(capacity int, ttl time.Duration) (*ResultCache, error) {
	if capacity <= 0 {
		capacity = 1
	}
	entries, err := lru.New[string, cacheEntry](capacity)
	if err != nil {
		return nil, err
	}
	return &ResultCache{entries: entries, ttl: ttl, generations: make(map[string]uint64)}, nil
}

func (c *ResultCache) Get(key CacheKey) (*types.Response, bool) {
	k := key.String()
	e, ok := c.entries.Get(k)
	if ok && c.ttl > 0 && time.Since(e.created) > c.ttl {
		c.entries.Remove(k)
		ok = false
	}
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	resp, err := types.DecodeResponse(e.data)
	if err != nil {
		c.entries.Remove(k)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return resp, true
}

// Generation returns the current generation of key's table.
func (c *ResultCache) Generation(key CacheKey) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[key.prefix()]
}

// Put stores resp if key's table is still at generation gen. It reports
// whether the entry was stored.
func (c *ResultCache) Put(key CacheKey, gen uint64, resp *types.Response) bool {
	data, err := resp.Encode()
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[key.prefix()] != gen {
		return false
	}
	c.entries.Add(key.String(), cacheEntry{data: data, created: time.Now()})
	return true
}

// InvalidateTable drops every entry reading table of database and bumps the
// table's generation.
func (c *ResultCache) InvalidateTable(database, table string) int {
	prefix := CacheKey{Database: database, Table: table}.prefix()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[prefix]++
	n := 0
	for _, k := range c.entries.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.entries.Remove(k)
			n++
		}
	}
	return n
}

func (c *ResultCache) Purge() { c.entries.Purge() }

func (c *ResultCache) Len() int { return c.entries.Len() }

// Stats returns the hit and miss counts since creation.
func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
