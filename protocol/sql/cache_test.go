package sql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guileen/docsql/protocol/sql/operators"
	"github.com/guileen/docsql/types"
)

func intPtr(n int) *int { return &n }

func TestCacheKeyCanonical(t *testing.T) {
	a := CacheKey{Database: "main", Table: "users", Columns: []string{"*"},
		Conditions: map[string]string{"name": "a", "age": "3"}}
	b := CacheKey{Database: "main", Table: "users", Columns: []string{"*"},
		Conditions: map[string]string{"age": "3", "name": "a"}}
	assert.Equal(t, a.String(), b.String())

	c := a
	c.Limit = intPtr(1)
	assert.NotEqual(t, a.String(), c.String())

	d := a
	d.OrderBy = []operators.OrderSpec{{Column: "age", Desc: true}}
	assert.NotEqual(t, a.String(), d.String())

	e := a
	e.Database = "other"
	assert.NotEqual(t, a.String(), e.String())
}

func TestResultCacheGetPut(t *testing.T) {
	c, err := NewResultCache(10, time.Minute)
	require.NoError(t, err)

	key := CacheKey{Database: "main", Table: "users", Columns: []string{"*"}}
	_, ok := c.Get(key)
	assert.False(t, ok)

	assert.True(t, c.Put(key, c.Generation(key), types.ResultSet("users", []types.Row{{"id": "1", "name": "Alice"}})))
	resp, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, uint16(200), resp.Status)
	assert.Equal(t, []types.Row{{"id": "1", "name": "Alice"}}, resp.Results)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestResultCacheTTL(t *testing.T) {
	c, err := NewResultCache(10, 10*time.Millisecond)
	require.NoError(t, err)

	key := CacheKey{Database: "main", Table: "users"}
	c.Put(key, c.Generation(key), types.ResultSet("users", nil))
	time.Sleep(25 * time.Millisecond)
	_, ok := c.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestResultCacheInvalidateTable(t *testing.T) {
	c, err := NewResultCache(10, time.Minute)
	require.NoError(t, err)

	users1 := CacheKey{Database: "main", Table: "users", Columns: []string{"*"}}
	users2 := CacheKey{Database: "main", Table: "users", Columns: []string{"name"}}
	orders := CacheKey{Database: "main", Table: "orders"}
	otherDB := CacheKey{Database: "shop", Table: "users"}
	for _, k := range []CacheKey{users1, users2, orders, otherDB} {
		c.Put(k, c.Generation(k), types.ResultSet(k.Table, nil))
	}

	assert.Equal(t, 2, c.InvalidateTable("main", "users"))
	_, ok := c.Get(users1)
	assert.False(t, ok)
	_, ok = c.Get(orders)
	assert.True(t, ok)
	_, ok = c.Get(otherDB)
	assert.True(t, ok)
}

func TestResultCacheRejectsStalePut(t *testing.T) {
	c, err := NewResultCache(10, time.Minute)
	require.NoError(t, err)

	key := CacheKey{Database: "main", Table: "users", Columns: []string{"*"}}
	gen := c.Generation(key)

	// a write lands while the read is still scanning
	c.InvalidateTable("main", "users")

	assert.False(t, c.Put(key, gen, types.ResultSet("users", []types.Row{{"id": "1"}})))
	_, ok := c.Get(key)
	assert.False(t, ok)

	other := CacheKey{Database: "main", Table: "orders"}
	assert.True(t, c.Put(other, c.Generation(other), types.ResultSet("orders", nil)))
	assert.True(t, c.Put(key, c.Generation(key), types.ResultSet("users", nil)))
}

func TestResultCacheCapacity(t *testing.T) {
	c, err := NewResultCache(2, time.Minute)
	require.NoError(t, err)
	for _, table := range []string{"a", "b", "c"} {
		key := CacheKey{Database: "main", Table: table}
		c.Put(key, c.Generation(key), types.ResultSet(table, nil))
	}
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(CacheKey{Database: "main", Table: "a"})
	assert.False(t, ok)

	c.Purge()
	assert.Equal(t, 0, c.Len())
}
