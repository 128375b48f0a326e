package internal

import (
	"sort"
	"sync"

	"github.com/guileen/docsql/types"
)

// SchemaCache is the in-memory schema registry. Foreign keys are indexed
// both by the referencing table and by the referenced table.
type SchemaCache struct {
	mu           sync.RWMutex
	schemas      map[string]*types.TableSchema
	referencedBy map[string][]types.ForeignKey
}

func NewSchemaCache() *SchemaCache {
	return &SchemaCache{
		schemas:      make(map[string]*types.TableSchema),
		referencedBy: make(map[string][]types.ForeignKey),
	}
}

// Get returns the cached schema. Callers must not mutate it.
func (c *SchemaCache) Get(name string) (*types.TableSchema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.schemas[name]
	return s, ok
}

func (c *SchemaCache) Exists(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// Set stores schema, replacing any previous version and its FK index entries.
func (c *SchemaCache) Set(schema *types.TableSchema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(schema.Name)
	c.schemas[schema.Name] = schema
	for _, fk := range schema.ForeignKeys {
		c.referencedBy[fk.ReferencedTable] = append(c.referencedBy[fk.ReferencedTable], fk)
	}
}

func (c *SchemaCache) Delete(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(name)
}

func (c *SchemaCache) removeLocked(name string) {
	old, ok := c.schemas[name]
	if !ok {
		return
	}
	delete(c.schemas, name)
	for _, fk := range old.ForeignKeys {
		refs := c.referencedBy[fk.ReferencedTable]
		kept := refs[:0]
		for _, r := range refs {
			if r.Table != name {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(c.referencedBy, fk.ReferencedTable)
		} else {
			c.referencedBy[fk.ReferencedTable] = kept
		}
	}
}

// ReferencedBy returns the foreign keys of other tables that point at name.
func (c *SchemaCache) ReferencedBy(name string) []types.ForeignKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]types.ForeignKey(nil), c.referencedBy[name]...)
}

// Names returns the registered table names, sorted.
func (c *SchemaCache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.schemas))
	for n := range c.schemas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
