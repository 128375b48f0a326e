// Package persistence stores catalog metadata in reserved storage trees.
package persistence

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/guileen/docsql/catalog/errors"
	"github.com/guileen/docsql/storage"
	"github.com/guileen/docsql/types"
)

const (
	// SchemasTree holds one serialized TableSchema per table name.
	SchemasTree = "__schemas__"
	// ForeignKeysTree holds the serialized []ForeignKey of each referencing table.
	ForeignKeysTree = "__foreign_keys__"
)

// Persister handles persistence operations for catalog entities
type Persister struct {
	schemas *storage.Tree
	fks     *storage.Tree
}

// NewPersister opens the metadata trees of store.
func NewPersister(store *storage.Store) (*Persister, error) {
	schemas, err := store.OpenTree(SchemasTree)
	if err != nil {
		return nil, errors.Wrap(err, "open_metadata_failed", "open %s", SchemasTree)
	}
	fks, err := store.OpenTree(ForeignKeysTree)
	if err != nil {
		return nil, errors.Wrap(err, "open_metadata_failed", "open %s", ForeignKeysTree)
	}
	return &Persister{schemas: schemas, fks: fks}, nil
}

// PersistSchema persists a table schema and its foreign key list
func (p *Persister) PersistSchema(ctx context.Context, schema *types.TableSchema) error {
	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return errors.Wrap(err, "marshal_schema_failed", "marshal schema %s", schema.Name)
	}
	if _, err := p.schemas.Insert(schema.Name, schemaBytes); err != nil {
		return errors.Wrap(err, "persist_schema_failed", "persist schema %s", schema.Name)
	}

	fks := schema.ForeignKeys
	if fks == nil {
		fks = []types.ForeignKey{}
	}
	fkBytes, err := json.Marshal(fks)
	if err != nil {
		return errors.Wrap(err, "marshal_schema_failed", "marshal foreign keys of %s", schema.Name)
	}
	if _, err := p.fks.Insert(schema.Name, fkBytes); err != nil {
		return errors.Wrap(err, "persist_schema_failed", "persist foreign keys of %s", schema.Name)
	}
	return nil
}

// DeleteSchema deletes a table schema and its foreign key list from storage
func (p *Persister) DeleteSchema(ctx context.Context, tableName string) error {
	if _, err := p.schemas.Remove(tableName); err != nil {
		return errors.Wrap(err, "delete_schema_failed", "delete schema %s", tableName)
	}
	if _, err := p.fks.Remove(tableName); err != nil {
		return errors.Wrap(err, "delete_schema_failed", "delete foreign keys of %s", tableName)
	}
	return nil
}

// LoadSchemas reads every persisted schema. Foreign keys come from the
// foreign key tree, which is authoritative for referential metadata.
func (p *Persister) LoadSchemas(ctx context.Context) ([]*types.TableSchema, error) {
	fkLists := make(map[string][]types.ForeignKey)
	err := p.fks.Scan(func(name string, value []byte) error {
		var fks []types.ForeignKey
		if err := json.Unmarshal(value, &fks); err != nil {
			return fmt.Errorf("decode foreign keys of %s: %w", name, err)
		}
		fkLists[name] = fks
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "load_schema_failed", "load foreign keys")
	}

	var schemas []*types.TableSchema
	err = p.schemas.Scan(func(name string, value []byte) error {
		var schema types.TableSchema
		if err := json.Unmarshal(value, &schema); err != nil {
			return fmt.Errorf("decode schema %s: %w", name, err)
		}
		if fks, ok := fkLists[name]; ok {
			schema.ForeignKeys = fks
		}
		schemas = append(schemas, &schema)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "load_schema_failed", "load schemas")
	}
	return schemas, nil
}
