package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().DefaultDatabase, cfg.DefaultDatabase)
	assert.Equal(t, 60*time.Second, cfg.Cache.TTL)
	assert.Equal(t, JoinStrategyHash, cfg.Join.Strategy)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DOCSQL_CACHE_TTL", "5s")
	t.Setenv("DOCSQL_CACHE_CAPACITY", "10")
	t.Setenv("DOCSQL_DATA_DIR", "/tmp/docsql")
	t.Setenv("DOCSQL_JOIN_STRATEGY", "nested_loop")
	t.Setenv("DOCSQL_IN_MEMORY", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 10, cfg.Cache.Capacity)
	assert.Equal(t, "/tmp/docsql", cfg.DataDir)
	assert.Equal(t, JoinStrategyNestedLoop, cfg.Join.Strategy)
	assert.True(t, cfg.InMemory)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docsql.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \":9090\"\nauth:\n  require_auth: true\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.True(t, cfg.Auth.RequireAuth)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Join.Strategy = "merge"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Cache.Capacity = 0
	assert.Error(t, cfg.Validate())
}
