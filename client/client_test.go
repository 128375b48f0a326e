package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guileen/docsql/config"
	"github.com/guileen/docsql/engine"
	"github.com/guileen/docsql/protocol/api"
	"github.com/guileen/docsql/types"
)

func newTestEngine(t *testing.T, mutate func(*config.Config)) *engine.Engine {
	t.Helper()
	cfg := config.Default()
	cfg.InMemory = true
	cfg.DataDir = ""
	cfg.Notify.Workers = 2
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := engine.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// clients returns an embedded and a remote client over separate engines.
func clients(t *testing.T) map[string]*Client {
	embedded := NewEmbedded(newTestEngine(t, nil))

	srv := httptest.NewServer(api.NewRouter(newTestEngine(t, nil)))
	t.Cleanup(srv.Close)
	remote := NewRemote(srv.URL + "/")

	return map[string]*Client{"embedded": embedded, "remote": remote}
}

func TestClientQuery(t *testing.T) {
	ctx := context.Background()
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			_, err := c.Query(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL)")
			require.NoError(t, err)
			_, err = c.Query(ctx, "INSERT INTO users (name) VALUES ('Alice'), ('Bob')")
			require.NoError(t, err)

			resp, err := c.Query(ctx, "SELECT name FROM users ORDER BY name")
			require.NoError(t, err)
			assert.Equal(t, []types.Row{{"name": "Alice"}, {"name": "Bob"}}, resp.Results)

			resp, err = c.Query(ctx, "SELECT * FROM missing")
			var cerr *Error
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, uint16(http.StatusNotFound), cerr.Status)
			assert.Equal(t, cerr.Status, resp.Status)
		})
	}
}

func TestClientTransaction(t *testing.T) {
	ctx := context.Background()
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			_, err := c.Query(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)")
			require.NoError(t, err)

			txID, err := c.Begin(ctx)
			require.NoError(t, err)
			assert.Equal(t, txID, c.TxID())

			_, err = c.Begin(ctx)
			assert.Error(t, err)

			_, err = c.Query(ctx, "INSERT INTO items (name) VALUES ('pen')")
			require.NoError(t, err)
			require.NoError(t, c.Rollback(ctx))
			assert.Empty(t, c.TxID())

			resp, err := c.Query(ctx, "SELECT * FROM items")
			require.NoError(t, err)
			assert.Empty(t, resp.Results)

			_, err = c.Begin(ctx)
			require.NoError(t, err)
			_, err = c.Query(ctx, "INSERT INTO items (name) VALUES ('ink')")
			require.NoError(t, err)
			require.NoError(t, c.Commit(ctx))

			resp, err = c.Query(ctx, "SELECT name FROM items")
			require.NoError(t, err)
			assert.Equal(t, []types.Row{{"name": "ink"}}, resp.Results)

			assert.Error(t, c.Commit(ctx))
		})
	}
}

func TestClientUse(t *testing.T) {
	ctx := context.Background()
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			_, err := c.Query(ctx, "CREATE DATABASE shop")
			require.NoError(t, err)

			c.Use("shop")
			_, err = c.Query(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY)")
			require.NoError(t, err)
			resp, err := c.Query(ctx, "SHOW TABLES")
			require.NoError(t, err)
			assert.Len(t, resp.Results, 1)

			c.Use("")
			resp, err = c.Query(ctx, "SHOW TABLES")
			require.NoError(t, err)
			assert.Empty(t, resp.Results)

			c.Use("nowhere")
			_, err = c.Query(ctx, "SHOW TABLES")
			var cerr *Error
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, uint16(http.StatusNotFound), cerr.Status)
		})
	}
}

func TestRemoteBasicAuth(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, func(c *config.Config) { c.Auth.RequireAuth = true })
	srv := httptest.NewServer(api.NewRouter(e))
	defer srv.Close()

	_, err := NewRemote(srv.URL).Query(ctx, "SHOW TABLES")
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, uint16(http.StatusUnauthorized), cerr.Status)

	_, err = NewRemote(srv.URL, WithBasicAuth("admin", "admin")).Query(ctx, "SHOW TABLES")
	assert.NoError(t, err)
}

func TestRemoteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewRemote(url).Query(context.Background(), "SHOW TABLES")
	require.Error(t, err)
	var cerr *Error
	assert.False(t, errors.As(err, &cerr))
}
