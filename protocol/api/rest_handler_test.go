package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guileen/docsql/config"
	"github.com/guileen/docsql/engine"
	"github.com/guileen/docsql/types"
)

type echoHost struct {
	calls []string
}

func (h *echoHost) LoadModule(context.Context, string, string) error { return nil }

func (h *echoHost) Call(_ context.Context, module, function string, args []string) (json.RawMessage, error) {
	h.calls = append(h.calls, module+"."+function)
	out, err := json.Marshal(map[string]any{"module": module, "function": function, "args": args})
	return json.RawMessage(out), err
}

func (h *echoHost) Modules() []string { return []string{"counter"} }

func setupTestServer(t *testing.T, mutate func(*config.Config), opts ...engine.Option) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.InMemory = true
	cfg.DataDir = ""
	cfg.Notify.Workers = 2
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := engine.New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	srv := httptest.NewServer(NewRouter(e))
	t.Cleanup(func() {
		srv.Close()
		e.Close()
	})
	return srv
}

func postQuery(t *testing.T, srv *httptest.Server, req QueryRequest) (int, *types.Response) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/query", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var env types.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, &env
}

func TestRESTHandler_Query(t *testing.T) {
	srv := setupTestServer(t, nil)

	code, env := postQuery(t, srv, QueryRequest{SQL: "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL); INSERT INTO users (name) VALUES ('Alice')"})
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, 1, env.AffectedRows)

	code, env = postQuery(t, srv, QueryRequest{SQL: "SELECT name FROM users"})
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, env.Table)
	assert.Equal(t, "users", *env.Table)
	assert.Equal(t, []types.Row{{"name": "Alice"}}, env.Results)
}

func TestRESTHandler_QueryErrors(t *testing.T) {
	srv := setupTestServer(t, nil)

	tests := []struct {
		name   string
		req    QueryRequest
		status int
	}{
		{"empty sql", QueryRequest{}, http.StatusBadRequest},
		{"parse error", QueryRequest{SQL: "SELEKT 1"}, http.StatusBadRequest},
		{"missing table", QueryRequest{SQL: "SELECT * FROM nope"}, http.StatusNotFound},
		{"missing database", QueryRequest{SQL: "SHOW TABLES", Database: "nope"}, http.StatusNotFound},
		{"commit without transaction", QueryRequest{SQL: "COMMIT"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := postQuery(t, srv, tt.req)
			assert.Equal(t, tt.status, code)
			assert.Equal(t, uint16(tt.status), env.Status)
			assert.NotEmpty(t, env.Message)
		})
	}

	resp, err := http.Post(srv.URL+"/query", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRESTHandler_TransactionAcrossRequests(t *testing.T) {
	srv := setupTestServer(t, nil)
	postQuery(t, srv, QueryRequest{SQL: "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)"})

	code, env := postQuery(t, srv, QueryRequest{SQL: "BEGIN"})
	require.Equal(t, http.StatusOK, code)
	txID := env.Results[0]["tx_id"]
	require.NotEmpty(t, txID)

	code, _ = postQuery(t, srv, QueryRequest{SQL: "INSERT INTO items (name) VALUES ('pen')", TxID: txID})
	require.Equal(t, http.StatusOK, code)

	_, env = postQuery(t, srv, QueryRequest{SQL: "SELECT * FROM items"})
	assert.Empty(t, env.Results)

	code, _ = postQuery(t, srv, QueryRequest{SQL: "COMMIT", TxID: txID})
	require.Equal(t, http.StatusOK, code)

	_, env = postQuery(t, srv, QueryRequest{SQL: "SELECT * FROM items"})
	assert.Len(t, env.Results, 1)
}

func TestRESTHandler_Database(t *testing.T) {
	srv := setupTestServer(t, nil)

	code, _ := postQuery(t, srv, QueryRequest{SQL: "CREATE DATABASE shop"})
	require.Equal(t, http.StatusOK, code)
	code, _ = postQuery(t, srv, QueryRequest{SQL: "CREATE TABLE items (id INTEGER PRIMARY KEY)", Database: "shop"})
	require.Equal(t, http.StatusOK, code)

	_, env := postQuery(t, srv, QueryRequest{SQL: "SHOW TABLES", Database: "shop"})
	assert.Len(t, env.Results, 1)
	_, env = postQuery(t, srv, QueryRequest{SQL: "SHOW TABLES"})
	assert.Empty(t, env.Results)
}

func TestRESTHandler_BasicAuth(t *testing.T) {
	srv := setupTestServer(t, func(c *config.Config) { c.Auth.RequireAuth = true })

	code, _ := postQuery(t, srv, QueryRequest{SQL: "SHOW TABLES"})
	assert.Equal(t, http.StatusUnauthorized, code)

	do := func(user, password string) int {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/query", strings.NewReader(`{"sql":"SHOW TABLES"}`))
		require.NoError(t, err)
		req.SetBasicAuth(user, password)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusUnauthorized, do("admin", "wrong"))
	assert.Equal(t, http.StatusOK, do("admin", "admin"))
}

func TestRESTHandler_Reducer(t *testing.T) {
	host := &echoHost{}
	srv := setupTestServer(t, nil, engine.WithModuleHost(host))

	resp, err := http.Post(srv.URL+"/reducer", "application/json",
		strings.NewReader(`{"module":"counter","function":"incr","args":["a",2]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Status uint16 `json:"status"`
		Result struct {
			Module   string   `json:"module"`
			Function string   `json:"function"`
			Args     []string `json:"args"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, uint16(200), out.Status)
	assert.Equal(t, "counter", out.Result.Module)
	assert.Equal(t, []string{"a", "2"}, out.Result.Args)
	assert.Equal(t, []string{"counter.incr"}, host.calls)

	bad, err := http.Post(srv.URL+"/reducer", "application/json", strings.NewReader(`{"module":"counter"}`))
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestRESTHandler_ReducerWithoutHost(t *testing.T) {
	srv := setupTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/reducer", "application/json",
		strings.NewReader(`{"module":"counter","function":"incr","args":[]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out ReducerResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out.Message, "module host not configured")
}

func TestRESTHandler_HealthAndMetrics(t *testing.T) {
	srv := setupTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, []string{"main"}, health.Databases)

	postQuery(t, srv, QueryRequest{SQL: "SHOW TABLES"})

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "docsql_statements_total")
}

func TestRESTHandler_Pprof(t *testing.T) {
	off := setupTestServer(t, nil)
	resp, err := http.Get(off.URL + "/debug/pprof/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	on := setupTestServer(t, func(c *config.Config) { c.HTTP.Pprof = true })
	resp, err = http.Get(on.URL + "/debug/pprof/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
