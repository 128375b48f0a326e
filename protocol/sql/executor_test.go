package sql

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guileen/docsql/auth"
	"github.com/guileen/docsql/catalog"
	catalogerrors "github.com/guileen/docsql/catalog/errors"
	dberrors "github.com/guileen/docsql/engine/errors"
	"github.com/guileen/docsql/modules"
	"github.com/guileen/docsql/protocol/sql/operators"
	"github.com/guileen/docsql/storage"
	"github.com/guileen/docsql/transaction"
	"github.com/guileen/docsql/types"
)

type testDB struct {
	t     *testing.T
	exec  *Executor
	store *storage.Store
	cache *ResultCache
	users *auth.Directory
}

func newTestDB(t *testing.T) *testDB {
	t.Helper()
	ctx := context.Background()

	reg := storage.NewRegistry(storage.Options{InMemory: true})
	t.Cleanup(func() { reg.Close() })
	store, err := reg.Open(filepath.Join(t.TempDir(), "main"))
	require.NoError(t, err)

	schemas, err := catalog.NewSchemaManager(ctx, store)
	require.NoError(t, err)
	cache, err := NewResultCache(100, time.Minute)
	require.NoError(t, err)

	broker, err := modules.NewBroker(2)
	require.NoError(t, err)
	t.Cleanup(broker.Close)
	mods := modules.NewManager(broker, nil)
	mods.Register(modules.NotifyHook{})

	users, err := auth.NewDirectory(store)
	require.NoError(t, err)

	exec := NewExecutor(Options{
		Database:     "main",
		Store:        store,
		Schemas:      schemas,
		Transactions: transaction.NewManager(store),
		Cache:        cache,
		JoinStrategy: operators.StrategyHash,
		Modules:      mods,
		Users:        users,
	})
	return &testDB{t: t, exec: exec, store: store, cache: cache, users: users}
}

func (db *testDB) run(ctx context.Context, text, txID string) (*types.Response, error) {
	stmt, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return db.exec.Execute(ctx, stmt, txID)
}

func (db *testDB) mustRun(text string) *types.Response {
	db.t.Helper()
	resp, err := db.run(context.Background(), text, "")
	require.NoError(db.t, err, text)
	return resp
}

func (db *testDB) mustRunTx(text, txID string) *types.Response {
	db.t.Helper()
	resp, err := db.run(context.Background(), text, txID)
	require.NoError(db.t, err, text)
	return resp
}

func (db *testDB) fail(text string) error {
	db.t.Helper()
	_, err := db.run(context.Background(), text, "")
	require.Error(db.t, err, text)
	return err
}

// seed creates users(1 Alice, 2 Bob, 3 Carol) and orders for Alice (100,
// 50) and Bob (75).
func (db *testDB) seed() {
	db.mustRun("CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT UNIQUE)")
	db.mustRun("CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER REFERENCES users(id) ON DELETE CASCADE, amount INTEGER)")
	db.mustRun("INSERT INTO users (name, email) VALUES ('Alice', 'alice@example.com'), ('Bob', 'bob@example.com'), ('Carol', 'carol@example.com')")
	db.mustRun("INSERT INTO orders (user_id, amount) VALUES (1, 100), (1, 50), (2, 75)")
}

func TestExecutorInsertSelect(t *testing.T) {
	db := newTestDB(t)
	db.seed()

	resp := db.mustRun("SELECT * FROM users WHERE id = 2")
	assert.Equal(t, uint16(200), resp.Status)
	assert.Equal(t, []types.Row{{"id": "2", "name": "Bob", "email": "bob@example.com"}}, resp.Results)

	resp = db.mustRun("SELECT name FROM users ORDER BY name DESC LIMIT 2")
	assert.Equal(t, []types.Row{{"name": "Carol"}, {"name": "Bob"}}, resp.Results)

	resp = db.mustRun("SELECT name AS who, phone FROM users WHERE name = 'Alice'")
	assert.Equal(t, []types.Row{{"who": "Alice", "phone": types.NullValue}}, resp.Results)
}

func TestExecutorInsertResponse(t *testing.T) {
	db := newTestDB(t)
	db.mustRun("CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT UNIQUE)")

	resp := db.mustRun("INSERT INTO users (name) VALUES ('a'), ('b')")
	assert.Equal(t, "Inserted 2 row(s)", resp.Message)
	assert.Equal(t, 2, resp.AffectedRows)
	require.NotNil(t, resp.Table)
	assert.Equal(t, "users", *resp.Table)

	err := db.fail("INSERT INTO users (name, email) VALUES ('c')")
	assert.True(t, dberrors.IsParseError(err))
}

func TestExecutorInnerJoin(t *testing.T) {
	db := newTestDB(t)
	db.seed()

	resp := db.mustRun("SELECT users.name, orders.amount FROM users JOIN orders ON users.id = orders.user_id ORDER BY orders.amount")
	assert.Equal(t, []types.Row{
		{"users.name": "Alice", "orders.amount": "50"},
		{"users.name": "Bob", "orders.amount": "75"},
		{"users.name": "Alice", "orders.amount": "100"},
	}, resp.Results)
}

func TestExecutorLeftJoinPadsNulls(t *testing.T) {
	db := newTestDB(t)
	db.seed()

	resp := db.mustRun("SELECT users.name, orders.amount FROM users LEFT JOIN orders ON users.id = orders.user_id WHERE users.name = 'Carol'")
	assert.Equal(t, []types.Row{{"users.name": "Carol", "orders.amount": types.NullValue}}, resp.Results)

	resp = db.mustRun("SELECT * FROM users LEFT JOIN orders ON users.id = orders.user_id")
	assert.Len(t, resp.Results, 4)
}

func TestExecutorTransactionRollback(t *testing.T) {
	db := newTestDB(t)
	db.seed()

	resp := db.mustRun("BEGIN")
	require.Len(t, resp.Results, 1)
	txID := resp.Results[0]["tx_id"]
	require.NotEmpty(t, txID)

	db.mustRunTx("INSERT INTO users (name) VALUES ('Dave')", txID)
	assert.Len(t, db.mustRun("SELECT * FROM users").Results, 3, "staged rows stay invisible")

	resp = db.mustRunTx("ROLLBACK", txID)
	assert.Equal(t, "Transaction rolled back", resp.Message)
	assert.Len(t, db.mustRun("SELECT * FROM users").Results, 3)
	assert.False(t, db.exec.Transactions().IsActive(txID))
}

func TestExecutorTransactionCommitInvalidatesCache(t *testing.T) {
	db := newTestDB(t)
	db.seed()

	txID := db.mustRun("BEGIN").Results[0]["tx_id"]
	db.mustRunTx("INSERT INTO users (name) VALUES ('Dave'), ('Erin')", txID)

	assert.Len(t, db.mustRun("SELECT * FROM users").Results, 3)
	assert.Len(t, db.mustRun("SELECT * FROM users").Results, 3, "served from cache")

	db.mustRunTx("COMMIT", txID)
	resp := db.mustRun("SELECT * FROM users")
	assert.Len(t, resp.Results, 5)

	resp = db.mustRun("SELECT name FROM users WHERE id = 5")
	assert.Equal(t, []types.Row{{"name": "Erin"}}, resp.Results)
}

func TestExecutorCommitWithoutTransaction(t *testing.T) {
	db := newTestDB(t)
	err := db.fail("COMMIT")
	assert.True(t, dberrors.IsTransactionError(err))
	assert.Equal(t, uint16(409), dberrors.Status(err))
}

func TestExecutorForeignKeyViolation(t *testing.T) {
	db := newTestDB(t)
	db.seed()

	err := db.fail("INSERT INTO orders (user_id, amount) VALUES (99, 10)")
	assert.ErrorIs(t, err, catalogerrors.ErrForeignKeyViolation)
	assert.Equal(t, uint16(409), dberrors.Status(err))

	db.mustRun("INSERT INTO orders (amount) VALUES (5)")
}

func TestExecutorCascadeDelete(t *testing.T) {
	db := newTestDB(t)
	db.seed()

	resp := db.mustRun("DELETE FROM users WHERE id = 1")
	assert.Equal(t, "Deleted 1 row(s)", resp.Message)
	assert.Equal(t, 1, resp.AffectedRows)

	resp = db.mustRun("SELECT * FROM orders")
	assert.Equal(t, []types.Row{{"id": "3", "user_id": "2", "amount": "75"}}, resp.Results)
}

func TestExecutorRestrictDelete(t *testing.T) {
	db := newTestDB(t)
	db.seed()
	db.mustRun("CREATE TABLE reviews (id INTEGER PRIMARY KEY, user_id INTEGER REFERENCES users(id), body TEXT)")
	db.mustRun("INSERT INTO reviews (user_id, body) VALUES (2, 'great')")

	err := db.fail("DELETE FROM users WHERE id = 2")
	assert.ErrorIs(t, err, catalogerrors.ErrReferentialViolation)
	assert.Equal(t, uint16(409), dberrors.Status(err))

	assert.Len(t, db.mustRun("SELECT * FROM users WHERE id = 2").Results, 1)
	assert.Len(t, db.mustRun("SELECT * FROM orders WHERE user_id = 2").Results, 1, "cascade is not applied when the delete fails")
}

func TestExecutorSetNullDelete(t *testing.T) {
	db := newTestDB(t)
	db.seed()
	db.mustRun("CREATE TABLE notes (id INTEGER PRIMARY KEY, user_id INTEGER REFERENCES users(id) ON DELETE SET NULL, body TEXT)")
	db.mustRun("INSERT INTO notes (user_id, body) VALUES (3, 'hello')")

	db.mustRun("DELETE FROM users WHERE id = 3")
	resp := db.mustRun("SELECT * FROM notes")
	assert.Equal(t, []types.Row{{"id": "1", "body": "hello"}}, resp.Results)
}

func TestExecutorUpdate(t *testing.T) {
	db := newTestDB(t)
	db.seed()

	assert.Equal(t, []types.Row{{"name": "Alice"}}, db.mustRun("SELECT name FROM users WHERE id = 1").Results)

	resp := db.mustRun("UPDATE users SET name = 'Alicia' WHERE id = 1")
	assert.Equal(t, "Updated 1 row(s)", resp.Message)
	assert.Equal(t, []types.Row{{"name": "Alicia"}}, db.mustRun("SELECT name FROM users WHERE id = 1").Results)

	resp = db.mustRun("UPDATE users SET email = NULL WHERE name = 'Bob'")
	assert.Equal(t, 1, resp.AffectedRows)
	assert.Equal(t, []types.Row{{"id": "2", "name": "Bob"}}, db.mustRun("SELECT * FROM users WHERE id = 2").Results)

	resp = db.mustRun("UPDATE users SET name = 'Nobody' WHERE name = 'Zed'")
	assert.Equal(t, 0, resp.AffectedRows)

	err := db.fail("UPDATE users SET id = 9 WHERE id = 1")
	assert.Equal(t, uint16(400), dberrors.Status(err))

	err = db.fail("UPDATE users SET email = 'carol@example.com' WHERE id = 1")
	assert.ErrorIs(t, err, catalogerrors.ErrUniqueConstraintViolation)
}

func TestExecutorConstraintViolations(t *testing.T) {
	db := newTestDB(t)
	db.seed()

	err := db.fail("INSERT INTO users (name, email) VALUES ('Eve', 'alice@example.com')")
	assert.ErrorIs(t, err, catalogerrors.ErrUniqueConstraintViolation)

	err = db.fail("INSERT INTO users (id, name) VALUES (1, 'Mallory')")
	assert.ErrorIs(t, err, catalogerrors.ErrUniqueConstraintViolation)

	err = db.fail("INSERT INTO users (email) VALUES ('x@example.com')")
	assert.ErrorIs(t, err, catalogerrors.ErrNotNullViolation)

	err = db.fail("INSERT INTO orders (user_id, amount) VALUES (1, 'lots')")
	assert.ErrorIs(t, err, catalogerrors.ErrTypeMismatch)

	err = db.fail("INSERT INTO users (name, nickname) VALUES ('Eve', 'e')")
	assert.ErrorIs(t, err, catalogerrors.ErrColumnNotFound)

	err = db.fail("INSERT INTO missing (a) VALUES (1)")
	assert.Equal(t, uint16(404), dberrors.Status(err))
}

func TestExecutorCreateTableIdempotence(t *testing.T) {
	db := newTestDB(t)
	db.mustRun("CREATE TABLE t (id INTEGER PRIMARY KEY)")

	err := db.fail("CREATE TABLE t (id INTEGER PRIMARY KEY)")
	assert.ErrorIs(t, err, catalogerrors.ErrTableAlreadyExists)
	assert.Equal(t, uint16(409), dberrors.Status(err))

	resp := db.mustRun("CREATE TABLE IF NOT EXISTS t (id INTEGER PRIMARY KEY)")
	assert.Equal(t, "Table t already exists", resp.Message)

	resp = db.mustRun("DROP TABLE t")
	assert.Equal(t, "Dropped 1 table(s)", resp.Message)
	assert.False(t, db.store.HasTree("t"))

	db.mustRun("DROP TABLE IF EXISTS t")
	err = db.fail("DROP TABLE t")
	assert.Equal(t, uint16(404), dberrors.Status(err))
}

func TestExecutorDefaults(t *testing.T) {
	db := newTestDB(t)
	db.mustRun("CREATE TABLE events (id INTEGER PRIMARY KEY, kind TEXT DEFAULT 'note', created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP)")
	db.mustRun("INSERT INTO events (id) VALUES (1)")
	db.mustRun("INSERT INTO events (id, kind, created_at) VALUES (2, NULL, NOW())")

	rows := db.mustRun("SELECT * FROM events ORDER BY id").Results
	require.Len(t, rows, 2)

	assert.Equal(t, "note", rows[0]["kind"])
	_, err := time.Parse(time.RFC3339, rows[0]["created_at"])
	assert.NoError(t, err)

	_, ok := rows[1]["kind"]
	assert.False(t, ok, "an explicit NULL does not take the default")
	_, err = time.Parse(time.RFC3339, rows[1]["created_at"])
	assert.NoError(t, err)
}

func TestExecutorAggregates(t *testing.T) {
	db := newTestDB(t)
	db.seed()

	resp := db.mustRun("SELECT user_id, COUNT(*), SUM(amount) AS total FROM orders GROUP BY user_id HAVING SUM(amount) > 100")
	assert.Equal(t, []types.Row{{"user_id": "1", "COUNT(*)": "2", "total": "150"}}, resp.Results)

	resp = db.mustRun("SELECT COUNT(*), MIN(amount), MAX(amount), AVG(amount) FROM orders")
	assert.Equal(t, []types.Row{{"COUNT(*)": "3", "MIN(amount)": "50", "MAX(amount)": "100", "AVG(amount)": "75"}}, resp.Results)

	resp = db.mustRun("SELECT user_id, COUNT(*) AS n FROM orders GROUP BY ALL ORDER BY user_id")
	assert.Equal(t, []types.Row{{"user_id": "1", "n": "2"}, {"user_id": "2", "n": "1"}}, resp.Results)

	resp = db.mustRun("SELECT COUNT(*) FROM orders WHERE user_id = 42")
	assert.Equal(t, []types.Row{{"COUNT(*)": "0"}}, resp.Results)
}

func TestExecutorJoinAggregate(t *testing.T) {
	db := newTestDB(t)
	db.seed()

	resp := db.mustRun("SELECT users.name, SUM(orders.amount) AS spent FROM users JOIN orders ON users.id = orders.user_id GROUP BY users.name ORDER BY spent DESC")
	assert.Equal(t, []types.Row{{"users.name": "Alice", "spent": "150"}, {"users.name": "Bob", "spent": "75"}}, resp.Results)
}

func TestExecutorWindowFunctions(t *testing.T) {
	db := newTestDB(t)
	db.seed()

	resp := db.mustRun("SELECT user_id, amount, ROW_NUMBER() OVER (PARTITION BY user_id ORDER BY amount DESC) AS rn FROM orders ORDER BY id")
	assert.Equal(t, []types.Row{
		{"user_id": "1", "amount": "100", "rn": "1"},
		{"user_id": "1", "amount": "50", "rn": "2"},
		{"user_id": "2", "amount": "75", "rn": "1"},
	}, resp.Results)

	resp = db.mustRun("SELECT id, RANK() OVER (ORDER BY user_id) AS r, DENSE_RANK() OVER (ORDER BY user_id) AS d FROM orders ORDER BY id")
	assert.Equal(t, []types.Row{
		{"id": "1", "r": "1", "d": "1"},
		{"id": "2", "r": "1", "d": "1"},
		{"id": "3", "r": "3", "d": "2"},
	}, resp.Results)

	resp = db.mustRun("SELECT id, LAG(amount) OVER (ORDER BY id) AS prev FROM orders ORDER BY id")
	assert.Equal(t, []types.Row{
		{"id": "1", "prev": ""},
		{"id": "2", "prev": "100"},
		{"id": "3", "prev": "50"},
	}, resp.Results)
}

func TestExecutorCaseExpression(t *testing.T) {
	db := newTestDB(t)
	db.seed()

	resp := db.mustRun("SELECT id, CASE WHEN amount >= 100 THEN 'big' WHEN amount >= 60 THEN 'mid' ELSE 'small' END AS size FROM orders ORDER BY id")
	assert.Equal(t, []types.Row{
		{"id": "1", "size": "big"},
		{"id": "2", "size": "small"},
		{"id": "3", "size": "mid"},
	}, resp.Results)
}

func TestExecutorCTE(t *testing.T) {
	db := newTestDB(t)
	db.seed()

	resp := db.mustRun("WITH alice_orders AS (SELECT * FROM orders WHERE user_id = 1) SELECT amount FROM alice_orders ORDER BY amount")
	assert.Equal(t, []types.Row{{"amount": "50"}, {"amount": "100"}}, resp.Results)

	resp = db.mustRun("WITH big AS (SELECT * FROM orders WHERE user_id = 1) SELECT users.name, big.amount FROM users JOIN big ON users.id = big.user_id ORDER BY big.amount")
	assert.Equal(t, []types.Row{
		{"users.name": "Alice", "big.amount": "50"},
		{"users.name": "Alice", "big.amount": "100"},
	}, resp.Results)

	names, err := db.store.TreeNames()
	require.NoError(t, err)
	for _, n := range names {
		assert.False(t, strings.HasPrefix(n, "__cte_"), "CTE collection %s left behind", n)
	}

	db.fail("WITH x AS (SELECT * FROM missing) SELECT * FROM x")
	names, err = db.store.TreeNames()
	require.NoError(t, err)
	for _, n := range names {
		assert.False(t, strings.HasPrefix(n, "__cte_"))
	}
}

func TestExecutorAlterTable(t *testing.T) {
	db := newTestDB(t)
	db.seed()

	db.mustRun("ALTER TABLE users ADD COLUMN status TEXT DEFAULT 'active'")
	resp := db.mustRun("SELECT name, status FROM users WHERE id = 1")
	assert.Equal(t, []types.Row{{"name": "Alice", "status": "active"}}, resp.Results)

	db.mustRun("ALTER TABLE users DROP COLUMN status")
	resp = db.mustRun("SELECT * FROM users WHERE id = 1")
	assert.Equal(t, []types.Row{{"id": "1", "name": "Alice", "email": "alice@example.com"}}, resp.Results)

	err := db.fail("INSERT INTO users (name, status) VALUES ('Eve', 'x')")
	assert.ErrorIs(t, err, catalogerrors.ErrColumnNotFound)
}

func TestExecutorDescribeAndShow(t *testing.T) {
	db := newTestDB(t)
	db.seed()

	resp := db.mustRun("DESCRIBE orders")
	require.Len(t, resp.Results, 3)
	assert.Equal(t, types.Row{"column": "id", "type": "Integer", "constraints": "PrimaryKey"}, resp.Results[0])
	assert.Equal(t, "users(id)", resp.Results[1]["references"])

	resp = db.mustRun("SHOW TABLES")
	assert.Equal(t, []types.Row{{"table": "orders"}, {"table": "users"}}, resp.Results)
	assert.Nil(t, resp.Table)

	resp = db.mustRun("SHOW STATUS")
	require.Len(t, resp.Results, 1)
	status := resp.Results[0]
	assert.Equal(t, "main", status["database"])
	assert.Equal(t, "2", status["tables"])
	assert.Equal(t, "0", status["active_transactions"])
	assert.Equal(t, operators.StrategyHash, status["join_strategy"])

	require.NoError(t, db.users.CreateUser(context.Background(), "alice", "secret"))
	resp = db.mustRun("SHOW USERS")
	assert.Contains(t, resp.Results, types.Row{"user": "alice"})
}

func TestExecutorAuth(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.users.CreateUser(context.Background(), "alice", "secret"))

	resp := db.mustRun("AUTH alice secret")
	assert.Equal(t, "Authenticated as alice", resp.Message)

	err := db.fail("AUTH alice wrong")
	assert.Equal(t, uint16(401), dberrors.Status(err))
}

func TestExecutorSubscribe(t *testing.T) {
	db := newTestDB(t)
	db.seed()

	err := db.fail("SUBSCRIBE users")
	assert.True(t, dberrors.IsQueryError(err))

	ch := make(chan *modules.Message, 4)
	ctx := modules.WithSubscriber(context.Background(), "session-1",
		modules.SubscriberFunc(func(m *modules.Message) { ch <- m }))

	resp, err := db.run(ctx, "SUBSCRIBE users", "")
	require.NoError(t, err)
	assert.Equal(t, "Subscribed to users", resp.Message)

	db.mustRun("INSERT INTO users (name) VALUES ('Dave')")
	select {
	case m := <-ch:
		assert.Equal(t, "main/users", m.Topic)
		assert.Contains(t, string(m.Payload), "Dave")
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
	}

	_, err = db.run(ctx, "UNSUBSCRIBE users", "")
	require.NoError(t, err)
	_, err = db.run(ctx, "UNSUBSCRIBE users", "")
	assert.True(t, dberrors.IsNotFound(err))

	_, err = db.run(ctx, "SUBSCRIBE missing", "")
	assert.True(t, dberrors.IsNotFound(err))
}

func TestExecutorModuleHostDisabled(t *testing.T) {
	db := newTestDB(t)

	err := db.fail("WASM_EXEC('counter', 'incr', 'a')")
	assert.ErrorIs(t, err, modules.ErrModuleHostDisabled)
	assert.Equal(t, uint16(400), dberrors.Status(err))

	err = db.fail("LOAD MODULE counter FROM '/tmp/counter.wasm'")
	assert.ErrorIs(t, err, modules.ErrModuleHostDisabled)
}

func TestExecutorDatabaseCommandsNeedSession(t *testing.T) {
	db := newTestDB(t)
	for _, text := range []string{"CREATE DATABASE shop", "USE shop", "DROP DATABASE shop", "SHOW DATABASES"} {
		err := db.fail(text)
		assert.True(t, dberrors.IsQueryError(err), text)
	}
}

func TestExecutorCacheStats(t *testing.T) {
	db := newTestDB(t)
	db.seed()

	db.mustRun("SELECT * FROM users")
	db.mustRun("SELECT * FROM users")
	hits, misses := db.cache.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	db.mustRun("INSERT INTO users (name) VALUES ('Dave')")
	assert.Equal(t, 0, db.cache.Len())
}

func TestExecutorTransactionStagedKeys(t *testing.T) {
	db := newTestDB(t)
	db.mustRun("CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")

	txID := db.mustRun("BEGIN").Results[0]["tx_id"]
	db.mustRunTx("INSERT INTO users (id, name) VALUES (2, 'B')", txID)
	db.mustRunTx("INSERT INTO users (name) VALUES ('C')", txID)
	db.mustRunTx("INSERT INTO users (name) VALUES ('D')", txID)

	_, err := db.run(context.Background(), "INSERT INTO users (id, name) VALUES (2, 'again')", txID)
	assert.ErrorIs(t, err, catalogerrors.ErrUniqueConstraintViolation)

	db.mustRunTx("COMMIT", txID)
	resp := db.mustRun("SELECT id, name FROM users ORDER BY id")
	assert.Equal(t, []types.Row{
		{"id": "2", "name": "B"},
		{"id": "3", "name": "C"},
		{"id": "4", "name": "D"},
	}, resp.Results)
}

func TestExecutorTransactionStagedNaturalKeys(t *testing.T) {
	db := newTestDB(t)
	db.mustRun("CREATE TABLE items (code TEXT PRIMARY KEY, label TEXT)")

	txID := db.mustRun("BEGIN").Results[0]["tx_id"]
	db.mustRunTx("INSERT INTO items (code, label) VALUES ('a', 'first')", txID)
	_, err := db.run(context.Background(), "INSERT INTO items (code, label) VALUES ('a', 'second')", txID)
	assert.ErrorIs(t, err, catalogerrors.ErrUniqueConstraintViolation)
	db.mustRunTx("COMMIT", txID)

	assert.Equal(t, []types.Row{{"code": "a", "label": "first"}}, db.mustRun("SELECT * FROM items").Results)
}

func TestExecutorUpdatePrimaryKey(t *testing.T) {
	db := newTestDB(t)
	db.mustRun("CREATE TABLE items (code TEXT PRIMARY KEY, label TEXT)")
	db.mustRun("INSERT INTO items (code, label) VALUES ('a', 'apple')")

	err := db.fail("UPDATE items SET code = 'x' WHERE code = 'a'")
	assert.Equal(t, uint16(400), dberrors.Status(err))

	db.mustRun("UPDATE items SET code = 'a', label = 'apricot' WHERE code = 'a'")
	err = db.fail("INSERT INTO items (code, label) VALUES ('a', 'avocado')")
	assert.ErrorIs(t, err, catalogerrors.ErrUniqueConstraintViolation)

	assert.Equal(t, []types.Row{{"code": "a", "label": "apricot"}}, db.mustRun("SELECT * FROM items").Results)
	assert.Equal(t, []types.Row{{"label": "apricot"}}, db.mustRun("SELECT label FROM items WHERE code = 'a'").Results)

	db.mustRun("DELETE FROM items WHERE code = 'a'")
	assert.Empty(t, db.mustRun("SELECT * FROM items").Results)
}

func TestExecutorDropTableWithPendingTransaction(t *testing.T) {
	db := newTestDB(t)
	db.mustRun("CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)")

	txID := db.mustRun("BEGIN").Results[0]["tx_id"]
	db.mustRunTx("INSERT INTO t (name) VALUES ('ghost')", txID)

	err := db.fail("DROP TABLE t")
	assert.True(t, dberrors.IsTransactionError(err))
	assert.Equal(t, uint16(409), dberrors.Status(err))

	db.mustRunTx("ROLLBACK", txID)
	db.mustRun("DROP TABLE t")
	db.mustRun("CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)")
	assert.Empty(t, db.mustRun("SELECT * FROM t").Results)
}

func TestExecutorTransactionMarksTargetTables(t *testing.T) {
	db := newTestDB(t)
	db.seed()

	var committed []string
	db.exec.Transactions().OnCommit(func(_ context.Context, _ string, tables []string, _ []types.Operation) {
		committed = tables
	})

	txID := db.mustRun("BEGIN").Results[0]["tx_id"]
	resp := db.mustRunTx("UPDATE orders SET amount = 1 WHERE user_id = 99", txID)
	assert.Equal(t, 0, resp.AffectedRows)
	assert.Equal(t, []string{txID}, db.exec.Transactions().PendingOn("orders"))

	db.mustRunTx("COMMIT", txID)
	assert.Equal(t, []string{"orders"}, committed)
}

func TestExecutorCTERepeatedIDs(t *testing.T) {
	db := newTestDB(t)
	db.seed()

	resp := db.mustRun("WITH x AS (SELECT user_id AS id, amount FROM orders) SELECT * FROM x ORDER BY amount")
	assert.Equal(t, []types.Row{
		{"id": "1", "amount": "50"},
		{"id": "2", "amount": "75"},
		{"id": "1", "amount": "100"},
	}, resp.Results)

	resp = db.mustRun("WITH x AS (SELECT user_id AS id, amount FROM orders) SELECT amount FROM x WHERE id = 1 ORDER BY amount")
	assert.Equal(t, []types.Row{{"amount": "50"}, {"amount": "100"}}, resp.Results)
}
