package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	dberrors "github.com/guileen/docsql/engine/errors"
	"github.com/guileen/docsql/logger"
	"github.com/guileen/docsql/modules"
	"github.com/guileen/docsql/protocol/sql"
	"github.com/guileen/docsql/types"
)

// Session is one client's view of the engine: the current database, the open
// transaction and the authenticated user. A Session is not safe for
// concurrent use.
type Session struct {
	id         string
	engine     *Engine
	database   string
	txID       string
	user       string
	subscriber modules.Subscriber
}

// NewSession starts a session on the default database.
func (e *Engine) NewSession() *Session {
	return &Session{
		id:       uuid.NewString(),
		engine:   e,
		database: e.cfg.DefaultDatabase,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Database() string { return s.database }

// TxID returns the open transaction, or "".
func (s *Session) TxID() string { return s.txID }

// SetTxID binds the session to a transaction begun earlier, possibly by
// another session.
func (s *Session) SetTxID(txID string) { s.txID = txID }

// User returns the authenticated user, or "".
func (s *Session) User() string { return s.user }

// SetSubscriber routes SUBSCRIBE notifications of this session to sub.
func (s *Session) SetSubscriber(sub modules.Subscriber) { s.subscriber = sub }

// Use switches the current database.
func (s *Session) Use(ctx context.Context, name string) error {
	if s.txID != "" && name != s.database {
		return dberrors.NewTransactionErrorf("use", "cannot switch database inside transaction %s", s.txID)
	}
	if _, err := s.engine.Database(ctx, name); err != nil {
		return err
	}
	s.database = name
	return nil
}

// Authenticate checks the credentials and records the user.
func (s *Session) Authenticate(ctx context.Context, user, password string) error {
	if err := s.engine.users.Authenticate(ctx, user, password); err != nil {
		return err
	}
	s.user = user
	return nil
}

// Execute runs the semicolon separated statements of text in order. It stops
// at the first failing statement and returns its error envelope; otherwise
// it returns the response of the last statement.
func (s *Session) Execute(ctx context.Context, text string) *types.Response {
	ctx = logger.WithContextValue(ctx, logger.SessionIDKey, s.id)

	stmts, err := sql.ParseAll(text)
	if err != nil {
		return s.failure(ctx, err)
	}

	var resp *types.Response
	for _, stmt := range stmts {
		if resp, err = s.execute(ctx, stmt); err != nil {
			return s.failure(ctx, err)
		}
	}
	return resp
}

func (s *Session) execute(ctx context.Context, stmt sql.Statement) (*types.Response, error) {
	if _, ok := stmt.(*sql.Auth); !ok && s.engine.cfg.Auth.RequireAuth && s.user == "" {
		return nil, dberrors.NewAuthErrorf("execute", "authentication required")
	}

	switch st := stmt.(type) {
	case *sql.CreateDatabase:
		if err := s.engine.CreateDatabase(ctx, st.Name); err != nil {
			return nil, err
		}
		return types.OK(fmt.Sprintf("Database %s created", st.Name)), nil

	case *sql.UseDatabase:
		if err := s.Use(ctx, st.Name); err != nil {
			return nil, err
		}
		return types.OK(fmt.Sprintf("Using database %s", st.Name)), nil

	case *sql.DropDatabase:
		if st.IfExists && !s.engine.HasDatabase(st.Name) {
			return types.OK(fmt.Sprintf("Database %s does not exist", st.Name)), nil
		}
		if err := s.engine.DropDatabase(ctx, st.Name); err != nil {
			return nil, err
		}
		if s.database == st.Name {
			s.database = s.engine.cfg.DefaultDatabase
		}
		return types.OK(fmt.Sprintf("Database %s dropped", st.Name)), nil

	case *sql.ShowDatabases:
		names := s.engine.Databases()
		rows := make([]types.Row, len(names))
		for i, n := range names {
			rows[i] = types.Row{"database": n}
		}
		return &types.Response{Status: 200, Message: "OK", Results: rows, AffectedRows: len(rows)}, nil
	}

	db, err := s.engine.Database(ctx, s.database)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithContextValue(ctx, logger.DatabaseKey, s.database)
	if s.txID != "" {
		ctx = logger.WithContextValue(ctx, logger.TxIDKey, s.txID)
	}
	if s.user != "" {
		ctx = logger.WithContextValue(ctx, logger.UserKey, s.user)
	}
	if s.subscriber != nil {
		ctx = modules.WithSubscriber(ctx, s.id, s.subscriber)
	}

	resp, err := db.Executor().Execute(ctx, stmt, s.txID)

	switch st := stmt.(type) {
	case *sql.Begin:
		if err == nil && len(resp.Results) > 0 {
			s.txID = resp.Results[0]["tx_id"]
		}
	case *sql.Commit, *sql.Rollback:
		if !db.Executor().Transactions().IsActive(s.txID) {
			s.txID = ""
		}
	case *sql.Auth:
		if err == nil {
			s.user = st.User
		}
	}
	return resp, err
}

func (s *Session) failure(ctx context.Context, err error) *types.Response {
	status := dberrors.Status(err)
	logger.DebugContext(ctx, "statement rejected", logger.Component("session"),
		logger.Int("status", int(status)), logger.ErrorField(err))
	return types.Failure(status, err.Error())
}

// Close rolls back the open transaction and drops the session's
// subscriptions.
func (s *Session) Close(ctx context.Context) {
	if s.txID != "" {
		if db, err := s.engine.Database(ctx, s.database); err == nil {
			if _, err := db.Executor().Execute(ctx, &sql.Rollback{}, s.txID); err != nil {
				logger.DebugContext(ctx, "rollback on close", logger.Component("session"),
					logger.TxID(s.txID), logger.ErrorField(err))
			}
		}
		s.txID = ""
	}
	if s.subscriber != nil {
		s.engine.broker.UnsubscribeAll(s.id)
	}
}
