// Package client runs statements against docsql, either in process through
// an engine session or against a remote server's HTTP API.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/guileen/docsql/engine"
	dberrors "github.com/guileen/docsql/engine/errors"
	"github.com/guileen/docsql/protocol/api"
	"github.com/guileen/docsql/types"
)

// Error is a non-200 response envelope.
type Error struct {
	Status  uint16
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("docsql: status %d: %s", e.Status, e.Message)
}

type backend interface {
	execute(ctx context.Context, text, txID, database string) (*types.Response, error)
}

// Client tracks the current database and transaction across calls. A Client
// is not safe for concurrent use.
type Client struct {
	backend  backend
	database string
	txID     string
}

// NewEmbedded returns a client running statements on e in process.
func NewEmbedded(e *engine.Engine) *Client {
	return &Client{backend: &embedded{engine: e}}
}

// Option customizes a remote client.
type Option func(*remote)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *remote) { r.http = c }
}

// WithBasicAuth sends credentials with every request.
func WithBasicAuth(user, password string) Option {
	return func(r *remote) { r.user, r.password = user, password }
}

// NewRemote returns a client for the server at baseURL, e.g.
// "http://localhost:8080".
func NewRemote(baseURL string, opts ...Option) *Client {
	r := &remote{
		url:  strings.TrimSuffix(baseURL, "/") + "/query",
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return &Client{backend: r}
}

// Use selects the database for subsequent statements. An empty name means
// the server's default database.
func (c *Client) Use(database string) { c.database = database }

// TxID returns the open transaction, or "".
func (c *Client) TxID() string { return c.txID }

// Query runs text and returns the response envelope. A non-200 envelope is
// returned as *Error.
func (c *Client) Query(ctx context.Context, text string) (*types.Response, error) {
	resp, err := c.backend.execute(ctx, text, c.txID, c.database)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return resp, &Error{Status: resp.Status, Message: resp.Message}
	}
	return resp, nil
}

// Begin opens a transaction; later statements run inside it until Commit or
// Rollback.
func (c *Client) Begin(ctx context.Context) (string, error) {
	if c.txID != "" {
		return "", fmt.Errorf("docsql: transaction %s already open", c.txID)
	}
	resp, err := c.Query(ctx, "BEGIN")
	if err != nil {
		return "", err
	}
	if len(resp.Results) == 0 || resp.Results[0]["tx_id"] == "" {
		return "", fmt.Errorf("docsql: BEGIN returned no transaction id")
	}
	c.txID = resp.Results[0]["tx_id"]
	return c.txID, nil
}

func (c *Client) Commit(ctx context.Context) error {
	return c.finish(ctx, "COMMIT")
}

func (c *Client) Rollback(ctx context.Context) error {
	return c.finish(ctx, "ROLLBACK")
}

// finish ends the transaction; the client forgets the id even on failure.
func (c *Client) finish(ctx context.Context, stmt string) error {
	if c.txID == "" {
		return fmt.Errorf("docsql: no open transaction")
	}
	_, err := c.Query(ctx, stmt)
	c.txID = ""
	return err
}

type embedded struct {
	engine *engine.Engine
}

func (b *embedded) execute(ctx context.Context, text, txID, database string) (*types.Response, error) {
	s := b.engine.NewSession()
	if database != "" {
		if err := s.Use(ctx, database); err != nil {
			return types.Failure(dberrors.Status(err), err.Error()), nil
		}
	}
	s.SetTxID(txID)
	return s.Execute(ctx, text), nil
}

type remote struct {
	url      string
	http     *http.Client
	user     string
	password string
}

func (b *remote) execute(ctx context.Context, text, txID, database string) (*types.Response, error) {
	body, err := json.Marshal(api.QueryRequest{SQL: text, TxID: txID, Database: database})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.user != "" {
		req.SetBasicAuth(b.user, b.password)
	}

	httpResp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("docsql: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("docsql: read response: %w", err)
	}
	resp, err := types.DecodeResponse(data)
	if err != nil {
		return nil, fmt.Errorf("docsql: decode response (HTTP %d): %w", httpResp.StatusCode, err)
	}
	return resp, nil
}
