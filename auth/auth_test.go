package auth

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	dberrors "github.com/guileen/docsql/engine/errors"
	"github.com/guileen/docsql/storage"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	reg := storage.NewRegistry(storage.Options{InMemory: true})
	t.Cleanup(func() { reg.Close() })
	store, err := reg.Open(filepath.Join(t.TempDir(), "system"))
	require.NoError(t, err)
	d, err := NewDirectory(store)
	require.NoError(t, err)
	d.cost = bcrypt.MinCost
	return d
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)
	require.NoError(t, d.CreateUser(ctx, "alice", "s3cret"))

	assert.NoError(t, d.Authenticate(ctx, "alice", "s3cret"))

	err := d.Authenticate(ctx, "alice", "wrong")
	require.Error(t, err)
	assert.Equal(t, uint16(401), dberrors.Status(err))

	err = d.Authenticate(ctx, "bob", "s3cret")
	assert.Equal(t, uint16(401), dberrors.Status(err))
}

func TestCreateUserTwice(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)
	require.NoError(t, d.CreateUser(ctx, "alice", "pw"))

	err := d.CreateUser(ctx, "alice", "pw")
	assert.True(t, dberrors.IsConflict(err))
	assert.NoError(t, d.EnsureUser(ctx, "alice", "other"))
	assert.NoError(t, d.Authenticate(ctx, "alice", "pw"))
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)
	require.NoError(t, d.EnsureUser(ctx, "zed", "pw"))
	require.NoError(t, d.EnsureUser(ctx, "admin", "pw"))

	users, err := d.Users()
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "zed"}, users)
}
