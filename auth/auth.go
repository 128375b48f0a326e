// Package auth keeps the user directory consulted by AUTH and SHOW USERS.
package auth

import (
	"context"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	dberrors "github.com/guileen/docsql/engine/errors"
	"github.com/guileen/docsql/logger"
	"github.com/guileen/docsql/storage"
)

// UsersTree is the reserved tree holding user records.
const UsersTree = "__users__"

// User is a stored account. The password is kept only as a bcrypt hash.
type User struct {
	Name         string    `json:"name"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Directory stores users in a tree of the system store.
type Directory struct {
	tree *storage.Tree
	cost int
}

func NewDirectory(store *storage.Store) (*Directory, error) {
	tree, err := store.OpenTree(UsersTree)
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.ErrCodeStorage, "open user directory")
	}
	return &Directory{tree: tree, cost: bcrypt.DefaultCost}, nil
}

// CreateUser adds name with password and fails when the user exists.
func (d *Directory) CreateUser(ctx context.Context, name, password string) error {
	if name == "" || password == "" {
		return dberrors.NewValidationErrorf("create user", "user name and password are required")
	}
	if _, err := d.tree.Get(name); err == nil {
		return dberrors.NewConflictErrorf("create user", "user %s already exists", name)
	} else if !storage.IsNotFound(err) {
		return dberrors.Wrap(err, dberrors.ErrCodeStorage, "create user")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return dberrors.Wrap(err, dberrors.ErrCodeInternal, "create user")
	}
	data, err := json.Marshal(User{Name: name, PasswordHash: string(hash), CreatedAt: time.Now().UTC()})
	if err != nil {
		return dberrors.Wrap(err, dberrors.ErrCodeInternal, "create user")
	}
	if _, err := d.tree.Insert(name, data); err != nil {
		return dberrors.Wrap(err, dberrors.ErrCodeStorage, "create user")
	}
	logger.InfoContext(ctx, "user created", logger.Component("auth"), logger.String("user", name))
	return nil
}

// EnsureUser creates name unless it already exists.
func (d *Directory) EnsureUser(ctx context.Context, name, password string) error {
	err := d.CreateUser(ctx, name, password)
	if dberrors.IsConflict(err) {
		return nil
	}
	return err
}

// Authenticate checks password against the stored hash of name.
func (d *Directory) Authenticate(ctx context.Context, name, password string) error {
	data, err := d.tree.Get(name)
	if err != nil {
		if storage.IsNotFound(err) {
			return dberrors.NewAuthErrorf("auth", "invalid user or password")
		}
		return dberrors.Wrap(err, dberrors.ErrCodeStorage, "auth")
	}
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return dberrors.Wrap(err, dberrors.ErrCodeInternal, "auth")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		logger.WarnContext(ctx, "authentication failed", logger.Component("auth"), logger.String("user", name))
		return dberrors.NewAuthErrorf("auth", "invalid user or password")
	}
	return nil
}

// Users lists user names in order.
func (d *Directory) Users() ([]string, error) {
	var names []string
	err := d.tree.Scan(func(key string, _ []byte) error {
		names = append(names, key)
		return nil
	})
	sort.Strings(names)
	return names, err
}
