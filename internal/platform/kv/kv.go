// Package kv provides the small key-value store used for per-user session
// state such as the last opened conversation. Keys are namespaced by the
// authenticated user identity so that an identity change switches the key
// space and state can never leak across accounts.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("kv: not found")

// Store abstracts the backing key-value storage.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Namespaced wraps a Store so every key is prefixed with the owning user id.
type Namespaced struct {
	store  Store
	userID string
}

// ForUser scopes the store to the given user identity.
func ForUser(store Store, userID string) Namespaced {
	return Namespaced{store: store, userID: strings.TrimSpace(userID)}
}

func (n Namespaced) key(key string) string {
	return fmt.Sprintf("storefront:%s:%s", n.userID, key)
}

// Get reads a value from the user's namespace.
func (n Namespaced) Get(ctx context.Context, key string) (string, error) {
	if n.store == nil || n.userID == "" {
		return "", ErrNotFound
	}
	return n.store.Get(ctx, n.key(key))
}

// Set writes a value into the user's namespace.
func (n Namespaced) Set(ctx context.Context, key, value string) error {
	if n.store == nil || n.userID == "" {
		return errors.New("kv: store requires an authenticated user")
	}
	return n.store.Set(ctx, n.key(key), value)
}

// Delete removes a value from the user's namespace.
func (n Namespaced) Delete(ctx context.Context, key string) error {
	if n.store == nil || n.userID == "" {
		return nil
	}
	return n.store.Delete(ctx, n.key(key))
}
