package kvstore

import (
	"context"
	"strings"
)

// Namespace scopes a shared backend to a single browser install by prefixing every key.
type Namespace struct {
	inner  IKVStore
	prefix string
}

// NewNamespace returns a store whose keys live under "{id}:" in inner.
func NewNamespace(inner IKVStore, id string) *Namespace {
	return &Namespace{inner: inner, prefix: id + ":"}
}

func (n *Namespace) key(k string) string { return n.prefix + k }

// Prefix returns the key prefix, including the trailing separator.
func (n *Namespace) Prefix() string { return n.prefix }

// Unprefix strips the namespace from a backend key.
func (n *Namespace) Unprefix(k string) (string, bool) {
	if !strings.HasPrefix(k, n.prefix) {
		return "", false
	}
	return strings.TrimPrefix(k, n.prefix), true
}

// Initialize initializes the shared backend.
func (n *Namespace) Initialize(ctx context.Context) error { return n.inner.Initialize(ctx) }

// Get reads key within the namespace.
func (n *Namespace) Get(ctx context.Context, key string) (string, bool, error) {
	return n.inner.Get(ctx, n.key(key))
}

// Set writes key within the namespace.
func (n *Namespace) Set(ctx context.Context, key, value string) error {
	return n.inner.Set(ctx, n.key(key), value)
}

// Remove deletes key within the namespace.
func (n *Namespace) Remove(ctx context.Context, key string) error {
	return n.inner.Remove(ctx, n.key(key))
}

// Ping checks the shared backend.
func (n *Namespace) Ping(ctx context.Context) bool { return n.inner.Ping(ctx) }
