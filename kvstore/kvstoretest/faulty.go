// Package kvstoretest provides store doubles for exercising degraded storage paths.
package kvstoretest

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/norun9/shopstate/kvstore"
)

// ErrInjected is the backend error returned by injected failures.
var ErrInjected = errors.New("injected storage failure")

// Operations accepted by Fail.
const (
	OpGet    = "get"
	OpSet    = "set"
	OpRemove = "remove"
)

// Faulty wraps a store and fails selected operations.
type Faulty struct {
	inner kvstore.IKVStore

	mu    sync.Mutex
	rules map[string][]func(key string) bool
	down  bool
}

// NewFaulty wraps inner. With no rules it behaves exactly like inner.
func NewFaulty(inner kvstore.IKVStore) *Faulty {
	return &Faulty{inner: inner, rules: make(map[string][]func(string) bool)}
}

// FailAll makes every operation fail and Ping report false.
func (f *Faulty) FailAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = true
}

// Fail makes op fail for keys accepted by match.
func (f *Faulty) Fail(op string, match func(key string) bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[op] = append(f.rules[op], match)
}

// FailKey makes op fail for exactly key.
func (f *Faulty) FailKey(op, key string) {
	f.Fail(op, func(k string) bool { return k == key })
}

// FailPrefix makes op fail for keys starting with prefix.
func (f *Faulty) FailPrefix(op, prefix string) {
	f.Fail(op, func(k string) bool { return strings.HasPrefix(k, prefix) })
}

// Heal removes every rule.
func (f *Faulty) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = false
	f.rules = make(map[string][]func(string) bool)
}

func (f *Faulty) check(op, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return kvstore.NewStorageAccessError(op, key, ErrInjected)
	}
	for _, match := range f.rules[op] {
		if match(key) {
			return kvstore.NewStorageAccessError(op, key, ErrInjected)
		}
	}
	return nil
}

// Initialize passes through to the wrapped store.
func (f *Faulty) Initialize(ctx context.Context) error { return f.inner.Initialize(ctx) }

// Get reads key unless a rule fails it.
func (f *Faulty) Get(ctx context.Context, key string) (string, bool, error) {
	if err := f.check(OpGet, key); err != nil {
		return "", false, err
	}
	return f.inner.Get(ctx, key)
}

// Set writes key unless a rule fails it.
func (f *Faulty) Set(ctx context.Context, key, value string) error {
	if err := f.check(OpSet, key); err != nil {
		return err
	}
	return f.inner.Set(ctx, key, value)
}

// Remove deletes key unless a rule fails it.
func (f *Faulty) Remove(ctx context.Context, key string) error {
	if err := f.check(OpRemove, key); err != nil {
		return err
	}
	return f.inner.Remove(ctx, key)
}

// Ping reports false after FailAll, else the wrapped store's answer.
func (f *Faulty) Ping(ctx context.Context) bool {
	f.mu.Lock()
	down := f.down
	f.mu.Unlock()
	return !down && f.inner.Ping(ctx)
}
