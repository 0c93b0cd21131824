// shopstate/kvstore/local_kvstore.go

package kvstore

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// LocalKVStore keeps values in process memory.
type LocalKVStore struct {
	mu    sync.RWMutex
	store map[string]string
	log   logrus.FieldLogger
}

// NewLocalKVStore constructor.
func NewLocalKVStore(log logrus.FieldLogger) *LocalKVStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LocalKVStore{
		store: make(map[string]string),
		log:   log.WithField("store", "local"),
	}
}

// Initialize does nothing for the in-memory store.
func (l *LocalKVStore) Initialize(ctx context.Context) error {
	l.log.Info("LocalKVStore initialized")
	return nil
}

// Get returns the value stored under key.
func (l *LocalKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	v, ok := l.store[key]
	return v, ok, nil
}

// Set stores value under key, replacing any previous value.
func (l *LocalKVStore) Set(ctx context.Context, key, value string) error {
	l.log.WithField("key", key).Debug("LocalKVStore: Set")
	l.mu.Lock()
	defer l.mu.Unlock()

	l.store[key] = value
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (l *LocalKVStore) Remove(ctx context.Context, key string) error {
	l.log.WithField("key", key).Debug("LocalKVStore: Remove")
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.store, key)
	return nil
}

// Keys returns all stored keys in sorted order.
func (l *LocalKVStore) Keys() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	keys := make([]string, 0, len(l.store))
	for k := range l.store {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Ping always succeeds.
func (l *LocalKVStore) Ping(ctx context.Context) bool {
	return true
}
