// shopstate/kvstore/kvstore.go

package kvstore

import (
	"context"
)

// IKVStore defines the operations of the durable key-value store that backs every ledger.
// Values are opaque strings; callers own the encoding.
type IKVStore interface {
	Initialize(ctx context.Context) error

	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error

	Ping(ctx context.Context) bool
}
