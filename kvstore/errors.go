package kvstore

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnavailable is returned by backends that cannot currently be reached.
var ErrUnavailable = errors.New("kvstore unavailable")

// StorageAccessError reports a failed read or write against the durable store.
type StorageAccessError struct {
	Op  string
	Key string
	Err error
}

// Error formats the op, key and backend error.
func (e *StorageAccessError) Error() string {
	return fmt.Sprintf("kvstore %s %q: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the backend error.
func (e *StorageAccessError) Unwrap() error { return e.Err }

// Cause lets errors.Cause reach the backend error.
func (e *StorageAccessError) Cause() error { return e.Err }

// NewStorageAccessError wraps err with the failed operation and key.
func NewStorageAccessError(op, key string, err error) error {
	return &StorageAccessError{Op: op, Key: key, Err: errors.WithStack(err)}
}

// IsStorageAccess reports whether err (or anything it wraps) is a StorageAccessError.
func IsStorageAccess(err error) bool {
	var sae *StorageAccessError
	return errors.As(err, &sae)
}
