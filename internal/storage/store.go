// Package storage is the object-store gateway used by the deployment sagas.
// Keys are flat strings; a "prefix" is any key prefix ending in "/".
package storage

import (
	"context"
	"io"
	"strings"

	appErr "github.com/cloudconsole/engine/pkg/errors"
)

// Store is a prefix-keyed blob store.
//
// Every method fails with an *errors.AppError whose code is either
// CodeUnavailable (retriable) or CodeUnauthorized (fatal).
type Store interface {
	// List returns every key under prefix. An empty prefix is not an error.
	List(ctx context.Context, prefix string) ([]string, error)
	// Get opens a streaming reader over the object body and returns the
	// object's user metadata. Callers close the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, Metadata, error)
	// Put writes body to key with meta, replacing any existing object.
	Put(ctx context.Context, key string, body io.Reader, meta Metadata) error
	// Copy performs a server-side copy. Metadata travels with the object.
	Copy(ctx context.Context, srcKey, dstKey string) error
	// DeleteBatch deletes keys. A non-nil error with a populated result
	// means the batch only partially succeeded.
	DeleteBatch(ctx context.Context, keys []string) (DeleteResult, error)
}

// Metadata is user-defined object metadata. Keys are lower case.
type Metadata map[string]string

// MetaMode holds a file's permission bits in octal, e.g. "0755".
const MetaMode = "mode"

// DeleteResult reports the outcome of DeleteBatch per key.
type DeleteResult struct {
	Deleted []string
	// Failed maps a key to the backend's reason.
	Failed map[string]string
}

// Clean reports whether every requested key was deleted.
func (r DeleteResult) Clean() bool { return len(r.Failed) == 0 }

// Retriable reports whether err is a transient store failure.
func Retriable(err error) bool {
	return appErr.HasCode(err, appErr.CodeUnavailable)
}

// RelativeKey strips prefix from key. ok is false when key is outside prefix.
func RelativeKey(prefix, key string) (rel string, ok bool) {
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	return strings.TrimPrefix(key, prefix), true
}
