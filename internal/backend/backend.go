// Package backend provides interchangeable physical storage substrates for
// the history store, plus the selector that decides which one is
// authoritative.
//
// Two durable substrates exist: a directory-capable filesystem backend and
// a flat keyed SQLite backend with no hierarchy. Both expose the same
// Adapter contract so the history store never cares which one it writes
// through. A non-persistent in-memory backend backs the degraded mode used
// when neither durable substrate can bootstrap.
package backend

import (
	"context"
	"errors"
)

// Method identifies a storage substrate. The values are persisted in the
// storage-method flag document and must not change.
type Method string

const (
	// MethodDirectory is the directory-capable filesystem backend.
	MethodDirectory Method = "directoryBackend"

	// MethodFlatKeyed is the flat keyed SQLite backend.
	MethodFlatKeyed Method = "flatKeyedBackend"
)

// Valid reports whether m names a known substrate.
func (m Method) Valid() bool {
	return m == MethodDirectory || m == MethodFlatKeyed
}

// ErrKeyAbsent indicates a read of a key that holds no value. Absence is a
// normal outcome, not a failure of the substrate.
var ErrKeyAbsent = errors.New("key absent")

// ErrUnavailable indicates the substrate itself cannot serve requests
// (unreachable directory, unopenable database). The selector's ordered
// fallback reacts to this; it reaches callers only when every backend in
// the chain fails.
var ErrUnavailable = errors.New("backend unavailable")

// Adapter is the uniform contract over a physical storage substrate.
//
// Keys are slash-separated paths. The directory backend maps them onto
// nested directories; the flat keyed backend stores them verbatim and
// implements ListChildren by convention-scanning its key namespace.
//
// All operations report failure through errors rather than panicking,
// except for the programmer error of an empty key.
type Adapter interface {
	// ReadKey returns the value stored at key, or ErrKeyAbsent.
	ReadKey(ctx context.Context, key string) ([]byte, error)

	// WriteKey stores value at key, creating any missing hierarchy.
	WriteKey(ctx context.Context, key string, value []byte) error

	// DeleteKey removes the value at key. Deleting an absent key is not an
	// error.
	DeleteKey(ctx context.Context, key string) error

	// ListChildren returns the immediate child names under path, sorted.
	// A path with no children yields an empty slice.
	ListChildren(ctx context.Context, path string) ([]string, error)

	// Method identifies the substrate.
	Method() Method

	// Close releases any resources held by the adapter.
	Close() error
}

// mustKey panics on an empty key. Empty keys are always a bug in the
// caller, never a runtime condition worth an error return.
func mustKey(key string) {
	if key == "" {
		panic("backend: empty key")
	}
}
