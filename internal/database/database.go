// Package database defines the key-value store contract consumed by
// BlockStore, HashFile and the TxHashSet commitment index (spec §6), and a
// LevelDB-backed implementation of it.
package database

import (
	"bytes"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get and cursor accessors when the requested
// key does not exist.
var ErrNotFound = errors.New("key not found")

// IsNotFoundError reports whether err is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Bucket namespaces a set of keys behind a path prefix, the way kaspad's
// model.DBBucket namespaces block/header/UTXO keys within one physical
// LevelDB instance.
type Bucket struct {
	path []byte
}

// MakeBucket returns the root bucket, optionally nested under the given
// path segments.
func MakeBucket(path ...[]byte) Bucket {
	var buf bytes.Buffer
	for _, p := range path {
		buf.Write(p)
		buf.WriteByte(0)
	}
	return Bucket{path: buf.Bytes()}
}

// Bucket returns a child bucket nested under b.
func (b Bucket) Bucket(name []byte) Bucket {
	buf := make([]byte, 0, len(b.path)+len(name)+1)
	buf = append(buf, b.path...)
	buf = append(buf, name...)
	buf = append(buf, 0)
	return Bucket{path: buf}
}

// Path returns the raw bucket prefix.
func (b Bucket) Path() []byte {
	return b.path
}

// Key returns a fully-qualified key within this bucket.
func (b Bucket) Key(suffix []byte) Key {
	buf := make([]byte, 0, len(b.path)+len(suffix))
	buf = append(buf, b.path...)
	buf = append(buf, suffix...)
	return Key{bucket: b, bytes: buf}
}

// Key is a fully-qualified, bucket-prefixed database key.
type Key struct {
	bucket Bucket
	bytes  []byte
}

// Bytes returns the raw on-disk key.
func (k Key) Bytes() []byte { return k.bytes }

// Bucket returns the bucket this key belongs to.
func (k Key) Bucket() Bucket { return k.bucket }

// Suffix returns the portion of the key after the bucket prefix.
func (k Key) Suffix() []byte { return k.bytes[len(k.bucket.path):] }

// Cursor iterates over the key/value pairs of a bucket in key order.
type Cursor interface {
	Next() bool
	Seek(key Key) error
	Key() (Key, error)
	Value() ([]byte, error)
	Close() error
}

// Database is the opaque byte store consumed by the chain. Implementations
// need not support transactions; ChainState's write lock already serializes
// every mutation (§5), so read-modify-write races across Database calls
// cannot occur.
type Database interface {
	Put(key Key, value []byte) error
	Get(key Key) ([]byte, error)
	Has(key Key) (bool, error)
	Delete(key Key) error
	// Cursor opens an iterator over every key in bucket, in key order.
	Cursor(bucket Bucket) (Cursor, error)
	Close() error
}
