package database

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var defaultOptions = opt.Options{
	Compression:            opt.NoCompression,
	BlockCacheCapacity:     64 * opt.MiB,
	WriteBuffer:            32 * opt.MiB,
	DisableSeeksCompaction: true,
}

// LevelDB is a Database backed by github.com/syndtr/goleveldb.
type LevelDB struct {
	ldb *leveldb.DB
}

// Open opens (creating if necessary) a LevelDB-backed Database at path.
func Open(path string) (*LevelDB, error) {
	ldb, err := leveldb.OpenFile(path, &defaultOptions)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open leveldb at %s", path)
	}
	return &LevelDB{ldb: ldb}, nil
}

func (d *LevelDB) Put(key Key, value []byte) error {
	return errors.WithStack(d.ldb.Put(key.Bytes(), value, nil))
}

func (d *LevelDB) Get(key Key) ([]byte, error) {
	value, err := d.ldb.Get(key.Bytes(), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.WithStack(err)
	}
	return value, nil
}

func (d *LevelDB) Has(key Key) (bool, error) {
	has, err := d.ldb.Has(key.Bytes(), nil)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return has, nil
}

func (d *LevelDB) Delete(key Key) error {
	return errors.WithStack(d.ldb.Delete(key.Bytes(), nil))
}

func (d *LevelDB) Cursor(bucket Bucket) (Cursor, error) {
	iter := d.ldb.NewIterator(util.BytesPrefix(bucket.Path()), nil)
	return &levelDBCursor{bucket: bucket, iter: iter}, nil
}

func (d *LevelDB) Close() error {
	return errors.WithStack(d.ldb.Close())
}

type levelDBCursor struct {
	bucket  Bucket
	iter    iterator
	closed  bool
	started bool
}

// iterator is the subset of leveldb.Iterator this cursor depends on,
// narrowed so tests can fake it without a real on-disk store.
type iterator interface {
	Next() bool
	Seek(key []byte) bool
	Key() []byte
	Value() []byte
	Release()
}

func (c *levelDBCursor) Next() bool {
	if c.closed {
		panic("cursor: use of closed cursor")
	}
	c.started = true
	return c.iter.Next()
}

func (c *levelDBCursor) Seek(key Key) error {
	if c.closed {
		panic("cursor: use of closed cursor")
	}
	c.started = true
	if !c.iter.Seek(key.Bytes()) {
		return ErrNotFound
	}
	return nil
}

func (c *levelDBCursor) Key() (Key, error) {
	if c.closed {
		panic("cursor: use of closed cursor")
	}
	if !c.started {
		return Key{}, ErrNotFound
	}
	raw := c.iter.Key()
	if raw == nil {
		return Key{}, ErrNotFound
	}
	return Key{bucket: c.bucket, bytes: append([]byte(nil), raw...)}, nil
}

func (c *levelDBCursor) Value() ([]byte, error) {
	if c.closed {
		panic("cursor: use of closed cursor")
	}
	if !c.started {
		return nil, ErrNotFound
	}
	raw := c.iter.Value()
	if raw == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

func (c *levelDBCursor) Close() error {
	if c.closed {
		return errors.New("cursor: use of closed cursor")
	}
	c.closed = true
	c.iter.Release()
	return nil
}
