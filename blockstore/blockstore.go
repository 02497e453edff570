// Package blockstore persists full blocks keyed by header hash, with a
// staging area so ChainState can batch a write alongside its MMR and
// header-tree mutations and commit or discard them together.
package blockstore

import (
	"encoding/binary"

	"github.com/mw-labs/mwnode/chain"
	"github.com/mw-labs/mwnode/internal/database"
	"github.com/mw-labs/mwnode/internal/hashes"
	"github.com/pkg/errors"
)

var bucket = database.MakeBucket([]byte("blocks"))
var countKey = database.MakeBucket(nil).Key([]byte("blocks-count"))

// Store implements chain.BlockStore over an internal/database.Database.
type Store struct {
	db       database.Database
	staging  map[hashes.Hash]*chain.Block
	toDelete map[hashes.Hash]struct{}
	count    uint64
}

// New opens a Store over db, recovering its persisted block count.
func New(db database.Database) (*Store, error) {
	s := &Store{
		db:       db,
		staging:  make(map[hashes.Hash]*chain.Block),
		toDelete: make(map[hashes.Hash]struct{}),
	}
	has, err := db.Has(countKey)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if has {
		raw, err := db.Get(countKey)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		s.count = binary.BigEndian.Uint64(raw)
	}
	return s, nil
}

// Stage stages block for hash; it is not durable until Commit.
func (s *Store) Stage(hash hashes.Hash, block *chain.Block) {
	delete(s.toDelete, hash)
	s.staging[hash] = block
}

// Delete marks hash for removal on the next Commit.
func (s *Store) Delete(hash hashes.Hash) {
	if _, ok := s.staging[hash]; ok {
		delete(s.staging, hash)
		return
	}
	s.toDelete[hash] = struct{}{}
}

// IsStaged reports whether Stage or Delete has been called since the last
// Commit or Discard.
func (s *Store) IsStaged() bool {
	return len(s.staging) != 0 || len(s.toDelete) != 0
}

// Discard drops every staged Stage/Delete without touching the database.
func (s *Store) Discard() {
	s.staging = make(map[hashes.Hash]*chain.Block)
	s.toDelete = make(map[hashes.Hash]struct{})
}

// Commit durably writes every staged block and delete, then the updated
// block count, in one pass.
func (s *Store) Commit() error {
	for hash, block := range s.staging {
		raw, err := serializeBlock(block)
		if err != nil {
			return err
		}
		if err := s.db.Put(blockKey(hash), raw); err != nil {
			return errors.WithStack(err)
		}
	}
	for hash := range s.toDelete {
		if err := s.db.Delete(blockKey(hash)); err != nil {
			return errors.WithStack(err)
		}
	}

	newCount := s.Count()
	var countBytes [8]byte
	binary.BigEndian.PutUint64(countBytes[:], newCount)
	if err := s.db.Put(countKey, countBytes[:]); err != nil {
		return errors.WithStack(err)
	}
	s.count = newCount

	s.Discard()
	return nil
}

// Block returns the block stored under hash.
func (s *Store) Block(hash hashes.Hash) (*chain.Block, error) {
	if b, ok := s.staging[hash]; ok {
		return b, nil
	}
	raw, err := s.db.Get(blockKey(hash))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return deserializeBlock(raw)
}

// HasBlock reports whether hash has a stored (or staged) block.
func (s *Store) HasBlock(hash hashes.Hash) (bool, error) {
	if _, ok := s.staging[hash]; ok {
		return true, nil
	}
	if _, deleted := s.toDelete[hash]; deleted {
		return false, nil
	}
	has, err := s.db.Has(blockKey(hash))
	if err != nil {
		return false, errors.WithStack(err)
	}
	return has, nil
}

// Count returns the number of blocks currently stored, including staged
// but not yet committed writes.
func (s *Store) Count() uint64 {
	return s.count + uint64(len(s.staging)) - uint64(len(s.toDelete))
}

func blockKey(hash hashes.Hash) database.Key {
	return bucket.Key(hash.Bytes())
}
