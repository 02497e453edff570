package txhashset

import (
	"encoding/binary"

	"github.com/mw-labs/mwnode/internal/database"
	"github.com/mw-labs/mwnode/internal/wcrypto"
	"github.com/pkg/errors"
)

var commitmentBucket = database.MakeBucket([]byte("commitments"))

// commitmentIndex maps an output commitment to the leaf index at which it
// was appended to the output MMR, so that spending an input -- which only
// carries a commitment -- can find the UTXO bitmap bit to test and clear.
// Entries are never removed on spend: the index is permanent, the bitmap
// alone governs spent/unspent.
type commitmentIndex struct {
	db database.Database
}

func newCommitmentIndex(db database.Database) *commitmentIndex {
	return &commitmentIndex{db: db}
}

func commitmentKey(c wcrypto.Commitment) database.Key {
	return commitmentBucket.Key(c[:])
}

func (ci *commitmentIndex) put(c wcrypto.Commitment, leafIndex uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], leafIndex)
	return errors.WithStack(ci.db.Put(commitmentKey(c), buf[:]))
}

func (ci *commitmentIndex) get(c wcrypto.Commitment) (uint64, bool, error) {
	raw, err := ci.db.Get(commitmentKey(c))
	if err != nil {
		if database.IsNotFoundError(err) {
			return 0, false, nil
		}
		return 0, false, errors.WithStack(err)
	}
	return binary.BigEndian.Uint64(raw), true, nil
}

func (ci *commitmentIndex) delete(c wcrypto.Commitment) error {
	return errors.WithStack(ci.db.Delete(commitmentKey(c)))
}
