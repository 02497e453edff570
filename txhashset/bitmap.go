package txhashset

import (
	"os"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/pkg/errors"
)

// utxoBitmap is a bitset indexed by output-MMR leaf position, set iff that
// output is unspent. Backed by a compressed roaring bitmap since a mature
// chain's UTXO set is sparse relative to the full range of ever-created
// output positions.
type utxoBitmap struct {
	path string
	bm   *roaring64.Bitmap
}

func openUTXOBitmap(path string) (*utxoBitmap, error) {
	bm := roaring64.New()
	if f, err := os.Open(path); err == nil {
		defer f.Close()
		if _, err := bm.ReadFrom(f); err != nil {
			return nil, errors.Wrapf(err, "failed to read utxo bitmap %s", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.WithStack(err)
	}
	return &utxoBitmap{path: path, bm: bm}, nil
}

func (u *utxoBitmap) set(pos uint64)      { u.bm.Add(pos) }
func (u *utxoBitmap) clear(pos uint64)    { u.bm.Remove(pos) }
func (u *utxoBitmap) isSet(pos uint64) bool { return u.bm.Contains(pos) }

// snapshot returns an independent copy of the current bitmap, for a
// processor that needs to roll back to exactly this state later.
func (u *utxoBitmap) snapshot() *roaring64.Bitmap {
	return u.bm.Clone()
}

func (u *utxoBitmap) restore(snap *roaring64.Bitmap) {
	u.bm = snap.Clone()
}

func (u *utxoBitmap) flush() error {
	f, err := os.Create(u.path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	if _, err := u.bm.WriteTo(f); err != nil {
		return errors.WithStack(err)
	}
	return f.Sync()
}
