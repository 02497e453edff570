package pmmr

// PruneList tracks which MMR positions have been compacted off disk and
// translates between a position's logical MMR index and its physical
// offset in the backing HashFile once earlier positions have been removed.
//
// It mirrors the IsCompacted/GetShift/GetTotalShift contract that the
// append/root walk (positions.go, mmr.go) already relies on when reading
// through a possibly-pruned range.
type PruneList struct {
	pruned     []bool
	shiftCache []uint64
	totalShift uint64
	dirty      bool
}

// NewPruneList returns an empty prune list: nothing pruned, zero shift.
func NewPruneList() *PruneList {
	return &PruneList{}
}

func (pl *PruneList) ensureSize(pos uint64) {
	if uint64(len(pl.pruned)) <= pos {
		grown := make([]bool, pos+1)
		copy(grown, pl.pruned)
		pl.pruned = grown
		pl.dirty = true
	}
}

// IsCompacted reports whether pos has been removed from the backing file.
func (pl *PruneList) IsCompacted(pos uint64) bool {
	if pos >= uint64(len(pl.pruned)) {
		return false
	}
	return pl.pruned[pos]
}

// GetShift returns how many positions strictly less than pos have been
// pruned, i.e. how far pos's physical offset has shifted down from its
// logical MMR position. A pruned pos is not counted against itself.
func (pl *PruneList) GetShift(pos uint64) uint64 {
	pl.rebuild()
	if pos >= uint64(len(pl.shiftCache)) {
		return pl.totalShift
	}
	return pl.shiftCache[pos]
}

// GetTotalShift returns the shift that applies to any position beyond the
// pruned range: the total count of positions ever pruned.
func (pl *PruneList) GetTotalShift() uint64 {
	pl.rebuild()
	return pl.totalShift
}

func (pl *PruneList) rebuild() {
	if !pl.dirty {
		return
	}
	pl.shiftCache = make([]uint64, len(pl.pruned))
	var shift uint64
	for i, p := range pl.pruned {
		pl.shiftCache[i] = shift
		if p {
			shift++
		}
	}
	pl.totalShift = shift
	pl.dirty = false
}

// Add marks pos as pruned, then bubbles upward: whenever both children of
// a parent are already pruned, the parent is pruned too, since its hash
// is only ever needed to recompute an ancestor that is itself reachable
// from the still-present sibling subtree, or as a peak, and peaks are
// never pruned by this rule.
func (pl *PruneList) Add(pos uint64) {
	pl.ensureSize(pos)
	if pl.pruned[pos] {
		return
	}
	pl.pruned[pos] = true
	pl.dirty = true

	current := pos
	for {
		parent, sibling := family(current)
		if !pl.IsCompacted(sibling) {
			break
		}
		pl.ensureSize(parent)
		if pl.pruned[parent] {
			break
		}
		pl.pruned[parent] = true
		pl.dirty = true
		current = parent
	}
}
