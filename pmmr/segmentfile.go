// Package pmmr implements pruned Merkle Mountain Ranges: append-only,
// segmented hash/data files, a prune-list bitmap tracking compacted leaves,
// and the MMR append/rewind/root/proof operations that sit on top of them.
package pmmr

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

// segmentFile is the shared append-only-log machinery behind both HashFile
// (fixed 32-byte records) and DataFile (variable-length records with an
// offset index). All appends land in an in-memory tail; nothing touches
// disk until Flush, so a crash before Flush always restarts from exactly
// the last flushed prefix.
type segmentFile struct {
	file *os.File

	diskSize  uint64 // records durably present in the backing file
	tailStart uint64 // logical position of tail[0]; always <= diskSize
	tail      [][]byte
}

func openSegmentFile(path string, initialDiskSize uint64) (*segmentFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open segment file %s", path)
	}
	return &segmentFile{file: f, diskSize: initialDiskSize, tailStart: initialDiskSize}, nil
}

// logicalSize returns the current client-visible record count.
func (s *segmentFile) logicalSize() uint64 {
	return s.tailStart + uint64(len(s.tail))
}

// appendRecord appends a new record at the end and returns its position.
func (s *segmentFile) appendRecord(data []byte) uint64 {
	pos := s.logicalSize()
	s.tail = append(s.tail, append([]byte(nil), data...))
	return pos
}

// rewind truncates the logical size to n, discarding any tail entries at or
// beyond n. If n falls below tailStart (i.e. below the point any pending
// tail began from), the tail is dropped entirely and tailStart becomes n —
// the stale disk-backed suffix beyond n is left untouched until the next
// Flush reclaims it.
func (s *segmentFile) rewind(n uint64) error {
	if n > s.logicalSize() {
		return errors.Errorf("cannot rewind to %d: logical size is only %d", n, s.logicalSize())
	}
	if n >= s.tailStart {
		s.tail = s.tail[:n-s.tailStart]
		return nil
	}
	s.tail = nil
	s.tailStart = n
	return nil
}

// discard drops every unflushed append, reverting to the state as of the
// last Flush.
func (s *segmentFile) discard() {
	s.tail = nil
	s.tailStart = s.diskSize
}

type diskReader interface {
	readRecordAt(f *os.File, index uint64) ([]byte, error)
}

func (s *segmentFile) getRecord(index uint64, disk diskReader) ([]byte, error) {
	if index >= s.logicalSize() {
		return nil, errors.Errorf("index %d out of bounds (size %d)", index, s.logicalSize())
	}
	if index >= s.tailStart {
		return s.tail[index-s.tailStart], nil
	}
	return disk.readRecordAt(s.file, index)
}

func (s *segmentFile) close() error {
	return s.file.Close()
}

// --- fixed-stride (HashFile) disk layout ---

type fixedStrideDisk struct {
	stride int
}

func (d fixedStrideDisk) readRecordAt(f *os.File, index uint64) ([]byte, error) {
	buf := make([]byte, d.stride)
	_, err := f.ReadAt(buf, int64(index)*int64(d.stride))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return buf, nil
}

func (s *segmentFile) flushFixedStride(stride int) error {
	if s.tailStart < s.diskSize {
		if err := s.file.Truncate(int64(s.tailStart) * int64(stride)); err != nil {
			return errors.WithStack(err)
		}
	}
	if len(s.tail) > 0 {
		if _, err := s.file.Seek(int64(s.tailStart)*int64(stride), io.SeekStart); err != nil {
			return errors.WithStack(err)
		}
		for _, rec := range s.tail {
			if _, err := s.file.Write(rec); err != nil {
				return errors.WithStack(err)
			}
		}
	}
	if err := s.file.Sync(); err != nil {
		return errors.WithStack(err)
	}
	s.diskSize = s.tailStart + uint64(len(s.tail))
	s.tail = nil
	s.tailStart = s.diskSize
	return nil
}

func statRecordCount(f *os.File, stride int) (uint64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return uint64(info.Size()) / uint64(stride), nil
}

// --- variable-length (DataFile) disk layout: a separate offset index ---

// offsetIndexEntrySize is the width of each offset-index record: an 8-byte
// big-endian end-offset into the data file.
const offsetIndexEntrySize = 8

type variableDisk struct {
	dataFile *os.File
}

func (d variableDisk) readRecordAt(indexFile *os.File, index uint64) ([]byte, error) {
	var startOff uint64
	if index > 0 {
		prev := make([]byte, offsetIndexEntrySize)
		if _, err := indexFile.ReadAt(prev, int64(index-1)*offsetIndexEntrySize); err != nil {
			return nil, errors.WithStack(err)
		}
		startOff = binary.BigEndian.Uint64(prev)
	}
	cur := make([]byte, offsetIndexEntrySize)
	if _, err := indexFile.ReadAt(cur, int64(index)*offsetIndexEntrySize); err != nil {
		return nil, errors.WithStack(err)
	}
	endOff := binary.BigEndian.Uint64(cur)

	buf := make([]byte, endOff-startOff)
	if _, err := d.dataFile.ReadAt(buf, int64(startOff)); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf, nil
}
