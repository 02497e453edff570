package pmmr

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

// DataFile is a variable-length, append-only log with a parallel offset
// index, used to store output leaf data (commitment plus output body)
// alongside the output HashFile.
type DataFile struct {
	index *segmentFile // records are 8-byte big-endian cumulative end-offsets
	data  *os.File

	// pendingData holds unflushed output-record bytes appended since the
	// last Flush, mirroring the index's own in-memory tail for the same
	// crash-recovery reason: nothing lands in the data file until Flush.
	pendingData []byte
}

// OpenDataFile opens (creating if necessary) the data file and its offset
// index, both rooted at basePath with ".idx"/".dat" suffixes.
func OpenDataFile(basePath string) (*DataFile, error) {
	idx, err := openSegmentFile(basePath+".idx", 0)
	if err != nil {
		return nil, err
	}
	n, err := statRecordCount(idx.file, offsetIndexEntrySize)
	if err != nil {
		idx.close()
		return nil, err
	}
	idx.diskSize = n
	idx.tailStart = n

	data, err := os.OpenFile(basePath+".dat", os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		idx.close()
		return nil, errors.Wrapf(err, "failed to open data file %s.dat", basePath)
	}

	return &DataFile{index: idx, data: data}, nil
}

// Size returns the number of records in the file.
func (df *DataFile) Size() uint64 {
	return df.index.logicalSize()
}

func (df *DataFile) endOffsetBefore(pos uint64) (uint64, error) {
	if pos == 0 {
		return 0, nil
	}
	raw, err := df.index.getRecord(pos-1, fixedStrideDisk{stride: offsetIndexEntrySize})
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(raw), nil
}

// Append writes a new variable-length record and returns its position.
func (df *DataFile) Append(record []byte) (uint64, error) {
	pos := df.index.logicalSize()
	prevEnd, err := df.endOffsetBefore(pos)
	if err != nil {
		return 0, err
	}
	endOff := prevEnd + uint64(len(record))

	var buf [offsetIndexEntrySize]byte
	binary.BigEndian.PutUint64(buf[:], endOff)
	df.index.appendRecord(buf[:])

	df.pendingData = append(df.pendingData, record...)
	return pos, nil
}

// Get returns the record at the given position.
func (df *DataFile) Get(pos uint64) ([]byte, error) {
	startOff, err := df.endOffsetBefore(pos)
	if err != nil {
		return nil, err
	}
	raw, err := df.index.getRecord(pos, fixedStrideDisk{stride: offsetIndexEntrySize})
	if err != nil {
		return nil, err
	}
	endOff := binary.BigEndian.Uint64(raw)

	if pos >= df.index.tailStart {
		// Unflushed: read straight out of the in-memory pending buffer.
		flushedDataLen, ferr := df.flushedDataLen()
		if ferr != nil {
			return nil, ferr
		}
		return df.pendingData[startOff-flushedDataLen : endOff-flushedDataLen], nil
	}

	buf := make([]byte, endOff-startOff)
	if _, err := df.data.ReadAt(buf, int64(startOff)); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf, nil
}

func (df *DataFile) flushedDataLen() (uint64, error) {
	return df.endOffsetBefore(df.index.tailStart)
}

// Rewind truncates the logical size to n.
func (df *DataFile) Rewind(n uint64) error {
	if n >= df.index.tailStart {
		keepBytes := uint64(0)
		if n > df.index.tailStart {
			flushedLen, err := df.flushedDataLen()
			if err != nil {
				return err
			}
			endOff, err := df.endOffsetBefore(n)
			if err != nil {
				return err
			}
			keepBytes = endOff - flushedLen
		}
		df.pendingData = df.pendingData[:keepBytes]
	} else {
		df.pendingData = nil
	}
	return df.index.rewind(n)
}

// Discard reverts every unflushed Append/Rewind back to the last Flush.
func (df *DataFile) Discard() {
	df.index.discard()
	df.pendingData = nil
}

// Flush durably persists every pending append and rewind.
func (df *DataFile) Flush() error {
	flushedLen, err := df.flushedDataLen()
	if err != nil {
		return err
	}
	if err := df.data.Truncate(int64(flushedLen)); err != nil {
		return errors.WithStack(err)
	}
	if len(df.pendingData) > 0 {
		if _, err := df.data.Seek(int64(flushedLen), io.SeekStart); err != nil {
			return errors.WithStack(err)
		}
		if _, err := df.data.Write(df.pendingData); err != nil {
			return errors.WithStack(err)
		}
	}
	if err := df.data.Sync(); err != nil {
		return errors.WithStack(err)
	}
	df.pendingData = nil
	return df.index.flushFixedStride(offsetIndexEntrySize)
}

// Close releases the underlying file descriptors.
func (df *DataFile) Close() error {
	err1 := df.index.close()
	err2 := df.data.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
