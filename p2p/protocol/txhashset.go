package protocol

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"

	"github.com/mw-labs/mwnode/app/peer"
	"github.com/mw-labs/mwnode/app/wire"
	"github.com/mw-labs/mwnode/chain"
	"github.com/mw-labs/mwnode/internal/hashes"
	"github.com/mw-labs/mwnode/p2p/sync"
)

// txHashSetChunkSize bounds each TxHashSetArchive chunk's payload,
// keeping any single wire message well under maxPayloadLength while
// still amortizing per-message framing overhead over a useful amount of
// data.
const txHashSetChunkSize = 64 * 1024

// archiveAssembly accumulates the chunks of one inbound TxHashSetArchive
// transfer into a temporary file on disk.
type archiveAssembly struct {
	hash        hashes.Hash
	height      uint64
	totalChunks uint32
	nextChunk   uint32
	file        *os.File
	path        string
}

// handleTxHashSetRequest serves the requested snapshot as a sequence of
// TxHashSetArchive chunks: the current on-disk TxHashSet directory,
// tarred and gzipped to a temporary file so the transfer doesn't have to
// hold the whole archive in memory.
func (pr *Protocol) handleTxHashSetRequest(source *peer.Peer, msg wire.Message) error {
	req := msg.(*wire.TxHashSetRequest)

	archivePath, err := pr.buildArchive()
	if err != nil {
		log.Errorf("%s: building txhashset archive: %+v", source, err)
		return nil
	}
	defer os.Remove(archivePath)

	f, err := os.Open(archivePath)
	if err != nil {
		log.Errorf("%s: reopening txhashset archive: %+v", source, err)
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		log.Errorf("%s: stat txhashset archive: %+v", source, err)
		return nil
	}
	totalChunks := uint32((info.Size() + txHashSetChunkSize - 1) / txHashSetChunkSize)
	if totalChunks == 0 {
		totalChunks = 1
	}

	buf := make([]byte, txHashSetChunkSize)
	for chunkIndex := uint32(0); chunkIndex < totalChunks; chunkIndex++ {
		n, readErr := io.ReadFull(f, buf)
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			log.Errorf("%s: reading txhashset archive: %+v", source, readErr)
			return nil
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		source.Send(&wire.TxHashSetArchive{
			Hash:        req.Hash,
			Height:      req.Height,
			ChunkIndex:  chunkIndex,
			TotalChunks: totalChunks,
			Data:        data,
		})
	}
	return nil
}

// buildArchive tars and gzips pr.txHashSetDir to a temporary file,
// returning its path. The caller is responsible for removing it.
func (pr *Protocol) buildArchive() (string, error) {
	tmp, err := os.CreateTemp("", "txhashset-archive-*.tar.gz")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	gz := gzip.NewWriter(tmp)
	tw := tar.NewWriter(gz)

	walkErr := filepath.Walk(pr.txHashSetDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(pr.txHashSetDir, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if walkErr != nil {
		return "", walkErr
	}
	if err := tw.Close(); err != nil {
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	return tmp.Name(), nil
}

// handleTxHashSetArchive accumulates chunks of an inbound transfer
// requested during SYNCING_TXHASHSET. Chunks must arrive in order; an
// out-of-order or unsolicited chunk aborts the transfer. Once the final
// chunk lands, the assembled archive is handed to ChainState as the
// archivePath for the header it was requested against; ChainState extracts,
// validates, and swaps it in (txhashset.TxHashSet.Swap) before this
// function's temp file is removed.
func (pr *Protocol) handleTxHashSetArchive(source *peer.Peer, msg wire.Message) error {
	if pr.syncer.Phase() != sync.PhaseSyncingTxHashSet || pr.syncer.Peer() != source {
		return nil
	}
	chunk := msg.(*wire.TxHashSetArchive)

	pr.mu.Lock()
	defer pr.mu.Unlock()

	if pr.assembly == nil || pr.assembly.hash != chunk.Hash || chunk.ChunkIndex != pr.assembly.nextChunk {
		if chunk.ChunkIndex != 0 {
			pr.abortAssemblyLocked(source)
			return nil
		}
		f, err := os.CreateTemp("", "txhashset-incoming-*.tar.gz")
		if err != nil {
			log.Errorf("%s: staging txhashset archive: %+v", source, err)
			pr.syncer.NotifySyncFailed(source)
			return nil
		}
		pr.assembly = &archiveAssembly{
			hash:        chunk.Hash,
			height:      chunk.Height,
			totalChunks: chunk.TotalChunks,
			file:        f,
			path:        f.Name(),
		}
	}

	if _, err := pr.assembly.file.Write(chunk.Data); err != nil {
		log.Errorf("%s: writing txhashset chunk: %+v", source, err)
		pr.abortAssemblyLocked(source)
		return nil
	}
	pr.assembly.nextChunk++

	if pr.assembly.nextChunk < pr.assembly.totalChunks {
		return nil
	}

	archivePath := pr.assembly.path
	hash := pr.assembly.hash
	pr.assembly.file.Close()
	pr.assembly = nil

	defer os.Remove(archivePath)

	pr.syncer.NotifyTxHashSetReceived()
	code := pr.chainState.ProcessTxHashSet(hash, archivePath)
	switch code {
	case chain.Success:
		pr.syncer.NotifyTxHashSetValidated()
		height := pr.chainState.GetHeight(chain.Confirmed)
		if height >= source.Height() {
			pr.syncer.NotifyBlocksSynced()
			return nil
		}
		next, ok := pr.chainState.GetBlockHeaderByHeight(chain.Candidate, height+1)
		if ok {
			source.Send(&wire.GetBlock{Hash: next.Hash()})
		}
	case chain.Invalid, chain.Orphaned, chain.StoreErr:
		pr.syncer.NotifyTxHashSetFailed(source)
	default:
		log.Errorf("%s: processing txhashset: %s", source, code)
	}
	return nil
}

func (pr *Protocol) abortAssemblyLocked(source *peer.Peer) {
	if pr.assembly != nil {
		pr.assembly.file.Close()
		os.Remove(pr.assembly.path)
		pr.assembly = nil
	}
	pr.syncer.NotifySyncFailed(source)
}
