package txhashset

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"math/bits"
	"os"
	"path/filepath"
	"strings"

	"github.com/mw-labs/mwnode/pmmr"
	"github.com/pkg/errors"
)

func openMMR(basePath string) (*pmmr.MMR, error) {
	hashFile, err := pmmr.OpenHashFile(basePath + ".bin")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return pmmr.NewMMR(hashFile, pmmr.NewPruneList()), nil
}

// extractArchive unpacks the tar.gz at archivePath into destDir, which
// must not already exist. Mirrors p2p/protocol's buildArchive in reverse.
// Each entry's resolved path is checked to stay within destDir, guarding
// against a peer-supplied archive using ".." to write outside of it.
func extractArchive(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return errors.Wrap(err, "opening txhashset archive")
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "opening txhashset archive gzip stream")
	}
	defer gz.Close()

	if err := os.MkdirAll(destDir, 0700); err != nil {
		return errors.Wrap(err, "creating txhashset staging directory")
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading txhashset archive entry")
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		dest := filepath.Join(destDir, hdr.Name)
		if !strings.HasPrefix(dest, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return errors.Errorf("txhashset archive entry %q escapes staging directory", hdr.Name)
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0700); err != nil {
			return errors.Wrap(err, "creating txhashset staging subdirectory")
		}
		out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
		if err != nil {
			return errors.Wrap(err, "creating staged txhashset file")
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return errors.Wrap(err, "extracting staged txhashset file")
		}
		if err := out.Close(); err != nil {
			return errors.Wrap(err, "closing staged txhashset file")
		}
	}
}

// leafCountForMMRSize inverts size(n) = 2n - popcount(n), the number of
// MMR nodes (leaves plus internal parents) produced by appending n leaves.
// size is monotonic non-decreasing in n, so a linear scan from size/2
// upward always lands on the unique n satisfying it (size == 0 ⇒ n == 0).
func leafCountForMMRSize(size uint64) uint64 {
	if size == 0 {
		return 0
	}
	for n := size / 2; ; n++ {
		if 2*n-uint64(bits.OnesCount64(n)) == size {
			return n
		}
	}
}
