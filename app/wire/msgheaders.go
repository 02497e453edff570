package wire

import (
	"io"

	"github.com/mw-labs/mwnode/chain"
	"github.com/mw-labs/mwnode/internal/hashes"
	"github.com/pkg/errors"
)

// maxHeadersPerMessage bounds a single Headers reply, matching the
// external-interface table's "up to 512".
const maxHeadersPerMessage = 512

// GetHeaders requests headers descending from the first locator hash the
// responder recognizes, sparse-to-genesis.
type GetHeaders struct {
	Locator []hashes.Hash
}

func (m *GetHeaders) Kind() Kind { return KindGetHeaders }

func (m *GetHeaders) Encode(w io.Writer) error {
	if err := writeUint32(w, uint32(len(m.Locator))); err != nil {
		return err
	}
	for _, h := range m.Locator {
		if err := writeHash(w, h); err != nil {
			return err
		}
	}
	return nil
}

func (m *GetHeaders) Decode(r io.Reader) error {
	count, err := readUint32(r)
	if err != nil {
		return err
	}
	m.Locator = make([]hashes.Hash, count)
	for i := range m.Locator {
		if m.Locator[i], err = readHash(r); err != nil {
			return err
		}
	}
	return nil
}

// Headers answers a GetHeaders request with up to maxHeadersPerMessage
// headers.
type Headers struct {
	Headers []*chain.Header
}

func (m *Headers) Kind() Kind { return KindHeaders }

func (m *Headers) Encode(w io.Writer) error {
	if len(m.Headers) > maxHeadersPerMessage {
		return errors.Errorf("%d headers exceeds maximum %d per message", len(m.Headers), maxHeadersPerMessage)
	}
	if err := writeUint32(w, uint32(len(m.Headers))); err != nil {
		return err
	}
	for _, h := range m.Headers {
		if err := writeBytes(w, h.Serialize()); err != nil {
			return err
		}
	}
	return nil
}

func (m *Headers) Decode(r io.Reader) error {
	count, err := readUint32(r)
	if err != nil {
		return err
	}
	if count > maxHeadersPerMessage {
		return errors.Errorf("%d headers exceeds maximum %d per message", count, maxHeadersPerMessage)
	}
	m.Headers = make([]*chain.Header, count)
	for i := range m.Headers {
		raw, err := readBytes(r)
		if err != nil {
			return err
		}
		if m.Headers[i], err = chain.DeserializeHeader(raw); err != nil {
			return err
		}
	}
	return nil
}
