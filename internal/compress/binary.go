package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/pierrec/lz4/v4"

	"github.com/emiliopalmerini/amadeus/internal/domain"
)

// Frame layout: one mode byte, a uvarint uncompressed length, then either
// an lz4 block or the raw CBOR bytes when lz4 could not shrink them.
const (
	modeRaw byte = 0
	modeLZ4 byte = 1
)

// maxStateSize bounds the declared length so corrupt frames cannot force a
// huge allocation.
const maxStateSize = 256 << 20

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("compress: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Metadata is map[string]any; keep decoded maps JSON-compatible.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("compress: CBOR decoder initialization failed: " + err.Error())
	}
}

// binaryCompressor stores state as deterministic CBOR in an lz4 block.
type binaryCompressor struct{}

func (binaryCompressor) Type() Type { return Binary }

func (binaryCompressor) Compress(state *domain.AgentState) ([]byte, error) {
	raw, err := encMode.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("cbor encode: %w", err)
	}

	header := make([]byte, 1+binary.MaxVarintLen64)
	n := binary.PutUvarint(header[1:], uint64(len(raw)))
	header = header[:1+n]

	dst := make([]byte, lz4.CompressBlockBound(len(raw)))
	written, err := lz4.CompressBlock(raw, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if written == 0 || written >= len(raw) {
		header[0] = modeRaw
		return append(header, raw...), nil
	}
	header[0] = modeLZ4
	return append(header, dst[:written]...), nil
}

func (binaryCompressor) Decompress(data []byte) (*domain.AgentState, error) {
	if len(data) < 2 {
		return nil, errors.New("binary snapshot: frame too short")
	}
	mode := data[0]
	size, n := binary.Uvarint(data[1:])
	if n <= 0 {
		return nil, errors.New("binary snapshot: bad length header")
	}
	if size > maxStateSize {
		return nil, fmt.Errorf("binary snapshot: declared size %d too large", size)
	}
	body := data[1+n:]

	var raw []byte
	switch mode {
	case modeRaw:
		raw = body
	case modeLZ4:
		raw = make([]byte, size)
		read, err := lz4.UncompressBlock(body, raw)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if uint64(read) != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
		}
	default:
		return nil, fmt.Errorf("binary snapshot: unknown mode %d", mode)
	}
	if uint64(len(raw)) != size {
		return nil, fmt.Errorf("binary snapshot: got %d bytes, expected %d", len(raw), size)
	}

	var state domain.AgentState
	if err := decMode.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("cbor decode: %w", err)
	}
	return &state, nil
}
