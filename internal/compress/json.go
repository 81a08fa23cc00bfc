package compress

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/emiliopalmerini/amadeus/internal/domain"
)

// Shared across calls; zstd encoders and decoders are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

// jsonCompressor stores state as zstd-compressed JSON.
type jsonCompressor struct{}

func (jsonCompressor) Type() Type { return JSON }

func (jsonCompressor) Compress(state *domain.AgentState) ([]byte, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}
	return zstdEncoder.EncodeAll(raw, nil), nil
}

func (jsonCompressor) Decompress(data []byte) (*domain.AgentState, error) {
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	var state domain.AgentState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	return &state, nil
}
