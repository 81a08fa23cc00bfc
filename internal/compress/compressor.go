// Package compress encodes agent state for compact snapshot storage.
package compress

import (
	"errors"
	"fmt"

	"github.com/emiliopalmerini/amadeus/internal/domain"
)

// ErrUnknownCompressor is returned by Get for unrecognised types.
var ErrUnknownCompressor = errors.New("unknown compressor")

// Type names a snapshot compressor.
type Type string

const (
	None   Type = ""
	JSON   Type = "json"
	Binary Type = "binary"
)

// Compressor turns agent state into bytes and back.
type Compressor interface {
	Type() Type
	Compress(state *domain.AgentState) ([]byte, error)
	Decompress(data []byte) (*domain.AgentState, error)
}

// Types lists the available compressors.
func Types() []Type {
	return []Type{JSON, Binary}
}

// Get returns the compressor for t. None yields (nil, nil): snapshots are
// stored uncompressed.
func Get(t Type) (Compressor, error) {
	switch t {
	case None:
		return nil, nil
	case JSON:
		return jsonCompressor{}, nil
	case Binary:
		return binaryCompressor{}, nil
	default:
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownCompressor, t, Types())
	}
}

// Encode compresses s.State in place of the plain state. A nil compressor
// leaves s untouched.
func Encode(c Compressor, s *domain.Snapshot) error {
	if c == nil || s.State == nil {
		return nil
	}
	data, err := c.Compress(s.State)
	if err != nil {
		return fmt.Errorf("failed to compress snapshot: %w", err)
	}
	s.Payload = data
	s.Encoding = string(c.Type())
	s.State = nil
	return nil
}

// DecodeState returns the snapshot state, decompressing when needed.
func DecodeState(s domain.Snapshot) (*domain.AgentState, error) {
	if !s.Compressed() {
		return s.State, nil
	}
	c, err := Get(Type(s.Encoding))
	if err != nil {
		return nil, err
	}
	if c == nil {
		return s.State, nil
	}
	state, err := c.Decompress(s.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot %d: %w", s.Sequence, err)
	}
	return state, nil
}
