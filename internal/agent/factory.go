package agent

import (
	"errors"
	"fmt"
)

var ErrUnknownPipeline = errors.New("unknown pipeline type")

// Type names a pipeline implementation.
type Type string

const (
	TypeStructuredLearning Type = "structured_learning"
	TypeAdaptiveLearning   Type = "adaptive_learning"
	TypeCuriosity          Type = "curiosity"

	DefaultType = TypeStructuredLearning
)

func Types() []Type {
	return []Type{TypeStructuredLearning, TypeAdaptiveLearning, TypeCuriosity}
}

// New builds the pipeline registered under t. An empty t selects
// DefaultType.
func New(t Type, deps Deps) (Pipeline, error) {
	if t == "" {
		t = DefaultType
	}
	switch t {
	case TypeStructuredLearning:
		p, err := NewStructuredLearning(deps)
		if err != nil {
			return nil, err
		}
		return p, nil
	case TypeAdaptiveLearning:
		p, err := NewAdaptiveLearning(deps)
		if err != nil {
			return nil, err
		}
		return p, nil
	case TypeCuriosity:
		p, err := NewCuriosity(deps)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownPipeline, t, Types())
	}
}
