// Package preprocess converts raw board observations into the tensor
// layout and value range expected by the function approximators.
package preprocess

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Divisor is the fixed linear normalization constant applied to every
// board cell. Normalization is a pure function with no learned
// statistics, so it is identical at training and inference time.
const Divisor = 4.0

// Preprocessor reshapes raw observations of shape
// (board x board x frames), or batches of them, into channel-first
// (batch x frames x board x board) network input, normalized by
// Divisor.
type Preprocessor struct {
	boardSize int
	frames    int
}

// New creates and returns a Preprocessor for a fixed board size and
// frame-stack depth.
func New(boardSize, frames int) (*Preprocessor, error) {
	if boardSize < 1 || frames < 1 {
		return nil, fmt.Errorf("new: illegal observation shape "+
			"(%v x %v x %v)", boardSize, boardSize, frames)
	}
	return &Preprocessor{boardSize: boardSize, frames: frames}, nil
}

// Features returns the length of a single flattened observation.
func (p *Preprocessor) Features() int {
	return p.boardSize * p.boardSize * p.frames
}

// Prepare reorders and normalizes a flattened observation or batch of
// observations. A single observation is promoted to a batch of one.
// The input slice is never mutated; the returned slice is freshly
// allocated on every call.
func (p *Preprocessor) Prepare(obs []float64) ([]float64, error) {
	features := p.Features()
	if len(obs) == 0 || len(obs)%features != 0 {
		return nil, fmt.Errorf("prepare: invalid observation length "+
			"\n\twant(multiple of %v)\n\thave(%v)", features, len(obs))
	}
	batch := len(obs) / features

	backing := make([]float64, len(obs))
	copy(backing, obs)

	t := tensor.New(
		tensor.WithShape(batch, p.boardSize, p.boardSize, p.frames),
		tensor.WithBacking(backing),
	)

	// Move the frame stack from the innermost axis to the channel
	// axis: (batch, board, board, frames) -> (batch, frames, board,
	// board).
	if err := t.T(0, 3, 1, 2); err != nil {
		return nil, fmt.Errorf("prepare: could not transpose: %v", err)
	}
	dense, ok := t.Materialize().(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("prepare: could not materialize transpose")
	}

	normalized, err := dense.DivScalar(Divisor, true)
	if err != nil {
		return nil, fmt.Errorf("prepare: could not normalize: %v", err)
	}

	return normalized.Data().([]float64), nil
}
