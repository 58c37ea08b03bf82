package agent

import "fmt"

// Config holds the hyperparameters shared by every learning agent.
type Config struct {
	// BoardSize is the side length of the square game board
	BoardSize int

	// Frames is the number of past board observations stacked into a
	// single state
	Frames int

	// BufferSize is the replay buffer capacity
	BufferSize int

	// Gamma is the discount factor applied to bootstrapped returns
	Gamma float64

	// NumActions is the size of the discrete action set
	NumActions int

	// UseTargetNet determines whether bootstrap targets are computed
	// with a periodically synchronized copy of the learned network
	UseTargetNet bool

	// Version tags saved models and buffers, e.g. "v17.1"
	Version string
}

// Validate returns a ConfigError describing the first illegal field of
// c, or nil if c is legal.
func (c Config) Validate() error {
	const op = "validate"

	if c.BoardSize < 1 {
		return &ConfigError{
			Op:  op,
			Err: fmt.Errorf("board size must be positive, got %v",
				c.BoardSize),
		}
	}
	if c.Frames < 1 {
		return &ConfigError{
			Op:  op,
			Err: fmt.Errorf("frames must be positive, got %v", c.Frames),
		}
	}
	if c.BufferSize < 1 {
		return &ConfigError{
			Op:  op,
			Err: fmt.Errorf("buffer size must be positive, got %v",
				c.BufferSize),
		}
	}
	// An undiscounted gamma of exactly 1 would defeat the terminal
	// bootstrap cutoff, so both endpoints are excluded
	if c.Gamma <= 0 || c.Gamma >= 1 {
		return &ConfigError{
			Op:  op,
			Err: fmt.Errorf("gamma must be in (0, 1), got %v", c.Gamma),
		}
	}
	if c.NumActions < 1 {
		return &ConfigError{
			Op:  op,
			Err: fmt.Errorf("must have at least 1 action, got %v",
				c.NumActions),
		}
	}
	return nil
}

// Features returns the length of a flattened state vector described by
// the configuration.
func (c Config) Features() int {
	return c.BoardSize * c.BoardSize * c.Frames
}
