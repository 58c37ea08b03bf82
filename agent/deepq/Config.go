package deepq

import (
	"fmt"

	"github.com/snakeai/snakelearn/agent"
	"github.com/snakeai/snakelearn/initwfn"
	"github.com/snakeai/snakelearn/network"
	"github.com/snakeai/snakelearn/solver"
)

// Config implements a configuration of the DeepQ agent.
type Config struct {
	agent.Config

	// HiddenSizes, Biases, and Activations describe the hidden layers
	// of the action-value network. A final linear layer predicting one
	// value per action is always appended.
	HiddenSizes []int
	Biases      []bool
	Activations []*network.Activation

	// InitWFn is the weight initialization scheme
	InitWFn *initwfn.InitWFn

	// Solver performs the gradient updates
	Solver *solver.Solver

	// BatchSize is the number of transitions sampled per training step
	BatchSize int

	// RewardClip determines whether sampled rewards are clipped to
	// their sign before targets are computed
	RewardClip bool

	// FrozenTrunk excludes the hidden layers from gradient updates,
	// training only the final linear layer
	FrozenTrunk bool
}

// Validate returns a ConfigError describing the first illegal field of
// c, or nil if c is legal.
func (c Config) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}

	const op = "validate"
	if c.BatchSize < 1 {
		return &agent.ConfigError{
			Op:  op,
			Err: fmt.Errorf("batch size must be positive, got %v",
				c.BatchSize),
		}
	}
	if c.BatchSize > c.BufferSize {
		return &agent.ConfigError{
			Op: op,
			Err: fmt.Errorf("batch size (%v) cannot exceed buffer "+
				"capacity (%v)", c.BatchSize, c.BufferSize),
		}
	}
	if c.InitWFn == nil {
		return &agent.ConfigError{
			Op:  op,
			Err: fmt.Errorf("no weight initializer given"),
		}
	}
	if c.Solver == nil {
		return &agent.ConfigError{
			Op:  op,
			Err: fmt.Errorf("no solver given"),
		}
	}
	if c.FrozenTrunk && len(c.HiddenSizes) == 0 {
		return &agent.ConfigError{
			Op:  op,
			Err: fmt.Errorf("cannot freeze the trunk of a network with " +
				"no hidden layers"),
		}
	}
	return nil
}
