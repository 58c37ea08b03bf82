package a2c

import (
	"fmt"

	"github.com/snakeai/snakelearn/agent"
	"github.com/snakeai/snakelearn/initwfn"
	"github.com/snakeai/snakelearn/network"
	"github.com/snakeai/snakelearn/solver"
)

// Config implements a configuration of the A2C agent.
type Config struct {
	agent.Config

	// HiddenSizes, Biases, and Activations describe the trunk shared
	// by the policy and value heads. At least one hidden layer is
	// required, since with no trunk the heads would not interact.
	HiddenSizes []int
	Biases      []bool
	Activations []*network.Activation

	// InitWFn is the weight initialization scheme
	InitWFn *initwfn.InitWFn

	// Solver performs the gradient updates
	Solver *solver.Solver

	// Beta is the entropy regularization coefficient
	Beta float64

	// NumGames is the number of concurrent episodes whose transitions
	// fill the buffer between updates; the actor loss and entropy are
	// scaled by 1 / NumGames
	NumGames int

	// NormalizeRewards determines whether the buffered rewards are
	// standardized to zero mean and unit variance before the update
	NormalizeRewards bool

	// RewardClip determines whether rewards are clipped to their sign
	// before targets are computed
	RewardClip bool
}

// Validate returns a ConfigError describing the first illegal field of
// c, or nil if c is legal.
func (c Config) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}

	const op = "validate"
	if len(c.HiddenSizes) == 0 {
		return &agent.ConfigError{
			Op:  op,
			Err: fmt.Errorf("policy and value heads must share at least " +
				"one hidden layer"),
		}
	}
	if c.Beta < 0 {
		return &agent.ConfigError{
			Op:  op,
			Err: fmt.Errorf("entropy coefficient must be non-negative, "+
				"got %v", c.Beta),
		}
	}
	if c.NumGames < 1 {
		return &agent.ConfigError{
			Op:  op,
			Err: fmt.Errorf("must have at least 1 concurrent game, got %v",
				c.NumGames),
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
	return nil
}
