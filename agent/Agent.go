// Package agent defines the interface satisfied by every learning
// agent together with the configuration and replay plumbing the
// concrete agents share.
package agent

import (
	"fmt"

	"github.com/snakeai/snakelearn/preprocess"
	"github.com/snakeai/snakelearn/replay"
)

// Agent is a learner interacting with a grid game through stacked
// board observations and a discrete action set.
type Agent interface {
	// SelectAction returns the index of the action to take at board,
	// restricted to the actions set in the legalMoves mask
	SelectAction(board, legalMoves []float64) (int, error)

	// AddToBuffer records a batch of transitions in the agent's replay
	// buffer
	AddToBuffer(states, actions, rewards, nextStates, dones,
		legalMoves []float64) error

	// BufferSize returns the current replay buffer occupancy
	BufferSize() int

	// TrainStep performs a single gradient update and returns the
	// resulting loss
	TrainStep() (float64, error)

	// UpdateTargetNet copies the learned weights into the bootstrap
	// target network
	UpdateTargetNet() error

	// SaveModel and LoadModel persist the agent's network weights for
	// a training iteration
	SaveModel(dir string, iteration int) error
	LoadModel(dir string, iteration int) error

	// SaveBuffer and LoadBuffer persist the agent's replay buffer for
	// a training iteration
	SaveBuffer(dir string, iteration int) error
	LoadBuffer(dir string, iteration int) error
}

// Base provides the replay buffer and preprocessing plumbing shared by
// the concrete agents. It is intended to be embedded.
type Base struct {
	config Config
	buffer *replay.Buffer
	prep   *preprocess.Preprocessor
	seed   uint64
}

// NewBase validates config and returns a new Base with an empty replay
// buffer.
func NewBase(config Config, seed uint64) (*Base, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	buffer, err := replay.New(config.BufferSize, config.BoardSize,
		config.Frames, config.NumActions, seed)
	if err != nil {
		return nil, err
	}

	prep, err := preprocess.New(config.BoardSize, config.Frames)
	if err != nil {
		return nil, err
	}

	return &Base{
		config: config,
		buffer: buffer,
		prep:   prep,
		seed:   seed,
	}, nil
}

// Config returns the agent's configuration.
func (b *Base) Config() Config {
	return b.config
}

// Prepare preprocesses a batch of raw board observations into network
// input features.
func (b *Base) Prepare(obs []float64) ([]float64, error) {
	return b.prep.Prepare(obs)
}

// AddToBuffer records a batch of transitions in the replay buffer.
func (b *Base) AddToBuffer(states, actions, rewards, nextStates, dones,
	legalMoves []float64) error {
	return b.buffer.Add(states, actions, rewards, nextStates, dones,
		legalMoves)
}

// BufferSize returns the current replay buffer occupancy.
func (b *Base) BufferSize() int {
	return b.buffer.Size()
}

// Buffer returns the agent's replay buffer.
func (b *Base) Buffer() *replay.Buffer {
	return b.buffer
}

// ResetBuffer discards all stored transitions, leaving an empty buffer
// of the same capacity.
func (b *Base) ResetBuffer() error {
	return b.ResetBufferWithCapacity(b.config.BufferSize)
}

// ResetBufferWithCapacity discards all stored transitions and replaces
// the buffer with an empty one of the given capacity. This is the only
// way the configured buffer capacity changes after construction.
func (b *Base) ResetBufferWithCapacity(capacity int) error {
	if capacity < 1 {
		return &ConfigError{
			Op:  "resetbuffer",
			Err: fmt.Errorf("capacity must be positive, got %v", capacity),
		}
	}

	buffer, err := replay.New(capacity, b.config.BoardSize,
		b.config.Frames, b.config.NumActions, b.seed)
	if err != nil {
		return err
	}
	b.config.BufferSize = capacity
	b.buffer = buffer
	return nil
}

// SaveBuffer persists the replay buffer for a training iteration.
func (b *Base) SaveBuffer(dir string, iteration int) error {
	return b.buffer.Save(dir, iteration)
}

// LoadBuffer restores the replay buffer saved for a training
// iteration. On failure the in-memory buffer is left untouched.
func (b *Base) LoadBuffer(dir string, iteration int) error {
	return b.buffer.Load(dir, iteration)
}
