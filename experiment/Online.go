// Package experiment implements the online collect-then-train loop
// driving a learning agent against an environment.
package experiment

import (
	"fmt"

	"github.com/snakeai/snakelearn/agent"
	"github.com/snakeai/snakelearn/environment"
	"github.com/snakeai/snakelearn/replay"
	"github.com/snakeai/snakelearn/utils/progressbar"
)

// Config describes an online experiment. Cadences are measured in
// environment steps; a cadence of 0 disables the event.
type Config struct {
	// Steps is the total number of environment steps to run
	Steps int

	// TrainEvery is the number of steps between training updates
	TrainEvery int

	// SyncEvery is the number of steps between target network
	// synchronizations
	SyncEvery int

	// CheckpointEvery is the number of steps between saved
	// checkpoints; CheckpointDir is where they are written
	CheckpointEvery int
	CheckpointDir   string
}

// Validate returns an error describing the first illegal field of c,
// or nil if c is legal.
func (c Config) Validate() error {
	if c.Steps < 1 {
		return fmt.Errorf("validate: steps must be positive, got %v",
			c.Steps)
	}
	if c.TrainEvery < 0 || c.SyncEvery < 0 || c.CheckpointEvery < 0 {
		return fmt.Errorf("validate: cadences cannot be negative")
	}
	if c.CheckpointEvery > 0 && c.CheckpointDir == "" {
		return fmt.Errorf("validate: checkpointing requires a directory")
	}
	return nil
}

// Online runs an agent against an environment, recording each
// transition in the agent's replay buffer and training, synchronizing,
// and checkpointing at the configured cadences.
type Online struct {
	agent  agent.Agent
	env    environment.Environment
	config Config

	returns []float64
	losses  []float64
}

// NewOnline validates config and returns a new online experiment.
func NewOnline(a agent.Agent, env environment.Environment,
	config Config) (*Online, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Online{
		agent:  a,
		env:    env,
		config: config,
	}, nil
}

// Run runs the experiment to completion.
func (o *Online) Run() error {
	bar := progressbar.New(40, o.config.Steps)
	defer bar.Close()

	numActions := o.env.NumActions()
	board, legalMoves := o.env.Reset()
	var episodeReturn float64
	checkpoint := 0

	for step := 1; step <= o.config.Steps; step++ {
		action, err := o.agent.SelectAction(board, legalMoves)
		if err != nil {
			return fmt.Errorf("run: could not select action: %v", err)
		}

		nextBoard, reward, done, nextLegal, err := o.env.Step(action)
		if err != nil {
			return fmt.Errorf("run: could not step environment: %v", err)
		}
		episodeReturn += reward

		oneHot := make([]float64, numActions)
		oneHot[action] = 1
		doneFlag := 0.0
		if done {
			doneFlag = 1
		}
		err = o.agent.AddToBuffer(board, oneHot, []float64{reward},
			nextBoard, []float64{doneFlag}, nextLegal)
		if err != nil {
			return fmt.Errorf("run: could not record transition: %v", err)
		}

		if done {
			o.returns = append(o.returns, episodeReturn)
			episodeReturn = 0
			board, legalMoves = o.env.Reset()
		} else {
			board, legalMoves = nextBoard, nextLegal
		}

		if o.config.TrainEvery > 0 && step%o.config.TrainEvery == 0 {
			loss, err := o.agent.TrainStep()
			switch {
			case replay.IsInsufficientData(err), replay.IsEmptyBuffer(err):
				// Not enough experience collected yet
			case err != nil:
				return fmt.Errorf("run: could not train: %v", err)
			default:
				o.losses = append(o.losses, loss)
			}
		}

		if o.config.SyncEvery > 0 && step%o.config.SyncEvery == 0 {
			if err := o.agent.UpdateTargetNet(); err != nil {
				return fmt.Errorf("run: could not sync target network: %v",
					err)
			}
		}

		if o.config.CheckpointEvery > 0 &&
			step%o.config.CheckpointEvery == 0 {
			if err := o.saveCheckpoint(checkpoint); err != nil {
				return fmt.Errorf("run: %v", err)
			}
			checkpoint++
		}

		bar.Increment()
	}
	return nil
}

// saveCheckpoint persists the agent's model and buffer under the
// checkpoint index.
func (o *Online) saveCheckpoint(iteration int) error {
	dir := o.config.CheckpointDir
	if err := o.agent.SaveModel(dir, iteration); err != nil {
		return fmt.Errorf("could not checkpoint model: %v", err)
	}
	if err := o.agent.SaveBuffer(dir, iteration); err != nil {
		return fmt.Errorf("could not checkpoint buffer: %v", err)
	}
	return nil
}

// Returns reports the return of each completed episode.
func (o *Online) Returns() []float64 {
	return o.returns
}

// Losses reports the loss of each completed training update.
func (o *Online) Losses() []float64 {
	return o.losses
}
