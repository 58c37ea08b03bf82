// Package deepq implements a deep Q-learning agent trained from
// uniformly sampled replay.
//
// Each training step samples a batch of transitions, bootstraps an
// action-value target from the next state, and takes a single gradient
// step on the Huber loss between the predicted and target action
// values. Only the value of the action actually taken is regressed;
// the targets for every other action are the network's own current
// predictions, so their error contribution is zero. Illegal actions at
// the next state never contribute to the bootstrap value.
//
// When the target network is enabled, bootstrap values come from a
// frozen copy of the learned network which the caller synchronizes at
// its own cadence with UpdateTargetNet.
package deepq

import (
	"fmt"
	"math"
	"os"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/snakeai/snakelearn/agent"
	"github.com/snakeai/snakelearn/network"
	"github.com/snakeai/snakelearn/utils/floatutils"
	"github.com/snakeai/snakelearn/utils/op"
)

// huberDelta is the error magnitude at which the training loss
// switches from quadratic to linear.
const huberDelta = 1.0

// DeepQ implements the deep Q-learning algorithm with experience
// replay and an optional target network.
//
// Four copies of the action-value network share one set of weights:
// trainNet carries the loss graph and receives the gradient updates,
// predNet computes current action values for target construction,
// policyNet predicts action values for single-board action selection,
// and targetNet is the frozen bootstrap network. The batch-sized
// copies exist because a Gorgonia graph has a fixed input shape.
type DeepQ struct {
	*agent.Base
	config Config

	trainNet         network.NeuralNet
	trainVM          G.VM
	solver           G.Solver
	model            []G.ValueGrad
	targetRegression *G.Node
	lossVal          G.Value

	predNet network.NeuralNet
	predVM  G.VM

	policyNet network.NeuralNet
	policyVM  G.VM

	targetNet network.NeuralNet
	targetVM  G.VM
}

// New creates and returns a new DeepQ agent.
func New(config Config, seed uint64) (*DeepQ, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	base, err := agent.NewBase(config.Config, seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create agent base: %v", err)
	}

	features := config.Features()
	batch := config.BatchSize

	g := G.NewGraph()
	trainNet, err := network.NewQMLP(features, batch, config.NumActions, g,
		config.HiddenSizes, config.Biases, config.InitWFn.InitWFn(),
		config.Activations)
	if err != nil {
		return nil, fmt.Errorf("new: could not create training network: %v",
			err)
	}

	// Target action values for the regression. The rows for actions
	// other than the one taken are filled with the network's own
	// predictions, giving them zero error.
	targetRegression := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(batch, config.NumActions),
		G.WithName("targetActionValues"),
		G.WithInit(G.Zeroes()),
	)

	loss, err := op.MeanHuber(trainNet.Prediction()[0], targetRegression,
		huberDelta)
	if err != nil {
		return nil, fmt.Errorf("new: could not compute loss: %v", err)
	}

	d := &DeepQ{
		Base:             base,
		config:           config,
		trainNet:         trainNet,
		targetRegression: targetRegression,
		solver:           config.Solver,
		model:            trainableModel(trainNet, config),
	}
	G.Read(loss, &d.lossVal)

	if _, err := G.Grad(loss, trainNet.Learnables()...); err != nil {
		return nil, fmt.Errorf("new: could not compute gradient: %v", err)
	}
	d.trainVM = G.NewTapeMachine(g,
		G.BindDualValues(trainNet.Learnables()...))

	// Forward-only copies sharing the training network's weights
	d.predNet, err = trainNet.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("new: could not create prediction "+
			"network: %v", err)
	}
	d.predVM = G.NewTapeMachine(d.predNet.Graph())

	d.policyNet, err = trainNet.CloneWithBatch(1)
	if err != nil {
		return nil, fmt.Errorf("new: could not create policy network: %v",
			err)
	}
	d.policyVM = G.NewTapeMachine(d.policyNet.Graph())

	d.targetNet, err = trainNet.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("new: could not create target network: %v",
			err)
	}
	d.targetVM = G.NewTapeMachine(d.targetNet.Graph())

	return d, nil
}

// trainableModel returns the learnables handed to the solver. With a
// frozen trunk, only the final linear layer is updated.
func trainableModel(net network.NeuralNet, config Config) []G.ValueGrad {
	model := net.Model()
	if !config.FrozenTrunk {
		return model
	}

	// Learnables are ordered trunk first; the output layer contributes
	// the final weight and bias pair
	return model[len(model)-2:]
}

// SelectAction returns the legal action with the greatest predicted
// action value at board.
func (d *DeepQ) SelectAction(board, legalMoves []float64) (int, error) {
	values, err := d.actionValues(board)
	if err != nil {
		return 0, fmt.Errorf("selectaction: %v", err)
	}

	action := floatutils.MaskedArgMax(values, legalMoves)
	if action < 0 {
		return 0, fmt.Errorf("selectaction: no legal moves at board")
	}
	return action, nil
}

// ActionProbabilities returns a softmax distribution over the
// predicted action values at board. Values are clipped to [-10, 10]
// before exponentiation so that a single dominant action value cannot
// overflow.
func (d *DeepQ) ActionProbabilities(board []float64) ([]float64, error) {
	values, err := d.actionValues(board)
	if err != nil {
		return nil, fmt.Errorf("actionprobabilities: %v", err)
	}

	for i := range values {
		values[i] = floatutils.Clip(values[i], -10, 10)
	}
	max := floatutils.Max(values...)

	var total float64
	probs := make([]float64, len(values))
	for i := range values {
		probs[i] = math.Exp(values[i] - max)
		total += probs[i]
	}
	for i := range probs {
		probs[i] /= total
	}
	return probs, nil
}

// actionValues runs the policy network on a single board observation
// and returns a copy of the predicted action values.
func (d *DeepQ) actionValues(board []float64) ([]float64, error) {
	input, err := d.Prepare(board)
	if err != nil {
		return nil, err
	}
	if len(input) != d.policyNet.Features() {
		return nil, fmt.Errorf("expected a single board observation")
	}

	if err := d.policyNet.SetInput(input); err != nil {
		return nil, err
	}
	if err := d.policyVM.RunAll(); err != nil {
		return nil, err
	}
	values := append([]float64{},
		d.policyNet.Output()[0].Data().([]float64)...)
	d.policyVM.Reset()

	return values, nil
}

// TrainStep samples a batch of transitions and performs a single
// gradient update on the action-value network, returning the training
// loss. An InsufficientData error from the replay buffer is returned
// unchanged.
func (d *DeepQ) TrainStep() (float64, error) {
	states, actions, rewards, nextStates, dones, legalMoves, err :=
		d.Buffer().Sample(d.config.BatchSize)
	if err != nil {
		return 0, err
	}

	if d.config.RewardClip {
		for i := range rewards {
			rewards[i] = floatutils.Sign(rewards[i])
		}
	}

	// Bootstrap values for the next states
	nextInput, err := d.Prepare(nextStates)
	if err != nil {
		return 0, fmt.Errorf("trainstep: could not prepare next states: %v",
			err)
	}
	bootstrapNet, bootstrapVM := d.predNet, d.predVM
	if d.config.UseTargetNet {
		bootstrapNet, bootstrapVM = d.targetNet, d.targetVM
	}
	nextQ, err := runForward(bootstrapNet, bootstrapVM, nextInput)
	if err != nil {
		return 0, fmt.Errorf("trainstep: could not predict next action "+
			"values: %v", err)
	}

	// Current predictions fill the target rows of untaken actions
	input, err := d.Prepare(states)
	if err != nil {
		return 0, fmt.Errorf("trainstep: could not prepare states: %v", err)
	}
	currentQ, err := runForward(d.predNet, d.predVM, input)
	if err != nil {
		return 0, fmt.Errorf("trainstep: could not predict current action "+
			"values: %v", err)
	}

	targets := computeTargets(currentQ, nextQ, actions, rewards, dones,
		legalMoves, d.config.NumActions, d.config.Gamma)

	if err := d.trainNet.SetInput(input); err != nil {
		return 0, fmt.Errorf("trainstep: could not set training input: %v",
			err)
	}
	targetTensor := tensor.New(
		tensor.WithBacking(targets),
		tensor.WithShape(d.config.BatchSize, d.config.NumActions),
	)
	if err := G.Let(d.targetRegression, targetTensor); err != nil {
		return 0, fmt.Errorf("trainstep: could not set regression "+
			"targets: %v", err)
	}

	if err := d.trainVM.RunAll(); err != nil {
		return 0, fmt.Errorf("trainstep: could not run training graph: %v",
			err)
	}
	if err := d.solver.Step(d.model); err != nil {
		return 0, fmt.Errorf("trainstep: could not step solver: %v", err)
	}
	d.trainVM.Reset()

	// Propagate the updated weights to the forward-only copies
	if err := d.predNet.Set(d.trainNet); err != nil {
		panic(fmt.Sprintf("trainstep: could not sync prediction "+
			"network: %v", err))
	}
	if err := d.policyNet.Set(d.trainNet); err != nil {
		panic(fmt.Sprintf("trainstep: could not sync policy network: %v",
			err))
	}

	return d.lossVal.Data().(float64), nil
}

// computeTargets returns the regression target matrix for a sampled
// batch. For each row, the entry of the taken action holds the
// discounted bootstrap return and every other entry holds the current
// prediction. A transition with no legal next moves bootstraps a
// future value of zero, as does a terminal transition.
func computeTargets(currentQ, nextQ, actions, rewards, dones,
	legalMoves []float64, numActions int, gamma float64) []float64 {
	targets := make([]float64, len(currentQ))

	for row := 0; row < len(rewards); row++ {
		start := row * numActions

		maxNext := floatutils.MaskedMax(nextQ[start:start+numActions],
			legalMoves[start:start+numActions])
		if math.IsInf(maxNext, -1) {
			maxNext = 0
		}

		discounted := rewards[row] + gamma*maxNext*(1-dones[row])
		for a := 0; a < numActions; a++ {
			taken := actions[start+a]
			targets[start+a] = (1-taken)*currentQ[start+a] +
				taken*discounted
		}
	}
	return targets
}

// runForward runs a forward-only network on input and returns a copy
// of its predictions.
func runForward(net network.NeuralNet, vm G.VM,
	input []float64) ([]float64, error) {
	if err := net.SetInput(input); err != nil {
		return nil, err
	}
	if err := vm.RunAll(); err != nil {
		return nil, err
	}
	output := append([]float64{}, net.Output()[0].Data().([]float64)...)
	vm.Reset()

	return output, nil
}

// UpdateTargetNet copies the learned weights into the target network.
// If the agent was configured without a target network the call warns
// and does nothing.
func (d *DeepQ) UpdateTargetNet() error {
	if !d.config.UseTargetNet {
		fmt.Fprintf(os.Stderr, "Warning: UpdateTargetNet called on an "+
			"agent with no target network\n")
		return nil
	}
	if err := d.targetNet.Set(d.trainNet); err != nil {
		return fmt.Errorf("updatetargetnet: could not sync target "+
			"network: %v", err)
	}
	return nil
}

// CopyWeightsFrom overwrites this agent's network weights with those
// of another agent. The agents must have networks with identical
// parameter shapes; no further compatibility is assumed.
func (d *DeepQ) CopyWeightsFrom(other *DeepQ) error {
	if err := network.SetWeights(d.trainNet,
		network.Weights(other.trainNet)); err != nil {
		return fmt.Errorf("copyweightsfrom: %v", err)
	}
	if err := network.SetWeights(d.targetNet,
		network.Weights(other.targetNet)); err != nil {
		return fmt.Errorf("copyweightsfrom: %v", err)
	}
	return d.syncForwardNets()
}

// SaveModel saves the network weights for a training iteration. The
// target network, when enabled, is saved alongside the learned
// network.
func (d *DeepQ) SaveModel(dir string, iteration int) error {
	if iteration < 0 {
		return &agent.ConfigError{
			Op:  "savemodel",
			Err: fmt.Errorf("iteration must be non-negative, got %v",
				iteration),
		}
	}

	path, err := network.ModelFile(dir, iteration, ".pt")
	if err != nil {
		return err
	}
	if err := network.Save(path, d.trainNet); err != nil {
		return err
	}

	if d.config.UseTargetNet {
		targetPath, err := network.ModelFile(dir, iteration, "_target.pt")
		if err != nil {
			return err
		}
		if err := network.Save(targetPath, d.targetNet); err != nil {
			return err
		}
	}
	return nil
}

// LoadModel restores the network weights saved for a training
// iteration. On failure the in-memory weights are left untouched.
func (d *DeepQ) LoadModel(dir string, iteration int) error {
	if iteration < 0 {
		return &agent.ConfigError{
			Op:  "loadmodel",
			Err: fmt.Errorf("iteration must be non-negative, got %v",
				iteration),
		}
	}

	path, err := network.ModelFile(dir, iteration, ".pt")
	if err != nil {
		return err
	}

	// Decode every file before applying any weights, so a missing or
	// corrupt target file cannot leave the learned network overwritten
	// while its forward copies still hold the old weights
	loaded, err := network.Read(path)
	if err != nil {
		return err
	}
	if err := network.Compatible(d.trainNet, loaded); err != nil {
		return fmt.Errorf("loadmodel: %v", err)
	}

	var loadedTarget network.NeuralNet
	if d.config.UseTargetNet {
		targetPath, err := network.ModelFile(dir, iteration, "_target.pt")
		if err != nil {
			return err
		}
		loadedTarget, err = network.Read(targetPath)
		if err != nil {
			return err
		}
		if err := network.Compatible(d.targetNet, loadedTarget); err != nil {
			return fmt.Errorf("loadmodel: %v", err)
		}
	}

	if err := d.trainNet.Set(loaded); err != nil {
		return fmt.Errorf("loadmodel: could not copy decoded weights: %v",
			err)
	}
	if loadedTarget != nil {
		if err := d.targetNet.Set(loadedTarget); err != nil {
			return fmt.Errorf("loadmodel: could not copy decoded target "+
				"weights: %v", err)
		}
	}
	return d.syncForwardNets()
}

// syncForwardNets propagates the training network's weights to the
// forward-only copies.
func (d *DeepQ) syncForwardNets() error {
	if err := d.predNet.Set(d.trainNet); err != nil {
		return fmt.Errorf("could not sync prediction network: %v", err)
	}
	if err := d.policyNet.Set(d.trainNet); err != nil {
		return fmt.Errorf("could not sync policy network: %v", err)
	}
	return nil
}
